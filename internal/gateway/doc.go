// Package gateway resolves current market prices from the Binance public
// API. Callers pass the bare lower-case currency code stored on events;
// canonicalization to a trading pair happens entirely inside this package.
package gateway
