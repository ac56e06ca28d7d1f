// Package ingest maintains the streaming connection to the whale-alert
// feed. It subscribes with the configured filters, parses inbound alert
// messages, and opens an observation window for each qualifying
// transfer. Transport failures trigger reconnection with exponential
// backoff; the subscription is always re-established from scratch.
package ingest
