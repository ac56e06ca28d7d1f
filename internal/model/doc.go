// Package model defines shared data types for the whale transfer observer.
//
// Conventions:
//   - Prices and percentages: float64 USD / percent
//   - Timestamps: time.Time in the API, RFC3339 at the store boundary
//   - IDs: the transaction hash of the detected transfer
package model
