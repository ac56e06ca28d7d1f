// Package sampler runs the periodic price sampling loop. Each tick it
// walks the active index, records a snapshot per observing window, and
// completes windows whose deadline has passed. One bad id never aborts
// the rest of the tick.
package sampler
