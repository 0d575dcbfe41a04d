// Package geospatial holds the planar arithmetic behind the tile grid.
package geospatial

import "math"

// CellsAlong returns how many cells of size step are needed to cover span.
// A zero or negative span still needs one cell.
func CellsAlong(span, step float64) int {
	if step <= 0 {
		return 0
	}
	n := int(math.Ceil(span / step))
	if n < 1 {
		return 1
	}
	return n
}

// CellCount returns cols*rows for a width×height extent tiled by step.
func CellCount(width, height, step float64) int {
	return CellsAlong(width, step) * CellsAlong(height, step)
}

// Origins returns the n cell origins start, start+step, ... computed by
// multiplication so that no rounding error accumulates across the row.
func Origins(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
