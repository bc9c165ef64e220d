// Package point holds the immutable point set and its companion index
// permutation shared read-only across every partition worker (§3 Point set).
package point

import (
	"fmt"

	"github.com/jqwang/partri/pkg/model"
)

// Set is an immutable (N, D) array of double-precision coordinates.
// Coordinates are stored row-major: point i occupies
// coords[i*dim : (i+1)*dim].
type Set struct {
	coords []float64
	dim    model.Dimension
	n      int
}

// NewSet wraps a flat coordinate slice as a point set. coords must have a
// length that is a multiple of dim.
func NewSet(dim model.Dimension, coords []float64) (*Set, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("point: unsupported dimension %d", int(dim))
	}
	d := int(dim)
	if len(coords)%d != 0 {
		return nil, fmt.Errorf("point: coords length %d is not a multiple of dimension %d", len(coords), d)
	}
	return &Set{coords: coords, dim: dim, n: len(coords) / d}, nil
}

// Dim returns the set's dimensionality.
func (s *Set) Dim() model.Dimension { return s.dim }

// Len returns the number of points, N.
func (s *Set) Len() int { return s.n }

// At returns the coordinates of point i as a read-only slice view; callers
// must not mutate the result.
func (s *Set) At(i int) []float64 {
	d := int(s.dim)
	return s.coords[i*d : (i+1)*d]
}

// Coords returns the full backing slice, read-only.
func (s *Set) Coords() []float64 { return s.coords }

// Permutation is the companion idx array from §3: idx[k] is the global
// point index assigned to decomposition-order position k. Each leaf owns a
// contiguous slice idx[start_idx:stop_idx).
type Permutation []uint64

// Slice returns the half-open sub-permutation [start, stop).
func (p Permutation) Slice(start, stop uint64) Permutation {
	return p[start:stop]
}
