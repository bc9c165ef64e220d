// Package leaf implements C1 Leaf Descriptor: immutable per-partition
// metadata produced by the decomposition tree and consumed by every other
// component.
package leaf

import (
	"fmt"

	"github.com/jqwang/partri/pkg/model"
)

// Leaf is the immutable metadata for one partition (§3 Leaf).
type Leaf struct {
	// ID identifies this leaf in [0, L).
	ID int
	// StartIdx, StopIdx define the half-open range this leaf owns within
	// the global idx permutation.
	StartIdx, StopIdx uint64
	// LeftEdge, RightEdge are the axis-aligned bounding box of the owned
	// region; LeftEdge[d] < RightEdge[d] for every axis d.
	LeftEdge, RightEdge []float64
	// LeftNeighbors, RightNeighbors list, per axis, the leaf ids sharing
	// the lower/upper face along that axis. A leaf may appear in its own
	// list on a periodic axis it spans alone.
	LeftNeighbors, RightNeighbors [][]int
	// PeriodicLeft, PeriodicRight mark, per axis, whether that face wraps.
	PeriodicLeft, PeriodicRight []bool
	// DomainWidth is the width of the whole periodic domain per axis; only
	// meaningful where a periodic flag is set.
	DomainWidth []float64
}

// NPts returns the number of points this leaf owns.
func (l *Leaf) NPts() uint64 {
	return l.StopIdx - l.StartIdx
}

// Validate checks the invariants from §3 that a decomposition tree must
// establish before any worker may use this leaf.
func (l *Leaf) Validate(dim model.Dimension) error {
	d := int(dim)
	if l.StopIdx < l.StartIdx {
		return fmt.Errorf("leaf %d: stop_idx %d < start_idx %d", l.ID, l.StopIdx, l.StartIdx)
	}
	if len(l.LeftEdge) != d || len(l.RightEdge) != d {
		return fmt.Errorf("leaf %d: bounding box must have %d components", l.ID, d)
	}
	for a := 0; a < d; a++ {
		if l.LeftEdge[a] >= l.RightEdge[a] {
			return fmt.Errorf("leaf %d: left_edge[%d]=%g must be < right_edge[%d]=%g", l.ID, a, l.LeftEdge[a], a, l.RightEdge[a])
		}
	}
	if len(l.LeftNeighbors) != d || len(l.RightNeighbors) != d {
		return fmt.Errorf("leaf %d: neighbor lists must have %d axes", l.ID, d)
	}
	if len(l.PeriodicLeft) != d || len(l.PeriodicRight) != d {
		return fmt.Errorf("leaf %d: periodic flags must have %d axes", l.ID, d)
	}
	if len(l.DomainWidth) != d {
		return fmt.Errorf("leaf %d: domain_width must have %d components", l.ID, d)
	}
	return nil
}

// InBounds reports whether p (length dim) lies within this leaf's bounding
// box, component-wise, inclusive of the faces (the tie-break rule in §4.1
// sends points lying exactly on a neighbor's face).
func (l *Leaf) InBounds(p []float64) bool {
	for a := range p {
		if p[a] < l.LeftEdge[a] || p[a] > l.RightEdge[a] {
			return false
		}
	}
	return true
}
