// Package decomposition implements the spatial decomposition tree that
// spec.md §6 treats as an external collaborator: it partitions a point set
// into leaves with owned index ranges, axis-aligned bounds, and per-axis
// neighbor lists.
package decomposition

import (
	"fmt"
	"sort"

	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/pkg/model"
)

// Builder constructs a decomposition tree via recursive median-cut
// bisection, the simplest kd-tree-style splitter that produces balanced
// leaves without requiring a fully general BSP implementation.
type Builder struct {
	Dim         model.Dimension
	Periodic    []bool
	DomainWidth []float64
}

type box struct {
	start, stop uint64
	left, right []float64
}

// Build partitions pts into leafCount leaves by repeatedly median-splitting
// the box holding the most points (fewer leaves when that box has fewer
// than two points) and returns the leaves plus the idx permutation each
// leaf's [StartIdx, StopIdx) range refers into.
func (b *Builder) Build(pts *point.Set, leafCount int) ([]*leaf.Leaf, point.Permutation, error) {
	if leafCount < 1 {
		return nil, nil, fmt.Errorf("decomposition: leafCount must be >= 1")
	}
	d := int(b.Dim)
	n := pts.Len()

	idx := make(point.Permutation, n)
	for i := range idx {
		idx[i] = uint64(i)
	}

	domMin, domMax := boundingBox(pts, idx)
	boxes := []box{{start: 0, stop: uint64(n), left: domMin, right: domMax}}

	for len(boxes) < leafCount {
		splitIdx := largestBox(boxes)
		parent := boxes[splitIdx]
		if parent.stop-parent.start < 2 {
			break // cannot split further
		}
		left, right := splitBox(pts, idx, parent, d)
		boxes[splitIdx] = left
		boxes = append(boxes, right)
	}

	leaves := make([]*leaf.Leaf, len(boxes))
	for i, bx := range boxes {
		periodicLeft := make([]bool, d)
		periodicRight := make([]bool, d)
		for a := 0; a < d && a < len(b.Periodic); a++ {
			periodicLeft[a] = b.Periodic[a] && bx.left[a] == domMin[a]
			periodicRight[a] = b.Periodic[a] && bx.right[a] == domMax[a]
		}
		leaves[i] = &leaf.Leaf{
			ID:             i,
			StartIdx:       bx.start,
			StopIdx:        bx.stop,
			LeftEdge:       bx.left,
			RightEdge:      bx.right,
			LeftNeighbors:  make([][]int, d),
			RightNeighbors: make([][]int, d),
			PeriodicLeft:   periodicLeft,
			PeriodicRight:  periodicRight,
			DomainWidth:    append([]float64(nil), b.DomainWidth...),
		}
	}

	computeNeighbors(leaves, domMin, domMax, b.Periodic, d)

	if err := checkSymmetry(leaves, d); err != nil {
		return nil, nil, err
	}

	return leaves, idx, nil
}

func boundingBox(pts *point.Set, idx point.Permutation) (min, max []float64) {
	d := int(pts.Dim())
	min = make([]float64, d)
	max = make([]float64, d)
	for a := 0; a < d; a++ {
		min[a] = pts.At(int(idx[0]))[a]
		max[a] = min[a]
	}
	for _, gi := range idx {
		p := pts.At(int(gi))
		for a := 0; a < d; a++ {
			if p[a] < min[a] {
				min[a] = p[a]
			}
			if p[a] > max[a] {
				max[a] = p[a]
			}
		}
	}
	return min, max
}

func largestBox(boxes []box) int {
	best, bestN := 0, uint64(0)
	for i, bx := range boxes {
		n := bx.stop - bx.start
		if n > bestN {
			bestN = n
			best = i
		}
	}
	return best
}

// splitBox partitions idx[parent.start:parent.stop) at the median along the
// box's longest axis, returning the two resulting sub-boxes.
func splitBox(pts *point.Set, idx point.Permutation, parent box, d int) (left, right box) {
	axis := 0
	bestExtent := -1.0
	for a := 0; a < d; a++ {
		extent := parent.right[a] - parent.left[a]
		if extent > bestExtent {
			bestExtent = extent
			axis = a
		}
	}

	seg := idx[parent.start:parent.stop]
	sort.Slice(seg, func(i, j int) bool {
		return pts.At(int(seg[i]))[axis] < pts.At(int(seg[j]))[axis]
	})

	mid := uint64(len(seg) / 2)
	splitCoord := pts.At(int(seg[mid]))[axis]

	leftEdge, rightEdge := append([]float64(nil), parent.left...), append([]float64(nil), parent.right...)
	rightEdge[axis] = splitCoord
	left = box{start: parent.start, stop: parent.start + mid, left: leftEdge, right: rightEdge}

	leftEdge2, rightEdge2 := append([]float64(nil), parent.left...), append([]float64(nil), parent.right...)
	leftEdge2[axis] = splitCoord
	right = box{start: parent.start + mid, stop: parent.stop, left: leftEdge2, right: rightEdge2}

	return left, right
}

// overlaps reports whether the closed intervals [loA,hiA] and [loB,hiB]
// intersect; touching endpoints count as overlapping.
func overlaps(loA, hiA, loB, hiB float64) bool {
	return loA <= hiB && loB <= hiA
}

func computeNeighbors(leaves []*leaf.Leaf, domMin, domMax []float64, periodic []bool, d int) {
	for i, li := range leaves {
		for j, lj := range leaves {
			if i == j {
				continue
			}
			for a := 0; a < d; a++ {
				if !overlapsOtherAxes(li, lj, a, d) {
					continue
				}
				// lj sits to the right of li along axis a: li's right face
				// touches lj's left face.
				if li.RightEdge[a] == lj.LeftEdge[a] {
					li.RightNeighbors[a] = appendUnique(li.RightNeighbors[a], lj.ID)
					lj.LeftNeighbors[a] = appendUnique(lj.LeftNeighbors[a], li.ID)
				}
			}
		}
	}

	if periodic == nil {
		return
	}
	for a := 0; a < d; a++ {
		if a >= len(periodic) || !periodic[a] {
			continue
		}
		for _, li := range leaves {
			if li.LeftEdge[a] != domMin[a] {
				continue
			}
			for _, lj := range leaves {
				if lj.RightEdge[a] != domMax[a] {
					continue
				}
				if !overlapsOtherAxes(li, lj, a, d) {
					continue
				}
				li.LeftNeighbors[a] = appendUnique(li.LeftNeighbors[a], lj.ID)
				lj.RightNeighbors[a] = appendUnique(lj.RightNeighbors[a], li.ID)
			}
		}
	}
}

func overlapsOtherAxes(li, lj *leaf.Leaf, skip, d int) bool {
	for a := 0; a < d; a++ {
		if a == skip {
			continue
		}
		if !overlaps(li.LeftEdge[a], li.RightEdge[a], lj.LeftEdge[a], lj.RightEdge[a]) {
			return false
		}
	}
	return true
}

func appendUnique(list []int, id int) []int {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

// checkSymmetry enforces the supplemented invariant (SPEC_FULL.md §4.4):
// if B is a right-neighbor of A on axis a, A must be a left-neighbor of B
// on the same axis.
func checkSymmetry(leaves []*leaf.Leaf, d int) error {
	byID := make(map[int]*leaf.Leaf, len(leaves))
	for _, l := range leaves {
		byID[l.ID] = l
	}
	for _, a := range leaves {
		for axis := 0; axis < d; axis++ {
			for _, bID := range a.RightNeighbors[axis] {
				b := byID[bID]
				if !containsInt(b.LeftNeighbors[axis], a.ID) {
					return fmt.Errorf("decomposition: leaf %d is a right-neighbor of leaf %d on axis %d, but leaf %d is not a left-neighbor of leaf %d", bID, a.ID, axis, a.ID, bID)
				}
			}
		}
	}
	return nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
