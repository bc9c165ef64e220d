// Package kernel implements the Delaunay kernel that spec.md §6 treats as
// an external collaborator: point insertion, candidate-to-send queries,
// serialization, and Voronoi volumes. It is a classical incremental
// Bowyer-Watson triangulation generalized over D in {2,3}, closed with a
// bounding super-simplex that stands in for the "infinite vertex".
package kernel

import (
	"math"
	"sort"

	"github.com/jqwang/partri/pkg/model"
)

// cell is one D-simplex: D+1 local vertex ids. A negative id refers to one
// of the D+1 super-simplex vertices; non-negative ids are real points in
// insertion order, matching the worker's idx_local indexing.
type cell struct {
	verts []int
}

// Triangulation is a growing local Delaunay triangulation.
type Triangulation struct {
	dim      model.Dimension
	super    [][]float64
	real     [][]float64
	cells    []cell
	byCoord  map[string]int // exact-coordinate dedup for duplicate-point robustness
}

// NewTriangulation builds an empty triangulation closed by a super-simplex
// sized from boundingRadius, a coordinate-scale hint the caller derives
// from the leaf's bounding box and domain width. The super-simplex must be
// large enough to contain every point ever inserted, including periodic
// ghost points translated by ±domain_width.
func NewTriangulation(dim model.Dimension, center []float64, boundingRadius float64) *Triangulation {
	d := int(dim)
	r := boundingRadius * 1000
	if r <= 0 {
		r = 1000
	}

	super := make([][]float64, d+1)
	v0 := make([]float64, d)
	for a := 0; a < d; a++ {
		v0[a] = center[a] - r
	}
	super[0] = v0
	for k := 1; k <= d; k++ {
		v := make([]float64, d)
		copy(v, center)
		v[k-1] = center[k-1] + r*float64(d+2)
		super[k] = v
	}

	t := &Triangulation{
		dim:     dim,
		super:   super,
		byCoord: make(map[string]int),
	}
	// Seed with the single simplex spanning the super-simplex vertices.
	verts := make([]int, d+1)
	for k := 0; k <= d; k++ {
		verts[k] = -(k + 1)
	}
	t.cells = append(t.cells, cell{verts: verts})
	return t
}

func (t *Triangulation) coord(v int) []float64 {
	if v >= 0 {
		return t.real[v]
	}
	return t.super[-v-1]
}

func coordKey(p []float64) string {
	b := make([]byte, 0, len(p)*8)
	for _, v := range p {
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			b = append(b, byte(bits>>(8*i)))
		}
	}
	return string(b)
}

// Insert adds a point and returns its local vertex index and whether it was
// a duplicate of an already-present real point (in which case the existing
// index is returned and the triangulation is unchanged, satisfying the
// duplicate-point-robustness property in §8).
func (t *Triangulation) Insert(p []float64) (idx int, duplicate bool) {
	key := coordKey(p)
	if existing, ok := t.byCoord[key]; ok {
		return existing, true
	}

	newIdx := len(t.real)
	t.real = append(t.real, append([]float64(nil), p...))
	t.byCoord[key] = newIdx

	bad := make(map[int]bool)
	for ci, c := range t.cells {
		pts := make([][]float64, len(c.verts))
		for i, v := range c.verts {
			pts[i] = t.coord(v)
		}
		if inSphere(pts, p) {
			bad[ci] = true
		}
	}

	faceCount := make(map[string]int)
	faceVerts := make(map[string][]int)
	for ci := range bad {
		c := t.cells[ci]
		for skip := range c.verts {
			face := faceWithout(c.verts, skip)
			key := faceKey(face)
			faceCount[key]++
			faceVerts[key] = face
		}
	}

	var newCells []cell
	for key, count := range faceCount {
		if count != 1 {
			continue
		}
		face := faceVerts[key]
		verts := append(append([]int(nil), face...), newIdx)
		newCells = append(newCells, cell{verts: verts})
	}

	t.cells = removeCells(t.cells, bad)
	t.cells = append(t.cells, newCells...)

	return newIdx, false
}

func faceWithout(verts []int, skip int) []int {
	face := make([]int, 0, len(verts)-1)
	for i, v := range verts {
		if i != skip {
			face = append(face, v)
		}
	}
	return face
}

func faceKey(face []int) string {
	sorted := append([]int(nil), face...)
	sort.Ints(sorted)
	b := make([]byte, 0, len(sorted)*8)
	for _, v := range sorted {
		u := uint64(int64(v))
		for i := 0; i < 8; i++ {
			b = append(b, byte(u>>(8*i)))
		}
	}
	return string(b)
}

func removeCells(cells []cell, dead map[int]bool) []cell {
	out := make([]cell, 0, len(cells)-len(dead))
	for i, c := range cells {
		if !dead[i] {
			out = append(out, c)
		}
	}
	return out
}

// NumCells returns the number of live simplices, including those touching
// the super-simplex.
func (t *Triangulation) NumCells() int {
	return len(t.cells)
}

// NumPoints returns the number of real (non-super) points inserted.
func (t *Triangulation) NumPoints() int {
	return len(t.real)
}
