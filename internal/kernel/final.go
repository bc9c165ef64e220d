package kernel

import "github.com/jqwang/partri/pkg/model"

// Final is the read-only result of deserialize_with_info: the consolidated
// global triangulation, held purely as data (no further insertion is
// supported — consolidation is the terminal step of a run).
type Final struct {
	Dim       model.Dimension
	Points    []float64 // flat (N, D) array, shared with the original point set
	Idx       []uint64
	Cells     [][]uint64
	Neighbors [][]uint64
	InfIdx    uint64
}

// DeserializeWithInfo builds a Final triangulation from consolidated
// tables, mirroring the kernel interface's
// deserialize_with_info(pts, idx, cells, neighbors, inf_idx).
func DeserializeWithInfo(dim model.Dimension, pts []float64, idx []uint64, cells, neighbors [][]uint64, infIdx uint64) *Final {
	return &Final{
		Dim:       dim,
		Points:    pts,
		Idx:       idx,
		Cells:     cells,
		Neighbors: neighbors,
		InfIdx:    infIdx,
	}
}

// NumCells returns the total number of cells (finite and infinite).
func (f *Final) NumCells() int {
	return len(f.Cells)
}

// NumFiniteCells returns the number of cells with no infinite vertex.
func (f *Final) NumFiniteCells() int {
	n := 0
	for _, c := range f.Cells {
		finite := true
		for _, v := range c {
			if v == f.InfIdx {
				finite = false
				break
			}
		}
		if finite {
			n++
		}
	}
	return n
}
