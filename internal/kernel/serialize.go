package kernel

import (
	"sort"

	"github.com/jqwang/partri/pkg/model"
)

func isSuper(v int) bool { return v < 0 }

// liveCells returns the current cells that are eligible for output: those
// touching at most one super-simplex vertex. Cells touching two or more
// super vertices are pure scaffold and never surface in a serialized
// result.
func (t *Triangulation) liveCells() []cell {
	out := make([]cell, 0, len(t.cells))
	for _, c := range t.cells {
		nsuper := 0
		for _, v := range c.verts {
			if isSuper(v) {
				nsuper++
			}
		}
		if nsuper <= 1 {
			out = append(out, c)
		}
	}
	return out
}

// SerializeInfo2Idx returns the tuple defined in §3/§6: global-index cell
// and neighbor tables, the sentinel used for the infinite vertex, and the
// two canonicalising sort permutations. Neighbor entries reference other
// cells by their position in THIS leaf's own output arrays; the
// Consolidator does not read them and recomputes adjacency from the kept
// cells.
func (t *Triangulation) SerializeInfo2Idx(idxLocal []uint64, kind model.IndexKind) (
	cellsOut [][]uint64, neighborsOut [][]uint64, infIdx uint64, vertSort [][]uint32, cellSort []uint64,
) {
	live := t.liveCells()
	infIdx = model.InfiniteIndex(kind)

	// Map each live cell's sorted vertex-set to its position, for neighbor
	// lookups across shared faces (same technique used during insertion,
	// computed once here since adjacency is never tracked incrementally).
	type faceRef struct {
		cellIdx int
		skip    int
	}
	faceMap := make(map[string][]faceRef)
	for ci, c := range live {
		for skip := range c.verts {
			face := faceWithout(c.verts, skip)
			key := faceKey(face)
			faceMap[key] = append(faceMap[key], faceRef{cellIdx: ci, skip: skip})
		}
	}

	neighborsOut = make([][]uint64, len(live))
	for i := range neighborsOut {
		neighborsOut[i] = make([]uint64, len(live[i].verts))
		for j := range neighborsOut[i] {
			neighborsOut[i][j] = infIdx // sentinel meaning "no neighbor found"; overwritten below when present
		}
	}
	for _, refs := range faceMap {
		if len(refs) != 2 {
			continue
		}
		a, b := refs[0], refs[1]
		neighborsOut[a.cellIdx][a.skip] = uint64(b.cellIdx)
		neighborsOut[b.cellIdx][b.skip] = uint64(a.cellIdx)
	}

	cellsOut = make([][]uint64, len(live))
	vertSort = make([][]uint32, len(live))
	for ci, c := range live {
		row := make([]uint64, len(c.verts))
		for j, v := range c.verts {
			if isSuper(v) {
				row[j] = infIdx
			} else {
				row[j] = idxLocal[v]
			}
		}
		cellsOut[ci] = row
		vertSort[ci] = argsortUint64(row)
	}

	cellSort = canonicalCellOrder(cellsOut)

	return cellsOut, neighborsOut, infIdx, vertSort, cellSort
}

// argsortUint64 returns the permutation of indices that sorts vals
// ascending.
func argsortUint64(vals []uint64) []uint32 {
	idx := make([]uint32, len(vals))
	for i := range idx {
		idx[i] = uint32(i)
	}
	sort.Slice(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })
	return idx
}

// canonicalCellOrder returns, for each rank 0..len(cells)-1, the original
// cell index that should appear at that rank: cells ordered by their own
// sorted vertex tuple, giving the deterministic order required by the
// consolidation contract.
func canonicalCellOrder(cells [][]uint64) []uint64 {
	order := make([]uint64, len(cells))
	sortedTuples := make([][]uint64, len(cells))
	for i, c := range cells {
		t := append([]uint64(nil), c...)
		sort.Slice(t, func(a, b int) bool { return t[a] < t[b] })
		sortedTuples[i] = t
	}
	for i := range order {
		order[i] = uint64(i)
	}
	sort.Slice(order, func(a, b int) bool {
		ta, tb := sortedTuples[order[a]], sortedTuples[order[b]]
		for k := 0; k < len(ta) && k < len(tb); k++ {
			if ta[k] != tb[k] {
				return ta[k] < tb[k]
			}
		}
		return order[a] < order[b]
	})
	return order
}
