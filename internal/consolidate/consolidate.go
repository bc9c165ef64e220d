// Package consolidate implements C5 Consolidator: a pure function merging
// every leaf's serialized triangulation into one global cells/neighbors
// table, per spec.md §4.4.
package consolidate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jqwang/partri/internal/kernel"
	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/pkg/model"
)

// Summary is the consolidated result returned alongside the final
// triangulation: provenance counts useful for a run's reported output.
type Summary struct {
	Final        *kernel.Final
	LeafCount    int
	CellsKept    int
	CellsDropped int
}

// Consolidate merges results (one wire.LeafResult per leaf, any order) into
// a single global triangulation. leaves describes every partition's owned
// index range; idx is the shared point permutation every leaf's owned
// range indexes into. kind must be the single index width chosen for the
// whole run (the same value every worker was constructed with).
//
// Determinism: global cells appear in an order determined solely by
// (leaf id, per-leaf cell sort rank), per §4.4.
func Consolidate(dim model.Dimension, pts *point.Set, idx point.Permutation, leaves []*leaf.Leaf, results []*wire.LeafResult, kind model.IndexKind) (*Summary, error) {
	if len(leaves) != len(results) {
		return nil, fmt.Errorf("consolidate: %d leaves but %d results", len(leaves), len(results))
	}

	owner, err := ownerIndex(leaves, idx)
	if err != nil {
		return nil, err
	}

	byLeaf := make(map[int]*wire.LeafResult, len(results))
	for _, r := range results {
		if _, dup := byLeaf[int(r.LeafID)]; dup {
			return nil, fmt.Errorf("consolidate: duplicate result for leaf %d", r.LeafID)
		}
		if r.Kind != kind {
			return nil, fmt.Errorf("consolidate: leaf %d serialized with index kind %s, run uses %s", r.LeafID, r.Kind, kind)
		}
		byLeaf[int(r.LeafID)] = r
	}

	ordered := append([]*leaf.Leaf(nil), leaves...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	infIdx := model.InfiniteIndex(kind)

	var cells [][]uint64
	type faceEntry struct {
		cellIdx int
		skip    int
	}
	faceIndex := make(map[string][]faceEntry)
	dropped := 0

	for _, l := range ordered {
		r, ok := byLeaf[l.ID]
		if !ok {
			return nil, fmt.Errorf("consolidate: missing result for leaf %d", l.ID)
		}
		if len(r.CellSort) != len(r.Cells) {
			return nil, fmt.Errorf("consolidate: leaf %d cell_sort length %d does not match %d cells", l.ID, len(r.CellSort), len(r.Cells))
		}

		for _, rank := range r.CellSort {
			verts := r.Cells[rank]
			minV, ok := smallestFinite(verts, infIdx)
			if !ok {
				// Every vertex is the infinite sentinel: the kernel's
				// liveCells filter never produces this, but guard anyway
				// rather than silently misattributing ownership.
				return nil, fmt.Errorf("consolidate: leaf %d cell %d has no finite vertex", l.ID, rank)
			}
			ownerID, ok := owner[minV]
			if !ok {
				return nil, fmt.Errorf("consolidate: vertex %d has no owning leaf", minV)
			}
			if ownerID != l.ID {
				// Reported by a leaf that only saw it through ghost
				// points; the true owner reports the same cell and is
				// the single copy kept.
				dropped++
				continue
			}

			globalIdx := len(cells)
			cells = append(cells, verts)
			for skip := range verts {
				key := faceKey(verts, skip)
				faceIndex[key] = append(faceIndex[key], faceEntry{cellIdx: globalIdx, skip: skip})
			}
		}
	}

	neighbors := make([][]uint64, len(cells))
	for i, c := range cells {
		row := make([]uint64, len(c))
		for j := range row {
			row[j] = infIdx
		}
		neighbors[i] = row
	}
	for _, entries := range faceIndex {
		if len(entries) != 2 {
			continue
		}
		a, b := entries[0], entries[1]
		neighbors[a.cellIdx][a.skip] = uint64(b.cellIdx)
		neighbors[b.cellIdx][b.skip] = uint64(a.cellIdx)
	}

	final := kernel.DeserializeWithInfo(dim, pts.Coords(), append(point.Permutation(nil), idx...), cells, neighbors, infIdx)

	return &Summary{
		Final:        final,
		LeafCount:    len(leaves),
		CellsKept:    len(cells),
		CellsDropped: dropped,
	}, nil
}

// ownerIndex builds the global point index -> owning leaf id map implied
// by each leaf's [start_idx, stop_idx) slice of idx.
func ownerIndex(leaves []*leaf.Leaf, idx point.Permutation) (map[uint64]int, error) {
	owner := make(map[uint64]int, len(idx))
	for _, l := range leaves {
		if l.StopIdx > uint64(len(idx)) {
			return nil, fmt.Errorf("consolidate: leaf %d stop_idx %d exceeds permutation length %d", l.ID, l.StopIdx, len(idx))
		}
		for k := l.StartIdx; k < l.StopIdx; k++ {
			owner[idx[k]] = l.ID
		}
	}
	return owner, nil
}

// smallestFinite returns the smallest vertex value that is not the
// infinite sentinel, and whether one was found.
func smallestFinite(verts []uint64, infIdx uint64) (uint64, bool) {
	min, found := uint64(0), false
	for _, v := range verts {
		if v == infIdx {
			continue
		}
		if !found || v < min {
			min = v
			found = true
		}
	}
	return min, found
}

// faceKey builds a stable string key for the face obtained by dropping
// vertex index skip from verts, used to pair up the two cells sharing it
// across the whole global cell set (mirroring the kernel's own per-leaf
// face-hashing technique, generalized to uint64 global indices).
func faceKey(verts []uint64, skip int) string {
	face := make([]uint64, 0, len(verts)-1)
	for i, v := range verts {
		if i != skip {
			face = append(face, v)
		}
	}
	sort.Slice(face, func(i, j int) bool { return face[i] < face[j] })

	var b strings.Builder
	for i, v := range face {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(v, 10))
	}
	return b.String()
}
