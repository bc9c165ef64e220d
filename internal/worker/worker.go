// Package worker implements C2 Partition Worker: wraps one leaf's local
// triangulation, computes outgoing halo points, ingests incoming halo
// points with periodic wrapping, and produces the serialized leaf result.
package worker

import (
	"fmt"

	"github.com/jqwang/partri/internal/kernel"
	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/pkg/collections"
	"github.com/jqwang/partri/pkg/model"
)

// neighborInfo is this leaf's current knowledge of one peer's translated
// bounding box, stored per axis-agnostic peer id (a peer can appear more
// than once across axes but its box is the same translated box regardless
// of which axis introduced it).
type neighborInfo struct {
	leftEdge, rightEdge []float64
}

// Worker is the mutable partition state described in spec.md §3: a
// growing local triangulation plus the bookkeeping needed to drive one
// round of the exchange protocol.
type Worker struct {
	Leaf *leaf.Leaf

	dim  model.Dimension
	kind model.IndexKind
	tri  *kernel.Triangulation

	norig    int
	idxLocal []uint64 // local vertex index -> global point index

	neighbors    *collections.Bitset // current round's candidate recipients
	allNeighbors *collections.Bitset // cumulative, suppresses re-learning a peer
	bounds       map[int]neighborInfo
}

// New constructs a Worker for l. boundingRadius sizes the kernel's
// super-simplex; callers derive it from the leaf's bounding box, inflated
// enough to safely contain periodic ghost points translated by
// domain_width.
func New(l *leaf.Leaf, dim model.Dimension, kind model.IndexKind, boundingRadius float64) *Worker {
	d := int(dim)
	center := make([]float64, d)
	for a := 0; a < d; a++ {
		center[a] = (l.LeftEdge[a] + l.RightEdge[a]) / 2
	}
	return &Worker{
		Leaf:         l,
		dim:          dim,
		kind:         kind,
		tri:          kernel.NewTriangulation(dim, center, boundingRadius),
		neighbors:    collections.NewBitset(64),
		allNeighbors: collections.NewBitset(64),
		bounds:       make(map[int]neighborInfo),
	}
}

// Tessellate builds the initial local triangulation from this leaf's owned
// points, per §4.1's `tessellate(owned_points)`. Called once, before any
// exchange round.
func (w *Worker) Tessellate(pts *point.Set, idx point.Permutation) error {
	if w.norig != 0 {
		return fmt.Errorf("worker: leaf %d already tessellated", w.Leaf.ID)
	}
	owned := idx.Slice(w.Leaf.StartIdx, w.Leaf.StopIdx)
	w.idxLocal = make([]uint64, 0, len(owned))
	for _, gi := range owned {
		_, dup := w.tri.Insert(pts.At(int(gi)))
		if dup {
			// A literal coordinate duplicate within the owned set maps to
			// an already-present local vertex: no new idx_local slot, per
			// the duplicate-point-robustness property (inserting the same
			// point twice must match inserting it once).
			continue
		}
		w.idxLocal = append(w.idxLocal, gi)
	}
	w.norig = len(w.idxLocal)
	return nil
}

// SeedNeighbors populates the initial neighbors/bounds from the
// decomposition tree's own left/right adjacency lists, before the first
// exchange round runs. leaves indexes every leaf in the run by id so a
// periodic axis can translate a peer's box by ±domain_width into this
// leaf's frame; the dynamic growth described in §4.1 step 4 only ever
// discovers neighbors transitively beyond this starting set.
func (w *Worker) SeedNeighbors(leaves map[int]*leaf.Leaf) {
	for a, ids := range w.Leaf.LeftNeighbors {
		periodic := a < len(w.Leaf.PeriodicLeft) && w.Leaf.PeriodicLeft[a]
		for _, id := range ids {
			w.seedOne(leaves, id, a, periodic, false)
		}
	}
	for a, ids := range w.Leaf.RightNeighbors {
		periodic := a < len(w.Leaf.PeriodicRight) && w.Leaf.PeriodicRight[a]
		for _, id := range ids {
			w.seedOne(leaves, id, a, periodic, true)
		}
	}
}

func (w *Worker) seedOne(leaves map[int]*leaf.Leaf, id, axis int, periodic, fromRight bool) {
	if w.allNeighbors.Test(id) {
		return
	}
	if id == w.Leaf.ID {
		// Periodic axis spanned alone: IncomingPoints' self-neighbor branch
		// resolves the actual translation per point, so the seeded box is
		// just this leaf's own, untranslated.
		w.addNeighbor(id, w.Leaf.LeftEdge, w.Leaf.RightEdge)
		return
	}
	nb, ok := leaves[id]
	if !ok {
		return
	}
	le := append([]float64(nil), nb.LeftEdge...)
	re := append([]float64(nil), nb.RightEdge...)
	if periodic {
		width := w.Leaf.DomainWidth[axis]
		if fromRight {
			le[axis] += width
			re[axis] += width
		} else {
			le[axis] -= width
			re[axis] -= width
		}
	}
	w.addNeighbor(id, le, re)
}

func (w *Worker) addNeighbor(id int, le, re []float64) {
	w.neighbors.Set(id)
	w.bounds[id] = neighborInfo{
		leftEdge:  append([]float64(nil), le...),
		rightEdge: append([]float64(nil), re...),
	}
}

// Outgoing is the per-target-leaf payload produced by OutgoingPoints,
// ready to be handed to the exchange coordinator for mailing.
type Outgoing struct {
	TargetLeaf int
	GlobalIdx  []uint64 // nil means "nothing to send to this leaf this round"
}

// OutgoingPoints implements §4.1's `outgoing_points()`. It queries the
// kernel for send candidates against every current neighbor's translated
// box, filters to owned points, translates to global indices, then moves
// the current neighbor set into all_neighbors and resets it — new
// neighbors are relearned from this round's incoming messages.
func (w *Worker) OutgoingPoints() (out []Outgoing, neighborIDs []uint64, leftEdges, rightEdges [][]float64) {
	ids := w.neighbors.ToSlice()
	boxes := make([][2][]float64, len(ids))
	for i, id := range ids {
		b := w.bounds[id]
		boxes[i] = [2][]float64{b.leftEdge, b.rightEdge}
	}

	candidates := w.tri.OutgoingCandidates(boxes)
	out = make([]Outgoing, len(ids))
	for i, id := range ids {
		var globalIdx []uint64
		for _, localIdx := range candidates[i] {
			if localIdx >= w.norig {
				continue // ghost point, not owned: nothing to offer a peer
			}
			globalIdx = append(globalIdx, w.idxLocal[localIdx])
		}
		out[i] = Outgoing{TargetLeaf: id, GlobalIdx: globalIdx}
	}

	neighborIDs = make([]uint64, len(ids))
	leftEdges = make([][]float64, len(ids))
	rightEdges = make([][]float64, len(ids))
	for i, id := range ids {
		b := w.bounds[id]
		neighborIDs[i] = uint64(id)
		leftEdges[i] = b.leftEdge
		rightEdges[i] = b.rightEdge
	}

	w.allNeighbors.Or(w.neighbors)
	w.neighbors = collections.NewBitset(w.neighbors.Size())
	w.bounds = make(map[int]neighborInfo)

	return out, neighborIDs, leftEdges, rightEdges
}

// IncomingPoints implements §4.1's `incoming_points`. msg carries the
// global indices and raw coordinates of the points being sent, plus the
// sender's own current neighbor set (so this worker can transitively learn
// about peers it has not yet exchanged with). Periodic wrapping is decided
// from this leaf's own Leaf.PeriodicLeft/PeriodicRight/DomainWidth.
func (w *Worker) IncomingPoints(msg *wire.Message) (receivedBytes int) {
	positions := make([][]float64, len(msg.Coords))
	for i, p := range msg.Coords {
		positions[i] = w.wrapIncoming(int(msg.SourceLeaf), p)
	}

	for i, gi := range msg.GlobalIdx {
		_, dup := w.tri.Insert(positions[i])
		if dup {
			continue
		}
		w.idxLocal = append(w.idxLocal, gi)
	}
	receivedBytes = len(msg.GlobalIdx) * (8 + int(w.dim)*8)

	for i, k := range msg.NeighborIDs {
		kid := int(k)
		if kid == w.Leaf.ID || w.allNeighbors.Test(kid) {
			continue
		}
		w.neighbors.Set(kid)
		w.bounds[kid] = neighborInfo{leftEdge: msg.LeftEdges[i], rightEdge: msg.RightEdges[i]}
	}

	return receivedBytes
}

// wrapIncoming applies §4.1 step 1-2's periodic coordinate wrap: a point
// sent by fromLeaf is translated by ±domain_width when it is closer to
// this leaf's box after wrapping than at its raw position. fromLeaf ==
// this leaf's own id is the pathological self-neighbor case (a leaf that
// spans a periodic axis alone).
func (w *Worker) wrapIncoming(fromLeaf int, p []float64) []float64 {
	d := int(w.dim)
	out := append([]float64(nil), p...)

	for a := 0; a < d; a++ {
		if a >= len(w.Leaf.DomainWidth) {
			continue
		}
		width := w.Leaf.DomainWidth[a]

		if fromLeaf == w.Leaf.ID {
			if a < len(w.Leaf.PeriodicLeft) && w.Leaf.PeriodicLeft[a] && a < len(w.Leaf.PeriodicRight) && w.Leaf.PeriodicRight[a] {
				out[a] = wrapToNearerSide(out[a], w.Leaf.LeftEdge[a], w.Leaf.RightEdge[a], width)
			}
			continue
		}

		if a < len(w.Leaf.PeriodicRight) && w.Leaf.PeriodicRight[a] && containsNeighbor(w.Leaf.RightNeighbors[a], fromLeaf) {
			wrapped := out[a] - width
			if isCloser(wrapped, out[a], w.Leaf.LeftEdge[a], w.Leaf.RightEdge[a]) {
				out[a] = wrapped
			}
		}
		if a < len(w.Leaf.PeriodicLeft) && w.Leaf.PeriodicLeft[a] && containsNeighbor(w.Leaf.LeftNeighbors[a], fromLeaf) {
			wrapped := out[a] + width
			if isCloser(wrapped, out[a], w.Leaf.LeftEdge[a], w.Leaf.RightEdge[a]) {
				out[a] = wrapped
			}
		}
	}
	return out
}

// wrapToNearerSide resolves the self-neighbor case: try both ±width
// translations of v and keep whichever lands nearer this leaf's own box
// (ties keep the original coordinate).
func wrapToNearerSide(v, le, re, width float64) float64 {
	plus := v + width
	minus := v - width
	if isCloser(plus, v, le, re) {
		return plus
	}
	if isCloser(minus, v, le, re) {
		return minus
	}
	return v
}

// isCloser reports whether candidate is strictly closer to box [le, re]
// than base is, by signed distance to the box.
func isCloser(candidate, base, le, re float64) bool {
	return boxDist(candidate, le, re) < boxDist(base, le, re)
}

func boxDist(v, le, re float64) float64 {
	if v < le {
		return le - v
	}
	if v > re {
		return v - re
	}
	return 0
}

func containsNeighbor(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Serialize implements §4.1's `serialize()`. Repeated calls return
// identical results since the kernel never mutates already-inserted state
// outside Insert.
func (w *Worker) Serialize() *wire.LeafResult {
	cells, neighbors, infIdx, vertSort, cellSort := w.tri.SerializeInfo2Idx(w.idxLocal, w.kind)
	return &wire.LeafResult{
		LeafID:      uint64(w.Leaf.ID),
		Kind:        w.kind,
		InfIdx:      infIdx,
		NCellsTotal: uint64(len(cells)),
		Cells:       cells,
		Neighbors:   neighbors,
		VertSort:    vertSort,
		CellSort:    cellSort,
		CellWidth:   w.dim.CellWidth(),
	}
}

// VoronoiVolumes implements §4.1's `voronoi_volumes()`.
func (w *Worker) VoronoiVolumes() []float64 {
	return w.tri.VoronoiVolumes(w.norig)
}

// OwnedGlobalIndices returns the global point index for each of this
// leaf's owned vertices, in the same order as VoronoiVolumes's result, so
// a caller can zip the two into a global-index-keyed volume table.
func (w *Worker) OwnedGlobalIndices() []uint64 {
	return append([]uint64(nil), w.idxLocal[:w.norig]...)
}

// NumCells exposes the kernel's live cell count, used by tests and
// diagnostics without requiring a full Serialize.
func (w *Worker) NumCells() int {
	return w.tri.NumCells()
}
