package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/pkg/model"
)

func squareLeaf() *leaf.Leaf {
	return &leaf.Leaf{
		ID:             0,
		StartIdx:       0,
		StopIdx:        4,
		LeftEdge:       []float64{0, 0},
		RightEdge:      []float64{1, 1},
		LeftNeighbors:  [][]int{{}, {}},
		RightNeighbors: [][]int{{}, {}},
		PeriodicLeft:   []bool{false, false},
		PeriodicRight:  []bool{false, false},
		DomainWidth:    []float64{1, 1},
	}
}

func squarePoints(t *testing.T) (*point.Set, point.Permutation) {
	t.Helper()
	pts, err := point.NewSet(model.Dim2, []float64{0, 0, 1, 0, 1, 1, 0, 1})
	require.NoError(t, err)
	idx := point.Permutation{0, 1, 2, 3}
	return pts, idx
}

func TestTessellate_OwnsAllPoints(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)

	require.NoError(t, w.Tessellate(pts, idx))
	assert.Equal(t, 4, w.norig)
	assert.Len(t, w.idxLocal, 4)
	assert.True(t, w.NumCells() > 0)
}

func TestTessellate_CalledTwice(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))
	assert.Error(t, w.Tessellate(pts, idx))
}

func TestOutgoingPoints_NoNeighborsYieldsEmpty(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))

	out, nbrIDs, le, re := w.OutgoingPoints()
	assert.Empty(t, out)
	assert.Empty(t, nbrIDs)
	assert.Empty(t, le)
	assert.Empty(t, re)
}

func TestOutgoingPoints_MovesNeighborsToAllNeighbors(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))

	w.neighbors.Set(1)
	w.bounds[1] = neighborInfo{leftEdge: []float64{1, 0}, rightEdge: []float64{2, 1}}

	out, nbrIDs, le, re := w.OutgoingPoints()
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].TargetLeaf)
	require.Len(t, nbrIDs, 1)
	assert.Equal(t, uint64(1), nbrIDs[0])
	assert.Equal(t, []float64{1, 0}, le[0])
	assert.Equal(t, []float64{2, 1}, re[0])

	assert.True(t, w.allNeighbors.Test(1))
	assert.False(t, w.neighbors.Test(1))
}

func TestIncomingPoints_AppendsGhostAndLearnsNeighbors(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))

	msg := &wire.Message{
		TargetLeaf:  0,
		SourceLeaf:  1,
		GlobalIdx:   []uint64{10},
		Coords:      [][]float64{{1.5, 0.5}},
		NeighborIDs: []uint64{2},
		LeftEdges:   [][]float64{{2, 0}},
		RightEdges:  [][]float64{{3, 1}},
	}
	n := w.IncomingPoints(msg)
	assert.True(t, n > 0)
	assert.Contains(t, w.idxLocal, uint64(10))
	assert.True(t, w.neighbors.Test(2))
}

func TestIncomingPoints_SkipsAlreadyKnownNeighbor(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))
	w.allNeighbors.Set(2)

	msg := &wire.Message{
		SourceLeaf:  1,
		NeighborIDs: []uint64{2},
		LeftEdges:   [][]float64{{2, 0}},
		RightEdges:  [][]float64{{3, 1}},
	}
	w.IncomingPoints(msg)
	assert.False(t, w.neighbors.Test(2))
}

func TestIncomingPoints_SelfNeighborPeriodicWrap(t *testing.T) {
	pts, idx := squarePoints(t)
	l := squareLeaf()
	l.PeriodicLeft = []bool{true, true}
	l.PeriodicRight = []bool{true, true}
	w := New(l, model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))

	msg := &wire.Message{
		SourceLeaf: 0,
		GlobalIdx:  []uint64{0},
		Coords:     [][]float64{{-0.01, 0.5}}, // just outside the left face; wraps to x=0.99
	}
	n := w.IncomingPoints(msg)
	assert.True(t, n >= 0)
	assert.InDelta(t, 0.99, w.wrapIncoming(0, []float64{-0.01, 0.5})[0], 1e-9)
}

func TestSerialize_RoundTripsThroughKernelShapes(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))

	result := w.Serialize()
	assert.Equal(t, uint64(0), result.LeafID)
	assert.Equal(t, model.InfiniteIndex(model.IndexU32), result.InfIdx)
	assert.Equal(t, len(result.Cells), len(result.Neighbors))
}

func TestVoronoiVolumes_LengthMatchesNorig(t *testing.T) {
	pts, idx := squarePoints(t)
	w := New(squareLeaf(), model.Dim2, model.IndexU32, 1.0)
	require.NoError(t, w.Tessellate(pts, idx))

	volumes := w.VoronoiVolumes()
	assert.Len(t, volumes, 4)
}

func TestWrapToNearerSide_PicksCloserTranslation(t *testing.T) {
	// Point just outside the right edge should wrap left by width.
	got := wrapToNearerSide(1.01, 0, 1, 1.0)
	assert.InDelta(t, 0.01, got, 1e-9)
}

func TestIsCloser_TieKeepsOriginal(t *testing.T) {
	assert.False(t, isCloser(0.5, 0.5, 0, 1))
}
