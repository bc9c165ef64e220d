package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/pkg/model"
)

func twoOwnerLeaves() []*leaf.Leaf {
	return []*leaf.Leaf{
		{ID: 0, StartIdx: 0, StopIdx: 2, LeftEdge: []float64{0, 0}, RightEdge: []float64{1, 1},
			LeftNeighbors: [][]int{{}, {}}, RightNeighbors: [][]int{{1}, {}},
			PeriodicLeft: []bool{false, false}, PeriodicRight: []bool{false, false}, DomainWidth: []float64{1, 1}},
		{ID: 1, StartIdx: 2, StopIdx: 4, LeftEdge: []float64{0, 0}, RightEdge: []float64{1, 1},
			LeftNeighbors: [][]int{{0}, {}}, RightNeighbors: [][]int{{}, {}},
			PeriodicLeft: []bool{false, false}, PeriodicRight: []bool{false, false}, DomainWidth: []float64{1, 1}},
	}
}

func squareFourPoints(t *testing.T) *point.Set {
	t.Helper()
	pts, err := point.NewSet(model.Dim2, []float64{0, 0, 1, 0, 1, 1, 0, 1})
	require.NoError(t, err)
	return pts
}

func TestConsolidate_DedupsAndStitchesSharedFace(t *testing.T) {
	leaves := twoOwnerLeaves()
	idx := point.Permutation{0, 1, 2, 3}
	pts := squareFourPoints(t)

	owned := []uint64{0, 1, 2}
	diag := []uint64{0, 2, 3}

	leaf0 := &wire.LeafResult{
		LeafID:      0,
		Kind:        model.IndexU32,
		InfIdx:      model.InfiniteIndex(model.IndexU32),
		NCellsTotal: 2,
		Cells:       [][]uint64{owned, diag},
		Neighbors:   [][]uint64{{0, 0, 0}, {0, 0, 0}},
		CellSort:    []uint64{0, 1},
	}
	leaf1 := &wire.LeafResult{
		LeafID:      1,
		Kind:        model.IndexU32,
		InfIdx:      model.InfiniteIndex(model.IndexU32),
		NCellsTotal: 2,
		Cells:       [][]uint64{owned, diag},
		Neighbors:   [][]uint64{{0, 0, 0}, {0, 0, 0}},
		CellSort:    []uint64{0, 1},
	}

	summary, err := Consolidate(model.Dim2, pts, idx, leaves, []*wire.LeafResult{leaf0, leaf1}, model.IndexU32)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.CellsKept)
	assert.Equal(t, 2, summary.CellsDropped)
	require.Equal(t, 2, summary.Final.NumCells())

	assert.Equal(t, []uint64{0, 1, 2}, summary.Final.Cells[0])
	assert.Equal(t, []uint64{0, 2, 3}, summary.Final.Cells[1])

	// The shared edge (0,2) is skip-slot 1 in cell 0 ({0,1,2} minus vertex
	// 1) and skip-slot 2 in cell 1 ({0,2,3} minus vertex 3).
	assert.Equal(t, uint64(1), summary.Final.Neighbors[0][1])
	assert.Equal(t, uint64(0), summary.Final.Neighbors[1][2])

	infIdx := model.InfiniteIndex(model.IndexU32)
	assert.Equal(t, infIdx, summary.Final.Neighbors[0][0])
	assert.Equal(t, infIdx, summary.Final.Neighbors[0][2])
	assert.Equal(t, infIdx, summary.Final.Neighbors[1][0])
	assert.Equal(t, infIdx, summary.Final.Neighbors[1][1])
}

func TestConsolidate_MismatchedLeafAndResultCounts(t *testing.T) {
	leaves := twoOwnerLeaves()
	idx := point.Permutation{0, 1, 2, 3}
	pts := squareFourPoints(t)

	_, err := Consolidate(model.Dim2, pts, idx, leaves, []*wire.LeafResult{{LeafID: 0}}, model.IndexU32)
	assert.Error(t, err)
}

func TestConsolidate_DuplicateLeafResultID(t *testing.T) {
	leaves := twoOwnerLeaves()
	idx := point.Permutation{0, 1, 2, 3}
	pts := squareFourPoints(t)

	r0 := &wire.LeafResult{LeafID: 0, Kind: model.IndexU32}
	r0dup := &wire.LeafResult{LeafID: 0, Kind: model.IndexU32}
	_, err := Consolidate(model.Dim2, pts, idx, leaves, []*wire.LeafResult{r0, r0dup}, model.IndexU32)
	assert.Error(t, err)
}

func TestConsolidate_KindMismatch(t *testing.T) {
	leaves := twoOwnerLeaves()
	idx := point.Permutation{0, 1, 2, 3}
	pts := squareFourPoints(t)

	r0 := &wire.LeafResult{LeafID: 0, Kind: model.IndexU64}
	r1 := &wire.LeafResult{LeafID: 1, Kind: model.IndexU32}
	_, err := Consolidate(model.Dim2, pts, idx, leaves, []*wire.LeafResult{r0, r1}, model.IndexU32)
	assert.Error(t, err)
}
