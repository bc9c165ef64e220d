package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jqwang/partri/pkg/model"
)

func squareTriangulation() *Triangulation {
	tri := NewTriangulation(model.Dim2, []float64{0.5, 0.5}, 1.0)
	for _, p := range [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		tri.Insert(p)
	}
	return tri
}

func TestInsert_BasicSquare(t *testing.T) {
	tri := squareTriangulation()
	assert.Equal(t, 4, tri.NumPoints())
	assert.True(t, tri.NumCells() > 0)
}

func TestInsert_DuplicatePoint(t *testing.T) {
	tri := squareTriangulation()
	before := tri.NumCells()
	idx, dup := tri.Insert([]float64{0, 0})
	assert.True(t, dup)
	assert.Equal(t, 0, idx)
	assert.Equal(t, before, tri.NumCells())
	assert.Equal(t, 4, tri.NumPoints())
}

func TestSerializeInfo2Idx_Shapes(t *testing.T) {
	tri := squareTriangulation()
	idxLocal := []uint64{10, 11, 12, 13}
	cells, neighbors, infIdx, vertSort, cellSort := tri.SerializeInfo2Idx(idxLocal, model.IndexU32)

	require.Equal(t, len(cells), len(neighbors))
	require.Equal(t, len(cells), len(vertSort))
	require.Equal(t, len(cells), len(cellSort))
	assert.Equal(t, model.InfiniteIndex(model.IndexU32), infIdx)

	for _, c := range cells {
		assert.Len(t, c, 3) // D+1 for 2D
	}
	seen := make(map[uint64]bool)
	for _, rank := range cellSort {
		assert.False(t, seen[rank], "cell_sort must be a permutation")
		seen[rank] = true
	}
}

func TestVoronoiVolumes_HullPointsUnbounded(t *testing.T) {
	tri := squareTriangulation()
	volumes := tri.VoronoiVolumes(4)
	require.Len(t, volumes, 4)
	for _, v := range volumes {
		// A 4-point convex hull has no interior point, so every owned
		// point's star touches the super-simplex.
		assert.Equal(t, -1.0, v)
	}
}

func TestOutgoingCandidates_InsideBoxIncluded(t *testing.T) {
	tri := squareTriangulation()
	boxes := [][2][]float64{{{-1, -1}, {2, 2}}}
	result := tri.OutgoingCandidates(boxes)
	require.Len(t, result, 1)
	assert.Len(t, result[0], 4)
}

func TestDeserializeWithInfo(t *testing.T) {
	final := DeserializeWithInfo(model.Dim2, []float64{0, 0, 1, 0, 1, 1}, []uint64{0, 1, 2},
		[][]uint64{{0, 1, 2}}, [][]uint64{{99, 99, 99}}, 99)
	assert.Equal(t, 1, final.NumCells())
	assert.Equal(t, 1, final.NumFiniteCells())
}
