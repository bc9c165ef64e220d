package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/internal/worker"
	"github.com/jqwang/partri/pkg/model"
)

// twoLeafSplit builds two leaves sharing an interior face at x=1 over the
// domain [0,2]x[0,1], matching SPEC_FULL.md's smaller-N analogue of the
// "two-leaf split" scenario: points near the shared face must cross over
// so each leaf's final triangulation is consistent with the other's.
func twoLeafSplit() []*leaf.Leaf {
	return []*leaf.Leaf{
		{
			ID:             0,
			StartIdx:       0,
			StopIdx:        4,
			LeftEdge:       []float64{0, 0},
			RightEdge:      []float64{1, 1},
			LeftNeighbors:  [][]int{{}, {}},
			RightNeighbors: [][]int{{1}, {}},
			PeriodicLeft:   []bool{false, false},
			PeriodicRight:  []bool{false, false},
			DomainWidth:    []float64{2, 1},
		},
		{
			ID:             1,
			StartIdx:       4,
			StopIdx:        8,
			LeftEdge:       []float64{1, 0},
			RightEdge:      []float64{2, 1},
			LeftNeighbors:  [][]int{{0}, {}},
			RightNeighbors: [][]int{{}, {}},
			PeriodicLeft:   []bool{false, false},
			PeriodicRight:  []bool{false, false},
			DomainWidth:    []float64{2, 1},
		},
	}
}

// twoLeafPoints places four points in each leaf's half, with two points in
// each half close enough to the shared face at x=1 that Bowyer-Watson
// candidate circles from the other side must reach across it.
func twoLeafPoints(t *testing.T) (*point.Set, point.Permutation) {
	t.Helper()
	coords := []float64{
		0.1, 0.1,
		0.9, 0.1,
		0.9, 0.9,
		0.1, 0.9,
		1.1, 0.1,
		1.9, 0.1,
		1.9, 0.9,
		1.1, 0.9,
	}
	pts, err := point.NewSet(model.Dim2, coords)
	require.NoError(t, err)
	idx := make(point.Permutation, 8)
	for i := range idx {
		idx[i] = uint64(i)
	}
	return pts, idx
}

func runTwoProcessCoordinators(t *testing.T, leaves []*leaf.Leaf, pts *point.Set, idx point.Permutation) map[int]*wire.LeafResult {
	t.Helper()

	mailboxes := []*Mailbox{NewMailbox(8), NewMailbox(8)}
	term := NewTerminationState(2)

	w0 := worker.New(leaves[0], model.Dim2, model.IndexU32, 10.0)
	w1 := worker.New(leaves[1], model.Dim2, model.IndexU32, 10.0)

	outputs := make(map[int]chan *wire.LeafResult, 2)
	outputs[0] = make(chan *wire.LeafResult, 1)
	outputs[1] = make(chan *wire.LeafResult, 1)
	outputChans := map[int]chan<- *wire.LeafResult{0: outputs[0], 1: outputs[1]}

	coords := []*Coordinator{
		{
			ProcessID: 0, ProcessCount: 2, LeafCount: 2,
			Workers: []*worker.Worker{w0}, AllLeaves: leaves,
			Mailboxes: mailboxes, Term: term, Points: pts, Idx: idx,
		},
		{
			ProcessID: 1, ProcessCount: 2, LeafCount: 2,
			Workers: []*worker.Worker{w1}, AllLeaves: leaves,
			Mailboxes: mailboxes, Term: term, Points: pts, Idx: idx,
		},
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i, c := range coords {
		wg.Add(1)
		go func(i int, c *Coordinator) {
			defer wg.Done()
			errs[i] = c.Run(ctx, outputChans)
		}(i, c)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	results := make(map[int]*wire.LeafResult, 2)
	for leafID, ch := range outputs {
		select {
		case r := <-ch:
			results[leafID] = r
		default:
			t.Fatalf("leaf %d never emitted a result", leafID)
		}
	}
	return results
}

func TestCoordinator_TwoLeavesTerminateAndProduceResults(t *testing.T) {
	leaves := twoLeafSplit()
	pts, idx := twoLeafPoints(t)

	results := runTwoProcessCoordinators(t, leaves, pts, idx)

	require.Contains(t, results, 0)
	require.Contains(t, results, 1)
	for id, r := range results {
		assert.Equal(t, uint64(id), r.LeafID)
		assert.True(t, r.NCellsTotal > 0, "leaf %d produced no cells", id)
		assert.Equal(t, len(r.Cells), len(r.Neighbors))
	}
}

func TestCoordinator_SingleProcessBothLeaves(t *testing.T) {
	leaves := twoLeafSplit()
	pts, idx := twoLeafPoints(t)

	w0 := worker.New(leaves[0], model.Dim2, model.IndexU32, 10.0)
	w1 := worker.New(leaves[1], model.Dim2, model.IndexU32, 10.0)

	mailboxes := []*Mailbox{NewMailbox(8)}
	term := NewTerminationState(1)

	c := &Coordinator{
		ProcessID: 0, ProcessCount: 1, LeafCount: 2,
		Workers: []*worker.Worker{w0, w1}, AllLeaves: leaves,
		Mailboxes: mailboxes, Term: term, Points: pts, Idx: idx,
	}

	outputs := make(map[int]chan *wire.LeafResult, 2)
	outputs[0] = make(chan *wire.LeafResult, 1)
	outputs[1] = make(chan *wire.LeafResult, 1)
	outputChans := map[int]chan<- *wire.LeafResult{0: outputs[0], 1: outputs[1]}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Run(ctx, outputChans))
	assert.True(t, term.Finished())

	select {
	case r := <-outputs[0]:
		assert.Equal(t, uint64(0), r.LeafID)
	default:
		t.Fatal("leaf 0 never emitted a result")
	}
	select {
	case r := <-outputs[1]:
		assert.Equal(t, uint64(1), r.LeafID)
	default:
		t.Fatal("leaf 1 never emitted a result")
	}
}
