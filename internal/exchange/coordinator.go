// Package exchange implements C3 Exchange Coordinator: the per-process
// driver that owns a subset of Partition Workers, pushes outgoing halo
// messages to peer mailboxes, drains its own mailbox, and participates in
// the global termination vote.
package exchange

import (
	"context"
	"fmt"

	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/internal/worker"
	pkgerrors "github.com/jqwang/partri/pkg/errors"
	"github.com/jqwang/partri/pkg/telemetry"
	"github.com/jqwang/partri/pkg/utils"
)

// Coordinator drives one process's assigned workers through tessellation,
// the round loop, and final serialization, per spec.md §4.2.
type Coordinator struct {
	ProcessID    int
	ProcessCount int
	LeafCount    int
	Workers      []*worker.Worker // leaves with id%ProcessCount == ProcessID
	AllLeaves    []*leaf.Leaf     // every leaf in the run, for seeding initial adjacency
	Mailboxes    []*Mailbox       // shared across all coordinators in the run, indexed by process id
	Term         *TerminationState
	Points       *point.Set
	Idx          point.Permutation
	Logger       utils.Logger

	round int
}

func (c *Coordinator) logger() utils.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return utils.NewDefaultLogger(utils.LevelInfo, nil)
}

func (c *Coordinator) workerByLeaf(id int) *worker.Worker {
	for _, w := range c.Workers {
		if w.Leaf.ID == id {
			return w
		}
	}
	return nil
}

// Run executes §4.2's full process loop: tessellate, repeat {send, receive,
// barrier, vote} until globally terminated, then emit each local worker's
// serialized result onto its dedicated output entry.
func (c *Coordinator) Run(ctx context.Context, outputs map[int]chan<- *wire.LeafResult) error {
	leaves := make(map[int]*leaf.Leaf, len(c.AllLeaves))
	for _, l := range c.AllLeaves {
		leaves[l.ID] = l
	}

	for _, w := range c.Workers {
		if err := w.Tessellate(c.Points, c.Idx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeKernelError, fmt.Sprintf("leaf %d tessellate failed", w.Leaf.ID), err)
		}
		w.SeedNeighbors(leaves)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, err := c.runRound(ctx)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}

	for _, w := range c.Workers {
		out, ok := outputs[w.Leaf.ID]
		if !ok {
			return pkgerrors.Wrap(pkgerrors.CodeProtocolViolation, fmt.Sprintf("no output channel registered for leaf %d", w.Leaf.ID), nil)
		}
		out <- w.Serialize()
	}
	return nil
}

func (c *Coordinator) runRound(ctx context.Context) (done bool, err error) {
	_, span := telemetry.RoundSpan(ctx, c.round)
	c.round++

	roundToken := c.Term.EnterRound()

	bytesSent := 0
	for _, w := range c.Workers {
		outs, nbrIDs, le, re := w.OutgoingPoints()
		bytesSent += c.broadcast(w.Leaf.ID, outs, nbrIDs, le, re)
	}

	localReceived, err := c.drainOwnMailbox()
	if err != nil {
		span(int64(bytesSent), len(c.Workers))
		return false, err
	}

	done = c.Term.VoteAndWait(roundToken, localReceived > 0)
	span(int64(bytesSent), len(c.Workers))
	return done, nil
}

// broadcast pushes, for one local worker, exactly LeafCount messages — one
// per target leaf in [0, LeafCount), including explicit "nothing to send"
// markers — onto the mailbox owned by that target's process, per §4.2's
// pseudocode and §4.1's tie-break note that empty payloads are still sent.
func (c *Coordinator) broadcast(sourceLeaf int, outs []worker.Outgoing, nbrIDs []uint64, le, re [][]float64) (bytesSent int) {
	byTarget := make(map[int][]uint64, len(outs))
	for _, o := range outs {
		byTarget[o.TargetLeaf] = o.GlobalIdx
	}

	for target := 0; target < c.LeafCount; target++ {
		globalIdx := byTarget[target]
		coords := make([][]float64, len(globalIdx))
		for i, gi := range globalIdx {
			coords[i] = append([]float64(nil), c.Points.At(int(gi))...)
		}
		msg := wire.Message{
			TargetLeaf:  uint64(target),
			SourceLeaf:  uint64(sourceLeaf),
			GlobalIdx:   globalIdx,
			Coords:      coords,
			NeighborIDs: nbrIDs,
			LeftEdges:   le,
			RightEdges:  re,
		}
		proc := target % c.ProcessCount
		c.Mailboxes[proc].Push(msg)
		bytesSent += len(globalIdx) * (8 + int(c.Points.Dim())*8)
	}
	return bytesSent
}

// drainOwnMailbox implements the pseudocode's "repeat L x (#local workers)
// times" receive loop: every local leaf receives exactly one message per
// leaf in the run (including a self-message), so the expected count is
// LeafCount * len(Workers).
func (c *Coordinator) drainOwnMailbox() (receivedBytes int, err error) {
	expected := c.LeafCount * len(c.Workers)
	own := c.Mailboxes[c.ProcessID]
	for i := 0; i < expected; i++ {
		msg, ok := own.Pop()
		if !ok {
			return receivedBytes, pkgerrors.Wrap(pkgerrors.CodeProtocolViolation,
				fmt.Sprintf("process %d mailbox closed before receiving expected %d messages", c.ProcessID, expected), nil)
		}
		w := c.workerByLeaf(int(msg.TargetLeaf))
		if w == nil {
			return receivedBytes, pkgerrors.Wrap(pkgerrors.CodeProtocolViolation,
				fmt.Sprintf("process %d received message for unowned leaf %d", c.ProcessID, msg.TargetLeaf), nil)
		}
		receivedBytes += w.IncomingPoints(&msg)
	}
	return receivedBytes, nil
}
