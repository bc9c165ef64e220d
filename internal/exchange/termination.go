package exchange

import "sync"

// TerminationState implements the distributed termination detector from
// spec.md §4.2/§9: shared counters (arrived, nonzero, done) guarded by one
// lock/condition pair. The process whose vote brings arrived to total acts
// as leader for that round: it resets the counters and, if no process
// reported receiving bytes, marks the run done.
type TerminationState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	total   int
	arrived int
	nonzero bool
	done    bool
	round   int
}

// NewTerminationState creates a termination detector for a run of total
// processes.
func NewTerminationState(total int) *TerminationState {
	t := &TerminationState{total: total}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// EnterRound returns the round token a process must pass back into
// VoteAndWait, capturing which generation of the barrier it is voting in.
func (t *TerminationState) EnterRound() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.round
}

// VoteAndWait registers this process's round result — whether it received
// any bytes this round — and blocks until every process has voted,
// returning whether the whole run has terminated. Invariant (4) in §3
// (monotone convergence) is what makes a single global zero-bytes round
// sufficient to call it: no later round will move bytes either.
func (t *TerminationState) VoteAndWait(round int, receivedNonzero bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.arrived++
	if receivedNonzero {
		t.nonzero = true
	}

	if t.arrived == t.total {
		if !t.nonzero {
			t.done = true
		}
		t.arrived = 0
		t.nonzero = false
		t.round++
		t.cond.Broadcast()
		return t.done
	}

	for t.round == round {
		t.cond.Wait()
	}
	return t.done
}

// Finished reports whether the run has reached global termination.
func (t *TerminationState) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
