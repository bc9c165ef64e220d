// Package master implements C4 Master/Reducer: it owns the shared
// point/index buffers, spawns one Exchange Coordinator per process, drains
// every worker's serialized result as it arrives, and feeds the result to
// the Consolidator (or, in volumes mode, assembles a global volume table
// directly), per spec.md §4.3.
package master

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jqwang/partri/internal/consolidate"
	"github.com/jqwang/partri/internal/decomposition"
	"github.com/jqwang/partri/internal/exchange"
	"github.com/jqwang/partri/internal/leaf"
	"github.com/jqwang/partri/internal/point"
	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/internal/worker"
	pkgerrors "github.com/jqwang/partri/pkg/errors"
	"github.com/jqwang/partri/pkg/model"
	"github.com/jqwang/partri/pkg/parallel"
	"github.com/jqwang/partri/pkg/telemetry"
	"github.com/jqwang/partri/pkg/utils"
)

// ModeTriangulation and ModeVolumes select what Run produces.
const (
	ModeTriangulation = "triangulation"
	ModeVolumes       = "volumes"
)

// Config is the run-level configuration the Master needs beyond the raw
// point set.
type Config struct {
	Dim          model.Dimension
	LeafCount    int
	ProcessCount int
	Periodic     []bool
	DomainWidth  []float64
	// Mode selects ModeTriangulation (default) or ModeVolumes.
	Mode string
}

// Result is what a run produces: exactly one of Summary or Volumes is set,
// depending on Config.Mode.
type Result struct {
	Summary   *consolidate.Summary
	Volumes   []float64 // indexed by global point id; -1 marks an unbounded cell
	LeafCount int
}

// Option configures a Master at construction time.
type Option func(*Master)

// WithOutputBuffer additionally appends every leaf's serialized result, as
// it is drained from its output channel, to buf — the supplemented
// direct-to-buffer consolidation path (SPEC_FULL.md §4 item 1) for callers
// that want the raw per-leaf tuples alongside the consolidated
// triangulation, without re-deriving them from the Result.
func WithOutputBuffer(buf *[]*wire.LeafResult) Option {
	return func(m *Master) { m.outputBuffer = buf }
}

// WithLogger overrides the default stdout logger.
func WithLogger(l utils.Logger) Option {
	return func(m *Master) { m.logger = l }
}

// Master drives one full triangulation run end to end.
type Master struct {
	cfg          Config
	logger       utils.Logger
	outputBuffer *[]*wire.LeafResult
}

// New constructs a Master for cfg.
func New(cfg Config, opts ...Option) *Master {
	m := &Master{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}
	if m.cfg.Mode == "" {
		m.cfg.Mode = ModeTriangulation
	}
	return m
}

// Run executes a full run: decompose pts into m.cfg.LeafCount leaves,
// spawn m.cfg.ProcessCount coordinators, drive them to convergence, and
// either consolidate their results or assemble a global volume table.
func (m *Master) Run(ctx context.Context, pts *point.Set) (*Result, error) {
	if m.cfg.ProcessCount < 1 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfigError, "master: process_count must be >= 1", nil)
	}
	if m.cfg.LeafCount < m.cfg.ProcessCount {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfigError, "master: leaf_count must be >= process_count", nil)
	}

	_, endTess := telemetry.PhaseSpan(ctx, telemetry.PhaseTessellate)
	builder := &decomposition.Builder{Dim: m.cfg.Dim, Periodic: m.cfg.Periodic, DomainWidth: m.cfg.DomainWidth}
	leaves, idx, err := builder.Build(pts, m.cfg.LeafCount)
	endTess()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeKernelError, "master: decomposition failed", err)
	}

	kind := model.ChooseIndexKind(uint64(pts.Len()))
	radius := domainRadius(leaves, m.cfg.Dim)

	workers := make([]*worker.Worker, len(leaves))
	for i, l := range leaves {
		workers[i] = worker.New(l, m.cfg.Dim, kind, radius)
	}

	coordinators, outputs := m.buildCoordinators(leaves, workers, pts, idx)

	exchCtx, endExch := telemetry.PhaseSpan(ctx, telemetry.PhaseExchange)
	results, err := m.runExchange(exchCtx, coordinators, outputs, leaves)
	endExch()
	if err != nil {
		return nil, err
	}

	_, endFinal := telemetry.PhaseSpan(ctx, telemetry.PhaseFinalize)
	defer endFinal()

	if m.cfg.Mode == ModeVolumes {
		volumes, err := m.assembleVolumes(ctx, workers, pts.Len())
		if err != nil {
			return nil, err
		}
		return &Result{Volumes: volumes, LeafCount: len(leaves)}, nil
	}

	summary, err := consolidate.Consolidate(m.cfg.Dim, pts, idx, leaves, results, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeKernelError, "master: consolidation failed", err)
	}
	return &Result{Summary: summary, LeafCount: len(leaves)}, nil
}

// buildCoordinators partitions workers across m.cfg.ProcessCount
// coordinators by leaf id modulo process count, wires the shared mailboxes
// and termination state, and allocates one output channel per leaf.
func (m *Master) buildCoordinators(leaves []*leaf.Leaf, workers []*worker.Worker, pts *point.Set, idx point.Permutation) ([]*exchange.Coordinator, map[int]chan *wire.LeafResult) {
	mailboxes := make([]*exchange.Mailbox, m.cfg.ProcessCount)
	for p := range mailboxes {
		mailboxes[p] = exchange.NewMailbox(len(leaves) * 4)
	}
	term := exchange.NewTerminationState(m.cfg.ProcessCount)

	outputs := make(map[int]chan *wire.LeafResult, len(leaves))
	for _, l := range leaves {
		outputs[l.ID] = make(chan *wire.LeafResult, 1)
	}

	coordinators := make([]*exchange.Coordinator, m.cfg.ProcessCount)
	for p := 0; p < m.cfg.ProcessCount; p++ {
		var assigned []*worker.Worker
		for _, w := range workers {
			if w.Leaf.ID%m.cfg.ProcessCount == p {
				assigned = append(assigned, w)
			}
		}
		coordinators[p] = &exchange.Coordinator{
			ProcessID:    p,
			ProcessCount: m.cfg.ProcessCount,
			LeafCount:    len(leaves),
			Workers:      assigned,
			AllLeaves:    leaves,
			Mailboxes:    mailboxes,
			Term:         term,
			Points:       pts,
			Idx:          idx,
			Logger:       m.logger,
		}
	}
	return coordinators, outputs
}

// runExchange spawns every coordinator as its own goroutine — never pooled
// with fewer slots than m.cfg.ProcessCount, since the termination barrier
// requires all of them voting concurrently every round — and concurrently
// drains their output channels, so a leaf that finishes early is
// consolidated without waiting on its slower peers.
func (m *Master) runExchange(ctx context.Context, coordinators []*exchange.Coordinator, outputs map[int]chan *wire.LeafResult, leaves []*leaf.Leaf) ([]*wire.LeafResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(coordinators))
	for _, c := range coordinators {
		c := c
		go func() {
			err := c.Run(runCtx, toSendOnly(outputs))
			if err != nil {
				cancel()
			}
			errCh <- err
		}()
	}

	results, drainErr := m.drain(runCtx, leaves, outputs)

	var runErr error
	for range coordinators {
		if err := <-errCh; err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProtocolViolation, "master: exchange failed", runErr)
	}
	if drainErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProtocolViolation, "master: drain failed", drainErr)
	}
	return results, nil
}

func toSendOnly(m map[int]chan *wire.LeafResult) map[int]chan<- *wire.LeafResult {
	out := make(map[int]chan<- *wire.LeafResult, len(m))
	for id, ch := range m {
		out[id] = ch
	}
	return out
}

// drain implements §4.3's non-blocking round-robin poll across every
// leaf's dedicated output channel, to minimise head-of-line blocking when
// leaves on different processes finish at different times.
func (m *Master) drain(ctx context.Context, leaves []*leaf.Leaf, outputs map[int]chan *wire.LeafResult) ([]*wire.LeafResult, error) {
	order := make([]int, 0, len(leaves))
	for _, l := range leaves {
		order = append(order, l.ID)
	}
	sort.Ints(order)

	results := make([]*wire.LeafResult, 0, len(order))
	done := make(map[int]bool, len(order))
	pending := len(order)

	for pending > 0 {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		progressed := false
		for _, id := range order {
			if done[id] {
				continue
			}
			select {
			case r := <-outputs[id]:
				results = append(results, r)
				if m.outputBuffer != nil {
					*m.outputBuffer = append(*m.outputBuffer, r)
				}
				done[id] = true
				pending--
				progressed = true
			default:
			}
		}
		if !progressed {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}
	return results, nil
}

// assembleVolumes computes every worker's Voronoi volumes concurrently —
// a genuinely independent per-leaf computation, safe to run on a bounded
// pool unlike the barrier-synchronized exchange phase — and merges them
// into one array indexed by global point id.
func (m *Master) assembleVolumes(ctx context.Context, workers []*worker.Worker, npts int) ([]float64, error) {
	type owned struct {
		globalIdx []uint64
		volumes   []float64
	}

	pool := parallel.NewWorkerPool[*worker.Worker, owned](parallel.DefaultPoolConfig())
	taskResults := pool.ExecuteFunc(ctx, workers, func(_ context.Context, w *worker.Worker) (owned, error) {
		return owned{globalIdx: w.OwnedGlobalIndices(), volumes: w.VoronoiVolumes()}, nil
	})

	global := make([]float64, npts)
	for i := range global {
		global[i] = -1
	}
	for _, tr := range taskResults {
		if tr.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeKernelError, "master: volumes computation failed", tr.Error)
		}
		for i, gi := range tr.Result.globalIdx {
			global[gi] = tr.Result.volumes[i]
		}
	}
	return global, nil
}

// domainRadius returns the diagonal of the union of every leaf's bounding
// box, a generous coordinate-scale hint for each local kernel's
// super-simplex (which itself multiplies this by a further safety factor,
// see internal/kernel.NewTriangulation) — large enough to contain any
// periodic ghost point translated into a leaf's own frame.
func domainRadius(leaves []*leaf.Leaf, dim model.Dimension) float64 {
	d := int(dim)
	if len(leaves) == 0 {
		return 1
	}
	lo := append([]float64(nil), leaves[0].LeftEdge...)
	hi := append([]float64(nil), leaves[0].RightEdge...)
	for _, l := range leaves[1:] {
		for a := 0; a < d; a++ {
			if l.LeftEdge[a] < lo[a] {
				lo[a] = l.LeftEdge[a]
			}
			if l.RightEdge[a] > hi[a] {
				hi[a] = l.RightEdge[a]
			}
		}
	}
	var sumSq float64
	for a := 0; a < d; a++ {
		diff := hi[a] - lo[a]
		sumSq += diff * diff
	}
	r := math.Sqrt(sumSq)
	if r <= 0 {
		return 1
	}
	return r
}
