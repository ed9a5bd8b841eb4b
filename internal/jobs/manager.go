// Package jobs runs generation and simulation work on background goroutines
// and funnels their progress into one ordered channel for the server loop.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/worldforge/server/internal/config"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/persist"
	"github.com/worldforge/server/internal/simulation"
	"github.com/worldforge/server/internal/world"
)

var (
	ErrTooManyJobs  = errors.New("too many jobs for this owner")
	ErrShuttingDown = errors.New("job manager shutting down")
)

// Kind is the job type.
type Kind string

const (
	KindGenerate Kind = "generate"
	KindSimulate Kind = "simulate"
)

// Event is a progress or terminal notification of one job. Final events
// carry the outcome, and the world on success.
type Event struct {
	JobID     string
	Owner     uint64
	Kind      Kind
	WorldName string

	Stage   generation.Stage
	Message string
	Step    int
	HasStep bool

	Final   bool
	Outcome generation.Outcome
	World   *world.World
	Err     error
}

// Recorder keeps job history. *persist.JobRepo satisfies it.
type Recorder interface {
	Start(ctx context.Context, row persist.JobRow) error
	Finish(ctx context.Context, id, outcome string, steps int, errMsg string) error
}

type job struct {
	id        string
	owner     uint64
	kind      Kind
	worldName string
	cancel    context.CancelFunc
}

// Manager owns every running job.
type Manager struct {
	driver      *generation.Driver
	sims        *simulation.Registry
	sem         *semaphore.Weighted
	events      chan Event
	rec         Recorder
	log         *zap.Logger
	maxPerOwner int
	eventBuffer int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

// NewManager creates a manager. rec may be nil.
func NewManager(driver *generation.Driver, sims *simulation.Registry, cfg config.JobsConfig, eventBuffer int, rec Recorder, log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		driver:      driver,
		sims:        sims,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
		events:      make(chan Event, cfg.QueueSize),
		rec:         rec,
		log:         log,
		maxPerOwner: cfg.MaxPerSession,
		eventBuffer: eventBuffer,
		ctx:         ctx,
		cancel:      cancel,
		jobs:        make(map[string]*job),
	}
}

// Events is drained by the server loop. Events of one job arrive in order.
func (m *Manager) Events() <-chan Event { return m.events }

func (m *Manager) register(owner uint64, kind Kind, worldName string) (*job, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrShuttingDown
	}
	if m.maxPerOwner > 0 && owner != 0 {
		n := 0
		for _, j := range m.jobs {
			if j.owner == owner {
				n++
			}
		}
		if n >= m.maxPerOwner {
			return nil, nil, ErrTooManyJobs
		}
	}
	ctx, cancel := context.WithCancel(m.ctx)
	j := &job{
		id:        ulid.Make().String(),
		owner:     owner,
		kind:      kind,
		worldName: worldName,
		cancel:    cancel,
	}
	m.jobs[j.id] = j
	m.wg.Add(1)
	return j, ctx, nil
}

func (m *Manager) unregister(j *job) {
	m.mu.Lock()
	delete(m.jobs, j.id)
	m.mu.Unlock()
	j.cancel()
	m.wg.Done()
}

// Generate queues a generation run. When target goes beyond the plates step
// the follow-up simulations run on the finished world before it is reported.
func (m *Manager) Generate(owner uint64, req generation.Request, target world.Step) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	j, ctx, err := m.register(owner, KindGenerate, req.WorldName())
	if err != nil {
		return "", err
	}
	go m.runGenerate(ctx, j, req, target)
	return j.id, nil
}

func (m *Manager) runGenerate(ctx context.Context, j *job, req generation.Request, target world.Step) {
	defer m.unregister(j)
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.emitFinal(j, generation.Result{Outcome: generation.Cancelled})
		return
	}
	defer m.sem.Release(1)
	m.recordStart(j, req.Seed)

	task := generation.Start(ctx, m.driver, req, m.eventBuffer, nil)
	for e := range task.Events() {
		m.emitProgress(j, e)
	}
	res := task.Result()

	if res.Outcome == generation.Completed && target.Name != world.StepPlates.Name {
		// Cancel is honoured up to the start of the chain only.
		if ctx.Err() != nil {
			res = generation.Result{Outcome: generation.Cancelled, Steps: res.Steps}
		} else if err := m.sims.RunChain(res.World, target, nil, jobSink{m: m, j: j}); err != nil {
			res = generation.Result{Outcome: generation.Failed, Err: err, Steps: res.Steps}
		}
	}
	m.recordFinish(j, res)
	m.emitFinal(j, res)
}

// Simulate runs one simulation on a copy of w. The copy is handed back in
// the final event; w itself is never touched.
func (m *Manager) Simulate(owner uint64, w *world.World, name string) (string, error) {
	sim, err := m.sims.Get(name)
	if err != nil {
		return "", err
	}
	if !sim.IsApplicable(w) {
		return "", fmt.Errorf("%s on %s: %w", name, w.Name, simulation.ErrNotApplicable)
	}
	clone := w.Clone()
	j, ctx, err := m.register(owner, KindSimulate, w.Name)
	if err != nil {
		return "", err
	}
	go m.runSimulate(ctx, j, clone, sim)
	return j.id, nil
}

func (m *Manager) runSimulate(ctx context.Context, j *job, w *world.World, sim simulation.Simulation) {
	defer m.unregister(j)
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.emitFinal(j, generation.Result{Outcome: generation.Cancelled})
		return
	}
	defer m.sem.Release(1)
	seed := simulation.RandomSeed()
	m.recordStart(j, seed)

	// A started simulation keeps its world even if cancelled meanwhile.
	res := generation.Result{Outcome: generation.Completed, World: w}
	if err := simulation.Run(w, sim, seed, jobSink{m: m, j: j}); err != nil {
		res = generation.Result{Outcome: generation.Failed, Err: err}
	}
	m.recordFinish(j, res)
	m.emitFinal(j, res)
}

// Cancel requests cancellation of one job.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	j := m.jobs[id]
	m.mu.Unlock()
	if j == nil {
		return false
	}
	j.cancel()
	return true
}

// CancelOwner cancels every job of owner and returns how many were running.
func (m *Manager) CancelOwner(owner uint64) int {
	m.mu.Lock()
	var victims []*job
	for _, j := range m.jobs {
		if j.owner == owner {
			victims = append(victims, j)
		}
	}
	m.mu.Unlock()
	for _, j := range victims {
		j.cancel()
	}
	return len(victims)
}

// OwnerOf returns the owner of a running job.
func (m *Manager) OwnerOf(id string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil {
		return 0, false
	}
	return j.owner, true
}

// Active returns the number of jobs not yet finished.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Shutdown cancels every job and waits until they have returned or ctx ends.
// Events still queued stay readable.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	case <-m.ctx.Done():
		// Shutting down: keep terminal events if there is still room.
		if e.Final {
			select {
			case m.events <- e:
			default:
				m.log.Warn("dropped final job event", zap.String("job", e.JobID))
			}
		}
	}
}

func (m *Manager) base(j *job) Event {
	return Event{JobID: j.id, Owner: j.owner, Kind: j.kind, WorldName: j.worldName}
}

func (m *Manager) emitProgress(j *job, p generation.Event) {
	e := m.base(j)
	e.Stage, e.Message, e.Step, e.HasStep = p.Stage, p.Message, p.Step, p.HasStep
	m.emit(e)
}

func (m *Manager) emitFinal(j *job, res generation.Result) {
	e := m.base(j)
	e.Final = true
	e.Outcome = res.Outcome
	e.World = res.World
	e.Err = res.Err
	e.Message = res.Outcome.String()
	m.log.Info("job finished",
		zap.String("job", j.id),
		zap.String("kind", string(j.kind)),
		zap.String("world", j.worldName),
		zap.Stringer("outcome", res.Outcome),
		zap.Int("steps", res.Steps),
		zap.Error(res.Err))
	m.emit(e)
}

func (m *Manager) recordStart(j *job, seed int64) {
	if m.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.rec.Start(ctx, persist.JobRow{
		ID: j.id, Kind: string(j.kind), Owner: j.owner, WorldName: j.worldName, Seed: seed,
	}); err != nil {
		m.log.Error("record job start", zap.String("job", j.id), zap.Error(err))
	}
}

func (m *Manager) recordFinish(j *job, res generation.Result) {
	if m.rec == nil {
		return
	}
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.rec.Finish(ctx, j.id, res.Outcome.String(), res.Steps, errMsg); err != nil {
		m.log.Error("record job finish", zap.String("job", j.id), zap.Error(err))
	}
}

// jobSink forwards simulation narration as job progress.
type jobSink struct {
	m *Manager
	j *job
}

func (s jobSink) Progress(e generation.Event) { s.m.emitProgress(s.j, e) }
func (s jobSink) Completed()                  {}
