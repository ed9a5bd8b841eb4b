package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/config"
	"github.com/worldforge/server/internal/data"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/persist"
	"github.com/worldforge/server/internal/platec"
	"github.com/worldforge/server/internal/simulation"
	"github.com/worldforge/server/internal/terrain"
	"github.com/worldforge/server/internal/world"
)

// endless never finishes, so jobs using it only stop when cancelled.
type endless struct {
	w, h     int
	mu       sync.Mutex
	released int
}

func (s *endless) Step() error      { time.Sleep(time.Millisecond); return nil }
func (s *endless) IsFinished() bool { return false }
func (s *endless) Heightmap() []float32 {
	return make([]float32, s.w*s.h)
}
func (s *endless) PlatesMap() []uint32 { return make([]uint32, s.w*s.h) }
func (s *endless) Release() {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string
}

func (r *fakeRecorder) Start(_ context.Context, row persist.JobRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, row.ID)
	return nil
}

func (r *fakeRecorder) Finish(_ context.Context, id, outcome string, _ int, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]string)
	}
	r.finished[id] = outcome
	return nil
}

func registry(t *testing.T) *simulation.Registry {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	tbl, err := data.LoadBiomeTable(filepath.Join(filepath.Dir(file), "..", "..", "data", "yaml", "biomes.yaml"))
	require.NoError(t, err)
	return simulation.NewRegistry(tbl)
}

func jobsConfig() config.JobsConfig {
	return config.JobsConfig{MaxConcurrent: 2, MaxPerSession: 2, QueueSize: 256}
}

func newManager(t *testing.T, factory platec.Factory, rec Recorder) *Manager {
	t.Helper()
	d := generation.NewDriver(factory, terrain.Finisher{}, zap.NewNop())
	m := NewManager(d, registry(t), jobsConfig(), 8, rec, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func smallRequest(seed int64) generation.Request {
	req := generation.DefaultRequest(seed, 24, 24)
	req.NumPlates = 4
	req.CycleCount = 1
	return req
}

// collect reads events of id until its final event.
func collect(t *testing.T, m *Manager, id string) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(30 * time.Second)
	for {
		select {
		case e := <-m.Events():
			if e.JobID != id {
				continue
			}
			out = append(out, e)
			if e.Final {
				return out
			}
		case <-timeout:
			t.Fatalf("job %s did not finish", id)
		}
	}
}

func TestGenerateCompletes(t *testing.T) {
	rec := &fakeRecorder{}
	m := newManager(t, platec.Lithosphere{MaxIterations: 15}, rec)

	id, err := m.Generate(7, smallRequest(3), world.StepPlates)
	require.NoError(t, err)
	events := collect(t, m, id)

	final := events[len(events)-1]
	require.Equal(t, generation.Completed, final.Outcome, "err: %v", final.Err)
	require.NotNil(t, final.World)
	require.True(t, final.World.HasOcean())
	require.Equal(t, uint64(7), final.Owner)
	require.Equal(t, KindGenerate, final.Kind)
	require.Equal(t, "world_seed_3", final.WorldName)

	last := 0
	for _, e := range events[:len(events)-1] {
		require.False(t, e.Final)
		if e.HasStep {
			require.Greater(t, e.Step, last)
			last = e.Step
		}
	}
	require.Equal(t, generation.StageCompleted, events[len(events)-2].Stage)

	require.Eventually(t, func() bool { return m.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []string{id}, rec.started)
	require.Equal(t, "completed", rec.finished[id])
}

func TestGenerateFullRunsSimulations(t *testing.T) {
	m := newManager(t, platec.Lithosphere{MaxIterations: 15}, nil)
	id, err := m.Generate(1, smallRequest(4), world.StepFull)
	require.NoError(t, err)

	events := collect(t, m, id)
	final := events[len(events)-1]
	require.Equal(t, generation.Completed, final.Outcome, "err: %v", final.Err)
	require.True(t, final.World.HasBiome())
	require.Equal(t, world.StepFull, final.World.Params.Step)

	var started []string
	for _, e := range events {
		if e.Stage == generation.Stage(simulation.NameBiome) {
			started = append(started, e.Message)
		}
	}
	require.Len(t, started, 2)
}

func endlessFactory() (platec.Factory, *endless) {
	sim := &endless{}
	return platec.FactoryFunc(func(p platec.Params) (platec.Simulation, error) {
		sim.w, sim.h = p.Width, p.Height
		return sim, nil
	}), sim
}

func TestCancelStopsJob(t *testing.T) {
	factory, sim := endlessFactory()
	rec := &fakeRecorder{}
	m := newManager(t, factory, rec)

	id, err := m.Generate(1, smallRequest(1), world.StepPlates)
	require.NoError(t, err)

	// wait for stepping to begin
	for e := range m.Events() {
		if e.JobID == id && e.HasStep {
			break
		}
	}
	owner, ok := m.OwnerOf(id)
	require.True(t, ok)
	require.Equal(t, uint64(1), owner)

	require.True(t, m.Cancel(id))
	events := collect(t, m, id)
	require.Equal(t, generation.Cancelled, events[len(events)-1].Outcome)
	require.Nil(t, events[len(events)-1].World)

	require.Eventually(t, func() bool { return m.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
	sim.mu.Lock()
	require.Equal(t, 1, sim.released)
	sim.mu.Unlock()
	require.False(t, m.Cancel(id))

	rec.mu.Lock()
	require.Equal(t, "cancelled", rec.finished[id])
	rec.mu.Unlock()
}

func TestOwnerLimitAndCancelOwner(t *testing.T) {
	factory, _ := endlessFactory()
	m := newManager(t, factory, nil)

	a, err := m.Generate(5, smallRequest(1), world.StepPlates)
	require.NoError(t, err)
	b, err := m.Generate(5, smallRequest(2), world.StepPlates)
	require.NoError(t, err)
	_, err = m.Generate(5, smallRequest(3), world.StepPlates)
	require.ErrorIs(t, err, ErrTooManyJobs)

	other, err := m.Generate(6, smallRequest(4), world.StepPlates)
	require.NoError(t, err)

	require.Equal(t, 2, m.CancelOwner(5))
	finals := map[string]generation.Outcome{}
	timeout := time.After(30 * time.Second)
	for len(finals) < 2 {
		select {
		case e := <-m.Events():
			if e.Final {
				finals[e.JobID] = e.Outcome
			}
		case <-timeout:
			t.Fatal("owner jobs did not stop")
		}
	}
	require.Equal(t, generation.Cancelled, finals[a])
	require.Equal(t, generation.Cancelled, finals[b])
	_, stillRunning := m.OwnerOf(other)
	require.True(t, stillRunning)
	require.True(t, m.Cancel(other))
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	m := newManager(t, platec.Lithosphere{}, nil)
	req := smallRequest(1)
	req.NumPlates = 0
	_, err := m.Generate(1, req, world.StepPlates)
	require.ErrorIs(t, err, generation.ErrInvalidRequest)
	require.Zero(t, m.Active())
}

func TestSimulateWorksOnCopy(t *testing.T) {
	m := newManager(t, platec.Lithosphere{MaxIterations: 15}, nil)
	id, err := m.Generate(1, smallRequest(8), world.StepPlates)
	require.NoError(t, err)
	events := collect(t, m, id)
	w := events[len(events)-1].World
	require.NotNil(t, w)

	_, err = m.Simulate(1, w, simulation.NameHumidity)
	require.True(t, errors.Is(err, simulation.ErrNotApplicable))
	_, err = m.Simulate(1, w, "precip")
	require.Error(t, err)

	sid, err := m.Simulate(1, w, simulation.NamePrecipitation)
	require.NoError(t, err)
	sevents := collect(t, m, sid)
	require.Len(t, sevents, 3)
	require.Contains(t, sevents[0].Message, "started (seed")
	require.Contains(t, sevents[1].Message, "done (seed")

	final := sevents[2]
	require.Equal(t, generation.Completed, final.Outcome)
	require.Equal(t, KindSimulate, final.Kind)
	require.True(t, final.World.HasPrecipitation())
	require.False(t, w.HasPrecipitation())
}

func TestShutdownRefusesNewJobs(t *testing.T) {
	factory, _ := endlessFactory()
	m := newManager(t, factory, nil)
	_, err := m.Generate(1, smallRequest(1), world.StepPlates)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.Zero(t, m.Active())

	_, err = m.Generate(1, smallRequest(2), world.StepPlates)
	require.ErrorIs(t, err, ErrShuttingDown)
}
