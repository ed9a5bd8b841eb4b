package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/platec"
	"github.com/worldforge/server/internal/terrain"
	"github.com/worldforge/server/internal/world"
)

var errBoom = errors.New("boom")

type stubSim struct {
	w, h        int
	finishAfter int
	failAt      int
	steps       int
	released    int
	stepsAfter  int
}

func (s *stubSim) Step() error {
	if s.released > 0 {
		s.stepsAfter++
		return platec.ErrReleased
	}
	s.steps++
	if s.failAt > 0 && s.steps == s.failAt {
		return errBoom
	}
	return nil
}

func (s *stubSim) IsFinished() bool { return s.steps >= s.finishAfter }

func (s *stubSim) Heightmap() []float32 { return make([]float32, s.w*s.h) }

func (s *stubSim) PlatesMap() []uint32 {
	out := make([]uint32, s.w*s.h)
	for i := range out {
		out[i] = uint32(i % 4)
	}
	return out
}

func (s *stubSim) Release() { s.released++ }

type stubFactory struct {
	sim *stubSim
}

func (f *stubFactory) Create(p platec.Params) (platec.Simulation, error) {
	if p.NumPlates < platec.MinPlates {
		return nil, fmt.Errorf("plate count %d", p.NumPlates)
	}
	f.sim.w, f.sim.h = p.Width, p.Height
	return f.sim, nil
}

type recordingFinisher struct {
	calls     []string
	noiseSeed int64
	plates    []uint16
	failOn    string
}

func (f *recordingFinisher) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return errBoom
	}
	return nil
}

func (f *recordingFinisher) CenterLand(w *world.World) error {
	f.plates = append([]uint16(nil), w.Plates().Cells()...)
	return f.record("center_land")
}

func (f *recordingFinisher) AddNoiseToElevation(w *world.World, seed int64) error {
	f.noiseSeed = seed
	return f.record("add_noise")
}

func (f *recordingFinisher) PlaceOceansAtMapBorders(w *world.World) error {
	return f.record("place_oceans")
}

func (f *recordingFinisher) InitializeOceanAndThresholds(w *world.World) error {
	return f.record("initialize_ocean")
}

var passOrder = []string{"center_land", "add_noise", "place_oceans", "initialize_ocean"}

func exampleRequest() Request {
	req := DefaultRequest(42, 16, 16)
	req.NumPlates = 4
	return req
}

func newStubDriver(sim *stubSim) (*Driver, *recordingFinisher) {
	fin := &recordingFinisher{}
	return NewDriver(&stubFactory{sim: sim}, fin, zap.NewNop()), fin
}

func TestRunEmitsStepsPassesAndCompletion(t *testing.T) {
	sim := &stubSim{finishAfter: 3}
	d, fin := newStubDriver(sim)
	sink := &RecordingSink{}

	res := d.Run(context.Background(), exampleRequest(), sink)
	require.Equal(t, Completed, res.Outcome)
	require.NoError(t, res.Err)
	require.Equal(t, 3, res.Steps)

	events := sink.Events()
	require.Len(t, events, 3+4+1)
	for i := 0; i < 3; i++ {
		require.Equal(t, StageSimulation, events[i].Stage)
		require.True(t, events[i].HasStep)
		require.Equal(t, i+1, events[i].Step)
		require.Equal(t, fmt.Sprintf("plate simulation: step %d", i+1), events[i].Message)
	}
	require.Equal(t, []Stage{StageCenterLand, StageAddNoise, StagePlaceOceans, StageInitOcean},
		[]Stage{events[3].Stage, events[4].Stage, events[5].Stage, events[6].Stage})
	require.Equal(t, StageCompleted, events[7].Stage)
	require.False(t, events[7].HasStep)
	require.Equal(t, 1, sink.CompletedCount())

	require.Equal(t, passOrder, fin.calls)
	require.Equal(t, 1, sim.released)
	require.Zero(t, sim.stepsAfter)
}

func TestRunBuildsWorldFromExtractedMaps(t *testing.T) {
	sim := &stubSim{finishAfter: 3}
	d, fin := newStubDriver(sim)

	res := d.Run(context.Background(), exampleRequest(), NopSink{})
	require.Equal(t, Completed, res.Outcome)

	w := res.World
	require.NotNil(t, w)
	require.Equal(t, "world_seed_42", w.Name)
	require.Equal(t, int64(42), w.Seed)
	require.Equal(t, world.Size{Width: 16, Height: 16}, w.Size)
	require.Equal(t, 4, w.Params.NumPlates)
	require.Equal(t, world.StepPlates, w.Params.Step)
	require.Equal(t, float32(terrain.DefaultOceanLevel), w.Params.OceanLevel)

	require.Equal(t, 16, w.Elevation().W)
	require.Equal(t, 16, w.Elevation().H)
	require.Equal(t, 16, w.Plates().W)
	require.Equal(t, 16, w.Plates().H)

	want := make([]uint16, 16*16)
	for i := range want {
		want[i] = uint16(i % 4)
	}
	require.Equal(t, want, fin.plates)
}

func TestRunStepEventsNonDecreasing(t *testing.T) {
	sim := &stubSim{finishAfter: 25}
	d, _ := newStubDriver(sim)
	sink := &RecordingSink{}

	res := d.Run(context.Background(), exampleRequest(), sink)
	require.Equal(t, Completed, res.Outcome)

	last := 0
	completed := 0
	for _, e := range sink.Events() {
		if e.HasStep {
			require.GreaterOrEqual(t, e.Step, last)
			last = e.Step
		}
		if e.Stage == StageCompleted {
			completed++
		}
	}
	require.Equal(t, 25, last)
	require.Equal(t, 1, completed)
}

// cancelAfter cancels its context once n events have been seen.
type cancelAfter struct {
	RecordingSink
	n      int
	cancel context.CancelFunc
}

func (s *cancelAfter) Progress(e Event) {
	s.RecordingSink.Progress(e)
	if len(s.RecordingSink.Events()) == s.n {
		s.cancel()
	}
}

func TestCancelAtEveryBoundaryReleasesOnce(t *testing.T) {
	// 3 step events then 3 pass events each leave a boundary behind them.
	for n := 0; n <= 6; n++ {
		t.Run(fmt.Sprintf("after_%d_events", n), func(t *testing.T) {
			sim := &stubSim{finishAfter: 3}
			d, fin := newStubDriver(sim)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sink := &cancelAfter{n: n, cancel: cancel}
			if n == 0 {
				cancel()
			}

			res := d.Run(ctx, exampleRequest(), sink)
			require.Equal(t, Cancelled, res.Outcome)
			require.Nil(t, res.World)
			require.NoError(t, res.Err)
			require.Equal(t, 1, sim.released)
			require.Zero(t, sim.stepsAfter)
			require.Zero(t, sink.CompletedCount())
			require.Len(t, sink.Events(), n)
			if n > 3 {
				require.Equal(t, passOrder[:n-3], fin.calls)
			} else {
				require.Empty(t, fin.calls)
			}
		})
	}
}

func TestConstructionFailureRunsNoPasses(t *testing.T) {
	sim := &stubSim{finishAfter: 3}
	d, fin := newStubDriver(sim)
	sink := &RecordingSink{}
	req := exampleRequest()
	req.NumPlates = 0

	res := d.Run(context.Background(), req, sink)
	require.Equal(t, Failed, res.Outcome)
	require.Error(t, res.Err)
	require.Nil(t, res.World)
	require.Empty(t, fin.calls)
	require.Empty(t, sink.Events())
	require.Zero(t, sink.CompletedCount())
	require.Zero(t, sim.released)
}

func TestStepFailureReleasesAndFails(t *testing.T) {
	sim := &stubSim{finishAfter: 5, failAt: 2}
	d, fin := newStubDriver(sim)
	sink := &RecordingSink{}

	res := d.Run(context.Background(), exampleRequest(), sink)
	require.Equal(t, Failed, res.Outcome)
	require.ErrorIs(t, res.Err, errBoom)
	require.Equal(t, 1, res.Steps)
	require.Equal(t, 1, sim.released)
	require.Empty(t, fin.calls)
	require.Len(t, sink.Events(), 1)
	require.Zero(t, sink.CompletedCount())
}

func TestPassFailureStopsRun(t *testing.T) {
	sim := &stubSim{finishAfter: 1}
	d, fin := newStubDriver(sim)
	fin.failOn = "place_oceans"
	sink := &RecordingSink{}

	res := d.Run(context.Background(), exampleRequest(), sink)
	require.Equal(t, Failed, res.Outcome)
	require.ErrorIs(t, res.Err, errBoom)
	require.Equal(t, passOrder[:3], fin.calls)
	require.Zero(t, sink.CompletedCount())
	require.Equal(t, 1, sim.released)
}

func TestNoiseSeed(t *testing.T) {
	sim := &stubSim{finishAfter: 1}
	d, fin := newStubDriver(sim)
	d.NoiseSeed = func() int64 { return 77 }
	require.Equal(t, Completed, d.Run(context.Background(), exampleRequest(), nil).Outcome)
	require.Equal(t, int64(77), fin.noiseSeed)

	for i := 0; i < 20; i++ {
		sim := &stubSim{finishAfter: 1}
		d, fin := newStubDriver(sim)
		require.Equal(t, Completed, d.Run(context.Background(), exampleRequest(), nil).Outcome)
		require.GreaterOrEqual(t, fin.noiseSeed, int64(0))
		require.LessOrEqual(t, fin.noiseSeed, int64(MaxNoiseSeed))
	}
}

func TestRunWithLithosphereAndTerrain(t *testing.T) {
	d := NewDriver(platec.Lithosphere{MaxIterations: 20}, terrain.Finisher{}, zap.NewNop())
	d.NoiseSeed = func() int64 { return 5 }
	req := DefaultRequest(11, 32, 32)
	req.NumPlates = 5
	req.Name = "  Pangaea  "

	res := d.Run(context.Background(), req, nil)
	require.Equal(t, Completed, res.Outcome, "err: %v", res.Err)
	w := res.World
	require.Equal(t, "Pangaea", w.Name)
	require.True(t, w.HasElevation())
	require.True(t, w.HasPlates())
	require.True(t, w.HasOcean())
	require.True(t, w.HasSeaDepth())
	require.Len(t, w.ElevationThresholds(), 4)
	require.Equal(t, []string{world.LayerElevation, world.LayerPlates, world.LayerOcean, world.LayerSeaDepth}, w.Layers())
	require.Equal(t, req.SeaLevel, w.Params.SeaLevel)
	require.Equal(t, float32(terrain.DefaultOceanLevel), w.Params.OceanLevel)
	require.NotEqual(t, w.Params.SeaLevel, w.Params.OceanLevel)
	for _, p := range w.Plates().Cells() {
		require.Less(t, p, uint16(5))
	}
}

func TestRequestValidate(t *testing.T) {
	require.NoError(t, exampleRequest().Validate())

	cases := map[string]func(*Request){
		"narrow":      func(r *Request) { r.Width = 4 },
		"too tall":    func(r *Request) { r.Height = platec.MaxSize + 1 },
		"no plates":   func(r *Request) { r.NumPlates = 0 },
		"many plates": func(r *Request) { r.NumPlates = platec.MaxPlates + 1 },
		"ocean level": func(r *Request) { r.OceanLevel = 0 },
		"sea level":   func(r *Request) { r.SeaLevel = 1 },
		"blank name":  func(r *Request) { r.Name = "   " },
		"no cycles":   func(r *Request) { r.CycleCount = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := exampleRequest()
			mutate(&r)
			require.ErrorIs(t, r.Validate(), ErrInvalidRequest)
		})
	}
}

func TestRandomSeedRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := RandomSeed()
		require.GreaterOrEqual(t, s, int64(0))
		require.LessOrEqual(t, s, int64(MaxRandomSeed))
	}
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "completed", Completed.String())
	require.Equal(t, "failed", Failed.String())
	require.Equal(t, "cancelled", Cancelled.String())
}
