package platec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func runToEnd(t *testing.T, sim Simulation, limit int) int {
	t.Helper()
	steps := 0
	for !sim.IsFinished() {
		require.NoError(t, sim.Step())
		steps++
		if steps > limit {
			t.Fatalf("simulation did not finish within %d steps", limit)
		}
	}
	return steps
}

func TestLithosphereFinishesAndStaysInDomain(t *testing.T) {
	p := DefaultParams(42, 32, 24)
	p.NumPlates = 6
	sim, err := Lithosphere{MaxIterations: 50}.Create(p)
	require.NoError(t, err)
	defer sim.Release()

	steps := runToEnd(t, sim, 50*p.CycleCount)
	require.Positive(t, steps)

	hm := sim.Heightmap()
	pm := sim.PlatesMap()
	require.Len(t, hm, 32*24)
	require.Len(t, pm, 32*24)
	for _, v := range pm {
		require.Less(t, v, uint32(p.NumPlates))
	}
	for _, v := range hm {
		require.GreaterOrEqual(t, v, float32(0))
	}
}

func TestLithosphereDeterministic(t *testing.T) {
	p := DefaultParams(7, 20, 20)
	p.NumPlates = 4

	run := func() ([]float32, []uint32) {
		sim, err := Lithosphere{MaxIterations: 30}.Create(p)
		require.NoError(t, err)
		defer sim.Release()
		runToEnd(t, sim, 60)
		return sim.Heightmap(), sim.PlatesMap()
	}
	h1, p1 := run()
	h2, p2 := run()
	require.Equal(t, h1, h2)
	require.Equal(t, p1, p2)
}

func TestSeaLevelControlsInitialLand(t *testing.T) {
	p := DefaultParams(3, 40, 40)
	sim, err := Lithosphere{}.Create(p)
	require.NoError(t, err)
	defer sim.Release()

	land := 0
	hm := sim.Heightmap()
	for _, v := range hm {
		if v >= ContinentalBase {
			land++
		}
	}
	frac := float64(land) / float64(len(hm))
	require.InDelta(t, 1-float64(p.SeaLevel), frac, 0.05)
}

func TestReleasedSimulationRefusesSteps(t *testing.T) {
	sim, err := Lithosphere{}.Create(DefaultParams(1, 16, 16))
	require.NoError(t, err)
	sim.Release()
	require.True(t, errors.Is(sim.Step(), ErrReleased))
	require.Nil(t, sim.Heightmap())
}

func TestCreateRejectsInvalidParams(t *testing.T) {
	cases := map[string]func(*Params){
		"zero plates":   func(p *Params) { p.NumPlates = 0 },
		"one plate":     func(p *Params) { p.NumPlates = 1 },
		"tiny width":    func(p *Params) { p.Width = 4 },
		"huge height":   func(p *Params) { p.Height = MaxSize + 1 },
		"sea level":     func(p *Params) { p.SeaLevel = 1.2 },
		"no cycles":     func(p *Params) { p.CycleCount = 0 },
		"negative rate": func(p *Params) { p.ErosionPeriod = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams(1, 64, 64)
			mutate(&p)
			_, err := Lithosphere{}.Create(p)
			require.Error(t, err)
		})
	}
}
