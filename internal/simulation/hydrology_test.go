package simulation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/world"
)

func TestErosionCarvesRiversAboveOceanLevel(t *testing.T) {
	w := islandWorld(t)
	require.NoError(t, Precipitation{}.Execute(w, 9))
	before := w.Elevation().Clone()
	level := w.Params.OceanLevel

	require.NoError(t, Run(w, Erosion{}, 9, nil))
	require.True(t, w.HasErosion())

	rivers := 0
	for y := 0; y < w.Height(); y++ {
		for x := 0; x < w.Width(); x++ {
			old, now := before.At(x, y), w.ElevationAt(x, y)
			require.LessOrEqual(t, now, old)
			if w.IsOcean(x, y) {
				require.Equal(t, old, now)
				require.Zero(t, w.RiverAt(x, y))
				require.Zero(t, w.LakeAt(x, y))
				continue
			}
			if old >= level {
				require.GreaterOrEqual(t, now, level)
			}
			if w.RiverAt(x, y) > 0 {
				rivers++
			}
		}
	}
	require.Positive(t, rivers)
}

func TestErosionIsSeeded(t *testing.T) {
	a := islandWorld(t)
	b := islandWorld(t)
	for _, w := range []*world.World{a, b} {
		require.NoError(t, Precipitation{}.Execute(w, 3))
		require.NoError(t, Erosion{}.Execute(w, 41))
	}
	require.Equal(t, a.Elevation().Cells(), b.Elevation().Cells())
	require.Equal(t, a.Rivers().Cells(), b.Rivers().Cells())
}

func TestFillLakeStaysInBasin(t *testing.T) {
	// 7x5 bowl: rim at 2, floor at 1, pit at 0.98, ocean on the left column.
	elev := grid.New[float32](7, 5)
	elev.Fill(2)
	ocean := grid.New[bool](7, 5)
	for y := 0; y < 5; y++ {
		ocean.Set(0, y, true)
		elev.Set(0, y, 0.5)
	}
	for y := 1; y <= 3; y++ {
		for x := 2; x <= 4; x++ {
			elev.Set(x, y, 1)
		}
	}
	elev.Set(3, 2, 0.98)
	lakes := grid.New[float32](7, 5)

	fillLake(elev, ocean, lakes, elev.Index(3, 2), 9)

	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			inBowl := x >= 2 && x <= 4 && y >= 1 && y <= 3
			if inBowl {
				require.InDelta(t, 1.0, lakes.At(x, y), 1e-6, "cell %d,%d", x, y)
			} else {
				require.Zero(t, lakes.At(x, y), "cell %d,%d", x, y)
			}
		}
	}
}

func TestWatermapBands(t *testing.T) {
	w := islandWorld(t)
	require.False(t, Watermap{}.IsApplicable(w))
	require.NoError(t, Precipitation{}.Execute(w, 2))
	require.NoError(t, Run(w, Watermap{}, 2, nil))

	ths := w.WatermapThresholds()
	require.Len(t, ths, 4)
	require.Equal(t, []string{"none", "creek", "river", "main_river"},
		[]string{ths[0].Name, ths[1].Name, ths[2].Name, ths[3].Name})
	require.True(t, ths[3].Open)
	require.LessOrEqual(t, ths[0].Value, ths[1].Value)
	require.LessOrEqual(t, ths[1].Value, ths[2].Value)

	wet := 0
	for y := 0; y < w.Height(); y++ {
		for x := 0; x < w.Width(); x++ {
			if w.IsOcean(x, y) {
				require.Zero(t, w.WatermapAt(x, y))
			} else if w.WatermapAt(x, y) > 0 {
				wet++
			}
		}
	}
	require.Positive(t, wet)
}

func TestIrrigationFallsOffWithDistance(t *testing.T) {
	w := islandWorld(t)
	wm := grid.New[float32](w.Width(), w.Height())
	cx, cy := w.Width()/2, w.Height()/2
	wm.Set(cx, cy, 5)
	require.NoError(t, w.SetWatermap(wm, nil))

	require.NoError(t, Run(w, Irrigation{}, 0, nil))
	require.InDelta(t, 1.0, w.IrrigationAt(cx, cy), 1e-6)
	near, far := w.IrrigationAt(cx+3, cy), w.IrrigationAt(cx+6, cy)
	require.Positive(t, far)
	require.Greater(t, near, far)
	require.Zero(t, w.IrrigationAt(cx, cy-IrrigationRange-1))
	require.Positive(t, w.IrrigationAt(cx+7, cy+7))
	require.False(t, w.IsOcean(cx+8, cy+7))
	require.Zero(t, w.IrrigationAt(cx+8, cy+7), "land beyond the radius")
	for i, o := range w.Ocean().Cells() {
		if o {
			require.Zero(t, w.Irrigation().Cells()[i])
		}
	}
}

func TestHumidityNeedsIrrigation(t *testing.T) {
	w := islandWorld(t)
	require.NoError(t, Precipitation{}.Execute(w, 1))
	require.False(t, Humidity{}.IsApplicable(w))
	require.NoError(t, Watermap{}.Execute(w, 1))
	require.NoError(t, Irrigation{}.Execute(w, 1))
	require.True(t, Humidity{}.IsApplicable(w))
}

func TestPermeabilityBands(t *testing.T) {
	w := islandWorld(t)
	require.NoError(t, Run(w, Permeability{}, 8, nil))
	ths := w.PermeabilityThresholds()
	require.Len(t, ths, 3)
	require.Equal(t, "low", ths[0].Name)
	require.Equal(t, "med", ths[1].Name)
	require.True(t, ths[2].Open)
	require.LessOrEqual(t, ths[0].Value, ths[1].Value)
}

func TestFullChainIncludesErosion(t *testing.T) {
	reg := NewRegistry(biomeTable(t))
	var names []string
	for _, s := range reg.Chain(world.StepFull) {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{
		NamePrecipitation, NameErosion, NameWatermap, NameIrrigation, NameTemperature,
		NameHumidity, NamePermeability, NameIcecap, NameBiome,
	}, names)
}
