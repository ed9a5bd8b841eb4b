package persist

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/world"
)

func sampleWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New("sample", world.Size{Width: 3, Height: 2}, 7, world.GenerationParameters{
		NumPlates: 2, SeaLevel: 0.65, OceanLevel: 1, Step: world.StepFull,
	})
	elev, err := grid.FromSlice(3, 2, []float32{0.5, 1.5, 2.5, -1, 0, 3.25})
	require.NoError(t, err)
	require.NoError(t, w.SetElevation(elev, []world.Threshold{
		{Name: "sea", Value: 1}, {Name: "plain", Value: 2}, {Name: "hill", Value: 3}, {Name: "mountain", Open: true},
	}))
	plates, err := grid.FromSlice(3, 2, []uint16{0, 1, 1, 0, 300, 1})
	require.NoError(t, err)
	require.NoError(t, w.SetPlates(plates))
	ocean, err := grid.FromSlice(3, 2, []bool{true, false, false, true, true, false})
	require.NoError(t, err)
	require.NoError(t, w.SetOcean(ocean))
	biome, err := grid.FromSlice(3, 2, []uint8{0, 2, 2, 0, 1, 2})
	require.NoError(t, err)
	require.NoError(t, w.SetBiome(biome, []string{"ocean", "sea", "grassland"}))
	return w
}

func TestEncodeLittleEndian(t *testing.T) {
	w := sampleWorld(t)
	b, err := EncodeLayer(w, world.LayerElevation)
	require.NoError(t, err)
	require.Equal(t, KindFloat32, b.Kind)
	require.Len(t, b.Data, 6*4)
	require.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(b.Data[4:]))
	require.Len(t, b.Thresholds, 4)

	p, err := EncodeLayer(w, world.LayerPlates)
	require.NoError(t, err)
	require.Equal(t, []byte{0x2c, 0x01}, p.Data[8:10])

	o, err := EncodeLayer(w, world.LayerOcean)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 1, 1, 0}, o.Data)

	_, err = EncodeLayer(w, world.LayerTemperature)
	require.Error(t, err)
}

func TestWorldSurvivesEncodeDecode(t *testing.T) {
	w := sampleWorld(t)
	blobs, err := EncodeWorld(w)
	require.NoError(t, err)
	require.Len(t, blobs, 4)

	_, names := w.Biome()
	row := &WorldRow{
		Name: w.Name, Seed: w.Seed, Width: 3, Height: 2, NumPlates: 2, SeaLevel: 0.65, OceanLevel: 1,
		Step: "full", BiomeNames: names,
	}
	got, err := DecodeWorld(row, blobs)
	require.NoError(t, err)
	require.Equal(t, w.Layers(), got.Layers())
	require.Equal(t, w.Elevation().Cells(), got.Elevation().Cells())
	require.Equal(t, w.ElevationThresholds(), got.ElevationThresholds())
	require.Equal(t, w.Plates().Cells(), got.Plates().Cells())
	require.Equal(t, w.Ocean().Cells(), got.Ocean().Cells())
	require.Equal(t, "grassland", got.BiomeAt(2, 1))
	require.Equal(t, world.StepFull, got.Params.Step)
	require.Equal(t, w.Params, got.Params)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	w := sampleWorld(t)
	b, err := EncodeLayer(w, world.LayerElevation)
	require.NoError(t, err)
	b.Data[0] ^= 0xff

	target := world.New("x", w.Size, 1, world.GenerationParameters{})
	err = DecodeLayer(target, b, nil)
	require.True(t, errors.Is(err, ErrChecksum))
	require.False(t, target.HasElevation())
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	w := sampleWorld(t)
	b, err := EncodeLayer(w, world.LayerPlates)
	require.NoError(t, err)

	small := world.New("x", world.Size{Width: 2, Height: 2}, 1, world.GenerationParameters{})
	require.Error(t, DecodeLayer(small, b, nil))

	b.Kind = KindFloat32
	require.Error(t, DecodeLayer(world.New("x", w.Size, 1, world.GenerationParameters{}), b, nil))

	b.Name = "lava"
	require.Error(t, DecodeLayer(world.New("x", w.Size, 1, world.GenerationParameters{}), b, nil))
}

func TestEncodeRows(t *testing.T) {
	w := sampleWorld(t)
	kind, data, err := EncodeRows(w, world.LayerPlates, 1, 2)
	require.NoError(t, err)
	require.Equal(t, KindUint16, kind)
	require.Equal(t, []byte{0, 0, 0x2c, 0x01, 1, 0}, data)

	_, _, err = EncodeRows(w, world.LayerPlates, 1, 3)
	require.Error(t, err)
	_, _, err = EncodeRows(w, world.LayerHumidity, 0, 1)
	require.Error(t, err)
}

func TestHydrologyLayersSurviveEncodeDecode(t *testing.T) {
	w := sampleWorld(t)
	layer := func(vals ...float32) *grid.Float {
		g, err := grid.FromSlice(3, 2, vals)
		require.NoError(t, err)
		return g
	}
	require.NoError(t, w.SetRivers(layer(0, 0.4, 0, 0, 0, 1.2)))
	require.NoError(t, w.SetLakes(layer(0, 0, 0.3, 0, 0, 0)))
	wmTh := []world.Threshold{{Name: "none", Value: 0.1}, {Name: "creek", Value: 0.5}, {Name: "river", Value: 1}, {Name: "main_river", Open: true}}
	require.NoError(t, w.SetWatermap(layer(0, 0.2, 0.7, 0, 0, 2), wmTh))
	require.NoError(t, w.SetIrrigation(layer(0, 0.5, 1, 0, 0, 0.8)))
	pTh := []world.Threshold{{Name: "low", Value: 0.3}, {Name: "med", Value: 0.7}, {Name: "high", Open: true}}
	require.NoError(t, w.SetPermeability(layer(0.1, 0.2, 0.9, 0.4, 0.5, 0.6), pTh))

	target := world.New("x", w.Size, 1, world.GenerationParameters{})
	for _, name := range []string{
		world.LayerRivers, world.LayerLakes, world.LayerWatermap, world.LayerIrrigation, world.LayerPermeability,
	} {
		b, err := EncodeLayer(w, name)
		require.NoError(t, err, name)
		require.Equal(t, KindFloat32, b.Kind)
		require.NoError(t, DecodeLayer(target, b, nil), name)
	}
	require.True(t, target.HasErosion())
	require.Equal(t, w.Rivers().Cells(), target.Rivers().Cells())
	require.Equal(t, w.Lakes().Cells(), target.Lakes().Cells())
	require.Equal(t, wmTh, target.WatermapThresholds())
	require.Equal(t, w.Irrigation().Cells(), target.Irrigation().Cells())
	require.Equal(t, pTh, target.PermeabilityThresholds())
	require.Equal(t, "med", world.Band(target.PermeabilityThresholds(), target.PermeabilityAt(1, 1)))
}
