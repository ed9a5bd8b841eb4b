package terrain

import "github.com/worldforge/server/internal/world"

// Finisher runs the finishing passes with a fixed threshold source. The
// ocean level is read from the world's generation parameters.
type Finisher struct {
	Thresholds ThresholdSource
}

func (f Finisher) CenterLand(w *world.World) error { return CenterLand(w) }

func (f Finisher) AddNoiseToElevation(w *world.World, seed int64) error {
	return AddNoiseToElevation(w, seed)
}

func (f Finisher) PlaceOceansAtMapBorders(w *world.World) error { return PlaceOceansAtMapBorders(w) }

func (f Finisher) InitializeOceanAndThresholds(w *world.World) error {
	level := w.Params.OceanLevel
	if level == 0 {
		level = DefaultOceanLevel
	}
	return InitializeOceanAndThresholds(w, level, f.Thresholds)
}
