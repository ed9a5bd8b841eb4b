// Package platec wraps the tectonic plate simulator behind a narrow
// step/finished/extract interface. A Simulation is an owned resource: the
// caller steps it until IsFinished, extracts the maps and then calls Release.
package platec

import (
	"errors"
	"fmt"
)

// ErrReleased is returned when a released simulation is stepped.
var ErrReleased = errors.New("platec: simulation released")

const (
	MinSize   = 8
	MaxSize   = 8192
	MinPlates = 2
	MaxPlates = 100

	// Crust base heights. Anything at or above ContinentalBase is land before
	// the finishing passes run.
	OceanicBase     = 0.1
	ContinentalBase = 1.0
)

// Params are the simulator inputs. Zero values are not defaults; use
// DefaultParams and override.
type Params struct {
	Seed           int64
	Width          int
	Height         int
	SeaLevel       float32
	ErosionPeriod  int
	FoldingRatio   float32
	AggrOverlapAbs int
	AggrOverlapRel float32
	CycleCount     int
	NumPlates      int
}

// DefaultParams mirrors the values the desktop generator always passed.
func DefaultParams(seed int64, width, height int) Params {
	return Params{
		Seed:           seed,
		Width:          width,
		Height:         height,
		SeaLevel:       0.65,
		ErosionPeriod:  60,
		FoldingRatio:   0.02,
		AggrOverlapAbs: 1000000,
		AggrOverlapRel: 0.33,
		CycleCount:     2,
		NumPlates:      10,
	}
}

// Validate checks the ranges the simulator accepts.
func (p Params) Validate() error {
	if p.Width < MinSize || p.Width > MaxSize {
		return fmt.Errorf("width %d outside [%d, %d]", p.Width, MinSize, MaxSize)
	}
	if p.Height < MinSize || p.Height > MaxSize {
		return fmt.Errorf("height %d outside [%d, %d]", p.Height, MinSize, MaxSize)
	}
	if p.NumPlates < MinPlates || p.NumPlates > MaxPlates {
		return fmt.Errorf("plate count %d outside [%d, %d]", p.NumPlates, MinPlates, MaxPlates)
	}
	if p.SeaLevel <= 0 || p.SeaLevel >= 1 {
		return fmt.Errorf("sea level %.3f outside (0, 1)", p.SeaLevel)
	}
	if p.ErosionPeriod < 0 {
		return fmt.Errorf("erosion period %d is negative", p.ErosionPeriod)
	}
	if p.FoldingRatio < 0 || p.FoldingRatio > 1 {
		return fmt.Errorf("folding ratio %.3f outside [0, 1]", p.FoldingRatio)
	}
	if p.AggrOverlapAbs < 0 {
		return fmt.Errorf("aggr overlap abs %d is negative", p.AggrOverlapAbs)
	}
	if p.AggrOverlapRel < 0 || p.AggrOverlapRel > 1 {
		return fmt.Errorf("aggr overlap rel %.3f outside [0, 1]", p.AggrOverlapRel)
	}
	if p.CycleCount < 1 {
		return fmt.Errorf("cycle count %d below 1", p.CycleCount)
	}
	return nil
}

// Simulation is one running plate simulation.
type Simulation interface {
	// Step advances the simulation by one iteration.
	Step() error
	IsFinished() bool
	// Heightmap returns a row-major copy of the current heights.
	Heightmap() []float32
	// PlatesMap returns a row-major copy of the plate index per cell.
	PlatesMap() []uint32
	// Release frees the simulation. Further Step calls return ErrReleased.
	Release()
}

// Factory constructs simulations.
type Factory interface {
	Create(p Params) (Simulation, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(p Params) (Simulation, error)

func (f FactoryFunc) Create(p Params) (Simulation, error) { return f(p) }
