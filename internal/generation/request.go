package generation

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/worldforge/server/internal/platec"
	"github.com/worldforge/server/internal/terrain"
	"github.com/worldforge/server/internal/world"
)

// ErrInvalidRequest wraps every Request validation failure.
var ErrInvalidRequest = errors.New("invalid generation request")

// MaxRandomSeed bounds the world seed picked when the caller leaves it open.
const MaxRandomSeed = 65525

// RandomSeed draws a world seed from [0, MaxRandomSeed].
func RandomSeed() int64 {
	return rand.Int64N(MaxRandomSeed + 1)
}

// Request is the immutable input of one generation run.
type Request struct {
	Name   string
	Seed   int64
	Width  int
	Height int

	NumPlates      int
	SeaLevel       float32
	ErosionPeriod  int
	FoldingRatio   float32
	AggrOverlapAbs int
	AggrOverlapRel float32
	CycleCount     int

	// OceanLevel is the flood level used when classifying ocean cells.
	OceanLevel float32
}

// DefaultRequest fills every physical parameter with its default.
func DefaultRequest(seed int64, width, height int) Request {
	p := platec.DefaultParams(seed, width, height)
	return Request{
		Seed:           seed,
		Width:          width,
		Height:         height,
		NumPlates:      p.NumPlates,
		SeaLevel:       p.SeaLevel,
		ErosionPeriod:  p.ErosionPeriod,
		FoldingRatio:   p.FoldingRatio,
		AggrOverlapAbs: p.AggrOverlapAbs,
		AggrOverlapRel: p.AggrOverlapRel,
		CycleCount:     p.CycleCount,
		OceanLevel:     terrain.DefaultOceanLevel,
	}
}

// Validate checks the request before it is queued. The simulator performs
// its own checks on construction.
func (r Request) Validate() error {
	if r.Width < platec.MinSize || r.Width > platec.MaxSize ||
		r.Height < platec.MinSize || r.Height > platec.MaxSize {
		return fmt.Errorf("%w: size %dx%d outside [%d, %d]", ErrInvalidRequest,
			r.Width, r.Height, platec.MinSize, platec.MaxSize)
	}
	if r.NumPlates < platec.MinPlates || r.NumPlates > platec.MaxPlates {
		return fmt.Errorf("%w: plate count %d outside [%d, %d]", ErrInvalidRequest,
			r.NumPlates, platec.MinPlates, platec.MaxPlates)
	}
	if r.OceanLevel <= 0 {
		return fmt.Errorf("%w: ocean level %.3f not positive", ErrInvalidRequest, r.OceanLevel)
	}
	if r.Name != "" {
		if _, err := world.NormalizeName(r.Name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if err := r.SimParams().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// SimParams converts the request to simulator parameters.
func (r Request) SimParams() platec.Params {
	return platec.Params{
		Seed:           r.Seed,
		Width:          r.Width,
		Height:         r.Height,
		SeaLevel:       r.SeaLevel,
		ErosionPeriod:  r.ErosionPeriod,
		FoldingRatio:   r.FoldingRatio,
		AggrOverlapAbs: r.AggrOverlapAbs,
		AggrOverlapRel: r.AggrOverlapRel,
		CycleCount:     r.CycleCount,
		NumPlates:      r.NumPlates,
	}
}

// WorldName returns the normalised name, or the default name for the seed.
func (r Request) WorldName() string {
	if r.Name == "" {
		return world.DefaultName(r.Seed)
	}
	if n, err := world.NormalizeName(r.Name); err == nil {
		return n
	}
	return world.DefaultName(r.Seed)
}
