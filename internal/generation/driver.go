// Package generation runs the staged world generation: the plate simulation
// is stepped to completion, its maps become a World and the finishing passes
// are applied in a fixed order, with progress reported at every boundary.
package generation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/platec"
	"github.com/worldforge/server/internal/world"
)

// MaxNoiseSeed bounds the seed handed to the noise pass.
const MaxNoiseSeed = 4096

// Finisher applies the finishing passes. The driver decides their order.
type Finisher interface {
	CenterLand(w *world.World) error
	AddNoiseToElevation(w *world.World, seed int64) error
	PlaceOceansAtMapBorders(w *world.World) error
	InitializeOceanAndThresholds(w *world.World) error
}

// Outcome is the terminal state of a run.
type Outcome int

const (
	Completed Outcome = iota
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what a run produced. World is only set when Outcome is
// Completed and Err only when it is Failed.
type Result struct {
	Outcome Outcome
	World   *world.World
	Err     error
	Steps   int
}

// Driver runs generation requests. A Driver holds no per-run state and may
// serve concurrent runs.
type Driver struct {
	factory  platec.Factory
	finisher Finisher
	log      *zap.Logger
	printer  *message.Printer

	// NoiseSeed picks the seed of the noise pass. Nil draws from [0, MaxNoiseSeed].
	NoiseSeed func() int64
}

func NewDriver(factory platec.Factory, finisher Finisher, log *zap.Logger) *Driver {
	return &Driver{
		factory:  factory,
		finisher: finisher,
		log:      log,
		printer:  message.NewPrinter(language.English),
	}
}

type pass struct {
	stage Stage
	msg   string
	run   func(w *world.World) error
}

// Run executes one request to a terminal outcome. The context is checked
// before every simulation step and before every finishing pass; there is no
// timeout on the simulation itself.
func (d *Driver) Run(ctx context.Context, req Request, sink Sink) Result {
	if sink == nil {
		sink = NopSink{}
	}
	start := time.Now()
	log := d.log.With(zap.Int64("seed", req.Seed), zap.Int("width", req.Width), zap.Int("height", req.Height))

	sim, err := d.factory.Create(req.SimParams())
	if err != nil {
		log.Warn("plate simulation rejected", zap.Error(err))
		return Result{Outcome: Failed, Err: fmt.Errorf("create simulation: %w", err)}
	}
	released := false
	release := func() {
		if !released {
			released = true
			sim.Release()
		}
	}
	defer release()

	steps := 0
	for !sim.IsFinished() {
		if ctx.Err() != nil {
			release()
			log.Info("generation cancelled", zap.Int("steps", steps))
			return Result{Outcome: Cancelled, Steps: steps}
		}
		if err := sim.Step(); err != nil {
			release()
			log.Error("plate simulation step failed", zap.Int("step", steps+1), zap.Error(err))
			return Result{Outcome: Failed, Err: fmt.Errorf("step %d: %w", steps+1, err), Steps: steps}
		}
		steps++
		sink.Progress(Event{
			Stage:   StageSimulation,
			Message: d.printer.Sprintf("plate simulation: step %d", steps),
			Step:    steps,
			HasStep: true,
		})
	}

	heights := sim.Heightmap()
	plates := sim.PlatesMap()
	release()
	log.Debug("plate simulation finished", zap.Int("steps", steps))

	w, err := d.buildWorld(req, heights, plates)
	if err != nil {
		log.Error("extract maps failed", zap.Error(err))
		return Result{Outcome: Failed, Err: err, Steps: steps}
	}

	noiseSeed := d.noiseSeed()
	passes := []pass{
		{StageCenterLand, "centering land", d.finisher.CenterLand},
		{StageAddNoise, "adding noise", func(w *world.World) error {
			return d.finisher.AddNoiseToElevation(w, noiseSeed)
		}},
		{StagePlaceOceans, "forcing oceans at borders", d.finisher.PlaceOceansAtMapBorders},
		{StageInitOcean, "initializing ocean and thresholds", d.finisher.InitializeOceanAndThresholds},
	}
	for _, p := range passes {
		if ctx.Err() != nil {
			log.Info("generation cancelled", zap.String("before", string(p.stage)))
			return Result{Outcome: Cancelled, Steps: steps}
		}
		sink.Progress(Event{Stage: p.stage, Message: p.msg})
		if err := p.run(w); err != nil {
			log.Error("finishing pass failed", zap.String("stage", string(p.stage)), zap.Error(err))
			return Result{Outcome: Failed, Err: fmt.Errorf("%s: %w", p.stage, err), Steps: steps}
		}
	}

	sink.Progress(Event{Stage: StageCompleted, Message: "completed"})
	sink.Completed()
	log.Info("generation completed",
		zap.String("world", w.Name),
		zap.Int("steps", steps),
		zap.Duration("elapsed", time.Since(start)))
	return Result{Outcome: Completed, World: w, Steps: steps}
}

func (d *Driver) noiseSeed() int64 {
	if d.NoiseSeed != nil {
		return d.NoiseSeed()
	}
	return rand.Int64N(MaxNoiseSeed + 1)
}

// buildWorld stamps a fresh world and assigns the extracted maps.
func (d *Driver) buildWorld(req Request, heights []float32, plates []uint32) (*world.World, error) {
	w := world.New(req.WorldName(), world.Size{Width: req.Width, Height: req.Height}, req.Seed,
		world.GenerationParameters{
			NumPlates:  req.NumPlates,
			SeaLevel:   req.SeaLevel,
			OceanLevel: req.OceanLevel,
			Step:       world.StepPlates,
		})

	elev, err := grid.FromSlice(req.Width, req.Height, heights)
	if err != nil {
		return nil, fmt.Errorf("extract heightmap: %w", err)
	}
	if len(plates) != req.Width*req.Height {
		return nil, fmt.Errorf("extract platemap: %d cells, want %d", len(plates), req.Width*req.Height)
	}
	pm := grid.New[uint16](req.Width, req.Height)
	cells := pm.Cells()
	for i, p := range plates {
		if p > math.MaxUint16 {
			return nil, fmt.Errorf("extract platemap: plate index %d overflows", p)
		}
		cells[i] = uint16(p)
	}

	if err := w.SetElevation(elev, nil); err != nil {
		return nil, err
	}
	if err := w.SetPlates(pm); err != nil {
		return nil, err
	}
	return w, nil
}
