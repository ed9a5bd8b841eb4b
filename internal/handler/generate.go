package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/worldforge/server/internal/catalog"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/jobs"
	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
	"github.com/worldforge/server/internal/simulation"
	"github.com/worldforge/server/internal/world"
)

// catalogTimeout bounds a catalog miss that has to hit the database.
const catalogTimeout = 10 * time.Second

// HandleGenerate processes C_GENERATE:
// [S preset][Q seed, negative = random][S name][H width][H height][C plates][S step].
// Zero sizes, plates and an empty step fall back to the preset.
func HandleGenerate(sess *net.Session, r *packet.Reader, deps *Deps) {
	presetName := r.ReadS()
	seed := r.ReadQ()
	name := r.ReadS()
	width := int(r.ReadH())
	height := int(r.ReadH())
	plates := int(r.ReadC())
	stepName := r.ReadS()
	if r.Err() != nil {
		SendError(sess, packet.ErrCodeBadRequest, "malformed generate request")
		return
	}

	if presetName == "" {
		presetName = deps.Config.Generation.DefaultPreset
	}
	preset, err := deps.Presets.Lookup(presetName)
	if err != nil {
		SendError(sess, packet.ErrCodeNotFound, err.Error())
		return
	}
	if seed < 0 {
		seed = generation.RandomSeed()
	}
	if name == "" && deps.Scripting != nil && deps.Scripting.HasHook("world_name") {
		name = deps.Scripting.WorldName(seed)
	}

	req := preset.Request(seed, name)
	if width > 0 {
		req.Width = width
	}
	if height > 0 {
		req.Height = height
	}
	if plates > 0 {
		req.NumPlates = plates
	}
	gen := deps.Config.Generation
	if req.Width > gen.MaxWidth || req.Height > gen.MaxHeight {
		SendError(sess, packet.ErrCodeBadRequest,
			fmt.Sprintf("size %dx%d exceeds server limit %dx%d", req.Width, req.Height, gen.MaxWidth, gen.MaxHeight))
		return
	}

	step, err := preset.TargetStep()
	if stepName != "" {
		step, err = world.StepByName(stepName)
	}
	if err != nil {
		SendError(sess, packet.ErrCodeBadRequest, err.Error())
		return
	}

	id, err := deps.Jobs.Generate(sess.ID, req, step)
	if err != nil {
		sendJobError(sess, err)
		return
	}
	deps.Log.Info("generation queued",
		zap.Uint64("session", sess.ID),
		zap.String("job", id),
		zap.String("preset", preset.Name),
		zap.String("world", req.WorldName()),
		zap.Int64("seed", seed),
		zap.Stringer("step", step))
	sendJobAccepted(sess, id, jobs.KindGenerate, req.WorldName())
}

// HandleCancel processes C_CANCEL: [S job id]. Only the owner may cancel.
// The job's S_JOB_DONE follows once it has stopped.
func HandleCancel(sess *net.Session, r *packet.Reader, deps *Deps) {
	id := r.ReadS()
	owner, ok := deps.Jobs.OwnerOf(id)
	if !ok || owner != sess.ID {
		SendError(sess, packet.ErrCodeNotFound, fmt.Sprintf("no running job %q", id))
		return
	}
	deps.Jobs.Cancel(id)
	deps.Log.Info("job cancel requested", zap.Uint64("session", sess.ID), zap.String("job", id))
}

// HandleSimulate processes C_SIMULATE: [S simulation][S world, empty = open world].
func HandleSimulate(sess *net.Session, r *packet.Reader, deps *Deps) {
	simName := r.ReadS()
	worldName := r.ReadS()
	if worldName == "" {
		worldName = sess.OpenWorld
	}
	if worldName == "" {
		SendError(sess, packet.ErrCodeNotOpen, "no world open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()
	w, err := deps.Catalog.Get(ctx, worldName)
	if err != nil {
		sendCatalogError(sess, err, deps)
		return
	}
	id, err := deps.Jobs.Simulate(sess.ID, w, simName)
	if err != nil {
		sendJobError(sess, err)
		return
	}
	deps.Log.Info("simulation queued",
		zap.Uint64("session", sess.ID), zap.String("job", id),
		zap.String("simulation", simName), zap.String("world", worldName))
	sendJobAccepted(sess, id, jobs.KindSimulate, worldName)
}

func sendJobError(sess *net.Session, err error) {
	switch {
	case errors.Is(err, generation.ErrInvalidRequest):
		SendError(sess, packet.ErrCodeBadRequest, err.Error())
	case errors.Is(err, simulation.ErrNotApplicable):
		SendError(sess, packet.ErrCodeInapplicable, err.Error())
	case errors.Is(err, jobs.ErrTooManyJobs):
		SendError(sess, packet.ErrCodeBusy, err.Error())
	case errors.Is(err, jobs.ErrShuttingDown):
		SendError(sess, packet.ErrCodeUnavailable, err.Error())
	default:
		// unknown simulation names land here
		SendError(sess, packet.ErrCodeNotFound, err.Error())
	}
}

func sendCatalogError(sess *net.Session, err error, deps *Deps) {
	if errors.Is(err, catalog.ErrNotFound) {
		SendError(sess, packet.ErrCodeNotFound, err.Error())
		return
	}
	deps.Log.Error("catalog lookup failed", zap.Uint64("session", sess.ID), zap.Error(err))
	SendError(sess, packet.ErrCodeInternal, "world could not be loaded")
}
