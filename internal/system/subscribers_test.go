package system

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/worldforge/server/internal/catalog"
	"github.com/worldforge/server/internal/core/event"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/jobs"
	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/world"
)

func finished(kind jobs.Kind, w *world.World) event.JobFinished {
	return event.JobFinished{Job: jobs.Event{
		JobID: "job-" + w.Name, Kind: kind, WorldName: w.Name,
		Final: true, Outcome: generation.Completed, World: w,
	}}
}

func TestGenerateNameClashIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)
	cat, err := catalog.New(4, nil, zap.NewNop())
	require.NoError(t, err)
	bus := event.NewBus()
	RegisterSubscribers(bus, net.NewSessionStore(), cat, log)

	deliver := func(e event.JobFinished) {
		event.Emit(bus, e)
		bus.SwapBuffers()
		bus.DispatchAll()
	}
	newWorld := func() *world.World {
		return world.New("Pangaea", world.Size{Width: 4, Height: 4}, 1, world.GenerationParameters{})
	}

	first := newWorld()
	deliver(finished(jobs.KindGenerate, first))
	require.Zero(t, logs.FilterMessageSnippet("replaces").Len())

	// simulate results replace their source world quietly
	deliver(finished(jobs.KindSimulate, newWorld()))
	require.Zero(t, logs.FilterMessageSnippet("replaces").Len())

	second := newWorld()
	deliver(finished(jobs.KindGenerate, second))
	entries := logs.FilterMessageSnippet("replaces").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "Pangaea", entries[0].ContextMap()["world"])
	require.Equal(t, true, entries[0].ContextMap()["unsaved"])

	got, ok := cat.Peek("Pangaea")
	require.True(t, ok)
	require.Same(t, second, got)
}
