package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worldforge/server/internal/core/grid"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/platec"
	"github.com/worldforge/server/internal/world"
)

// gated blocks in Execute until release is closed.
type gated struct {
	started chan struct{}
	release chan struct{}
}

func newGated() gated {
	return gated{started: make(chan struct{}), release: make(chan struct{})}
}

func (gated) Name() string                   { return "gated" }
func (gated) Title() string                  { return "Simulating gate" }
func (gated) IsApplicable(*world.World) bool { return true }

func (g gated) Execute(w *world.World, _ int64) error {
	close(g.started)
	<-g.release
	return w.SetIrrigation(grid.New[float32](w.Width(), w.Height()))
}

func gatedWorld() *world.World {
	return world.New("gated", world.Size{Width: 4, Height: 4}, 1, world.GenerationParameters{NumPlates: 1, OceanLevel: 1})
}

func waitStarted(t *testing.T, g gated) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatal("simulation never started")
	}
}

func TestCancelKeepsStartedSimulation(t *testing.T) {
	m := newManager(t, platec.Lithosphere{}, nil)
	g := newGated()
	m.sims.Register(g)

	id, err := m.Simulate(1, gatedWorld(), "gated")
	require.NoError(t, err)
	waitStarted(t, g)

	require.True(t, m.Cancel(id))
	close(g.release)

	events := collect(t, m, id)
	final := events[len(events)-1]
	require.Equal(t, generation.Completed, final.Outcome)
	require.NotNil(t, final.World)
	require.True(t, final.World.HasIrrigation())
}

func TestShutdownKeepsStartedSimulation(t *testing.T) {
	m := newManager(t, platec.Lithosphere{}, nil)
	g := newGated()
	m.sims.Register(g)

	id, err := m.Simulate(1, gatedWorld(), "gated")
	require.NoError(t, err)
	waitStarted(t, g)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- m.Shutdown(ctx)
	}()
	require.Eventually(t, func() bool { return m.ctx.Err() != nil }, 5*time.Second, time.Millisecond)
	close(g.release)

	events := collect(t, m, id)
	final := events[len(events)-1]
	require.Equal(t, generation.Completed, final.Outcome)
	require.NotNil(t, final.World)
	require.NoError(t, <-done)
}
