package scripting

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/terrain"
)

func shippedScripts(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "scripts")
}

func scriptDir(t *testing.T, world string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "world"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world", "hooks.lua"), []byte(world), 0o644))
	return dir
}

func TestShippedHooks(t *testing.T) {
	e, err := NewEngine(shippedScripts(t), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	require.True(t, e.HasHook("calc_thresholds"))
	require.True(t, e.HasHook("world_name"))

	hill, mountain := e.ThresholdPercentiles(terrain.ThresholdInput{Width: 64, Height: 64, NumPlates: 10, LandRatio: 0.4})
	require.InDelta(t, 0.10, hill, 1e-9)
	require.InDelta(t, 0.03, mountain, 1e-9)

	hill, mountain = e.ThresholdPercentiles(terrain.ThresholdInput{NumPlates: 10, LandRatio: 0.1})
	require.InDelta(t, 0.06, hill, 1e-9)
	require.InDelta(t, 0.015, mountain, 1e-9)

	require.Equal(t, "Aeria 0", e.WorldName(0))
	require.Equal(t, "Borheim 9", e.WorldName(9))
}

func TestMissingHooksFallBack(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	require.False(t, e.HasHook("world_name"))
	hill, mountain := e.ThresholdPercentiles(terrain.ThresholdInput{})
	require.Equal(t, terrain.DefaultHillPercent, hill)
	require.Equal(t, terrain.DefaultMountainPercent, mountain)
	require.Equal(t, "world_seed_12", e.WorldName(12))
}

func TestBadHookResultsFallBack(t *testing.T) {
	e, err := NewEngine(scriptDir(t, `
function calc_thresholds(ctx) return { hill = 0.02, mountain = 0.5 } end
function world_name(seed) return "   " end
`), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	hill, mountain := e.ThresholdPercentiles(terrain.ThresholdInput{})
	require.Equal(t, terrain.DefaultHillPercent, hill)
	require.Equal(t, terrain.DefaultMountainPercent, mountain)
	require.Equal(t, "world_seed_3", e.WorldName(3))
}

func TestHookErrorsFallBack(t *testing.T) {
	e, err := NewEngine(scriptDir(t, `
function calc_thresholds(ctx) error("boom") end
function world_name(seed) return 42 end
`), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	hill, _ := e.ThresholdPercentiles(terrain.ThresholdInput{})
	require.Equal(t, terrain.DefaultHillPercent, hill)
	require.Equal(t, "world_seed_5", e.WorldName(5))
}

func TestSyntaxErrorFailsLoad(t *testing.T) {
	_, err := NewEngine(scriptDir(t, "function broken("), zap.NewNop())
	require.Error(t, err)
}

func TestConcurrentCalls(t *testing.T) {
	e, err := NewEngine(shippedScripts(t), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.WorldName(seed)
				e.ThresholdPercentiles(terrain.ThresholdInput{NumPlates: 30, LandRatio: 0.5})
			}
		}(int64(i))
	}
	wg.Wait()
}
