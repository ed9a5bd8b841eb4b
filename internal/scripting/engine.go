package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/terrain"
	"github.com/worldforge/server/internal/world"
)

// Engine wraps a single gopher-lua VM holding the world hooks.
// Generation workers call it concurrently, so every VM access holds mu.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	// Core helpers first, then the world hooks
	for _, sub := range []string{"core", "world"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

// HasHook reports whether a global function of that name is defined.
func (e *Engine) HasHook(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// call invokes a global function with one return value. The caller holds mu
// and must pop the result.
func (e *Engine) call(name string, args ...lua.LValue) (lua.LValue, bool) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return nil, false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook error", zap.String("hook", name), zap.Error(err))
		return nil, false
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	return ret, true
}

// ThresholdPercentiles calls calc_thresholds(ctx). A missing hook, an error or
// out-of-range values fall back to the built-in 10% hills and 3% mountains.
func (e *Engine) ThresholdPercentiles(in terrain.ThresholdInput) (float64, float64) {
	hill, mountain := terrain.DefaultHillPercent, terrain.DefaultMountainPercent

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.vm.NewTable()
	t.RawSetString("width", lua.LNumber(in.Width))
	t.RawSetString("height", lua.LNumber(in.Height))
	t.RawSetString("plates", lua.LNumber(in.NumPlates))
	t.RawSetString("ocean_level", lua.LNumber(in.OceanLevel))
	t.RawSetString("land_ratio", lua.LNumber(in.LandRatio))

	ret, ok := e.call("calc_thresholds", t)
	if !ok {
		return hill, mountain
	}
	rt, ok := ret.(*lua.LTable)
	if !ok {
		e.log.Error("lua calc_thresholds returned non-table")
		return hill, mountain
	}
	h := float64(lua.LVAsNumber(rt.RawGetString("hill")))
	m := float64(lua.LVAsNumber(rt.RawGetString("mountain")))
	if h <= 0 || h >= 1 || m <= 0 || m >= h {
		e.log.Warn("lua calc_thresholds out of range",
			zap.Float64("hill", h), zap.Float64("mountain", m))
		return hill, mountain
	}
	return h, m
}

// WorldName calls world_name(seed). The default name is used when the hook
// is missing or returns something that does not normalise.
func (e *Engine) WorldName(seed int64) string {
	e.mu.Lock()
	ret, ok := e.call("world_name", lua.LNumber(seed))
	e.mu.Unlock()
	if !ok {
		return world.DefaultName(seed)
	}
	s, isStr := ret.(lua.LString)
	if !isStr {
		e.log.Error("lua world_name returned non-string")
		return world.DefaultName(seed)
	}
	name, err := world.NormalizeName(string(s))
	if err != nil {
		e.log.Warn("lua world_name rejected", zap.String("name", string(s)), zap.Error(err))
		return world.DefaultName(seed)
	}
	return name
}
