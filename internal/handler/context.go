package handler

import (
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/catalog"
	"github.com/worldforge/server/internal/config"
	"github.com/worldforge/server/internal/data"
	"github.com/worldforge/server/internal/jobs"
	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
	"github.com/worldforge/server/internal/scripting"
	"github.com/worldforge/server/internal/simulation"
)

// SaveQueue accepts explicit save requests. The persistence system
// implements it; it reports an error when no database is configured.
type SaveQueue interface {
	RequestSave(name string, requester uint64) error
}

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Jobs      *jobs.Manager
	Catalog   *catalog.Catalog
	Presets   *data.PresetTable
	Sims      *simulation.Registry
	Scripting *scripting.Engine // nil disables the world_name hook
	Saves     SaveQueue
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_OPCODE_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleHello(sess.(*net.Session), r, deps)
		},
	)

	ready := []packet.SessionState{packet.StateReady}

	reg.Register(packet.C_OPCODE_GENERATE, ready,
		func(sess any, r *packet.Reader) {
			HandleGenerate(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_CANCEL, ready,
		func(sess any, r *packet.Reader) {
			HandleCancel(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_SIMULATE, ready,
		func(sess any, r *packet.Reader) {
			HandleSimulate(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_LIST_WORLDS, ready,
		func(sess any, r *packet.Reader) {
			HandleListWorlds(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_OPEN_WORLD, ready,
		func(sess any, r *packet.Reader) {
			HandleOpenWorld(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_QUERY_POINT, ready,
		func(sess any, r *packet.Reader) {
			HandleQueryPoint(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_LAYER_ROWS, ready,
		func(sess any, r *packet.Reader) {
			HandleLayerRows(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_SAVE_WORLD, ready,
		func(sess any, r *packet.Reader) {
			HandleSaveWorld(sess.(*net.Session), r, deps)
		},
	)

	// Quit is honoured in any live state.
	reg.Register(packet.C_OPCODE_QUIT,
		[]packet.SessionState{packet.StateHandshake, packet.StateReady},
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(*net.Session), r, deps)
		},
	)
}
