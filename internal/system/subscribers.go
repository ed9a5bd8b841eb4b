package system

import (
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/catalog"
	"github.com/worldforge/server/internal/core/event"
	"github.com/worldforge/server/internal/generation"
	"github.com/worldforge/server/internal/handler"
	"github.com/worldforge/server/internal/jobs"
	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
)

// RegisterSubscribers wires bus events to catalog updates and client packets.
func RegisterSubscribers(bus *event.Bus, store *net.SessionStore, cat *catalog.Catalog, log *zap.Logger) {
	live := func(id uint64) *net.Session {
		sess := store.Get(id)
		if sess == nil || sess.IsClosed() {
			return nil
		}
		return sess
	}

	event.Subscribe(bus, func(e event.JobProgressed) {
		if sess := live(e.Job.Owner); sess != nil {
			handler.SendProgress(sess, e.Job)
		}
	})

	event.Subscribe(bus, func(e event.JobFinished) {
		j := e.Job
		if j.Outcome == generation.Completed && j.World != nil {
			unsaved := cat.IsDirty(j.World.Name)
			if cat.Put(j.World, true) && j.Kind == jobs.KindGenerate {
				log.Warn("generated world replaces a cached world of the same name",
					zap.String("world", j.World.Name), zap.String("job", j.JobID), zap.Bool("unsaved", unsaved))
			}
		}
		sess := live(j.Owner)
		if sess == nil {
			return
		}
		handler.SendJobDone(sess, j)
		if j.Outcome == generation.Completed && j.World != nil &&
			(j.Kind == jobs.KindGenerate || sess.OpenWorld == j.World.Name) {
			sess.OpenWorld = j.World.Name
			handler.SendWorldInfo(sess, j.World)
		}
	})

	event.Subscribe(bus, func(e event.WorldSaved) {
		if e.Requester == 0 {
			return
		}
		sess := live(e.Requester)
		if sess == nil {
			return
		}
		if e.Err != nil {
			handler.SendError(sess, packet.ErrCodeInternal, "save failed: "+e.Err.Error())
			return
		}
		handler.SendWorldSaved(sess, e.Name)
	})

	event.Subscribe(bus, func(e event.SessionClosed) {
		log.Debug("session removed", zap.Uint64("session", e.SessionID))
	})
}
