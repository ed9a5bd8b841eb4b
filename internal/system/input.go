package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/worldforge/server/internal/core/event"
	coresys "github.com/worldforge/server/internal/core/system"
	"github.com/worldforge/server/internal/jobs"
	"github.com/worldforge/server/internal/net"
	"github.com/worldforge/server/internal/net/packet"
)

// SessionSource delivers connection changes. *net.Server satisfies it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
	NotifyDead(id uint64)
}

// InputSystem accepts new sessions, drains packet queues and dispatches them
// through the packet registry. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	jobs       *jobs.Manager
	bus        *event.Bus
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(
	source SessionSource,
	registry *packet.Registry,
	store *net.SessionStore,
	jobMgr *jobs.Manager,
	bus *event.Bus,
	maxPerTick int,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		jobs:       jobMgr,
		bus:        bus,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
			continue
		default:
		}
		break
	}

	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// Packets that arrived before the close still count.
			s.drain(sess)
			s.handleDisconnect(sess)
			s.source.NotifyDead(id)
			s.store.Remove(id)
			continue
		}
		s.drain(sess)
	}

	// Early flush so the writer goroutines start while later phases run.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug("packet dispatch failed",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

// handleDisconnect cancels the session's jobs. Their final events still
// arrive and are dropped by the job subscribers since the session is gone.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	n := s.jobs.CancelOwner(sess.ID)
	s.log.Info("client disconnected",
		zap.Uint64("session", sess.ID),
		zap.String("client", sess.ClientName),
		zap.Int("cancelled_jobs", n))
	event.Emit(s.bus, event.SessionClosed{SessionID: sess.ID})
}
