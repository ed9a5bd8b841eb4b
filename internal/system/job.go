package system

import (
	"time"

	"github.com/worldforge/server/internal/core/event"
	coresys "github.com/worldforge/server/internal/core/system"
	"github.com/worldforge/server/internal/jobs"
)

// Publisher receives every job event as it is drained. *watch.Hub
// satisfies it.
type Publisher interface {
	Publish(e jobs.Event)
}

// JobSystem moves job events from the worker side onto the event bus,
// preserving their order. Phase 2 (Update).
type JobSystem struct {
	events     <-chan jobs.Event
	bus        *event.Bus
	pub        Publisher // may be nil
	maxPerTick int
}

func NewJobSystem(events <-chan jobs.Event, bus *event.Bus, pub Publisher, maxPerTick int) *JobSystem {
	return &JobSystem{events: events, bus: bus, pub: pub, maxPerTick: maxPerTick}
}

func (s *JobSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *JobSystem) Update(_ time.Duration) {
	for i := 0; s.maxPerTick <= 0 || i < s.maxPerTick; i++ {
		select {
		case e := <-s.events:
			if s.pub != nil {
				s.pub.Publish(e)
			}
			if e.Final {
				event.Emit(s.bus, event.JobFinished{Job: e})
			} else {
				event.Emit(s.bus, event.JobProgressed{Job: e})
			}
		default:
			return
		}
	}
}

// EventDispatchSystem delivers last tick's bus events. Phase 1 (PreUpdate).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
