package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/worldforge/server/internal/catalog"
	"github.com/worldforge/server/internal/core/event"
	coresys "github.com/worldforge/server/internal/core/system"
	"github.com/worldforge/server/internal/world"
)

// ErrPersistenceDisabled is returned by RequestSave without a database.
var ErrPersistenceDisabled = errors.New("persistence disabled: no database configured")

// WorldSaver writes worlds. *persist.WorldRepo satisfies it.
type WorldSaver interface {
	Save(ctx context.Context, w *world.World) error
}

type saveRequest struct {
	name      string
	requester uint64
}

// PersistenceSystem saves worlds: explicit requests on the next tick, and
// every dirty catalog entry each interval when auto-save is on.
// Phase 5 (Persist).
type PersistenceSystem struct {
	saver     WorldSaver // nil = no database
	catalog   *catalog.Catalog
	bus       *event.Bus
	log       *zap.Logger
	autoSave  bool
	interval  int // auto-save every N ticks
	tickCount int
	pending   []saveRequest
	timeout   time.Duration
}

func NewPersistenceSystem(saver WorldSaver, cat *catalog.Catalog, bus *event.Bus, autoSave bool, intervalTicks int, log *zap.Logger) *PersistenceSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		saver:    saver,
		catalog:  cat,
		bus:      bus,
		log:      log,
		autoSave: autoSave,
		interval: intervalTicks,
		timeout:  30 * time.Second,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// RequestSave queues name for saving on behalf of requester.
func (s *PersistenceSystem) RequestSave(name string, requester uint64) error {
	if s.saver == nil {
		return ErrPersistenceDisabled
	}
	s.pending = append(s.pending, saveRequest{name: name, requester: requester})
	return nil
}

func (s *PersistenceSystem) Update(_ time.Duration) {
	if s.saver == nil {
		return
	}
	reqs := s.pending
	s.pending = nil
	for _, r := range reqs {
		s.save(r.name, r.requester)
	}

	if !s.autoSave {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.saveDirty()
}

// SaveAll persists every dirty world immediately. Called on shutdown.
func (s *PersistenceSystem) SaveAll() int {
	if s.saver == nil {
		return 0
	}
	return s.saveDirty()
}

func (s *PersistenceSystem) saveDirty() int {
	n := 0
	for _, w := range s.catalog.Dirty() {
		if s.save(w.Name, 0) == nil {
			n++
		}
	}
	return n
}

func (s *PersistenceSystem) save(name string, requester uint64) error {
	w, ok := s.catalog.Peek(name)
	if !ok {
		err := fmt.Errorf("%s: %w", name, catalog.ErrNotFound)
		event.Emit(s.bus, event.WorldSaved{Name: name, Requester: requester, Err: err})
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.saver.Save(ctx, w)
	if err != nil {
		s.log.Error("world save failed", zap.String("world", name), zap.Error(err))
	} else {
		s.catalog.MarkClean(name)
	}
	event.Emit(s.bus, event.WorldSaved{Name: name, Requester: requester, Err: err})
	return err
}
