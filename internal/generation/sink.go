package generation

import "sync"

// Stage identifies where a run is when it reports progress.
type Stage string

const (
	StageSimulation  Stage = "simulation"
	StageCenterLand  Stage = "center_land"
	StageAddNoise    Stage = "add_noise"
	StagePlaceOceans Stage = "place_oceans"
	StageInitOcean   Stage = "initialize_ocean"
	StageCompleted   Stage = "completed"
)

// Event is one progress notification. Step is only meaningful when HasStep
// is set, i.e. during the simulation loop.
type Event struct {
	Stage   Stage
	Message string
	Step    int
	HasStep bool
}

// Sink receives progress from a run. Calls come from the run's goroutine in
// emission order.
type Sink interface {
	Progress(e Event)
	Completed()
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Progress(Event) {}
func (NopSink) Completed()     {}

// RecordingSink keeps every event in memory. It is safe for concurrent use.
type RecordingSink struct {
	mu        sync.Mutex
	events    []Event
	completed int
}

func (s *RecordingSink) Progress(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *RecordingSink) Completed() {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// CompletedCount reports how many completion signals were received.
func (s *RecordingSink) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Tee forwards to every sink in order.
type Tee []Sink

func (t Tee) Progress(e Event) {
	for _, s := range t {
		s.Progress(e)
	}
}

func (t Tee) Completed() {
	for _, s := range t {
		s.Completed()
	}
}
