package event

import "github.com/worldforge/server/internal/jobs"

// JobProgressed carries one non-final job event.
type JobProgressed struct {
	Job jobs.Event
}

// JobFinished carries a job's final event.
type JobFinished struct {
	Job jobs.Event
}

// SessionClosed is emitted once a session has been removed from the store.
type SessionClosed struct {
	SessionID uint64
}

// WorldSaved is emitted after a world has been written to the database.
// Requester is 0 for automatic saves.
type WorldSaved struct {
	Name      string
	Requester uint64
	Err       error
}
