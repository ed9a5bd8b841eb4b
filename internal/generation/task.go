package generation

import "context"

// Task is a run executing on its own goroutine. Progress is delivered on
// Events in emission order; the channel is closed once the run has ended.
type Task struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	result Result
}

// Start launches req on a new goroutine. extra, when not nil, receives the
// same notifications as the Events channel, on the run's goroutine.
func Start(ctx context.Context, d *Driver, req Request, buffer int, extra Sink) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	var sink Sink = chanSink{ctx: ctx, ch: t.events}
	if extra != nil {
		sink = Tee{extra, sink}
	}
	go func() {
		defer close(t.done)
		defer close(t.events)
		defer cancel()
		t.result = d.Run(ctx, req, sink)
	}()
	return t
}

// Events yields progress. Consumers that stop reading should Cancel.
func (t *Task) Events() <-chan Event { return t.events }

// Done is closed when the run has ended.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result blocks until the run has ended.
func (t *Task) Result() Result {
	<-t.done
	return t.result
}

// Cancel requests cooperative cancellation. It is safe to call repeatedly.
func (t *Task) Cancel() { t.cancel() }

// chanSink forwards events to a channel. A cancelled run stops waiting for
// a slow reader.
type chanSink struct {
	ctx context.Context
	ch  chan<- Event
}

func (s chanSink) Progress(e Event) {
	select {
	case s.ch <- e:
	case <-s.ctx.Done():
	}
}

func (s chanSink) Completed() {}
