package event

import (
	"reflect"
	"sync"
)

type queued struct {
	typ reflect.Type
	val any
}

// Bus is a double-buffered event bus. Events emitted during tick N are
// delivered in tick N+1, in the exact order they were emitted regardless of
// their type.
type Bus struct {
	mu       sync.Mutex // protects handler registration
	front    []queued
	back     []queued
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]any),
	}
}

// Emit queues an event into the back buffer. Server loop only.
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.back = append(b.back, queued{typ: t, val: event})
}

// Subscribe registers a typed handler for events of type T. Handlers of one
// type run in registration order.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SwapBuffers makes last tick's events readable and starts a fresh back
// buffer. Called once at tick start.
func (b *Bus) SwapBuffers() {
	clear(b.front)
	b.front, b.back = b.back, b.front[:0]
}

// Pending returns how many events wait in the back buffer.
func (b *Bus) Pending() int { return len(b.back) }

// DispatchAll delivers the front buffer in emission order. Events emitted by
// handlers land in the back buffer and wait for the next swap.
func (b *Bus) DispatchAll() {
	b.mu.Lock()
	handlers := b.handlers
	b.mu.Unlock()
	for _, q := range b.front {
		for _, h := range handlers[q.typ] {
			callHandler(h, q.val)
		}
	}
}

func callHandler(handler any, event any) {
	reflect.ValueOf(handler).Call([]reflect.Value{reflect.ValueOf(event)})
}
