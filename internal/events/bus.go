// Package events is the in-process publish/subscribe channel that keeps
// independently rendered task views in step after a mutation.
//
// Delivery is synchronous: Publish returns once every handler registered at
// publish time has run. There is no history, so a late subscriber never sees
// earlier events.
package events

import (
	"log/slog"
	"sync"
	"time"

	"taskhub/internal/models"
)

// Kind names a channel on the bus.
type Kind string

const (
	KindCreated       Kind = "created"
	KindUpdated       Kind = "updated"
	KindDeleted       Kind = "deleted"
	KindStatusChanged Kind = "status_changed"
)

// AllKinds lists every channel, in a stable order.
var AllKinds = []Kind{KindCreated, KindUpdated, KindDeleted, KindStatusChanged}

// Event is the payload delivered to subscribers.
type Event struct {
	Kind      Kind         `json:"kind"`
	TaskID    string       `json:"task_id,omitempty"`
	Scope     models.Scope `json:"scope"`
	Timestamp time.Time    `json:"timestamp"`
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to the handlers subscribed to their kind.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Kind][]subscription
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Kind][]subscription),
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers h for the given kinds (every kind when none are given)
// and returns the func that removes it again. Calling it twice is harmless.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) (unsubscribe func()) {
	if len(kinds) == 0 {
		kinds = AllKinds
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], subscription{id: id, handler: h})
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id, kinds) })
	}
}

func (b *Bus) remove(id uint64, kinds []Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		list := b.subs[k]
		kept := list[:0:0]
		for _, s := range list {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, k)
			continue
		}
		b.subs[k] = kept
	}
}

// Publish delivers e to every current subscriber of e.Kind. Handlers run
// outside the bus lock so they may subscribe or unsubscribe themselves.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}

	b.mu.Lock()
	targets := append([]subscription(nil), b.subs[e.Kind]...)
	b.mu.Unlock()

	for _, s := range targets {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slog.String("kind", string(e.Kind)),
				slog.String("task_id", e.TaskID),
				slog.Any("panic", r),
			)
		}
	}()
	s.handler(e)
}

// Subscribers returns the number of handlers registered for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[kind])
}
