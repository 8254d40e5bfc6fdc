// Package cache holds the last fetched task collection per owner/tenant
// scope and serves it while it is fresh.
package cache

import (
	"sync"
	"time"

	"taskhub/internal/models"
)

// DefaultTTL is how long a fetched collection is served without a store call.
const DefaultTTL = 30 * time.Second

type entry struct {
	data      []models.Task
	fetchedAt time.Time
	// seq is the last sequence number handed out for the scope; applied is
	// the one whose result currently backs data.
	seq     uint64
	applied uint64
}

// Cache is the read cache shared by every view of a process. Only the
// lifecycle controller writes it; every read returns a copy.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[models.Scope]*entry
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given TTL (DefaultTTL when ttl <= 0).
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[models.Scope]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) entryFor(scope models.Scope) *entry {
	e, ok := c.entries[scope]
	if !ok {
		e = &entry{}
		c.entries[scope] = e
	}
	return e
}

// Fresh returns the cached collection when it is non-empty and younger than
// the TTL.
func (c *Cache) Fresh(scope models.Scope) ([]models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scope]
	if !ok || len(e.data) == 0 || e.fetchedAt.IsZero() {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return cloneAll(e.data), true
}

// Snapshot returns whatever is cached for the scope regardless of age. The
// bool is false when the scope was never loaded.
func (c *Cache) Snapshot(scope models.Scope) ([]models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scope]
	if !ok || e.fetchedAt.IsZero() {
		return nil, false
	}
	return cloneAll(e.data), true
}

// Lookup finds a single cached task. loaded reports whether the scope has
// ever been filled; found whether the id is present.
func (c *Cache) Lookup(scope models.Scope, id string) (task models.Task, found, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scope]
	if !ok || e.fetchedAt.IsZero() {
		return models.Task{}, false, false
	}
	for _, t := range e.data {
		if t.ID == id {
			return t.Clone(), true, true
		}
	}
	return models.Task{}, false, true
}

// Begin reserves a sequence number for a store list call about to be issued.
func (c *Cache) Begin(scope models.Scope) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryFor(scope)
	e.seq++
	return e.seq
}

// Fill replaces the scope's collection with the result of the list call that
// was issued with seq. Results older than the last applied fill or mutation
// are discarded and Fill reports false.
func (c *Cache) Fill(scope models.Scope, seq uint64, tasks []models.Task) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryFor(scope)
	if seq <= e.applied {
		return false
	}
	e.data = cloneAll(tasks)
	e.fetchedAt = c.now()
	e.applied = seq
	return true
}

// mutated records an in-place write. It claims a fresh sequence number so
// list responses issued before the write can no longer overwrite it.
func (c *Cache) mutated(e *entry) {
	e.seq++
	e.applied = e.seq
	e.fetchedAt = c.now()
}

// Insert adds a newly created task to its scope. A scope that was never
// loaded stays unloaded: a lone task must not pass for the full collection.
func (c *Cache) Insert(task models.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryFor(task.Scope())
	if e.fetchedAt.IsZero() {
		e.seq++
		e.applied = e.seq
		return
	}
	e.data = append(e.data, task.Clone())
	c.mutated(e)
}

// Patch applies p to the cached copy of id while holding the lock, so
// overlapping writes compose instead of the last one replacing the entry
// wholesale. It returns the patched task, or false when id is not cached.
func (c *Cache) Patch(scope models.Scope, id string, p models.Patch) (models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scope]
	if !ok {
		return models.Task{}, false
	}
	for i := range e.data {
		if e.data[i].ID == id {
			e.data[i] = p.Apply(e.data[i])
			c.mutated(e)
			return e.data[i].Clone(), true
		}
	}
	return models.Task{}, false
}

// Remove drops a task from its scope.
func (c *Cache) Remove(scope models.Scope, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scope]
	if !ok {
		return false
	}
	for i := range e.data {
		if e.data[i].ID == id {
			e.data = append(e.data[:i:i], e.data[i+1:]...)
			c.mutated(e)
			return true
		}
	}
	return false
}

// Invalidate forgets the collection so the next read goes to the store.
// Sequence numbers survive so in-flight responses stay ordered.
func (c *Cache) Invalidate(scope models.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[scope]; ok {
		e.data = nil
		e.fetchedAt = time.Time{}
	}
}

func cloneAll(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
