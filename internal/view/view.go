// Package view is the headless model behind every rendered task list. A View
// listens on the event bus for its owner's scope, re-reads through the
// lifecycle controller and keeps the filtered visible set current.
package view

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskhub/internal/events"
	"taskhub/internal/filter"
	"taskhub/internal/lifecycle"
	"taskhub/internal/models"
)

// Source lists an actor's tasks. *lifecycle.Controller satisfies it.
type Source interface {
	List(ctx context.Context, actor lifecycle.Actor, force bool) ([]models.Task, error)
}

// View is one live, filtered window over an actor's tasks.
type View struct {
	id        string
	actor     lifecycle.Actor
	source    Source
	bus       *events.Bus
	logger    *slog.Logger
	debouncer *filter.Debouncer
	onChange  func([]models.Task)

	mu       sync.Mutex
	criteria filter.Criteria
	all      []models.Task
	visible  []models.Task
	issued   uint64
	applied  uint64
	unsub    func()
	ctx      context.Context
	cancel   context.CancelFunc

	refreshing bool
	dirty      bool
}

// Option customises a View.
type Option func(*View)

// WithDebounce sets the search debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(v *View) { v.debouncer = filter.NewDebouncer(d) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *View) { v.logger = l }
}

// WithOnChange registers the callback that receives every new visible set.
// It is called without the view's lock held.
func WithOnChange(fn func([]models.Task)) Option {
	return func(v *View) { v.onChange = fn }
}

// New builds an unmounted view. The ownership stage always uses the actor.
func New(source Source, bus *events.Bus, actor lifecycle.Actor, criteria filter.Criteria, opts ...Option) *View {
	criteria.UserID = actor.UserID
	v := &View{
		id:       uuid.NewString(),
		actor:    actor,
		source:   source,
		bus:      bus,
		logger:   slog.Default(),
		criteria: criteria,
		visible:  []models.Task{},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.debouncer == nil {
		v.debouncer = filter.NewDebouncer(filter.DefaultDebounce)
	}
	return v
}

// ID is the view's opaque identifier.
func (v *View) ID() string { return v.id }

// Actor returns the actor the view renders for.
func (v *View) Actor() lifecycle.Actor { return v.actor }

// Mount subscribes to the bus and performs the initial forced refresh.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.unsub != nil {
		v.mu.Unlock()
		return nil
	}
	v.ctx, v.cancel = context.WithCancel(ctx)
	v.unsub = v.bus.Subscribe(v.handle, events.AllKinds...)
	v.mu.Unlock()

	v.logger.Debug("view mounted", slog.String("view_id", v.id), slog.String("user_id", v.actor.UserID))
	return v.Refresh(true)
}

// Unmount drops the subscription and any pending search. Refreshes still in
// flight finish without notifying.
func (v *View) Unmount() {
	v.mu.Lock()
	unsub, cancel := v.unsub, v.cancel
	v.unsub, v.cancel = nil, nil
	v.mu.Unlock()

	if unsub == nil {
		return
	}
	unsub()
	cancel()
	v.debouncer.Stop()
	v.logger.Debug("view unmounted", slog.String("view_id", v.id))
}

// Mounted reports whether the view is subscribed.
func (v *View) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unsub != nil
}

// handle coalesces bus events: while a refresh is running, further events
// only mark the view dirty and one follow-up refresh picks them all up.
func (v *View) handle(e events.Event) {
	if e.Scope != v.actor.Scope() {
		return
	}
	v.mu.Lock()
	if v.refreshing {
		v.dirty = true
		v.mu.Unlock()
		return
	}
	v.refreshing = true
	v.mu.Unlock()

	go v.drain(e.Kind)
}

func (v *View) drain(kind events.Kind) {
	for {
		if err := v.Refresh(false); err != nil {
			v.logger.Warn("view refresh failed",
				slog.String("view_id", v.id),
				slog.String("event", string(kind)),
				slog.String("error", err.Error()),
			)
		}

		v.mu.Lock()
		if !v.dirty || v.unsub == nil {
			v.refreshing, v.dirty = false, false
			v.mu.Unlock()
			return
		}
		v.dirty = false
		v.mu.Unlock()
	}
}

// Refresh re-reads the actor's tasks and recomputes the visible set. A
// response that lands after a newer one has been applied is dropped.
func (v *View) Refresh(force bool) error {
	v.mu.Lock()
	ctx := v.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	v.issued++
	seq := v.issued
	v.mu.Unlock()

	tasks, err := v.source.List(ctx, v.actor, force)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if seq < v.applied {
		v.mu.Unlock()
		return nil
	}
	v.applied = seq
	v.all = tasks
	visible := v.recompute()
	notify := v.onChange != nil && v.unsub != nil
	v.mu.Unlock()

	if notify {
		v.onChange(visible)
	}
	return nil
}

// SetQuery updates the search text once the debounce delay has passed
// without a newer call.
func (v *View) SetQuery(q string) {
	v.debouncer.Trigger(func() {
		v.update(func(c *filter.Criteria) { c.Query = q })
	})
}

// SetCriteria replaces the criteria and recomputes immediately. A pending
// SetQuery is dropped.
func (v *View) SetCriteria(c filter.Criteria) {
	v.debouncer.Stop()
	v.update(func(cur *filter.Criteria) {
		c.UserID = cur.UserID
		*cur = c
	})
}

func (v *View) update(mutate func(*filter.Criteria)) {
	v.mu.Lock()
	mutate(&v.criteria)
	visible := v.recompute()
	notify := v.onChange != nil && v.unsub != nil
	v.mu.Unlock()

	if notify {
		v.onChange(visible)
	}
}

// Criteria returns the current criteria.
func (v *View) Criteria() filter.Criteria {
	v.mu.Lock()
	defer v.mu.Unlock()
	c := v.criteria
	c.Statuses = append([]models.Status(nil), c.Statuses...)
	return c
}

// Visible returns a copy of the visible set.
func (v *View) Visible() []models.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneTasks(v.visible)
}

// recompute must be called with mu held. It returns a copy for notification.
func (v *View) recompute() []models.Task {
	v.visible = filter.Apply(v.all, v.criteria)
	return cloneTasks(v.visible)
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
