// Package lifecycle owns the task state machine. The Controller is the only
// writer to the task store and the read cache; every accepted transition
// writes the store, patches the cache and then publishes on the event bus.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskhub/internal/cache"
	"taskhub/internal/events"
	"taskhub/internal/models"
)

// Controller drives create, edit, toggle, soft delete, restore and purge.
type Controller struct {
	store  Store
	cache  *cache.Cache
	bus    *events.Bus
	auth   Authorizer
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Controller.
type Option func(*Controller)

// WithAuthorizer replaces the OwnerOnly permission check.
func WithAuthorizer(a Authorizer) Option {
	return func(c *Controller) { c.auth = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New wires a controller over store, cache and bus.
func New(store Store, c *cache.Cache, bus *events.Bus, opts ...Option) *Controller {
	ctrl := &Controller{
		store:  store,
		cache:  c,
		bus:    bus,
		auth:   OwnerOnly,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// List returns the actor's tasks, from the cache while it is fresh unless
// force is set.
func (c *Controller) List(ctx context.Context, actor Actor, force bool) ([]models.Task, error) {
	scope := actor.Scope()
	if !force {
		if tasks, ok := c.cache.Fresh(scope); ok {
			return tasks, nil
		}
	}

	seq := c.cache.Begin(scope)
	tasks, err := c.store.List(ctx, scope)
	if err != nil {
		c.logger.Error("list tasks failed",
			slog.String("owner_id", scope.OwnerID),
			slog.String("tenant_id", scope.TenantID),
			slog.String("error", err.Error()),
		)
		c.cache.Invalidate(scope)
		return nil, fmt.Errorf("%w: list: %w", ErrStore, err)
	}

	if !c.cache.Fill(scope, seq, tasks) {
		c.logger.Debug("discarded out-of-order list response",
			slog.String("owner_id", scope.OwnerID),
			slog.Uint64("seq", seq),
		)
	}
	if snap, ok := c.cache.Snapshot(scope); ok {
		return snap, nil
	}
	return tasks, nil
}

// Get returns one of the actor's tasks.
func (c *Controller) Get(ctx context.Context, actor Actor, id string) (models.Task, error) {
	task, found, err := c.lookup(ctx, actor, id)
	if err != nil {
		return models.Task{}, err
	}
	if !found {
		return models.Task{}, ErrNotFound
	}
	return task, nil
}

// Create stores a new task owned by the actor. It always starts InProgress.
func (c *Controller) Create(ctx context.Context, actor Actor, draft models.Draft) (models.Task, error) {
	draft.OwnerID = actor.UserID
	draft.TenantID = actor.TenantID
	draft.Name = strings.TrimSpace(draft.Name)
	draft.Status = models.StatusInProgress

	if err := validateFields(draft.Name, draft.Price, draft.ColorTag, draft.StartTime, draft.EndTime); err != nil {
		return models.Task{}, err
	}
	owned := models.Task{OwnerID: draft.OwnerID, TenantID: draft.TenantID}
	if !c.auth.CanMutate(actor, owned) {
		c.refused("create", actor, "")
		return models.Task{}, ErrNotFound
	}

	now := c.now()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	task, err := c.store.Create(ctx, draft)
	if err != nil {
		return models.Task{}, c.storeFailed("create", actor, "", err)
	}

	c.cache.Insert(task)
	c.publish(events.KindCreated, task)
	c.logger.Info("task created", slog.String("task_id", task.ID), slog.String("owner_id", task.OwnerID))
	return task, nil
}

// Edit applies a partial update. Status may move between the active
// sub-states only; deletion has its own entry points.
func (c *Controller) Edit(ctx context.Context, actor Actor, id string, patch models.Patch) (models.Task, error) {
	current, err := c.target(ctx, actor, id, "edit")
	if err != nil {
		return models.Task{}, err
	}
	if current.Status == models.StatusDeleted {
		return models.Task{}, c.invalid("edit", actor, current)
	}
	if patch.Status != nil && !patch.Status.Active() {
		return models.Task{}, c.invalid("edit", actor, current)
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}

	next := patch.Apply(current)
	if err := validateFields(next.Name, next.Price, next.ColorTag, next.StartTime, next.EndTime); err != nil {
		return models.Task{}, err
	}

	now := c.now()
	patch.UpdatedAt = &now
	kind := events.KindUpdated
	if next.Status != current.Status {
		kind = events.KindStatusChanged
	}
	return c.write(ctx, actor, current, "edit", patch, kind)
}

// ToggleCompletion flips InProgress and Completed.
func (c *Controller) ToggleCompletion(ctx context.Context, actor Actor, id string) (models.Task, error) {
	current, err := c.target(ctx, actor, id, "toggle")
	if err != nil {
		return models.Task{}, err
	}

	var to models.Status
	switch current.Status {
	case models.StatusInProgress:
		to = models.StatusCompleted
	case models.StatusCompleted:
		to = models.StatusInProgress
	default:
		return models.Task{}, c.invalid("toggle", actor, current)
	}
	return c.write(ctx, actor, current, "toggle", models.StatusPatch(to, c.now()), events.KindStatusChanged)
}

// SoftDelete moves an active task to the trash. The previous sub-state is
// not kept.
func (c *Controller) SoftDelete(ctx context.Context, actor Actor, id string) (models.Task, error) {
	current, err := c.target(ctx, actor, id, "soft_delete")
	if err != nil {
		return models.Task{}, err
	}
	if !current.Status.Active() {
		return models.Task{}, c.invalid("soft_delete", actor, current)
	}
	return c.write(ctx, actor, current, "soft_delete", models.StatusPatch(models.StatusDeleted, c.now()), events.KindDeleted)
}

// Restore brings a deleted task back. It always lands in InProgress,
// whatever it was before deletion.
func (c *Controller) Restore(ctx context.Context, actor Actor, id string) (models.Task, error) {
	current, err := c.target(ctx, actor, id, "restore")
	if err != nil {
		return models.Task{}, err
	}
	if current.Status != models.StatusDeleted {
		return models.Task{}, c.invalid("restore", actor, current)
	}
	return c.write(ctx, actor, current, "restore", models.StatusPatch(models.StatusInProgress, c.now()), events.KindStatusChanged)
}

// Purge removes a deleted task from the store and the cache. Irreversible.
func (c *Controller) Purge(ctx context.Context, actor Actor, id string) error {
	current, err := c.target(ctx, actor, id, "purge")
	if err != nil {
		return err
	}
	if current.Status != models.StatusDeleted {
		return c.invalid("purge", actor, current)
	}

	if err := c.store.Purge(ctx, current.ID); err != nil {
		return c.storeFailed("purge", actor, current.ID, err)
	}

	c.cache.Remove(current.Scope(), current.ID)
	c.publish(events.KindDeleted, current)
	c.logger.Info("task purged", slog.String("task_id", current.ID), slog.String("owner_id", current.OwnerID))
	return nil
}

// lookup finds id in the actor's cached scope, loading it on first use.
func (c *Controller) lookup(ctx context.Context, actor Actor, id string) (models.Task, bool, error) {
	scope := actor.Scope()
	task, found, loaded := c.cache.Lookup(scope, id)
	if loaded {
		return task, found, nil
	}
	if _, err := c.List(ctx, actor, false); err != nil {
		return models.Task{}, false, err
	}
	task, found, _ = c.cache.Lookup(scope, id)
	return task, found, nil
}

// target resolves the task a mutation is aimed at and applies the not-found
// and permission guards before anything touches the store.
func (c *Controller) target(ctx context.Context, actor Actor, id, op string) (models.Task, error) {
	task, found, err := c.lookup(ctx, actor, id)
	if err != nil {
		return models.Task{}, err
	}
	if !found {
		c.logger.Warn("mutation skipped",
			slog.String("op", op),
			slog.String("task_id", id),
			slog.String("user_id", actor.UserID),
			slog.String("reason", "not in cache"),
		)
		return models.Task{}, ErrNotFound
	}
	if !c.auth.CanMutate(actor, task) {
		c.refused(op, actor, id)
		return models.Task{}, ErrNotFound
	}
	return task, nil
}

// write performs an update transition: store first, then cache, then event.
func (c *Controller) write(ctx context.Context, actor Actor, current models.Task, op string, patch models.Patch, kind events.Kind) (models.Task, error) {
	if err := c.store.Update(ctx, current.ID, patch); err != nil {
		return models.Task{}, c.storeFailed(op, actor, current.ID, err)
	}

	// Patch the cached row rather than replacing it with current+patch:
	// current may predate an overlapping write that already landed.
	updated, ok := c.cache.Patch(current.Scope(), current.ID, patch)
	if !ok {
		updated = patch.Apply(current)
		c.logger.Debug("task left cache during write", slog.String("task_id", updated.ID))
	}
	c.publish(kind, updated)
	c.logger.Info("task updated",
		slog.String("op", op),
		slog.String("task_id", updated.ID),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (c *Controller) publish(kind events.Kind, task models.Task) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		Kind:      kind,
		TaskID:    task.ID,
		Scope:     task.Scope(),
		Timestamp: c.now(),
	})
}

func (c *Controller) refused(op string, actor Actor, id string) {
	c.logger.Warn("mutation refused",
		slog.String("op", op),
		slog.String("task_id", id),
		slog.String("user_id", actor.UserID),
		slog.String("tenant_id", actor.TenantID),
		slog.String("reason", "not permitted"),
	)
}

func (c *Controller) invalid(op string, actor Actor, task models.Task) error {
	c.logger.Warn("transition rejected",
		slog.String("op", op),
		slog.String("task_id", task.ID),
		slog.String("user_id", actor.UserID),
		slog.String("status", string(task.Status)),
	)
	return fmt.Errorf("%w: cannot %s a %s task", ErrInvalidTransition, op, task.Status)
}

func (c *Controller) storeFailed(op string, actor Actor, id string, err error) error {
	c.logger.Error("task store write failed",
		slog.String("op", op),
		slog.String("task_id", id),
		slog.String("user_id", actor.UserID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func validateFields(name string, price float64, colorTag []string, start, end string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalid)
	}
	if price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	if len(colorTag) > 1 {
		return fmt.Errorf("%w: at most one color tag", ErrInvalid)
	}
	for _, v := range []string{start, end} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("%w: time %q is not HH:MM", ErrInvalid, v)
		}
	}
	return nil
}
