// Package redisstore keeps tasks in Redis for deployments that share one
// task store between several taskhub processes.
//
// Layout: each task is a JSON value under task:<id>, and the ids of a scope
// live in the set tasks:<tenant>:<owner>.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"taskhub/internal/models"
)

// ErrNotFound is returned when no task is stored under the id.
var ErrNotFound = errors.New("task not found")

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key. Tests use it to isolate runs.
	Prefix string
}

// Store implements the task store on a Redis client.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// Open connects and pings the server.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("empty redis address")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	logger.Info("redis task store ready", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))
	return &Store{client: client, prefix: opts.Prefix, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) taskKey(id string) string {
	return s.prefix + "task:" + id
}

func (s *Store) scopeKey(scope models.Scope) string {
	return s.prefix + "tasks:" + scope.TenantID + ":" + scope.OwnerID
}

// List returns the scope's tasks ordered by scheduled date then creation.
func (s *Store) List(ctx context.Context, scope models.Scope) ([]models.Task, error) {
	ids, err := s.client.SMembers(ctx, s.scopeKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}
	tasks := []models.Task{}
	if len(ids) == 0 {
		return tasks, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("dangling task id in scope set", slog.String("task_id", ids[i]))
			continue
		}
		var t models.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", ids[i], err)
		}
		tasks = append(tasks, t)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.ScheduledDate == nil && b.ScheduledDate != nil:
			return false
		case a.ScheduledDate != nil && b.ScheduledDate == nil:
			return true
		case a.ScheduledDate != nil && !a.ScheduledDate.Equal(*b.ScheduledDate):
			return a.ScheduledDate.Before(*b.ScheduledDate)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return tasks, nil
}

// Get loads one task.
func (s *Store) Get(ctx context.Context, id string) (models.Task, error) {
	raw, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	var t models.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return models.Task{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	return t, nil
}

// Create stores a new task and adds it to its scope set.
func (s *Store) Create(ctx context.Context, d models.Draft) (models.Task, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return models.Task{}, fmt.Errorf("task name must not be empty")
	}
	if _, ok := models.ValidTaskStatuses[d.Status]; !ok {
		d.Status = models.StatusInProgress
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}

	t := models.Task{
		ID:             uuid.NewString(),
		OwnerID:        d.OwnerID,
		TenantID:       d.TenantID,
		Name:           name,
		Description:    d.Description,
		RichText:       d.RichText,
		ScheduledDate:  d.ScheduledDate,
		StartTime:      d.StartTime,
		EndTime:        d.EndTime,
		Price:          d.Price,
		ColorTag:       d.ColorTag,
		TeamAssignment: d.TeamAssignment,
		Status:         d.Status,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if t.ColorTag == nil {
		t.ColorTag = []string{}
	}
	t = t.Clone()

	raw, err := json.Marshal(t)
	if err != nil {
		return models.Task{}, fmt.Errorf("encode task: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.taskKey(t.ID), raw, 0)
		p.SAdd(ctx, s.scopeKey(t.Scope()), t.ID)
		return nil
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// Update reads the task, applies patch and writes it back. The read and the
// write run under WATCH so a concurrent writer makes the update fail rather
// than be lost.
func (s *Store) Update(ctx context.Context, id string, p models.Patch) error {
	if p.Status != nil {
		if _, ok := models.ValidTaskStatuses[*p.Status]; !ok {
			return fmt.Errorf("unknown status %q", *p.Status)
		}
	}
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		p.Name = &trimmed
	}
	if p.UpdatedAt == nil {
		now := time.Now().UTC()
		p.UpdatedAt = &now
	}

	key := s.taskKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var current models.Task
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode task %s: %w", id, err)
		}
		next, err := json.Marshal(p.Apply(current))
		if err != nil {
			return fmt.Errorf("encode task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Purge deletes the task and drops it from its scope set.
func (s *Store) Purge(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.taskKey(id))
		p.SRem(ctx, s.scopeKey(t.Scope()), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	s.logger.Debug("task key purged", slog.String("task_id", id))
	return nil
}
