package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/models"
	"taskhub/internal/view"
)

const heartbeatInterval = 20 * time.Second

type watcher struct {
	view   *view.View
	cancel context.CancelFunc
}

// registry tracks the live views of open watch streams.
type registry struct {
	mu    sync.Mutex
	items map[string]watcher
}

func newRegistry() *registry {
	return &registry{items: make(map[string]watcher)}
}

func (r *registry) add(w watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[w.view.ID()] = w
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *registry) get(id string) (*view.View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.items[id]
	return w.view, ok
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *registry) closeAll() int {
	r.mu.Lock()
	items := make([]watcher, 0, len(r.items))
	for _, w := range r.items {
		items = append(items, w)
	}
	r.mu.Unlock()

	for _, w := range items {
		w.cancel()
	}
	return len(items)
}

// offer hands the newest visible set to the stream, replacing an unsent one.
func offer(ch chan []models.Task, tasks []models.Task) {
	for {
		select {
		case ch <- tasks:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// handleWatch streams a live view over server-sent events: one "view" event
// carrying the view id, then a "tasks" event for every new visible set.
func (s *Server) handleWatch(c *gin.Context) {
	actor := actorFrom(c)
	crit, err := parseCriteria(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	updates := make(chan []models.Task, 1)
	v := view.New(s.ctrl, s.bus, actor, crit,
		view.WithDebounce(s.debounce),
		view.WithLogger(s.logger),
		view.WithOnChange(func(tasks []models.Task) { offer(updates, tasks) }),
	)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	if err := v.Mount(ctx); err != nil {
		v.Unmount()
		s.respondError(c, statusFor(err), err)
		return
	}
	defer v.Unmount()

	s.views.add(watcher{view: v, cancel: cancel})
	defer s.views.remove(v.ID())
	s.logger.Info("live view opened", slog.String("view_id", v.ID()), slog.String("user_id", actor.UserID))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("view", gin.H{"id": v.ID()})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case tasks := <-updates:
			c.SSEvent("tasks", gin.H{"view_id": v.ID(), "tasks": tasks})
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
	s.logger.Info("live view closed", slog.String("view_id", v.ID()))
}

type queryRequest struct {
	Query string `json:"q"`
}

// handleViewQuery sets the search text of one of the caller's live views.
// The change lands after the debounce delay.
func (s *Server) handleViewQuery(c *gin.Context) {
	actor := actorFrom(c)
	id := c.Param("id")
	v, ok := s.views.get(id)
	if !ok || v.Actor().Scope() != actor.Scope() {
		s.respondError(c, http.StatusNotFound, fmt.Errorf("view %s not found", id))
		return
	}

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	v.SetQuery(req.Query)
	respondSuccess(c, http.StatusAccepted, gin.H{"view_id": id, "q": req.Query})
}
