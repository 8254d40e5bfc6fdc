// Package filter turns a task collection and a set of criteria into the
// subset a view shows.
package filter

import (
	"fmt"
	"strings"
	"time"

	"taskhub/internal/models"
)

// Window restricts tasks by their scheduled date.
type Window string

const (
	WindowAll      Window = "all"
	WindowToday    Window = "today"
	WindowTomorrow Window = "tomorrow"
	WindowWeek     Window = "week"
	WindowOverdue  Window = "overdue"
)

// ParseWindow validates a window name; an empty string means WindowAll.
func ParseWindow(raw string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(raw))); w {
	case "":
		return WindowAll, nil
	case WindowAll, WindowToday, WindowTomorrow, WindowWeek, WindowOverdue:
		return w, nil
	default:
		return "", fmt.Errorf("unknown date window %q", raw)
	}
}

// Criteria describes what a view wants to see. Zero values disable a stage.
type Criteria struct {
	UserID      string
	ShowDeleted bool
	// Statuses is the allow-list; empty means every status. Ignored when
	// ShowDeleted is set.
	Statuses []models.Status
	Window   Window
	Query    string
	// Now anchors the date window. Zero means time.Now.
	Now time.Time
}

// Predicate is one stage of the pipeline.
type Predicate struct {
	Name string
	Keep func(models.Task) bool
}

// Stages returns the pipeline for c, cheapest and most selective first.
func Stages(c Criteria) []Predicate {
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	return []Predicate{
		{Name: "ownership", Keep: ownership(c.UserID)},
		{Name: "visibility", Keep: visibility(c.ShowDeleted)},
		{Name: "status", Keep: statusAllowList(c.Statuses, c.ShowDeleted)},
		{Name: "window", Keep: dateWindow(c.Window, now)},
		{Name: "search", Keep: search(c.Query)},
	}
}

// Apply runs the full pipeline and returns the visible tasks in input order.
func Apply(tasks []models.Task, c Criteria) []models.Task {
	return Run(tasks, Stages(c))
}

// Run evaluates the given stages in order over tasks.
func Run(tasks []models.Task, stages []Predicate) []models.Task {
	out := make([]models.Task, 0, len(tasks))
next:
	for _, t := range tasks {
		for _, st := range stages {
			if !st.Keep(t) {
				continue next
			}
		}
		out = append(out, t)
	}
	return out
}

// ownership re-checks the store's owner scoping.
func ownership(userID string) func(models.Task) bool {
	return func(t models.Task) bool { return t.OwnerID == userID }
}

// visibility makes trash mode and the normal views mutually exclusive.
func visibility(showDeleted bool) func(models.Task) bool {
	return func(t models.Task) bool {
		return (t.Status == models.StatusDeleted) == showDeleted
	}
}

func statusAllowList(statuses []models.Status, showDeleted bool) func(models.Task) bool {
	if showDeleted || len(statuses) == 0 {
		return func(models.Task) bool { return true }
	}
	allowed := make(map[models.Status]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[s] = struct{}{}
	}
	return func(t models.Task) bool {
		_, ok := allowed[t.Status]
		return ok
	}
}

func dateWindow(w Window, now time.Time) func(models.Task) bool {
	if w == "" || w == WindowAll {
		return func(models.Task) bool { return true }
	}

	today := startOfDay(now)
	return func(t models.Task) bool {
		if t.ScheduledDate == nil {
			return false
		}
		// A scheduled date is a calendar day, not an instant.
		y, m, d := t.ScheduledDate.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		switch w {
		case WindowToday:
			return day.Equal(today)
		case WindowTomorrow:
			return day.Equal(today.AddDate(0, 0, 1))
		case WindowWeek:
			return !day.Before(today) && !day.After(today.AddDate(0, 0, 7))
		case WindowOverdue:
			return day.Before(today) && t.Status != models.StatusCompleted
		default:
			return false
		}
	}
}

func search(query string) func(models.Task) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return func(models.Task) bool { return true }
	}
	return func(t models.Task) bool {
		return strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Description), q) ||
			strings.Contains(strings.ToLower(t.RichText), q)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
