package models

import (
	"strings"
	"time"
)

// Status is the lifecycle discriminator of a task.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusDeleted    Status = "deleted"
)

// ValidTaskStatuses enumerates every status a stored task may hold.
var ValidTaskStatuses = map[Status]struct{}{
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusDeleted:    {},
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := ValidTaskStatuses[s]
	return s, ok
}

// Active reports whether the status is one of the non-deleted sub-states.
func (s Status) Active() bool {
	return s == StatusInProgress || s == StatusCompleted || s == StatusCancelled
}

// Scope identifies the owner/tenant pair every read and write is bound to.
type Scope struct {
	OwnerID  string `json:"owner_id"`
	TenantID string `json:"tenant_id"`
}

// Task is a single entry in a user's task manager.
type Task struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	TenantID       string     `json:"tenant_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	RichText       string     `json:"rich_text"`
	ScheduledDate  *time.Time `json:"scheduled_date,omitempty"`
	StartTime      string     `json:"start_time"`
	EndTime        string     `json:"end_time"`
	Price          float64    `json:"price"`
	ColorTag       []string   `json:"color_tag"`
	TeamAssignment *string    `json:"team_assignment,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Scope returns the owner/tenant pair of the task.
func (t Task) Scope() Scope {
	return Scope{OwnerID: t.OwnerID, TenantID: t.TenantID}
}

// Clone returns a deep copy so callers never alias cached state.
func (t Task) Clone() Task {
	c := t
	if t.ScheduledDate != nil {
		d := *t.ScheduledDate
		c.ScheduledDate = &d
	}
	if t.TeamAssignment != nil {
		a := *t.TeamAssignment
		c.TeamAssignment = &a
	}
	if t.ColorTag != nil {
		c.ColorTag = append([]string(nil), t.ColorTag...)
	}
	return c
}

// Draft carries the caller supplied fields of a new task.
type Draft struct {
	OwnerID        string
	TenantID       string
	Name           string
	Description    string
	RichText       string
	ScheduledDate  *time.Time
	StartTime      string
	EndTime        string
	Price          float64
	ColorTag       []string
	TeamAssignment *string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name           *string
	Description    *string
	RichText       *string
	ScheduledDate  **time.Time
	StartTime      *string
	EndTime        *string
	Price          *float64
	ColorTag       *[]string
	TeamAssignment **string
	Status         *Status
	UpdatedAt      *time.Time
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Task) Task {
	out := t.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.RichText != nil {
		out.RichText = *p.RichText
	}
	if p.ScheduledDate != nil {
		if *p.ScheduledDate == nil {
			out.ScheduledDate = nil
		} else {
			d := **p.ScheduledDate
			out.ScheduledDate = &d
		}
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.Price != nil {
		out.Price = *p.Price
	}
	if p.ColorTag != nil {
		out.ColorTag = append([]string(nil), (*p.ColorTag)...)
	}
	if p.TeamAssignment != nil {
		if *p.TeamAssignment == nil {
			out.TeamAssignment = nil
		} else {
			a := **p.TeamAssignment
			out.TeamAssignment = &a
		}
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.UpdatedAt != nil {
		out.UpdatedAt = *p.UpdatedAt
	}
	return out
}

// StatusPatch is a shorthand for a patch that only moves the status.
func StatusPatch(s Status, at time.Time) Patch {
	return Patch{Status: &s, UpdatedAt: &at}
}
