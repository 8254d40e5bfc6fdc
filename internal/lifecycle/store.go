package lifecycle

import (
	"context"
	"errors"

	"taskhub/internal/models"
)

// Store is the persistence collaborator. Soft delete and restore are plain
// Updates of the status; Purge removes the row for good.
type Store interface {
	List(ctx context.Context, scope models.Scope) ([]models.Task, error)
	Create(ctx context.Context, draft models.Draft) (models.Task, error)
	Update(ctx context.Context, id string, patch models.Patch) error
	Purge(ctx context.Context, id string) error
}

var (
	// ErrNotFound covers both a missing task and one the actor may not
	// touch, so callers cannot discover other owners' tasks.
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalid           = errors.New("invalid task")
	ErrStore             = errors.New("task store failure")
)

// Roles understood by OwnerOnly.
const (
	RoleOwner  = "owner"
	RoleViewer = "viewer"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID   string
	TenantID string
	Role     string
}

// Scope is the owner/tenant pair the actor reads and writes.
func (a Actor) Scope() models.Scope {
	return models.Scope{OwnerID: a.UserID, TenantID: a.TenantID}
}

// Authorizer decides whether an actor may mutate a task.
type Authorizer interface {
	CanMutate(actor Actor, task models.Task) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(actor Actor, task models.Task) bool

func (f AuthorizerFunc) CanMutate(actor Actor, task models.Task) bool { return f(actor, task) }

// OwnerOnly lets a non-viewer mutate the tasks they own in their tenant.
var OwnerOnly = AuthorizerFunc(func(actor Actor, task models.Task) bool {
	if actor.UserID == "" || actor.Role == RoleViewer {
		return false
	}
	return task.OwnerID == actor.UserID && task.TenantID == actor.TenantID
})
