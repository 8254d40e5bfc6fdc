package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskhub/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "tasks.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var scope = models.Scope{OwnerID: "u1", TenantID: "acme"}

func draft(name string) models.Draft {
	return models.Draft{OwnerID: scope.OwnerID, TenantID: scope.TenantID, Name: name, Status: models.StatusInProgress}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestCreateAssignsIDAndRoundTripsFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
	team := "crew-2"
	d := draft("  Site visit ")
	d.Description = "measure the hall"
	d.RichText = "<b>bring tape</b>"
	d.ScheduledDate = &day
	d.StartTime = "09:30"
	d.EndTime = "11:00"
	d.Price = 120.5
	d.ColorTag = []string{"#7c3aed"}
	d.TeamAssignment = &team

	task, err := store.Create(ctx, d)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("store did not assign an id")
	}
	if task.Name != "Site visit" {
		t.Errorf("Name = %q", task.Name)
	}
	if task.ScheduledDate == nil || !task.ScheduledDate.Equal(day) {
		t.Errorf("ScheduledDate = %v", task.ScheduledDate)
	}
	if task.Price != 120.5 || task.StartTime != "09:30" || task.EndTime != "11:00" {
		t.Errorf("unexpected fields %+v", task)
	}
	if len(task.ColorTag) != 1 || task.ColorTag[0] != "#7c3aed" {
		t.Errorf("ColorTag = %v", task.ColorTag)
	}
	if task.TeamAssignment == nil || *task.TeamAssignment != "crew-2" {
		t.Errorf("TeamAssignment = %v", task.TeamAssignment)
	}
	if task.Status != models.StatusInProgress {
		t.Errorf("Status = %s", task.Status)
	}
	if task.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Create(context.Background(), draft("   ")); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestListIsScoped(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, d := range []models.Draft{
		draft("mine 1"),
		draft("mine 2"),
		{OwnerID: "u2", TenantID: "acme", Name: "other owner"},
		{OwnerID: "u1", TenantID: "globex", Name: "other tenant"},
	} {
		if _, err := store.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) failed: %v", d.Name, err)
		}
	}

	tasks, err := store.List(ctx, scope)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("List returned %d tasks, want 2", len(tasks))
	}
	for _, tk := range tasks {
		if tk.OwnerID != "u1" || tk.TenantID != "acme" {
			t.Errorf("foreign task leaked: %+v", tk)
		}
	}

	empty, err := store.List(ctx, models.Scope{OwnerID: "nobody", TenantID: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("empty scope should list as an empty slice, got %v", empty)
	}
}

func TestUpdateAppliesPartialPatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	team := "crew-9"
	d := draft("keep me")
	d.Description = "original"
	d.TeamAssignment = &team
	task, err := store.Create(ctx, d)
	if err != nil {
		t.Fatal(err)
	}

	deleted := models.StatusDeleted
	price := 42.0
	var noTeam *string
	var noDate *time.Time
	if err := store.Update(ctx, task.ID, models.Patch{
		Status:         &deleted,
		Price:          &price,
		TeamAssignment: &noTeam,
		ScheduledDate:  &noDate,
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusDeleted || got.Price != 42 {
		t.Errorf("patch not applied: %+v", got)
	}
	if got.Name != "keep me" || got.Description != "original" {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.TeamAssignment != nil {
		t.Errorf("TeamAssignment should be cleared, got %q", *got.TeamAssignment)
	}
}

func TestUpdateRejectsUnknownStatusAndMissingRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	task, err := store.Create(ctx, draft("x"))
	if err != nil {
		t.Fatal(err)
	}

	bogus := models.Status("archived")
	if err := store.Update(ctx, task.ID, models.Patch{Status: &bogus}); err == nil {
		t.Error("expected error for unknown status")
	}

	name := "y"
	if err := store.Update(ctx, "missing", models.Patch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPurgeRemovesRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	task, err := store.Create(ctx, draft("gone soon"))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Purge(ctx, task.ID); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if _, err := store.Get(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after purge: %v", err)
	}
	if err := store.Purge(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Purge: %v", err)
	}
}
