package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"taskhub/internal/models"
)

const dateLayout = "2006-01-02"

// ErrNotFound is returned when the row addressed by id does not exist.
var ErrNotFound = errors.New("task not found")

// Store keeps tasks in a SQLite database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info("sqlite task store ready", slog.String("path", dbPath))
	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            tenant_id TEXT NOT NULL,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            rich_text TEXT NOT NULL DEFAULT '',
            scheduled_date TEXT,
            start_time TEXT NOT NULL DEFAULT '',
            end_time TEXT NOT NULL DEFAULT '',
            price REAL NOT NULL DEFAULT 0 CHECK (price >= 0),
            color_tag TEXT NOT NULL DEFAULT '[]',
            team_assignment TEXT,
            status TEXT NOT NULL DEFAULT 'in_progress',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_scope ON tasks(tenant_id, owner_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_scope_status ON tasks(tenant_id, owner_id, status);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const taskColumns = `id, owner_id, tenant_id, name, description, rich_text, scheduled_date,
        start_time, end_time, price, color_tag, team_assignment, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (models.Task, error) {
	var (
		t         models.Task
		scheduled sql.NullString
		colorJSON string
		team      sql.NullString
		status    string
	)
	err := r.Scan(&t.ID, &t.OwnerID, &t.TenantID, &t.Name, &t.Description, &t.RichText, &scheduled,
		&t.StartTime, &t.EndTime, &t.Price, &colorJSON, &team, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Task{}, err
	}
	if scheduled.Valid && scheduled.String != "" {
		d, err := time.Parse(dateLayout, scheduled.String)
		if err != nil {
			return models.Task{}, fmt.Errorf("parse scheduled_date %q: %w", scheduled.String, err)
		}
		t.ScheduledDate = &d
	}
	if err := json.Unmarshal([]byte(colorJSON), &t.ColorTag); err != nil {
		return models.Task{}, fmt.Errorf("decode color_tag: %w", err)
	}
	if team.Valid {
		v := team.String
		t.TeamAssignment = &v
	}
	t.Status = models.Status(status)
	return t, nil
}

// List returns the scope's tasks ordered by scheduled date then creation.
func (s *Store) List(ctx context.Context, scope models.Scope) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+`
        FROM tasks WHERE tenant_id = ? AND owner_id = ?
        ORDER BY scheduled_date IS NULL, scheduled_date, created_at, id`, scope.TenantID, scope.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Get retrieves a task by id.
func (s *Store) Get(ctx context.Context, id string) (models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Create inserts a task and assigns its id.
func (s *Store) Create(ctx context.Context, d models.Draft) (models.Task, error) {
	if strings.TrimSpace(d.Name) == "" {
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

	colors, err := encodeColors(d.ColorTag)
	if err != nil {
		return models.Task{}, err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, d.OwnerID, d.TenantID, strings.TrimSpace(d.Name), d.Description, d.RichText, encodeDate(d.ScheduledDate),
		d.StartTime, d.EndTime, d.Price, colors, nullString(d.TeamAssignment), string(d.Status), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return s.Get(ctx, id)
}

// Update writes the non-nil fields of patch.
func (s *Store) Update(ctx context.Context, id string, p models.Patch) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if p.Name != nil {
		set("name", strings.TrimSpace(*p.Name))
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.RichText != nil {
		set("rich_text", *p.RichText)
	}
	if p.ScheduledDate != nil {
		set("scheduled_date", encodeDate(*p.ScheduledDate))
	}
	if p.StartTime != nil {
		set("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		set("end_time", *p.EndTime)
	}
	if p.Price != nil {
		set("price", *p.Price)
	}
	if p.ColorTag != nil {
		colors, err := encodeColors(*p.ColorTag)
		if err != nil {
			return err
		}
		set("color_tag", colors)
	}
	if p.TeamAssignment != nil {
		set("team_assignment", nullString(*p.TeamAssignment))
	}
	if p.Status != nil {
		if _, ok := models.ValidTaskStatuses[*p.Status]; !ok {
			return fmt.Errorf("unknown status %q", *p.Status)
		}
		set("status", string(*p.Status))
	}
	updatedAt := time.Now().UTC()
	if p.UpdatedAt != nil {
		updatedAt = *p.UpdatedAt
	}
	set("updated_at", updatedAt)

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge removes a task row for good.
func (s *Store) Purge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.logger.Debug("task row purged", slog.String("task_id", id))
	return nil
}

func encodeDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(dateLayout)
}

func encodeColors(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode color_tag: %w", err)
	}
	return string(b), nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
