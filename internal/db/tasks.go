package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/boardsync/pkg/models"
)

const taskColumns = `
	t.id, t.title, t.description, t.status, t.priority, t.due_date, t.category,
	t.created_at, t.updated_at, t.completed_at, t.deleted_at,
	cu.name, cu.image, uu.name, uu.image
`

const taskJoins = `
	FROM tasks t
	LEFT JOIN users cu ON t.created_by = cu.id
	LEFT JOIN users uu ON t.updated_by = uu.id
`

// CreateTask inserts a new task. If t.ID is empty, a new UUID is
// generated. CreatedAt/UpdatedAt are stamped here.
func (db *DB) CreateTask(ctx context.Context, t *models.Task, createdBy string) (*models.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
		INSERT INTO tasks (id, title, description, status, priority, due_date, category,
		                   created_at, updated_at, completed_at, deleted_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.Status, t.Priority, nullTime(t.DueDate), t.Category,
		t.CreatedAt, t.UpdatedAt, nullTime(t.CompletedAt), nullTime(t.DeletedAt),
		nullString(createdBy), nullString(createdBy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return db.GetTask(ctx, t.ID)
}

// GetTask retrieves a task by its ID. Returns (nil, nil) when absent.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+taskJoins+` WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns live tasks newest-first, or, when trash is set,
// soft-deleted tasks by most recent update.
func (db *DB) ListTasks(ctx context.Context, trash bool) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + taskJoins
	if trash {
		query += ` WHERE t.deleted_at IS NOT NULL ORDER BY t.updated_at DESC`
	} else {
		query += ` WHERE t.deleted_at IS NULL ORDER BY t.created_at DESC`
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tasks, nil
}

// AllTasks returns every task including trashed ones, for the bulk
// fetch endpoint.
func (db *DB) AllTasks(ctx context.Context) ([]*models.Task, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+taskColumns+taskJoins+` ORDER BY t.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tasks, nil
}

// UpdateTask persists the given task state wholesale and stamps
// updated_at. The caller is responsible for the completedAt transition
// rule since it needs the pre-update image. Last write wins.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task, updatedBy string) (*models.Task, error) {
	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?, due_date = ?, category = ?,
		    updated_at = ?, completed_at = ?, deleted_at = ?, updated_by = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		t.Title, t.Description, t.Status, t.Priority, nullTime(t.DueDate), t.Category,
		t.UpdatedAt, nullTime(t.CompletedAt), nullTime(t.DeletedAt), nullString(updatedBy),
		t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, nil
	}
	return db.GetTask(ctx, t.ID)
}

// SoftDeleteTask stamps deleted_at, moving the task to trash, and
// returns the updated record.
func (db *DB) SoftDeleteTask(ctx context.Context, id, deletedBy string) (*models.Task, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`UPDATE tasks SET deleted_at = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		now, now, nullString(deletedBy), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to soft delete task: %w", err)
	}
	return db.GetTask(ctx, id)
}

// HardDeleteTask removes the row entirely.
func (db *DB) HardDeleteTask(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// PurgeTasksDeletedBefore removes tasks soft-deleted before the
// cutoff. Returns the number of rows purged.
func (db *DB) PurgeTasksDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tasks: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	t := &models.Task{}
	var dueDate, completedAt, deletedAt sql.NullTime
	var cuName, cuImage, uuName, uuImage sql.NullString
	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &dueDate, &t.Category,
		&t.CreatedAt, &t.UpdatedAt, &completedAt, &deletedAt,
		&cuName, &cuImage, &uuName, &uuImage,
	)
	if err != nil {
		return nil, err
	}
	t.DueDate = timePtr(dueDate)
	t.CompletedAt = timePtr(completedAt)
	t.DeletedAt = timePtr(deletedAt)
	t.CreatedBy = userRef(cuName, cuImage)
	t.UpdatedBy = userRef(uuName, uuImage)
	return t, nil
}

func userRef(name, image sql.NullString) *models.UserRef {
	if !name.Valid {
		return nil
	}
	return &models.UserRef{Name: name.String, Image: image.String}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
