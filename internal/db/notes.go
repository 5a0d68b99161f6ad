package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/boardsync/pkg/models"
)

const noteColumns = `
	n.id, n.title, n.content, n.date, n.author_name, n.notion_url,
	n.created_at, n.updated_at, n.deleted_at, cu.name, cu.image
`

const noteJoins = `
	FROM notes n
	LEFT JOIN users cu ON n.created_by = cu.id
`

// NoteFilter narrows ListNotes. Zero value means live notes, first
// page, default limit.
type NoteFilter struct {
	Trash bool
	Query string
	Page  int
	Limit int
}

func (f NoteFilter) normalize() NoteFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 50 {
		f.Limit = 50
	}
	return f
}

// CreateNote inserts a note. If n.ID is empty, a new UUID is generated.
func (db *DB) CreateNote(ctx context.Context, n *models.Note, createdBy string) (*models.Note, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.Date.IsZero() {
		n.Date = now
	}

	query := `
		INSERT INTO notes (id, title, content, date, author_name, notion_url,
		                   created_at, updated_at, deleted_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		n.ID, n.Title, n.Content, n.Date, n.AuthorName, n.NotionURL,
		n.CreatedAt, n.UpdatedAt, nullTime(n.DeletedAt), nullString(createdBy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return db.GetNote(ctx, n.ID)
}

// GetNote retrieves a note by its ID. Returns (nil, nil) when absent.
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	row := db.QueryRowContext(ctx, `SELECT `+noteColumns+noteJoins+` WHERE n.id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

// ListNotes returns a page of notes newest-first along with the total
// count matching the filter. The text query matches title, content and
// author name case-insensitively.
func (db *DB) ListNotes(ctx context.Context, f NoteFilter) ([]*models.Note, int, error) {
	f = f.normalize()

	where := ` WHERE n.deleted_at IS NULL`
	args := []any{}
	if f.Trash {
		where = ` WHERE n.deleted_at IS NOT NULL`
	} else if f.Query != "" {
		where += ` AND (n.title LIKE ? COLLATE NOCASE OR n.content LIKE ? COLLATE NOCASE OR n.author_name LIKE ? COLLATE NOCASE)`
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern, pattern)
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes n`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}

	query := `SELECT ` + noteColumns + noteJoins + where + ` ORDER BY n.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return notes, total, nil
}

// AllNotes returns every live note newest-first, for the bulk fetch
// endpoint.
func (db *DB) AllNotes(ctx context.Context) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + noteJoins + ` WHERE n.deleted_at IS NULL ORDER BY n.created_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return notes, nil
}

// SoftDeleteNote stamps deleted_at and returns the updated record.
func (db *DB) SoftDeleteNote(ctx context.Context, id string) (*models.Note, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `UPDATE notes SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to soft delete note: %w", err)
	}
	return db.GetNote(ctx, id)
}

// HardDeleteNote removes the row entirely.
func (db *DB) HardDeleteNote(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("note not found: %s", id)
	}
	return nil
}

func scanNote(s scanner) (*models.Note, error) {
	n := &models.Note{}
	var deletedAt sql.NullTime
	var cuName, cuImage sql.NullString
	err := s.Scan(
		&n.ID, &n.Title, &n.Content, &n.Date, &n.AuthorName, &n.NotionURL,
		&n.CreatedAt, &n.UpdatedAt, &deletedAt, &cuName, &cuImage,
	)
	if err != nil {
		return nil, err
	}
	n.DeletedAt = timePtr(deletedAt)
	n.CreatedBy = userRef(cuName, cuImage)
	return n, nil
}
