package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/boardsync/pkg/models"
)

const eventColumns = `
	e.id, e.title, e.description, e.dates, e.start_time, e.end_time, e.color,
	e.created_at, e.updated_at, e.deleted_at, cu.name, cu.image
`

const eventJoins = `
	FROM events e
	LEFT JOIN users cu ON e.created_by = cu.id
`

// CreateEvent inserts a calendar event. Dates must be non-empty; the
// set is stored as a JSON array to keep its display order stable.
func (db *DB) CreateEvent(ctx context.Context, e *models.CalendarEvent, createdBy string) (*models.CalendarEvent, error) {
	if len(e.Dates) == 0 {
		return nil, fmt.Errorf("event requires at least one date")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	dates, err := marshalDates(e.Dates)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO events (id, title, description, dates, start_time, end_time, color,
		                    created_at, updated_at, deleted_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		e.ID, e.Title, e.Description, dates, e.StartTime, e.EndTime, e.Color,
		e.CreatedAt, e.UpdatedAt, nullTime(e.DeletedAt), nullString(createdBy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return db.GetEvent(ctx, e.ID)
}

// GetEvent retrieves an event by its ID. Returns (nil, nil) when absent.
func (db *DB) GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+eventJoins+` WHERE e.id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListEvents returns live events oldest-first, or trashed events by
// most recent update when trash is set.
func (db *DB) ListEvents(ctx context.Context, trash bool) ([]*models.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + eventJoins
	if trash {
		query += ` WHERE e.deleted_at IS NOT NULL ORDER BY e.updated_at DESC`
	} else {
		query += ` WHERE e.deleted_at IS NULL ORDER BY e.created_at ASC`
	}
	return db.queryEvents(ctx, query)
}

// AllEvents returns every event including trashed ones, for the bulk
// fetch endpoint.
func (db *DB) AllEvents(ctx context.Context) ([]*models.CalendarEvent, error) {
	return db.queryEvents(ctx, `SELECT `+eventColumns+eventJoins+` ORDER BY e.created_at ASC`)
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]*models.CalendarEvent, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// UpdateEvent persists the given event state wholesale. An event is
// never persisted with an empty dates set; callers must delete it
// instead when a date removal empties the set.
func (db *DB) UpdateEvent(ctx context.Context, e *models.CalendarEvent) (*models.CalendarEvent, error) {
	if len(e.Dates) == 0 {
		return nil, fmt.Errorf("event requires at least one date")
	}
	e.UpdatedAt = time.Now().UTC()

	dates, err := marshalDates(e.Dates)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE events
		SET title = ?, description = ?, dates = ?, start_time = ?, end_time = ?, color = ?,
		    updated_at = ?, deleted_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		e.Title, e.Description, dates, e.StartTime, e.EndTime, e.Color,
		e.UpdatedAt, nullTime(e.DeletedAt), e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, nil
	}
	return db.GetEvent(ctx, e.ID)
}

// SoftDeleteEvent stamps deleted_at and returns the updated record.
func (db *DB) SoftDeleteEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `UPDATE events SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to soft delete event: %w", err)
	}
	return db.GetEvent(ctx, id)
}

// HardDeleteEvent removes the row entirely.
func (db *DB) HardDeleteEvent(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// PurgeEventsDeletedBefore removes events soft-deleted before the
// cutoff. Returns the number of rows purged.
func (db *DB) PurgeEventsDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}
	return res.RowsAffected()
}

func marshalDates(dates []time.Time) (string, error) {
	raw, err := json.Marshal(dates)
	if err != nil {
		return "", fmt.Errorf("failed to encode dates: %w", err)
	}
	return string(raw), nil
}

func scanEvent(s scanner) (*models.CalendarEvent, error) {
	e := &models.CalendarEvent{}
	var dates string
	var deletedAt sql.NullTime
	var cuName, cuImage sql.NullString
	err := s.Scan(
		&e.ID, &e.Title, &e.Description, &dates, &e.StartTime, &e.EndTime, &e.Color,
		&e.CreatedAt, &e.UpdatedAt, &deletedAt, &cuName, &cuImage,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dates), &e.Dates); err != nil {
		return nil, fmt.Errorf("failed to decode dates: %w", err)
	}
	e.DeletedAt = timePtr(deletedAt)
	e.CreatedBy = userRef(cuName, cuImage)
	return e, nil
}
