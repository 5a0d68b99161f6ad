package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/boardsync/pkg/models"
)

// UserRecord is a user row including the credential hash. It stays
// inside the storage and auth layers; handlers only ever see
// models.User or models.OnlineUser.
type UserRecord struct {
	models.User
	PasswordHash string
}

// CreateUser inserts a user. If the ID is empty, a new UUID is
// generated.
func (db *DB) CreateUser(ctx context.Context, u *UserRecord) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, name, image, role, password_hash, last_active) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Image, u.Role, u.PasswordHash, nullTime(u.LastActive),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns (nil, nil) when absent.
func (db *DB) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	return db.getUser(ctx, `SELECT id, name, image, role, password_hash, last_active FROM users WHERE id = ?`, id)
}

// GetUserByName retrieves a user by name, for login.
func (db *DB) GetUserByName(ctx context.Context, name string) (*UserRecord, error) {
	return db.getUser(ctx, `SELECT id, name, image, role, password_hash, last_active FROM users WHERE name = ?`, name)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*UserRecord, error) {
	u := &UserRecord{}
	var lastActive sql.NullTime
	err := db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Image, &u.Role, &u.PasswordHash, &lastActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.LastActive = timePtr(lastActive)
	return u, nil
}

// TouchUser stamps the user's last_active, marking them online.
func (db *DB) TouchUser(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET last_active = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// OnlineUsers returns users active within the recency window.
func (db *DB) OnlineUsers(ctx context.Context, window time.Duration) ([]models.OnlineUser, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, image, last_active FROM users WHERE last_active >= ? ORDER BY name ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query online users: %w", err)
	}
	defer rows.Close()

	users := []models.OnlineUser{}
	for rows.Next() {
		var u models.OnlineUser
		var lastActive sql.NullTime
		if err := rows.Scan(&u.ID, &u.Name, &u.Image, &lastActive); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.LastActive = timePtr(lastActive)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return users, nil
}
