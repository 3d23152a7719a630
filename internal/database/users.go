package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// CreateUser inserts a new user. ErrDuplicate is returned for a taken email.
func (db *DB) CreateUser(u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, email, api_key_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	now := time.Now()
	_, err := db.conn.Exec(query, u.ID, u.Email, nullString(u.APIKeyHash), u.IsActive, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(id string) (*models.User, error) {
	query := `
		SELECT id, email, api_key_hash, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return db.scanSingleUser(db.conn.QueryRow(query, id))
}

// GetUserByAPIKeyHash retrieves the active user owning an API key hash
func (db *DB) GetUserByAPIKeyHash(hash string) (*models.User, error) {
	query := `
		SELECT id, email, api_key_hash, is_active, created_at, updated_at
		FROM users
		WHERE api_key_hash = $1 AND is_active = TRUE
	`
	return db.scanSingleUser(db.conn.QueryRow(query, hash))
}

// UpdateUserAPIKeyHash replaces a user's API key hash
func (db *DB) UpdateUserAPIKeyHash(id, hash string) error {
	query := `UPDATE users SET api_key_hash = $2, updated_at = NOW() WHERE id = $1`
	result, err := db.conn.Exec(query, id, hash)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) scanSingleUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var hash sql.NullString
	err := row.Scan(&u.ID, &u.Email, &hash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.APIKeyHash = hash.String
	return &u, nil
}
