package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"filebox/internal/models"
)

// CreateUser inserts one user. Email must already be normalized.
// A duplicate email returns models.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string, now time.Time) (*models.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, fmt.Errorf("password hash is required")
	}

	userID, err := GenerateUserID(func(id string) (bool, error) {
		return s.userExists(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, email, name, passwordHash, dbFormatTime(now), dbFormatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", email, models.ErrConflict)
		}
		return nil, unavailable("create user", err)
	}

	return &models.User{
		ID:           userID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

// GetUserByEmail returns nil, nil when no user has that email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM users
		WHERE email = ?
		LIMIT 1
	`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return user, nil
}

// GetUserByID returns nil, nil when the id is unknown.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM users
		WHERE id = ?
		LIMIT 1
	`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return user, nil
}

func (s *Store) userExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ? LIMIT 1", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check user id", err)
	}
	return true, nil
}

func scanUser(scanner interface {
	Scan(dest ...any) error
}) (*models.User, error) {
	var user models.User
	var createdAt string
	var updatedAt string
	if err := scanner.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := dbParseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = parsedCreated
	user.UpdatedAt = parsedUpdated
	return &user, nil
}
