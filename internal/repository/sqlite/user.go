package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/chat-backend/internal/apperror"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/repository"
)

var (
	_ repository.UserRepository  = (*UserDB)(nil)
	_ repository.LoginRepository = (*LoginDB)(nil)
)

// UserDB is the users table.
type UserDB struct {
	conn *sql.DB
}

// Create inserts a user, generating the ID and CreatedAt when unset.
// A username that differs only in case from an existing one is a conflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	if _, err := u.GetByUsername(ctx, user.Username); err == nil {
		return apperror.Conflict("user", user.Username)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, name, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Name,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT id, username, name, password_hash, created_at
		 FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT id, username, name, password_hash, created_at
		 FROM users WHERE lower(username) = lower(?)`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return user, nil
}

// Update overwrites name and password hash. Username and ID are immutable.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, password_hash = ? WHERE id = ?`,
		user.Name,
		user.PasswordHash,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return requireAffected(res, "user", user.ID)
}

func scanUser(row *sql.Row) (*model.User, error) {
	var user model.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginDB is the append-only logins table.
type LoginDB struct {
	conn *sql.DB
}

func (l *LoginDB) Append(ctx context.Context, event *model.LoginEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO logins (user_id, timestamp) VALUES (?, ?)`,
		event.UserID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording login for %s: %w", event.UserID, err)
	}
	return nil
}

func (l *LoginDB) ListByUser(ctx context.Context, userID string) ([]model.LoginEvent, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT user_id, timestamp FROM logins WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing logins for %s: %w", userID, err)
	}
	defer rows.Close()

	events := []model.LoginEvent{}
	for rows.Next() {
		var e model.LoginEvent
		if err := rows.Scan(&e.UserID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning login row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating login rows: %w", err)
	}
	return events, nil
}

// requireAffected turns a zero-row UPDATE/DELETE into apperror.NotFound.
func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
