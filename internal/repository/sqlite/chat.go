package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/chat-backend/internal/apperror"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/repository"
)

var (
	_ repository.ChatRepository    = (*ChatDB)(nil)
	_ repository.MessageRepository = (*MessageDB)(nil)
)

// ChatDB is the chats table.
type ChatDB struct {
	conn *sql.DB
}

func (c *ChatDB) Create(ctx context.Context, chat *model.Chat) error {
	if chat.ID == "" {
		chat.ID = xid.New().String()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}

	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		chat.ID,
		chat.UserID,
		chat.Title,
		chat.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting chat: %w", err)
	}
	return nil
}

func (c *ChatDB) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	err := c.conn.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM chats WHERE id = ?`, id,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("chat", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting chat %s: %w", id, err)
	}
	return &chat, nil
}

func (c *ChatDB) ListByUser(ctx context.Context, userID string) ([]model.Chat, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM chats WHERE user_id = ? ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing chats for %s: %w", userID, err)
	}
	defer rows.Close()

	chats := []model.Chat{}
	for rows.Next() {
		var chat model.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating chat rows: %w", err)
	}
	return chats, nil
}

// Update rewrites the title; ownership and creation time never change.
func (c *ChatDB) Update(ctx context.Context, chat *model.Chat) error {
	res, err := c.conn.ExecContext(ctx,
		`UPDATE chats SET title = ? WHERE id = ?`, chat.Title, chat.ID)
	if err != nil {
		return fmt.Errorf("sqlite: updating chat %s: %w", chat.ID, err)
	}
	return requireAffected(res, "chat", chat.ID)
}

// MessageDB is the messages table.
type MessageDB struct {
	conn *sql.DB
}

func (m *MessageDB) Create(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = xid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := m.conn.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, username, text, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ChatID,
		msg.Username,
		msg.Text,
		string(msg.Role),
		msg.CreatedAt,
		nullTime(msg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting message: %w", err)
	}
	return nil
}

func (m *MessageDB) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	rows, err := m.conn.QueryContext(ctx,
		`SELECT id, chat_id, username, text, role, created_at, updated_at
		 FROM messages WHERE chat_id = ? ORDER BY seq ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages for %s: %w", chatID, err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			msg     model.Message
			role    string
			updated sql.NullTime
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Username, &msg.Text, &role, &msg.CreatedAt, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		msg.Role = model.Role(role)
		if updated.Valid {
			t := updated.Time
			msg.UpdatedAt = &t
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating message rows: %w", err)
	}
	return msgs, nil
}

// Update rewrites text and updated_at.
func (m *MessageDB) Update(ctx context.Context, msg *model.Message) error {
	res, err := m.conn.ExecContext(ctx,
		`UPDATE messages SET text = ?, updated_at = ? WHERE id = ?`,
		msg.Text,
		nullTime(msg.UpdatedAt),
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating message %s: %w", msg.ID, err)
	}
	return requireAffected(res, "message", msg.ID)
}

func (m *MessageDB) Delete(ctx context.Context, id string) error {
	res, err := m.conn.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting message %s: %w", id, err)
	}
	return requireAffected(res, "message", id)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
