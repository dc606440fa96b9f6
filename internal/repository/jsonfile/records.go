package jsonfile

import (
	"context"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/chat-backend/internal/apperror"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/repository"
)

var (
	_ repository.UserRepository    = (*UserStore)(nil)
	_ repository.LoginRepository   = (*LoginStore)(nil)
	_ repository.ChatRepository    = (*ChatStore)(nil)
	_ repository.MessageRepository = (*MessageStore)(nil)
)

func now() time.Time {
	return time.Now().UTC()
}

// =========================================================================
// USERS
// =========================================================================

type UserStore struct{ s *Store }

// Create assigns an ID and CreatedAt when unset. Usernames are unique
// regardless of case.
func (u *UserStore) Create(ctx context.Context, user *model.User) error {
	return u.s.mutate(func(doc *Document) error {
		if findUser(doc, user.Username) >= 0 {
			return apperror.Conflict("user", user.Username)
		}
		if user.ID == "" {
			user.ID = xid.New().String()
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now()
		}
		doc.Users = append(doc.Users, *user)
		return nil
	})
}

func (u *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	var found *model.User
	err := u.s.read(func(doc *Document) error {
		for i := range doc.Users {
			if doc.Users[i].ID == id {
				cp := doc.Users[i]
				found = &cp
				return nil
			}
		}
		return apperror.NotFound("user", id)
	})
	return found, err
}

func (u *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var found *model.User
	err := u.s.read(func(doc *Document) error {
		i := findUser(doc, username)
		if i < 0 {
			return apperror.NotFound("user", username)
		}
		cp := doc.Users[i]
		found = &cp
		return nil
	})
	return found, err
}

func (u *UserStore) Update(ctx context.Context, user *model.User) error {
	return u.s.mutate(func(doc *Document) error {
		for i := range doc.Users {
			if doc.Users[i].ID == user.ID {
				doc.Users[i] = *user
				return nil
			}
		}
		return apperror.NotFound("user", user.ID)
	})
}

func findUser(doc *Document, username string) int {
	for i := range doc.Users {
		if strings.EqualFold(doc.Users[i].Username, username) {
			return i
		}
	}
	return -1
}

// =========================================================================
// LOGINS
// =========================================================================

type LoginStore struct{ s *Store }

func (l *LoginStore) Append(ctx context.Context, event *model.LoginEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	return l.s.mutate(func(doc *Document) error {
		doc.Logins = append(doc.Logins, *event)
		return nil
	})
}

func (l *LoginStore) ListByUser(ctx context.Context, userID string) ([]model.LoginEvent, error) {
	events := []model.LoginEvent{}
	err := l.s.read(func(doc *Document) error {
		for _, e := range doc.Logins {
			if e.UserID == userID {
				events = append(events, e)
			}
		}
		return nil
	})
	return events, err
}

// =========================================================================
// CHATS
// =========================================================================

type ChatStore struct{ s *Store }

func (c *ChatStore) Create(ctx context.Context, chat *model.Chat) error {
	if chat.ID == "" {
		chat.ID = xid.New().String()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now()
	}
	return c.s.mutate(func(doc *Document) error {
		doc.Chats = append(doc.Chats, *chat)
		return nil
	})
}

func (c *ChatStore) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	var found *model.Chat
	err := c.s.read(func(doc *Document) error {
		for i := range doc.Chats {
			if doc.Chats[i].ID == id {
				cp := doc.Chats[i]
				found = &cp
				return nil
			}
		}
		return apperror.NotFound("chat", id)
	})
	return found, err
}

func (c *ChatStore) ListByUser(ctx context.Context, userID string) ([]model.Chat, error) {
	chats := []model.Chat{}
	err := c.s.read(func(doc *Document) error {
		for _, chat := range doc.Chats {
			if chat.UserID == userID {
				chats = append(chats, chat)
			}
		}
		return nil
	})
	return chats, err
}

func (c *ChatStore) Update(ctx context.Context, chat *model.Chat) error {
	return c.s.mutate(func(doc *Document) error {
		for i := range doc.Chats {
			if doc.Chats[i].ID == chat.ID {
				doc.Chats[i] = *chat
				return nil
			}
		}
		return apperror.NotFound("chat", chat.ID)
	})
}

// =========================================================================
// MESSAGES
// =========================================================================

type MessageStore struct{ s *Store }

func (m *MessageStore) Create(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = xid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	return m.s.mutate(func(doc *Document) error {
		doc.Messages = append(doc.Messages, copyMessage(*msg))
		return nil
	})
}

func (m *MessageStore) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	msgs := []model.Message{}
	err := m.s.read(func(doc *Document) error {
		for _, msg := range doc.Messages {
			if msg.ChatID == chatID {
				msgs = append(msgs, copyMessage(msg))
			}
		}
		return nil
	})
	return msgs, err
}

func (m *MessageStore) Update(ctx context.Context, msg *model.Message) error {
	return m.s.mutate(func(doc *Document) error {
		for i := range doc.Messages {
			if doc.Messages[i].ID == msg.ID {
				doc.Messages[i] = copyMessage(*msg)
				return nil
			}
		}
		return apperror.NotFound("message", msg.ID)
	})
}

// Delete removes the message while keeping the order of the rest.
func (m *MessageStore) Delete(ctx context.Context, id string) error {
	return m.s.mutate(func(doc *Document) error {
		for i := range doc.Messages {
			if doc.Messages[i].ID == id {
				doc.Messages = append(doc.Messages[:i:i], doc.Messages[i+1:]...)
				return nil
			}
		}
		return apperror.NotFound("message", id)
	})
}

// copyMessage detaches UpdatedAt so callers cannot mutate stored state through it.
func copyMessage(msg model.Message) model.Message {
	if msg.UpdatedAt != nil {
		t := *msg.UpdatedAt
		msg.UpdatedAt = &t
	}
	return msg
}
