// Package repository declares the persistence contracts used by the services.
//
// Two implementations exist: repository/jsonfile (a single JSON document, the
// default) and repository/sqlite. Both return copies of records, report missing
// records with apperror.ErrNotFound and preserve insertion order in list results.
package repository

import (
	"context"

	"github.com/sakif/chat-backend/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByUsername matches case-insensitively.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

type LoginRepository interface {
	Append(ctx context.Context, event *model.LoginEvent) error
	ListByUser(ctx context.Context, userID string) ([]model.LoginEvent, error)
}

type ChatRepository interface {
	Create(ctx context.Context, chat *model.Chat) error
	GetByID(ctx context.Context, id string) (*model.Chat, error)
	ListByUser(ctx context.Context, userID string) ([]model.Chat, error)
	Update(ctx context.Context, chat *model.Chat) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByChat(ctx context.Context, chatID string) ([]model.Message, error)
	Update(ctx context.Context, msg *model.Message) error
	Delete(ctx context.Context, id string) error
}

// Store bundles the repositories of one backend together with its lifecycle.
type Store interface {
	Users() UserRepository
	Logins() LoginRepository
	Chats() ChatRepository
	Messages() MessageRepository
	Close() error
}
