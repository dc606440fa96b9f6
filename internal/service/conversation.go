package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/chat-backend/internal/apperror"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/repository"
)

// MaxTitleRunes bounds a title derived from the first user message.
const MaxTitleRunes = 60

// ConversationService owns chats and their message history.
//
// Mutations of one chat run under that chat's lock, so the title rule in
// AddMessage and the edit in UpdateLastUserMessage see a stable history.
type ConversationService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	logger   *slog.Logger
	locks    *chatLocks
}

func NewConversationService(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	logger *slog.Logger,
) *ConversationService {
	return &ConversationService{
		chats:    chats,
		messages: messages,
		logger:   logger,
		locks:    newChatLocks(),
	}
}

// CreateChat creates a chat for userID. A blank title becomes DefaultChatTitle.
func (s *ConversationService) CreateChat(ctx context.Context, userID, title string) (*model.Chat, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userID", "user ID is required")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultChatTitle
	}

	chat := &model.Chat{UserID: userID, Title: title}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("service/conversation: creating chat: %w", err)
	}

	s.logger.Info("chat created", slog.String("chatID", chat.ID), slog.String("userID", userID))
	return chat, nil
}

// ListChats returns the user's chats in creation order.
func (s *ConversationService) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/conversation: listing chats for %s: %w", userID, err)
	}
	return chats, nil
}

func (s *ConversationService) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("service/conversation: fetching chat %s: %w", chatID, err)
	}
	return chat, nil
}

// GetOwnedChat is GetChat plus an ownership check: a chat that belongs to
// another user yields apperror.ErrForbidden.
func (s *ConversationService) GetOwnedChat(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, apperror.Forbidden("chat belongs to another user")
	}
	return chat, nil
}

// AddMessage appends a message to the chat.
//
// When it is the first message of the chat and its role is user, the chat is
// retitled from the text and the updated chat is returned; otherwise the
// returned chat is nil.
func (s *ConversationService) AddMessage(
	ctx context.Context,
	chatID, username, text string,
	role model.Role,
) (*model.Message, *model.Chat, error) {
	if !role.Valid() {
		return nil, nil, apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}

	unlock := s.locks.lock(chatID)
	defer unlock()

	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/conversation: listing messages of %s: %w", chatID, err)
	}

	msg := &model.Message{ChatID: chatID, Username: username, Text: text, Role: role}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("service/conversation: storing message: %w", err)
	}

	if len(history) > 0 || role != model.RoleUser {
		return msg, nil, nil
	}

	chat.Title = TitleFromText(text)
	if err := s.chats.Update(ctx, chat); err != nil {
		// The message must not outlive a failed retitle: the title rule only
		// fires on an empty history.
		if derr := s.messages.Delete(ctx, msg.ID); derr != nil {
			s.logger.Error("dropping message after failed retitle",
				slog.String("chatID", chatID),
				slog.String("messageID", msg.ID),
				slog.String("error", derr.Error()),
			)
		}
		return nil, nil, fmt.Errorf("service/conversation: retitling chat %s: %w", chatID, err)
	}
	return msg, chat, nil
}

// UpdateLastUserMessage replaces the text of username's most recent user
// message. If the chat then ends with an AI message, that message is deleted
// and returned as removed. A chat with no matching message is
// apperror.ErrNotFound and is left untouched.
func (s *ConversationService) UpdateLastUserMessage(
	ctx context.Context,
	chatID, username, text string,
) (edited, removed *model.Message, err error) {
	unlock := s.locks.lock(chatID)
	defer unlock()

	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, nil, err
	}

	history, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/conversation: listing messages of %s: %w", chatID, err)
	}

	idx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser && strings.EqualFold(history[i].Username, username) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, apperror.NotFound("user message in chat", chatID)
	}

	original := history[idx]
	target := original
	updatedAt := time.Now().UTC()
	target.Text = text
	target.UpdatedAt = &updatedAt
	if err := s.messages.Update(ctx, &target); err != nil {
		return nil, nil, fmt.Errorf("service/conversation: editing message %s: %w", target.ID, err)
	}

	last := history[len(history)-1]
	if last.Role == model.RoleAI {
		if err := s.messages.Delete(ctx, last.ID); err != nil {
			// Put the old text back so the edit and the stale reply never
			// coexist.
			if rerr := s.messages.Update(ctx, &original); rerr != nil {
				s.logger.Error("restoring message after failed reply removal",
					slog.String("chatID", chatID),
					slog.String("messageID", original.ID),
					slog.String("error", rerr.Error()),
				)
			}
			return nil, nil, fmt.Errorf("service/conversation: removing reply %s: %w", last.ID, err)
		}
		removed = &last
	}

	s.logger.Debug("message edited",
		slog.String("chatID", chatID),
		slog.String("messageID", target.ID),
		slog.Bool("replyRemoved", removed != nil),
	)
	return &target, removed, nil
}

// GetMessages returns the chat's messages in insertion order.
func (s *ConversationService) GetMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("service/conversation: listing messages of %s: %w", chatID, err)
	}
	return msgs, nil
}

// TitleFromText derives a chat title: trimmed, DefaultChatTitle when blank,
// cut to MaxTitleRunes.
func TitleFromText(text string) string {
	title := strings.TrimSpace(text)
	if title == "" {
		return model.DefaultChatTitle
	}
	if r := []rune(title); len(r) > MaxTitleRunes {
		title = string(r[:MaxTitleRunes])
	}
	return title
}
