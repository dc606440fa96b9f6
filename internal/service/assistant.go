package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sakif/chat-backend/internal/llm"
	"github.com/sakif/chat-backend/internal/model"
)

const promptTemplate = "Answer the question below.\n\nQuestion: %s\n\nAnswer:"

// AssistantService runs one conversational turn: store the user's message,
// ask the generator for a reply and store the reply as an AI message.
//
// A failed generation never fails the turn; the reply then carries the error
// text instead.
type AssistantService struct {
	conversations *ConversationService
	generator     llm.Generator
	timeout       time.Duration
	aiName        string
	logger        *slog.Logger
}

func NewAssistantService(
	conversations *ConversationService,
	generator llm.Generator,
	timeout time.Duration,
	logger *slog.Logger,
) *AssistantService {
	return &AssistantService{
		conversations: conversations,
		generator:     generator,
		timeout:       timeout,
		aiName:        AIName(generator.Model()),
		logger:        logger,
	}
}

// Turn is the result of Send. Chat is non-nil only when the user message
// retitled the chat.
type Turn struct {
	UserMessage *model.Message `json:"user_message"`
	Reply       *model.Message `json:"reply"`
	Chat        *model.Chat    `json:"chat,omitempty"`
}

// Edit is the result of EditLast. Removed is the stale AI reply, if any.
type Edit struct {
	Edited  *model.Message `json:"edited"`
	Removed *model.Message `json:"removed,omitempty"`
	Reply   *model.Message `json:"reply"`
}

// AIName is the display name for replies: the model name up to the first
// colon, title-cased ("qwen3:8b" → "Qwen3").
func AIName(modelName string) string {
	base, _, _ := strings.Cut(modelName, ":")
	base = strings.TrimSpace(base)
	if base == "" {
		return "AI"
	}
	return cases.Title(language.Und).String(base)
}

func (a *AssistantService) Send(ctx context.Context, chatID, username, text string) (*Turn, error) {
	userMsg, chat, err := a.conversations.AddMessage(ctx, chatID, username, text, model.RoleUser)
	if err != nil {
		return nil, err
	}

	reply, err := a.reply(ctx, chatID, text)
	if err != nil {
		return nil, err
	}
	return &Turn{UserMessage: userMsg, Reply: reply, Chat: chat}, nil
}

// EditLast rewrites the user's last message and regenerates the answer.
func (a *AssistantService) EditLast(ctx context.Context, chatID, username, text string) (*Edit, error) {
	edited, removed, err := a.conversations.UpdateLastUserMessage(ctx, chatID, username, text)
	if err != nil {
		return nil, err
	}

	reply, err := a.reply(ctx, chatID, text)
	if err != nil {
		return nil, err
	}
	return &Edit{Edited: edited, Removed: removed, Reply: reply}, nil
}

func (a *AssistantService) reply(ctx context.Context, chatID, question string) (*model.Message, error) {
	text := a.generate(ctx, chatID, question)

	msg, _, err := a.conversations.AddMessage(ctx, chatID, a.aiName, text, model.RoleAI)
	if err != nil {
		return nil, fmt.Errorf("service/assistant: storing reply: %w", err)
	}
	return msg, nil
}

// generate returns the trimmed completion or an inline error reply.
func (a *AssistantService) generate(ctx context.Context, chatID, question string) string {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := a.generator.Generate(ctx, fmt.Sprintf(promptTemplate, question))
	if err != nil {
		a.logger.Error("generation failed",
			slog.String("chatID", chatID),
			slog.String("model", a.generator.Model()),
			slog.String("error", err.Error()),
		)
		return fmt.Sprintf("[Generation error: %v]", err)
	}

	a.logger.Debug("reply generated",
		slog.String("chatID", chatID),
		slog.Duration("took", time.Since(start)),
	)
	return strings.TrimSpace(out)
}
