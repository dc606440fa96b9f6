package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/chat-backend/internal/apperror"
	"github.com/sakif/chat-backend/internal/auth"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/service"
)

// ChatHandler serves the chat and message routes. All routes sit behind
// auth.RequireAuth and only ever touch chats owned by the caller.
type ChatHandler struct {
	identity      *service.IdentityService
	conversations *service.ConversationService
	assistant     *service.AssistantService
	logger        *slog.Logger
}

func NewChatHandler(
	identity *service.IdentityService,
	conversations *service.ConversationService,
	assistant *service.AssistantService,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		identity:      identity,
		conversations: conversations,
		assistant:     assistant,
		logger:        logger,
	}
}

type createChatRequest struct {
	Title string `json:"title"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// ChatResponse is a chat with its full history.
type ChatResponse struct {
	Chat     *model.Chat     `json:"chat"`
	Messages []model.Message `json:"messages"`
}

// HandleCreate creates a chat. The body is optional.
//
// HTTP: POST /api/chats
func (h *ChatHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	chat, err := h.conversations.CreateChat(r.Context(), userID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

// HTTP: GET /api/chats
func (h *ChatHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	chats, err := h.conversations.ListChats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// HTTP: GET /api/chats/{chatID}
func (h *ChatHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	msgs, err := h.conversations.GetMessages(r.Context(), chat.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Chat: chat, Messages: msgs})
}

// HTTP: GET /api/chats/{chatID}/messages
func (h *ChatHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	msgs, err := h.conversations.GetMessages(r.Context(), chat.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HandleSend stores the caller's message and the generated reply.
//
// HTTP: POST /api/chats/{chatID}/messages
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	text, username, chat, ok := h.messageInput(w, r)
	if !ok {
		return
	}

	turn, err := h.assistant.Send(r.Context(), chat.ID, username, text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, turn)
}

// HandleEditLast rewrites the caller's last message and regenerates the reply.
//
// HTTP: PUT /api/chats/{chatID}/messages/last
func (h *ChatHandler) HandleEditLast(w http.ResponseWriter, r *http.Request) {
	text, username, chat, ok := h.messageInput(w, r)
	if !ok {
		return
	}

	edit, err := h.assistant.EditLast(r.Context(), chat.ID, username, text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edit)
}

// ownedChat loads the {chatID} chat and checks it belongs to the caller.
// It writes the error response itself and reports whether to continue.
func (h *ChatHandler) ownedChat(w http.ResponseWriter, r *http.Request) (*model.Chat, bool) {
	userID, _ := auth.UserIDFromContext(r.Context())

	chat, err := h.conversations.GetOwnedChat(r.Context(), chi.URLParam(r, "chatID"), userID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return chat, true
}

// messageInput decodes {text}, rejects blank text and resolves the caller's
// username and chat.
func (h *ChatHandler) messageInput(w http.ResponseWriter, r *http.Request) (text, username string, chat *model.Chat, ok bool) {
	var req messageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return "", "", nil, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, apperror.ValidationFailed("text", "text is required"))
		return "", "", nil, false
	}

	chat, ok = h.ownedChat(w, r)
	if !ok {
		return "", "", nil, false
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.identity.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return "", "", nil, false
	}
	return req.Text, user.Username, chat, true
}
