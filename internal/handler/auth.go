package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/chat-backend/internal/auth"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler covers identification, registration, login, logout and the
// optional GitHub OAuth flow. Every successful sign-in answers with the
// public user plus a session token, which is also set as an HttpOnly cookie.
type AuthHandler struct {
	identity *service.IdentityService
	tokens   *auth.TokenService
	github   *auth.GitHubProvider // nil when GitHub login is not configured
	logger   *slog.Logger
}

func NewAuthHandler(
	identity *service.IdentityService,
	tokens *auth.TokenService,
	github *auth.GitHubProvider,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		tokens:   tokens,
		github:   github,
		logger:   logger,
	}
}

// SessionResponse is returned by every sign-in endpoint.
type SessionResponse struct {
	User  *model.PublicUser `json:"user"`
	Token string            `json:"token"`
}

type identifyRequest struct {
	Username string `json:"username"`
}

type registerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleIdentify signs in by username alone, creating the user on first use.
//
// HTTP: POST /api/auth/identify
func (h *AuthHandler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.identity.GetOrCreate(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	h.startSession(w, http.StatusOK, user)
}

// HandleRegister creates a password account or claims a login-only one.
//
// HTTP: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.identity.Register(r.Context(), req.Username, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	h.startSession(w, http.StatusCreated, user)
}

// HandleLogin checks a username and password.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("login failed", slog.String("username", strings.TrimSpace(req.Username)))
		writeError(w, err)
		return
	}
	h.startSession(w, http.StatusOK, user)
}

// HandleLogout clears the session cookie. Tokens are stateless, so a copied
// token stays valid until it expires.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleGitHubLogin redirects to GitHub with a fresh state value, which is
// also stored in a short-lived cookie for the callback to compare against.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback signs in the GitHub login as a chat username and
// redirects home.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: invalid state")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: "authentication failed"})
		return
	}

	user, err := h.identity.GetOrCreate(r.Context(), ghUser.Login)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.Int64("githubID", ghUser.ID),
	)

	if _, err := h.setSessionCookie(w, user.ID); err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.identity.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleLoginHistory lists the signed-in user's login events, oldest first.
//
// HTTP: GET /api/me/logins
func (h *AuthHandler) HandleLoginHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	events, err := h.identity.LoginHistory(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, user *model.PublicUser) {
	token, err := h.setSessionCookie(w, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, SessionResponse{User: user, Token: token})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, userID string) (string, error) {
	token, err := h.tokens.Generate(userID)
	if err != nil {
		h.logger.Error("token generation failed", slog.String("userID", userID), slog.String("error", err.Error()))
		return "", err
	}

	// Secure is left off so the cookie works over plain HTTP on localhost.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}
