// Package service holds the business rules of the chat backend.
//
//	Handler (HTTP) → Service (rules) → Repository (jsonfile or sqlite)
//
// Services take repository interfaces, never a concrete store, and report
// failures with apperror values that handlers map to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/chat-backend/internal/apperror"
	"github.com/sakif/chat-backend/internal/auth"
	"github.com/sakif/chat-backend/internal/model"
	"github.com/sakif/chat-backend/internal/repository"
)

// invalidCredentials is shared by every Authenticate failure so a caller
// cannot tell an unknown username from a wrong password.
const invalidCredentials = "invalid username or password"

// IdentityService creates and authenticates users and records their logins.
//
// Two kinds of identity exist. A username-only login (GetOrCreate) creates a
// user without a password. Register either creates a full account or claims
// such a login-only identity, keeping its ID and chats.
type IdentityService struct {
	users     repository.UserRepository
	logins    repository.LoginRepository
	passwords *auth.PasswordService
	logger    *slog.Logger

	// mu serializes the lookup-then-create sequences of GetOrCreate and
	// Register so racing requests cannot both create the same username.
	mu sync.Mutex
}

func NewIdentityService(
	users repository.UserRepository,
	logins repository.LoginRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:     users,
		logins:    logins,
		passwords: passwords,
		logger:    logger,
	}
}

// GetOrCreate finds the user by username, ignoring case, or creates a
// login-only identity for it. Either way a login event is recorded.
func (s *IdentityService) GetOrCreate(ctx context.Context, username string) (*model.PublicUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{Username: username}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/identity: creating user %q: %w", username, err)
		}
		s.logger.Info("user created", slog.String("userID", user.ID), slog.String("username", user.Username))
	default:
		return nil, fmt.Errorf("service/identity: looking up user %q: %w", username, err)
	}

	if err := s.recordLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// Register creates a password-protected account. A login-only identity with
// the same username is upgraded in place; an account that already has a
// password is a conflict. No login event is recorded.
func (s *IdentityService) Register(ctx context.Context, username, password, name string) (*model.PublicUser, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)

	switch {
	case username == "":
		return nil, apperror.ValidationFailed("username", "username is required")
	case name == "":
		return nil, apperror.ValidationFailed("name", "name is required")
	case strings.TrimSpace(password) == "":
		return nil, apperror.ValidationFailed("password", "password is required")
	case len(password) > auth.MaxPasswordBytes:
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if user.HasPassword() {
			return nil, apperror.Conflict("user", username)
		}
		user.PasswordHash = hash
		user.Name = name
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("service/identity: claiming user %s: %w", user.ID, err)
		}
		s.logger.Info("login-only user registered", slog.String("userID", user.ID))
	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{Username: username, Name: name, PasswordHash: hash}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/identity: creating user %q: %w", username, err)
		}
		s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("username", user.Username))
	default:
		return nil, fmt.Errorf("service/identity: looking up user %q: %w", username, err)
	}

	return user.Public(), nil
}

// Authenticate checks a username and password. Unknown users, login-only
// identities and wrong passwords all yield the same apperror.ErrUnauthorized.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (*model.PublicUser, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/identity: looking up user: %w", err)
	}

	if !user.HasPassword() {
		return nil, apperror.Unauthorized(invalidCredentials)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash is unreadable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthorized(invalidCredentials)
	}
	if auth.IsLegacyHash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	if err := s.recordLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// LoginHistory returns the user's login events oldest first.
func (s *IdentityService) LoginHistory(ctx context.Context, userID string) ([]model.LoginEvent, error) {
	events, err := s.logins.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: listing logins for %s: %w", userID, err)
	}
	return events, nil
}

func (s *IdentityService) GetUser(ctx context.Context, userID string) (*model.PublicUser, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userID", "user ID is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: fetching user %s: %w", userID, err)
	}
	return user.Public(), nil
}

// upgradeHash replaces a verified legacy hash with a bcrypt one. Failure only
// costs another upgrade attempt on the next login, so it is logged and ignored.
func (s *IdentityService) upgradeHash(ctx context.Context, user *model.User, password string) {
	hash, err := s.passwords.Hash(password)
	if err == nil {
		user.PasswordHash = hash
		err = s.users.Update(ctx, user)
	}
	if err != nil {
		s.logger.Warn("upgrading legacy password hash",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("legacy password hash upgraded", slog.String("userID", user.ID))
}

func (s *IdentityService) recordLogin(ctx context.Context, userID string) error {
	event := &model.LoginEvent{UserID: userID, Timestamp: time.Now().UTC()}
	if err := s.logins.Append(ctx, event); err != nil {
		return fmt.Errorf("service/identity: recording login for %s: %w", userID, err)
	}
	return nil
}
