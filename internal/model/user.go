// Package model defines the records persisted by the chat backend.
//
// The JSON tags double as the on-disk layout of the document store, so a field
// rename here is a storage format change.
package model

import (
	"strings"
	"time"
)

// LegacyEmptyPasswordHash is the hex SHA-256 of the empty string. Older data
// files store it for login-only identities instead of an empty hash.
const LegacyEmptyPasswordHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// User is the stored account record.
//
// PasswordHash is empty (or LegacyEmptyPasswordHash) for identities created
// by a username-only login.
// Such an identity can later be claimed by registering with the same username.
// Never return User to clients; use Public instead.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasPassword reports whether the account was registered with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != "" && !strings.EqualFold(u.PasswordHash, LegacyEmptyPasswordHash)
}

// PublicUser is the client-facing view of a User without credentials.
type PublicUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Name        string    `json:"name,omitempty"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
}

// Public strips the password hash.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		HasPassword: u.HasPassword(),
		CreatedAt:   u.CreatedAt,
	}
}

// LoginEvent records one successful identification of a user. Append-only.
type LoginEvent struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}
