package model

import "time"

// DefaultChatTitle is used whenever a chat would otherwise have a blank title.
const DefaultChatTitle = "New chat"

// Chat is a titled conversation owned by one user.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Role identifies who authored a message.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAI
}

// Message is a single utterance in a chat. Messages of a chat are ordered by
// insertion; UpdatedAt is set only when the text was edited.
type Message struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	Username  string     `json:"username"`
	Text      string     `json:"text"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
