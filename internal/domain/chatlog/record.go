package chatlog

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultUserID = "default"
)

// Record is one normalized chat message.
type Record struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Title          string          `json:"title,omitempty"`
	AuthorRole     string          `json:"author_role"`
	Body           string          `json:"body"`
	CreatedAt      time.Time       `json:"created_at"`
	Company        string          `json:"company,omitempty"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
}

func (r Record) IsUser() bool      { return strings.EqualFold(r.AuthorRole, RoleUser) }
func (r Record) IsAssistant() bool { return strings.EqualFold(r.AuthorRole, RoleAssistant) }

// Conversation is a reconstructed, chronologically ordered thread.
type Conversation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title,omitempty"`
	Company    string    `json:"company,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Messages   []Record  `json:"messages"`
	Transcript string    `json:"transcript"`
}

// NormalizeRole lowercases a role and maps export-specific senders.
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "human" {
		return RoleUser
	}
	return r
}
