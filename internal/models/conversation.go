package models

import (
	"strings"
	"time"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

type Message struct {
	ID        string      `json:"id" bson:"id"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
}

func (m Message) Valid() bool {
	return m.Role.Valid() && strings.TrimSpace(m.Content) != ""
}

// Conversation is the chat thread scoped to one project. An empty ProjectID
// means no project is selected; an empty SessionID means the upstream
// assistant has not opened a session yet.
type Conversation struct {
	ProjectID string    `json:"projectId" bson:"project_id"`
	Messages  []Message `json:"messages" bson:"messages"`
	SessionID string    `json:"sessionId" bson:"session_id"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

func (c Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

func (c Conversation) Clone() Conversation {
	clone := c
	if c.Messages != nil {
		clone.Messages = append([]Message(nil), c.Messages...)
	}
	return clone
}
