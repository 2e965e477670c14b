package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation transcript. Structured is only
// populated for assistant turns; it stays nil for user and system messages.
type Message struct {
	ID             int64            `json:"id"`
	UserID         int64            `json:"user_id"`
	ConversationID int64            `json:"conversation_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	Structured     *StructuredReply `json:"structured,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Turn is the reduced {role, content} pair fed back to the model as context.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
