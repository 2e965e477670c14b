package models

import "time"

// Conversation is a titled, owned, ordered transcript of messages.
// Version backs the optimistic-concurrency check on save: a save whose
// version no longer matches the stored row is rejected instead of silently
// overwriting a concurrent append.
type Conversation struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Title     string     `json:"title"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`
}

// MessagePreview is the reduced last-message shape used in conversation lists.
type MessagePreview struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationSummary is one row of the sidebar listing.
type ConversationSummary struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	LastMessage *MessagePreview `json:"lastMessage"`
}
