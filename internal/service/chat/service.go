// Package chat owns the conversation entity and coordinates the send-message
// transaction: resolve conversation, append the user turn, call the model
// gateway, structure the reply, append the assistant turn, persist.
package chat

import (
	"context"
	"database/sql"
	"errors"

	"clarichat/internal/gateway"
	"clarichat/internal/models"
	"clarichat/internal/redis"
)

var (
	ErrEmptyMessage    = errors.New("message required")
	ErrEmptyTitle      = errors.New("title required")
	ErrNotFound        = errors.New("conversation not found")
	ErrForbidden       = errors.New("forbidden")
	ErrVersionConflict = errors.New("conversation was modified concurrently")
)

// ReplyGenerator is the model gateway as seen by the orchestrator. It never
// returns an error; failures surface as sentinel text in the Result.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, latest string, history []models.Turn, opts *gateway.Options) gateway.Result
}

// Service handles user accounts, conversation persistence, and message sends.
// The redis cache is optional; a nil cache only disables list caching.
type Service struct {
	db      *sql.DB
	cache   *redis.Client
	gateway ReplyGenerator
}

// NewService builds the chat service.
func NewService(db *sql.DB, cache *redis.Client, gw ReplyGenerator) *Service {
	return &Service{db: db, cache: cache, gateway: gw}
}
