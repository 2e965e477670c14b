package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"clarichat/internal/models"
)

const (
	historyLimit     = 20
	seedTitleLimit   = 60
	lastMessageLimit = 200
	defaultTitle     = "New chat"
	titleEllipsis    = "..."
)

// GetOrCreate resolves the conversation for a send. With a conversation id it
// fetches the transcript, failing with ErrNotFound or ErrForbidden. Without
// one it builds an unpersisted conversation titled from the seed text; the
// first Save inserts it.
func (s *Service) GetOrCreate(ctx context.Context, userID, convID int64, seed string) (*models.Conversation, error) {
	if convID > 0 {
		return s.Get(ctx, userID, convID)
	}
	now := time.Now().UTC()
	return &models.Conversation{
		UserID:    userID,
		Title:     seedTitle(seed),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get loads one conversation with its ordered messages, owner-checked.
func (s *Service) Get(ctx context.Context, userID, convID int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, version, created_at, updated_at FROM conversations WHERE id = ?`,
		convID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Version, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, conversation_id, role, content, structured, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`,
		convID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := new(models.Message)
		var structured sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Role, &m.Content, &structured, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if structured.Valid && structured.String != "" {
			var sr models.StructuredReply
			if err := json.Unmarshal([]byte(structured.String), &sr); err == nil {
				m.Structured = &sr
			}
		}
		conv.Messages = append(conv.Messages, m)
	}
	return &conv, rows.Err()
}

// AppendMessage adds a turn to the in-memory transcript; Save persists it.
func (s *Service) AppendMessage(conv *models.Conversation, role models.Role, content string, structured *models.StructuredReply) *models.Message {
	msg := &models.Message{
		UserID:         conv.UserID,
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		Structured:     structured,
		CreatedAt:      time.Now().UTC(),
	}
	conv.Messages = append(conv.Messages, msg)
	return msg
}

// HistoryWindow returns the last limit messages as {role, content} pairs,
// oldest first, bounding the context sent to the model.
func (s *Service) HistoryWindow(conv *models.Conversation, limit int) []models.Turn {
	if limit <= 0 {
		limit = historyLimit
	}
	msgs := conv.Messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	turns := make([]models.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, models.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// Save persists the conversation and any unpersisted messages, bumping the
// update timestamp. For an existing conversation the stored version must
// still match the loaded one; a moved version yields ErrVersionConflict
// instead of silently overwriting a concurrent append.
func (s *Service) Save(ctx context.Context, conv *models.Conversation) (err error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if conv.ID == 0 {
		res, execErr := tx.ExecContext(ctx,
			`INSERT INTO conversations (user_id, title, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
			conv.UserID, conv.Title, now, now,
		)
		if execErr != nil {
			return fmt.Errorf("insert conversation: %w", execErr)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("conversation id: %w", idErr)
		}
		conv.ID = id
		conv.Version = 1
		conv.CreatedAt = now
	} else {
		res, execErr := tx.ExecContext(ctx,
			`UPDATE conversations SET title = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
			conv.Title, now, conv.ID, conv.Version,
		)
		if execErr != nil {
			return fmt.Errorf("update conversation: %w", execErr)
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return fmt.Errorf("conversation rows affected: %w", affErr)
		}
		if affected == 0 {
			var current int64
			scanErr := tx.QueryRowContext(ctx, `SELECT version FROM conversations WHERE id = ?`, conv.ID).Scan(&current)
			if errors.Is(scanErr, sql.ErrNoRows) {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		conv.Version++
	}
	conv.UpdatedAt = now

	for _, m := range conv.Messages {
		if m.ID != 0 {
			continue
		}
		m.ConversationID = conv.ID
		structured, marshalErr := marshalStructured(m.Structured)
		if marshalErr != nil {
			return marshalErr
		}
		res, execErr := tx.ExecContext(ctx,
			`INSERT INTO messages (user_id, conversation_id, role, content, structured, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			m.UserID, m.ConversationID, m.Role, m.Content, structured, m.CreatedAt,
		)
		if execErr != nil {
			return fmt.Errorf("insert message: %w", execErr)
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("message id: %w", idErr)
		}
		m.ID = id
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.invalidateListCache(ctx, conv.UserID)
	return nil
}

// List returns the owner's conversations newest-activity first, each reduced
// to a summary with a truncated last-message preview.
func (s *Service) List(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	if cached, ok := s.loadCachedList(ctx, userID); ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var sum models.ConversationSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		var role models.Role
		var content string
		err := s.db.QueryRowContext(ctx,
			`SELECT role, content FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
			summaries[i].ID,
		).Scan(&role, &content)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("last message: %w", err)
		}
		summaries[i].LastMessage = &models.MessagePreview{Role: role, Content: truncateRunes(content, lastMessageLimit)}
	}

	s.storeCachedList(ctx, userID, summaries)
	return summaries, nil
}

// Rename sets a new title, owner-checked, and bumps the update timestamp.
func (s *Service) Rename(ctx context.Context, convID, userID int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if err := s.checkOwner(ctx, convID, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), convID,
	); err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	s.invalidateListCache(ctx, userID)
	return nil
}

// Delete removes a conversation and cascades its message list, owner-checked.
func (s *Service) Delete(ctx context.Context, convID, userID int64) (err error) {
	if err := s.checkOwner(ctx, convID, userID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, convID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, convID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	s.invalidateListCache(ctx, userID)
	return nil
}

// Create inserts an empty conversation with the given title (defaulting to
// "New chat"), for the explicit new-conversation endpoint.
func (s *Service) Create(ctx context.Context, userID int64, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, title, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
		userID, title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}
	s.invalidateListCache(ctx, userID)
	return &models.Conversation{ID: id, UserID: userID, Title: title, Version: 1, CreatedAt: now, UpdatedAt: now}, nil
}

// checkOwner distinguishes a missing conversation from one owned by someone
// else; callers map these to 404 and 403 respectively.
func (s *Service) checkOwner(ctx context.Context, convID, userID int64) error {
	if convID <= 0 {
		return ErrNotFound
	}
	var owner int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM conversations WHERE id = ?`, convID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup conversation owner: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}
	return nil
}

func seedTitle(seed string) string {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return defaultTitle
	}
	if len([]rune(seed)) > seedTitleLimit {
		return truncateRunes(seed, seedTitleLimit) + titleEllipsis
	}
	return seed
}

func marshalStructured(sr *models.StructuredReply) (interface{}, error) {
	if sr == nil {
		return nil, nil
	}
	raw, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("marshal structured reply: %w", err)
	}
	return string(raw), nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
