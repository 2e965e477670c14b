package chat

import (
	"context"
	"regexp"
	"strings"
	"time"

	"clarichat/internal/models"
	"clarichat/internal/structurer"
)

const (
	replyLimit     = 8000
	previewLimit   = 120
	replyEllipsis  = "..."
	emptyReplyText = "Sorry, I couldn't generate a reply."
)

// errorFlagRe marks replies that look like provider failures. The flag is
// informational: the turn is saved and returned either way.
var errorFlagRe = regexp.MustCompile(`(?i)error|network|forbidden|quota|authentication`)

// SendResult is the stable response shape of a send-message transaction.
type SendResult struct {
	ConvID     int64
	Reply      string
	Structured *models.StructuredReply
	Preview    string
	UpdatedAt  time.Time
	ErrorText  string
}

// HandleSend runs one send-message transaction: resolve the conversation,
// append the user turn, build the bounded history window, call the gateway
// (which cannot fail), structure the reply, append the assistant turn, and
// persist. A save rejected by the optimistic version check is retried once
// against a freshly loaded transcript.
func (s *Service) HandleSend(ctx context.Context, userID, convID int64, message string) (*SendResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.GetOrCreate(ctx, userID, convID, message)
	if err != nil {
		return nil, err
	}

	s.AppendMessage(conv, models.RoleUser, message, nil)

	// The window bounds the model context including the new turn; the gateway
	// appends the latest message itself, so strip it from the history.
	window := s.HistoryWindow(conv, historyLimit)
	history := window[:len(window)-1]

	res := s.gateway.GenerateReply(ctx, message, history, nil)
	reply := res.Text
	if reply == "" {
		reply = emptyReplyText
	}
	if len([]rune(reply)) > replyLimit {
		reply = truncateRunes(reply, replyLimit) + replyEllipsis
	}

	structured := structurer.Structure(reply)
	s.AppendMessage(conv, models.RoleAssistant, reply, structured)

	if err := s.Save(ctx, conv); err != nil {
		if err != ErrVersionConflict {
			return nil, err
		}
		conv, err = s.replayOnConflict(ctx, userID, conv.ID, message, reply, structured)
		if err != nil {
			return nil, err
		}
	}

	result := &SendResult{
		ConvID:     conv.ID,
		Reply:      reply,
		Structured: structured,
		Preview:    replyPreview(reply, structured),
		UpdatedAt:  conv.UpdatedAt,
	}
	if errorFlagRe.MatchString(reply) {
		result.ErrorText = reply
	}
	return result, nil
}

// replayOnConflict reloads the transcript that moved under us and re-appends
// both turns on top of it. A second conflict is surfaced to the caller.
func (s *Service) replayOnConflict(ctx context.Context, userID, convID int64, message, reply string, structured *models.StructuredReply) (*models.Conversation, error) {
	conv, err := s.Get(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	s.AppendMessage(conv, models.RoleUser, message, nil)
	s.AppendMessage(conv, models.RoleAssistant, reply, structured)
	if err := s.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func replyPreview(reply string, structured *models.StructuredReply) string {
	if structured != nil && structured.Preview != "" {
		return structured.Preview
	}
	if len([]rune(reply)) > previewLimit {
		return truncateRunes(reply, previewLimit) + replyEllipsis
	}
	return reply
}
