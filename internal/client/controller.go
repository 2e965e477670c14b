package client

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"clarichat/internal/models"
)

const (
	autoTitleLimit    = 30
	autoTitleEllipsis = "..."
)

// DeliveryState tracks an optimistic message through its round trip.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// ViewState is the coarse activity of the conversation view.
type ViewState string

const (
	StateIdle                ViewState = "idle"
	StateLoadingList         ViewState = "loading-list"
	StateLoadingConversation ViewState = "loading-conversation"
	StateSending             ViewState = "sending"
)

// LocalMessage is a transcript entry as the view sees it. Optimistic entries
// carry a locally generated id until the server confirms them.
type LocalMessage struct {
	LocalID    string
	ServerID   int64
	Role       models.Role
	Content    string
	Structured *models.StructuredReply
	State      DeliveryState
}

// ChatAPI is the server surface the controller needs.
type ChatAPI interface {
	Send(ctx context.Context, convID int64, message string) (*SendResponse, error)
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	GetConversation(ctx context.Context, convID int64) (*models.Conversation, error)
	RenameConversation(ctx context.Context, convID int64, title string) error
	DeleteConversation(ctx context.Context, convID int64) error
}

// Controller drives one conversation view. Messages are appended
// optimistically: a send shows up as pending immediately, then flips to
// confirmed or failed when the server answers. Sends are not serialized;
// overlapping sends each settle independently.
type Controller struct {
	api    ChatAPI
	drafts *DraftStore
	notify func(text string)

	mu        sync.Mutex
	state     ViewState
	convID    int64
	title     string
	messages  []*LocalMessage
	summaries []models.ConversationSummary
}

// NewController builds a controller. The notify callback surfaces transient
// failures to the user (a toast in the web UI); it may be nil. The draft
// store may be nil to disable draft persistence.
func NewController(api ChatAPI, drafts *DraftStore, notify func(text string)) *Controller {
	if notify == nil {
		notify = func(string) {}
	}
	return &Controller{
		api:    api,
		drafts: drafts,
		notify: notify,
		state:  StateIdle,
	}
}

// State reports the current view state.
func (ctl *Controller) State() ViewState {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.state
}

// ConversationID returns the active conversation id, zero for an unsaved one.
func (ctl *Controller) ConversationID() int64 {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.convID
}

// Title returns the active conversation title.
func (ctl *Controller) Title() string {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.title
}

// Messages returns a snapshot of the transcript in display order.
func (ctl *Controller) Messages() []*LocalMessage {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	out := make([]*LocalMessage, len(ctl.messages))
	copy(out, ctl.messages)
	return out
}

// Summaries returns the last loaded conversation list.
func (ctl *Controller) Summaries() []models.ConversationSummary {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	out := make([]models.ConversationSummary, len(ctl.summaries))
	copy(out, ctl.summaries)
	return out
}

// NewConversation resets the view to an unsaved conversation.
func (ctl *Controller) NewConversation() {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.convID = 0
	ctl.title = ""
	ctl.messages = nil
	ctl.state = StateIdle
}

// LoadList refreshes the conversation summaries.
func (ctl *Controller) LoadList(ctx context.Context) error {
	ctl.setState(StateLoadingList)
	defer ctl.setState(StateIdle)

	summaries, err := ctl.api.ListConversations(ctx)
	if err != nil {
		ctl.notify("Could not load conversations")
		return err
	}
	ctl.mu.Lock()
	ctl.summaries = summaries
	ctl.mu.Unlock()
	return nil
}

// LoadConversation replaces the view with a server transcript. Server
// messages arrive confirmed; any local pending entries are discarded since
// their sends will settle against a conversation the view no longer shows.
func (ctl *Controller) LoadConversation(ctx context.Context, convID int64) error {
	ctl.setState(StateLoadingConversation)
	defer ctl.setState(StateIdle)

	conv, err := ctl.api.GetConversation(ctx, convID)
	if err != nil {
		ctl.notify("Could not load conversation")
		return err
	}

	messages := make([]*LocalMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, &LocalMessage{
			LocalID:    uuid.NewString(),
			ServerID:   m.ID,
			Role:       m.Role,
			Content:    m.Content,
			Structured: m.Structured,
			State:      DeliveryConfirmed,
		})
	}

	ctl.mu.Lock()
	ctl.convID = conv.ID
	ctl.title = conv.Title
	ctl.messages = messages
	ctl.mu.Unlock()
	return nil
}

// Send appends the message optimistically and dispatches it. The returned
// LocalMessage is the pending user entry; its State reflects the outcome
// when Send returns. The first send of an unsaved conversation also derives
// a local title from the message text.
func (ctl *Controller) Send(ctx context.Context, text string) (*LocalMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	ctl.mu.Lock()
	convID := ctl.convID
	firstMessage := convID == 0 && len(ctl.messages) == 0
	userMsg := &LocalMessage{
		LocalID: uuid.NewString(),
		Role:    models.RoleUser,
		Content: trimmed,
		State:   DeliveryPending,
	}
	ctl.messages = append(ctl.messages, userMsg)
	if firstMessage {
		ctl.title = AutoTitle(trimmed)
	}
	ctl.state = StateSending
	ctl.mu.Unlock()

	if ctl.drafts != nil {
		ctl.drafts.Clear(convID)
	}

	resp, err := ctl.api.Send(ctx, convID, trimmed)

	ctl.mu.Lock()
	ctl.state = StateIdle
	if err != nil {
		userMsg.State = DeliveryFailed
		ctl.mu.Unlock()
		ctl.notify("Message failed to send")
		return userMsg, err
	}

	userMsg.State = DeliveryConfirmed
	if ctl.convID == 0 {
		ctl.convID = resp.ConvID
	}
	ctl.messages = append(ctl.messages, &LocalMessage{
		LocalID:    uuid.NewString(),
		Role:       models.RoleAssistant,
		Content:    resp.Reply,
		Structured: resp.Assistant,
		State:      DeliveryConfirmed,
	})
	confirmedConvID := ctl.convID
	title := ctl.title
	ctl.mu.Unlock()

	if resp.Error != "" {
		ctl.notify(resp.Error)
	}
	if firstMessage {
		ctl.applyAutoTitle(ctx, confirmedConvID, title)
	}
	return userMsg, nil
}

// applyAutoTitle pushes the derived first-message title to the server and
// refreshes the conversation list so the sidebar shows it. Both calls are
// best-effort; the local title already reflects the derived value.
func (ctl *Controller) applyAutoTitle(ctx context.Context, convID int64, title string) {
	if convID == 0 || title == "" {
		return
	}
	if err := ctl.api.RenameConversation(ctx, convID, title); err != nil {
		return
	}
	if summaries, err := ctl.api.ListConversations(ctx); err == nil {
		ctl.mu.Lock()
		ctl.summaries = summaries
		ctl.mu.Unlock()
	}
}

// Retry re-sends a failed optimistic message in place.
func (ctl *Controller) Retry(ctx context.Context, localID string) (*LocalMessage, error) {
	ctl.mu.Lock()
	var target *LocalMessage
	for _, m := range ctl.messages {
		if m.LocalID == localID && m.State == DeliveryFailed {
			target = m
			break
		}
	}
	if target == nil {
		ctl.mu.Unlock()
		return nil, nil
	}
	target.State = DeliveryPending
	convID := ctl.convID
	content := target.Content
	ctl.mu.Unlock()

	resp, err := ctl.api.Send(ctx, convID, content)

	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if err != nil {
		target.State = DeliveryFailed
		ctl.notify("Message failed to send")
		return target, err
	}
	target.State = DeliveryConfirmed
	if ctl.convID == 0 {
		ctl.convID = resp.ConvID
	}
	ctl.messages = append(ctl.messages, &LocalMessage{
		LocalID:    uuid.NewString(),
		Role:       models.RoleAssistant,
		Content:    resp.Reply,
		Structured: resp.Assistant,
		State:      DeliveryConfirmed,
	})
	return target, nil
}

// Rename updates the title server-side and locally.
func (ctl *Controller) Rename(ctx context.Context, title string) error {
	ctl.mu.Lock()
	convID := ctl.convID
	ctl.mu.Unlock()
	if convID == 0 {
		ctl.mu.Lock()
		ctl.title = strings.TrimSpace(title)
		ctl.mu.Unlock()
		return nil
	}
	if err := ctl.api.RenameConversation(ctx, convID, title); err != nil {
		ctl.notify("Could not rename conversation")
		return err
	}
	ctl.mu.Lock()
	ctl.title = strings.TrimSpace(title)
	ctl.mu.Unlock()
	return nil
}

// Delete removes the active conversation and resets the view.
func (ctl *Controller) Delete(ctx context.Context) error {
	ctl.mu.Lock()
	convID := ctl.convID
	ctl.mu.Unlock()
	if convID == 0 {
		ctl.NewConversation()
		return nil
	}
	if err := ctl.api.DeleteConversation(ctx, convID); err != nil {
		ctl.notify("Could not delete conversation")
		return err
	}
	if ctl.drafts != nil {
		ctl.drafts.Clear(convID)
	}
	ctl.NewConversation()
	return nil
}

func (ctl *Controller) setState(s ViewState) {
	ctl.mu.Lock()
	ctl.state = s
	ctl.mu.Unlock()
}

// AutoTitle derives a conversation title from its first message: whitespace
// collapsed, cut to thirty characters, first letter capitalized.
func AutoTitle(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return ""
	}
	runes := []rune(collapsed)
	if len(runes) > autoTitleLimit {
		collapsed = string(runes[:autoTitleLimit]) + autoTitleEllipsis
		runes = []rune(collapsed)
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
