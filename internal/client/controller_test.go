package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clarichat/internal/models"
)

// fakeAPI answers controller calls from canned data.
type fakeAPI struct {
	sendResp  *SendResponse
	sendErr   error
	sendCalls int
	lastConv  int64
	lastText  string

	conversation *models.Conversation
	summaries    []models.ConversationSummary
	renamed      map[int64]string
	deleted      []int64
}

func (f *fakeAPI) Send(ctx context.Context, convID int64, message string) (*SendResponse, error) {
	f.sendCalls++
	f.lastConv = convID
	f.lastText = message
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendResp, nil
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	return f.summaries, nil
}

func (f *fakeAPI) GetConversation(ctx context.Context, convID int64) (*models.Conversation, error) {
	if f.conversation == nil {
		return nil, errors.New("not found")
	}
	return f.conversation, nil
}

func (f *fakeAPI) RenameConversation(ctx context.Context, convID int64, title string) error {
	if f.renamed == nil {
		f.renamed = make(map[int64]string)
	}
	f.renamed[convID] = title
	return nil
}

func (f *fakeAPI) DeleteConversation(ctx context.Context, convID int64) error {
	f.deleted = append(f.deleted, convID)
	return nil
}

func TestSendAppendsOptimisticallyAndConfirms(t *testing.T) {
	api := &fakeAPI{sendResp: &SendResponse{ConvID: 7, Reply: "hi there"}}
	ctl := NewController(api, nil, nil)

	msg, err := ctl.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, DeliveryConfirmed, msg.State)
	assert.Equal(t, int64(7), ctl.ConversationID())

	messages := ctl.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.Equal(t, "hi there", messages[1].Content)
	assert.NotEmpty(t, messages[0].LocalID)
	assert.NotEqual(t, messages[0].LocalID, messages[1].LocalID)
}

func TestSendMarksFailedOnError(t *testing.T) {
	var toasts []string
	api := &fakeAPI{sendErr: errors.New("boom")}
	ctl := NewController(api, nil, func(text string) { toasts = append(toasts, text) })

	msg, err := ctl.Send(context.Background(), "hello")
	require.Error(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, DeliveryFailed, msg.State)

	// The failed message stays in the transcript for retry.
	messages := ctl.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, DeliveryFailed, messages[0].State)
	assert.Equal(t, []string{"Message failed to send"}, toasts)
}

func TestRetryResendsFailedMessage(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("boom")}
	ctl := NewController(api, nil, nil)

	msg, err := ctl.Send(context.Background(), "hello")
	require.Error(t, err)

	api.sendErr = nil
	api.sendResp = &SendResponse{ConvID: 3, Reply: "recovered"}

	retried, err := ctl.Retry(context.Background(), msg.LocalID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryConfirmed, retried.State)
	assert.Equal(t, int64(3), ctl.ConversationID())

	messages := ctl.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "recovered", messages[1].Content)
}

func TestSendIgnoresBlankInput(t *testing.T) {
	api := &fakeAPI{}
	ctl := NewController(api, nil, nil)

	msg, err := ctl.Send(context.Background(), "   \n\t ")
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Zero(t, api.sendCalls)
}

func TestFirstSendDerivesLocalTitle(t *testing.T) {
	api := &fakeAPI{sendResp: &SendResponse{ConvID: 1, Reply: "ok"}}
	ctl := NewController(api, nil, nil)

	_, err := ctl.Send(context.Background(), "how   do I\nread a file in Go please explain")
	require.NoError(t, err)
	assert.Equal(t, "How do I read a file in Go ple...", ctl.Title())

	// The derived title is pushed to the server as a rename.
	assert.Equal(t, "How do I read a file in Go ple...", api.renamed[1])
}

func TestSendSurfacesServerErrorFlagAsToast(t *testing.T) {
	var toasts []string
	api := &fakeAPI{sendResp: &SendResponse{ConvID: 1, Reply: "quota exceeded", Error: "quota exceeded"}}
	ctl := NewController(api, nil, func(text string) { toasts = append(toasts, text) })

	_, err := ctl.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"quota exceeded"}, toasts)
}

func TestLoadConversationReplacesTranscript(t *testing.T) {
	api := &fakeAPI{
		conversation: &models.Conversation{
			ID:    9,
			Title: "Saved chat",
			Messages: []*models.Message{
				{ID: 1, Role: models.RoleUser, Content: "q"},
				{ID: 2, Role: models.RoleAssistant, Content: "a"},
			},
		},
	}
	ctl := NewController(api, nil, nil)

	require.NoError(t, ctl.LoadConversation(context.Background(), 9))
	assert.Equal(t, int64(9), ctl.ConversationID())
	assert.Equal(t, "Saved chat", ctl.Title())

	messages := ctl.Messages()
	require.Len(t, messages, 2)
	for _, m := range messages {
		assert.Equal(t, DeliveryConfirmed, m.State)
	}
	assert.Equal(t, StateIdle, ctl.State())
}

func TestNewConversationResetsView(t *testing.T) {
	api := &fakeAPI{sendResp: &SendResponse{ConvID: 4, Reply: "ok"}}
	ctl := NewController(api, nil, nil)

	_, err := ctl.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotZero(t, ctl.ConversationID())

	ctl.NewConversation()
	assert.Zero(t, ctl.ConversationID())
	assert.Empty(t, ctl.Title())
	assert.Empty(t, ctl.Messages())
}

func TestDeleteResetsAndCallsServer(t *testing.T) {
	api := &fakeAPI{sendResp: &SendResponse{ConvID: 5, Reply: "ok"}}
	ctl := NewController(api, nil, nil)

	_, err := ctl.Send(context.Background(), "hello")
	require.NoError(t, err)

	require.NoError(t, ctl.Delete(context.Background()))
	assert.Equal(t, []int64{5}, api.deleted)
	assert.Zero(t, ctl.ConversationID())
}

func TestAutoTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "hello\n\t  world", "Hello world"},
		{"capitalizes first letter", "what is go?", "What is go?"},
		{"short text untouched otherwise", "Hi", "Hi"},
		{"truncates to thirty", "this message is definitely longer than thirty characters", "This message is definitely lon..."},
		{"blank yields empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AutoTitle(tc.in))
		})
	}
}
