package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clarichat/internal/gateway"
	"clarichat/internal/models"
)

func TestHandleSendRejectsBlankMessage(t *testing.T) {
	svc := newTestService(t, &fakeGateway{reply: "ok"})
	userID := createTestUser(t, svc, "blank-send@example.com")

	_, err := svc.HandleSend(context.Background(), userID, 0, "   \n ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestHandleSendCreatesConversationFromFirstMessage(t *testing.T) {
	gw := &fakeGateway{reply: "Hello back. How can I help?"}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "first-send@example.com")
	ctx := context.Background()

	result, err := svc.HandleSend(ctx, userID, 0, "Hello")
	require.NoError(t, err)
	assert.NotZero(t, result.ConvID)
	assert.Equal(t, "Hello back. How can I help?", result.Reply)
	assert.Empty(t, result.ErrorText)

	conv, err := svc.Get(ctx, userID, result.ConvID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	require.NotNil(t, conv.Messages[1].Structured)
}

func TestHandleSendBoundsHistoryWindow(t *testing.T) {
	gw := &fakeGateway{reply: "noted"}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "window@example.com")
	ctx := context.Background()

	conv, err := svc.Create(ctx, userID, "Long thread")
	require.NoError(t, err)
	loaded, err := svc.Get(ctx, userID, conv.ID)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		svc.AppendMessage(loaded, models.RoleUser, "older turn", nil)
	}
	require.NoError(t, svc.Save(ctx, loaded))

	_, err = svc.HandleSend(ctx, userID, conv.ID, "latest question")
	require.NoError(t, err)

	// 19 prior turns plus the latest message make up the 20-turn window.
	require.Len(t, gw.lastHistory, 19)
	for _, turn := range gw.lastHistory {
		assert.Equal(t, "older turn", turn.Content)
	}
	assert.Equal(t, "latest question", gw.lastLatest)
}

func TestHandleSendCapsOversizedReply(t *testing.T) {
	gw := &fakeGateway{reply: strings.Repeat("y", 9000)}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "cap@example.com")

	result, err := svc.HandleSend(context.Background(), userID, 0, "write a novel")
	require.NoError(t, err)
	assert.Len(t, []rune(result.Reply), 8003)
	assert.True(t, strings.HasSuffix(result.Reply, "..."))
}

func TestHandleSendSubstitutesEmptyReply(t *testing.T) {
	gw := &fakeGateway{reply: ""}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "empty-reply@example.com")

	result, err := svc.HandleSend(context.Background(), userID, 0, "anyone there?")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I couldn't generate a reply.", result.Reply)
}

func TestHandleSendFlagsErrorLookingReply(t *testing.T) {
	gw := &fakeGateway{reply: "Error: Could not fetch response from the model at this time.", failed: true}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "flag@example.com")
	ctx := context.Background()

	result, err := svc.HandleSend(ctx, userID, 0, "hi")
	require.NoError(t, err)
	assert.Equal(t, result.Reply, result.ErrorText)

	// The flagged turn is still persisted like any other.
	conv, err := svc.Get(ctx, userID, result.ConvID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, result.Reply, conv.Messages[1].Content)
}

func TestHandleSendFlagsQuotaMention(t *testing.T) {
	gw := &fakeGateway{reply: "Your quota has been exceeded for today."}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "quota@example.com")

	result, err := svc.HandleSend(context.Background(), userID, 0, "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, result.ErrorText)
}

func TestHandleSendPreviewFallsBackToTruncatedReply(t *testing.T) {
	// No sentence-final punctuation, so the structurer yields no preview
	// shorter than the reply itself.
	gw := &fakeGateway{reply: strings.Repeat("z", 150)}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "preview@example.com")

	result, err := svc.HandleSend(context.Background(), userID, 0, "hi")
	require.NoError(t, err)
	assert.Len(t, []rune(result.Preview), 123)
	assert.True(t, strings.HasSuffix(result.Preview, "..."))
}

func TestHandleSendRetriesOnceOnVersionConflict(t *testing.T) {
	gw := &fakeGateway{reply: "done"}
	svc := newTestService(t, gw)
	userID := createTestUser(t, svc, "replay@example.com")
	ctx := context.Background()

	conv, err := svc.Create(ctx, userID, "Contended")
	require.NoError(t, err)

	// Move the stored version from under the send by renaming mid-flight.
	// The conflicting writer interposes between Get and Save, which we
	// simulate with a gateway that renames during generation.
	renaming := &renamingGateway{svc: svc, userID: userID, convID: conv.ID, reply: "done"}
	svc.gateway = renaming

	result, err := svc.HandleSend(ctx, userID, conv.ID, "still works?")
	require.NoError(t, err)

	loaded, err := svc.Get(ctx, userID, result.ConvID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed mid-flight", loaded.Title)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "still works?", loaded.Messages[0].Content)
	assert.Equal(t, "done", loaded.Messages[1].Content)
}

// renamingGateway renames the conversation while "generating", forcing the
// subsequent save into a version conflict.
type renamingGateway struct {
	svc    *Service
	userID int64
	convID int64
	reply  string
}

func (g *renamingGateway) GenerateReply(ctx context.Context, latest string, history []models.Turn, opts *gateway.Options) gateway.Result {
	if err := g.svc.Rename(ctx, g.convID, g.userID, "Renamed mid-flight"); err != nil {
		return gateway.Result{Text: "rename failed: " + err.Error(), Failed: true}
	}
	return gateway.Result{Text: g.reply}
}
