package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tribu-agent/internal/client"
	"tribu-agent/internal/conversation"
	"tribu-agent/internal/domain"
)

type fakeBackend struct {
	replies    []client.ProcessReply
	errs       []error
	sessionIDs []string
	texts      []string
}

func (f *fakeBackend) SubmitIncrementalMessage(_ context.Context, sessionID, text string) (client.ProcessReply, error) {
	f.sessionIDs = append(f.sessionIDs, sessionID)
	f.texts = append(f.texts, text)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return client.ProcessReply{}, err
		}
	}
	res := f.replies[0]
	f.replies = f.replies[1:]
	return res, nil
}

func TestNewRemote_Validates(t *testing.T) {
	_, err := NewRemote(nil, nil)
	require.Error(t, err)

	r, err := NewRemote(&fakeBackend{}, nil)
	require.NoError(t, err)
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleAssistant, Content: conversation.PromptFor(domain.CategoryMusic)}}, r.Transcript())
}

func TestRemote_CarriesSessionAndRendersResult(t *testing.T) {
	backend := &fakeBackend{replies: []client.ProcessReply{
		{AssistantMessage: conversation.PromptFor(domain.CategoryArt), SessionID: "sess-1"},
		{
			AssistantMessage: conversation.CompletionMessage,
			SessionID:        "sess-1",
			ProfileComplete:  true,
			CulturalProfile:  &domain.CulturalProfile{Identity: "Creative Cultural Explorer"},
			Recommendations:  map[string][]domain.Entity{"brands": {{Name: "Blue Note"}}},
			Matching:         &domain.Matching{AffinityPercentage: 85},
		},
		{AssistantMessage: conversation.CompletionMessage, SessionID: "sess-1", ProfileComplete: true},
	}}
	r, err := NewRemote(backend, nil)
	require.NoError(t, err)
	ctx := context.Background()

	reply, err := r.Send(ctx, "jazz")
	require.NoError(t, err)
	require.Nil(t, reply.Result)
	require.Equal(t, "sess-1", r.SessionID())

	reply, err = r.Send(ctx, "cinema")
	require.NoError(t, err)
	require.NotNil(t, reply.Result)
	require.True(t, reply.Turn.JustCompleted)
	require.Equal(t, "Creative Cultural Explorer", reply.Result.CulturalProfile.Identity)
	require.Equal(t, 85, reply.Result.Matching.AffinityPercentage)

	reply, err = r.Send(ctx, "more")
	require.NoError(t, err)
	require.Nil(t, reply.Result)
	require.True(t, reply.Turn.Completed)

	res, ok := r.Result()
	require.True(t, ok)
	require.Equal(t, "Blue Note", res.Recommendations["brands"][0].Name)
	require.Equal(t, []string{"", "sess-1", "sess-1"}, backend.sessionIDs)
	require.Len(t, r.Transcript(), 7)
}

func TestRemote_FailureKeepsAnswerForRetry(t *testing.T) {
	backend := &fakeBackend{
		errs: []error{&client.TransportError{StatusCode: 502, Message: "upstream down"}},
		replies: []client.ProcessReply{
			{AssistantMessage: conversation.PromptFor(domain.CategoryArt), SessionID: "sess-1"},
			{AssistantMessage: conversation.PromptFor(domain.CategoryFashion), SessionID: "sess-1"},
		},
	}
	r, err := NewRemote(backend, nil)
	require.NoError(t, err)
	ctx := context.Background()

	reply, err := r.Send(ctx, "jazz")
	var transportErr *client.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, ErrorMessage, reply.Message)
	require.Equal(t, "jazz", r.Pending())

	reply, err = r.Retry(ctx)
	require.NoError(t, err)
	require.Equal(t, conversation.PromptFor(domain.CategoryArt), reply.Message)
	require.Empty(t, r.Pending())
	require.Equal(t, []string{"jazz", "jazz"}, backend.texts)

	_, err = r.Retry(ctx)
	require.ErrorIs(t, err, ErrNothingPending)

	msgs := r.Transcript()
	require.Len(t, msgs, 4)
	require.Equal(t, ErrorMessage, msgs[2].Content)
}

func TestRemote_SuccessDropsStaleRetry(t *testing.T) {
	backend := &fakeBackend{
		errs:    []error{errors.New("connection refused")},
		replies: []client.ProcessReply{{AssistantMessage: conversation.PromptFor(domain.CategoryArt), SessionID: "sess-1"}},
	}
	r, err := NewRemote(backend, nil)
	require.NoError(t, err)

	_, err = r.Send(context.Background(), "jazz")
	require.Error(t, err)
	_, err = r.Send(context.Background(), "rock")
	require.NoError(t, err)
	require.Empty(t, r.Pending())
}

func TestRemote_BlankAnswerIsNotSent(t *testing.T) {
	backend := &fakeBackend{}
	r, err := NewRemote(backend, nil)
	require.NoError(t, err)

	reply, err := r.Send(context.Background(), "  ")
	require.NoError(t, err)
	require.Equal(t, conversation.PromptFor(domain.CategoryMusic), reply.Message)
	require.Empty(t, backend.texts)
}

func TestRemote_ResetDropsSession(t *testing.T) {
	backend := &fakeBackend{replies: []client.ProcessReply{
		{AssistantMessage: conversation.PromptFor(domain.CategoryArt), SessionID: "sess-1"},
		{AssistantMessage: conversation.PromptFor(domain.CategoryArt), SessionID: "sess-2"},
	}}
	r, err := NewRemote(backend, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.Send(ctx, "jazz")
	require.NoError(t, err)
	require.NoError(t, r.Reset())
	require.Empty(t, r.SessionID())
	require.Len(t, r.Transcript(), 1)

	_, err = r.Send(ctx, "rock")
	require.NoError(t, err)
	require.Equal(t, []string{"", ""}, backend.sessionIDs)
	require.Equal(t, "sess-2", r.SessionID())
}
