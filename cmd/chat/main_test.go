package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"tribu-agent/internal/chat"
	"tribu-agent/internal/client"
	"tribu-agent/internal/conversation"
	"tribu-agent/internal/domain"
	"tribu-agent/internal/extract"
)

type stubSubmitter struct{}

func (stubSubmitter) SubmitCompleteProfile(_ context.Context, p domain.Profile) (domain.RecommendationResult, error) {
	return domain.RecommendationResult{CulturalProfile: domain.CulturalProfile{Identity: "Music Enthusiast", Music: p.Music}}, nil
}

func newLocalSession(t *testing.T) *chat.Session {
	t.Helper()
	tracker, err := conversation.NewTracker(extract.NewKeywordExtractor(extract.DefaultVocabulary()), conversation.RequireAtLeast(1))
	require.NoError(t, err)
	s, err := chat.NewSession(tracker, stubSubmitter{}, nil)
	require.NoError(t, err)
	return s
}

func TestRun_CompletesAndPrintsResult(t *testing.T) {
	s := newLocalSession(t)
	var out bytes.Buffer

	err := run(context.Background(), s, strings.NewReader("I love jazz\n/transcript\n/quit\n"), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), conversation.PromptFor(domain.CategoryMusic))
	require.Contains(t, out.String(), conversation.CompletionMessage)
	require.Contains(t, out.String(), `"identity": "Music Enthusiast"`)
	require.Contains(t, out.String(), "user: I love jazz")
}

func TestRun_SaveAndLoadTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.json")
	s := newLocalSession(t)
	var out bytes.Buffer

	input := "/save " + path + "\n/reset\n/load " + path + "\n"
	require.NoError(t, run(context.Background(), s, strings.NewReader(input), &out))
	require.Len(t, s.Transcript(), 1)

	require.NoError(t, run(context.Background(), s, strings.NewReader("/load\n"), &out))
	require.Contains(t, out.String(), "usage: /load <file>")
}

// fakeBackend serves the probes and a two-question conversation on
// /api/process.
func fakeBackend(t *testing.T, healthy bool) *client.Client {
	t.Helper()
	var turns int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		case "/status":
			_, _ = w.Write([]byte(`{"status":"running"}`))
		case "/api/process":
			var in struct {
				UserInput string `json:"user_input"`
				SessionID string `json:"session_id"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			turns++
			if turns == 1 {
				require.Empty(t, in.SessionID)
				_, _ = w.Write([]byte(`{"assistant_message":"` + conversation.PromptFor(domain.CategoryArt) + `","session_id":"sess-1","context":{"music":["jazz"]},"profile_complete":false}`))
				return
			}
			require.Equal(t, "sess-1", in.SessionID)
			_, _ = w.Write([]byte(`{"assistant_message":"` + conversation.CompletionMessage + `","session_id":"sess-1","context":{"music":["jazz"],"art":["cinema"]},"profile_complete":true,"cultural_profile":{"identity":"Creative Cultural Explorer"},"recommendations":{"brands":[]},"matching":{"affinity_percentage":85}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	api, err := client.New(client.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return api
}

func TestNewSession_Modes(t *testing.T) {
	api := fakeBackend(t, true)

	_, err := newSession(modeLocal, "", api, nil)
	require.ErrorContains(t, err, "COMPLETION_POLICY")
	_, err = newSession(modeLocal, "most", api, nil)
	require.Error(t, err)
	_, err = newSession("grpc", "", api, nil)
	require.ErrorContains(t, err, "CHAT_MODE")

	s, err := newSession(modeLocal, "at-least-3", api, nil)
	require.NoError(t, err)
	require.IsType(t, &chat.Session{}, s)

	s, err = newSession(modeRemote, "", api, nil)
	require.NoError(t, err)
	require.IsType(t, &chat.Remote{}, s)
}

func TestRun_RemoteModeRendersBackendResult(t *testing.T) {
	s, err := newSession(modeRemote, "", fakeBackend(t, true), nil)
	require.NoError(t, err)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), s, strings.NewReader("jazz\ncinema\n/quit\n"), &out))
	require.Contains(t, out.String(), conversation.PromptFor(domain.CategoryArt))
	require.Contains(t, out.String(), conversation.CompletionMessage)
	require.Contains(t, out.String(), `"identity": "Creative Cultural Explorer"`)
	require.Contains(t, out.String(), `"affinity_percentage": 85`)
	require.Equal(t, "sess-1", s.(*chat.Remote).SessionID())
}

func TestCheckBackend(t *testing.T) {
	require.True(t, checkBackend(context.Background(), fakeBackend(t, true), slog.Default()))
	require.False(t, checkBackend(context.Background(), fakeBackend(t, false), slog.Default()))
}
