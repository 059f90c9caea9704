package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tribu-agent/internal/client"
	"tribu-agent/internal/conversation"
	"tribu-agent/internal/domain"
)

type MessageSubmitter interface {
	SubmitIncrementalMessage(ctx context.Context, sessionID, text string) (client.ProcessReply, error)
}

// Remote drives a conversation whose questionnaire state lives on the
// backend. Each answer is sent as one incremental message under the session
// id the backend handed out on the first reply.
type Remote struct {
	gate      sync.Mutex
	submitter MessageSubmitter
	logger    *slog.Logger

	mu         sync.Mutex
	sessionID  string
	transcript []domain.ChatMessage
	result     *domain.RecommendationResult
	pending    string
}

func NewRemote(submitter MessageSubmitter, logger *slog.Logger) (*Remote, error) {
	if submitter == nil {
		return nil, errors.New("chat: message submitter must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Remote{submitter: submitter, logger: logger}
	r.greet()
	return r, nil
}

// Send submits one answer to the backend.
func (r *Remote) Send(ctx context.Context, text string) (Reply, error) {
	if !r.gate.TryLock() {
		return Reply{}, ErrBusy
	}
	defer r.gate.Unlock()
	return r.send(ctx, text, true)
}

// Retry resends the answer whose request last failed.
func (r *Remote) Retry(ctx context.Context) (Reply, error) {
	if !r.gate.TryLock() {
		return Reply{}, ErrBusy
	}
	defer r.gate.Unlock()

	r.mu.Lock()
	text := r.pending
	r.pending = ""
	r.mu.Unlock()
	if text == "" {
		return Reply{}, ErrNothingPending
	}
	return r.send(ctx, text, false)
}

func (r *Remote) send(ctx context.Context, text string, record bool) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Message: r.lastAssistant()}, nil
	}
	if record {
		r.appendMessage(domain.RoleUser, text)
	}

	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()

	res, err := r.submitter.SubmitIncrementalMessage(ctx, sessionID, text)
	if err != nil {
		r.mu.Lock()
		r.pending = text
		r.mu.Unlock()
		r.appendMessage(domain.RoleAssistant, ErrorMessage)
		r.logger.WarnContext(ctx, "incremental message failed", "session_id", sessionID, "err", err)
		return Reply{Message: ErrorMessage}, fmt.Errorf("chat: submit message: %w", err)
	}

	reply := Reply{
		Message: res.AssistantMessage,
		Turn:    conversation.Turn{Accepted: true, Completed: res.ProfileComplete},
	}
	r.mu.Lock()
	if res.SessionID != "" {
		r.sessionID = res.SessionID
	}
	r.pending = ""
	if result, ok := res.Result(); ok {
		r.result = &result
		reply.Result = &result
		reply.Turn.JustCompleted = true
	}
	r.mu.Unlock()
	r.appendMessage(domain.RoleAssistant, res.AssistantMessage)
	return reply, nil
}

// Reset drops the backend session; the next answer opens a new one.
func (r *Remote) Reset() error {
	if !r.gate.TryLock() {
		return ErrBusy
	}
	defer r.gate.Unlock()

	r.mu.Lock()
	r.sessionID = ""
	r.transcript = nil
	r.result = nil
	r.pending = ""
	r.mu.Unlock()
	r.greet()
	return nil
}

// SessionID returns the backend session id, empty before the first reply.
func (r *Remote) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Remote) Transcript() []domain.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChatMessage{}, r.transcript...)
}

func (r *Remote) RestoreTranscript(msgs []domain.ChatMessage) error {
	if err := checkRoles(msgs); err != nil {
		return err
	}
	r.mu.Lock()
	r.transcript = append([]domain.ChatMessage{}, msgs...)
	r.mu.Unlock()
	return nil
}

func (r *Remote) Result() (domain.RecommendationResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return domain.RecommendationResult{}, false
	}
	return *r.result, true
}

func (r *Remote) Pending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// greet shows the first question; the backend asks it too after a reset.
func (r *Remote) greet() {
	r.appendMessage(domain.RoleAssistant, conversation.PromptFor(domain.Categories[0]))
}

func (r *Remote) lastAssistant() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.transcript) - 1; i >= 0; i-- {
		if r.transcript[i].Role == domain.RoleAssistant {
			return r.transcript[i].Content
		}
	}
	return ""
}

func (r *Remote) appendMessage(role, content string) {
	r.mu.Lock()
	r.transcript = append(r.transcript, domain.ChatMessage{Role: role, Content: content})
	r.mu.Unlock()
}
