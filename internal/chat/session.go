// Package chat drives one interactive questionnaire: it feeds answers to a
// tracker, keeps the transcript and submits the completed profile.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tribu-agent/internal/conversation"
	"tribu-agent/internal/domain"
)

// ErrorMessage is appended to the transcript when a submission fails.
const ErrorMessage = "An error occurred, please try again"

var (
	// ErrBusy is returned when a message is sent while another one is still
	// being processed.
	ErrBusy = errors.New("chat: a message is already being processed")

	ErrNothingPending = errors.New("chat: no pending message to retry")
)

type ProfileSubmitter interface {
	SubmitCompleteProfile(ctx context.Context, p domain.Profile) (domain.RecommendationResult, error)
}

// Reply is the assistant's answer to one message.
type Reply struct {
	Message string
	Turn    conversation.Turn
	// Result is set on the message that submitted the profile.
	Result *domain.RecommendationResult
}

// Session is safe for concurrent use; overlapping sends fail with ErrBusy.
type Session struct {
	gate      sync.Mutex
	tracker   *conversation.Tracker
	submitter ProfileSubmitter
	logger    *slog.Logger

	mu         sync.Mutex
	transcript []domain.ChatMessage
	result     *domain.RecommendationResult
	pending    string
}

func NewSession(tracker *conversation.Tracker, submitter ProfileSubmitter, logger *slog.Logger) (*Session, error) {
	if tracker == nil {
		return nil, errors.New("chat: tracker must not be nil")
	}
	if submitter == nil {
		return nil, errors.New("chat: profile submitter must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{tracker: tracker, submitter: submitter, logger: logger}
	s.greet()
	return s, nil
}

// Send submits one answer.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	if !s.gate.TryLock() {
		return Reply{}, ErrBusy
	}
	defer s.gate.Unlock()
	return s.send(ctx, text, true)
}

// Retry resubmits the answer whose submission last failed. Once the
// profile has been submitted there is nothing left to retry.
func (s *Session) Retry(ctx context.Context) (Reply, error) {
	if !s.gate.TryLock() {
		return Reply{}, ErrBusy
	}
	defer s.gate.Unlock()

	s.mu.Lock()
	text := s.pending
	s.pending = ""
	s.mu.Unlock()
	if text == "" || s.tracker.Submitted() {
		return Reply{}, ErrNothingPending
	}
	return s.send(ctx, text, false)
}

func (s *Session) send(ctx context.Context, text string, record bool) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		prompt, ok := s.tracker.Prompt()
		if !ok {
			prompt = conversation.CompletionMessage
		}
		return Reply{Message: prompt}, nil
	}
	if record {
		s.appendMessage(domain.RoleUser, text)
	}

	before := s.tracker.Snapshot()
	turn := s.tracker.Submit(ctx, text)
	reply := Reply{Turn: turn}

	if s.tracker.TakeSubmission() {
		res, err := s.submitter.SubmitCompleteProfile(ctx, s.tracker.Profile())
		if err != nil {
			if rerr := s.tracker.Restore(before); rerr != nil {
				s.logger.ErrorContext(ctx, "rollback failed", "err", rerr)
			}
			s.mu.Lock()
			s.pending = text
			s.mu.Unlock()
			s.appendMessage(domain.RoleAssistant, ErrorMessage)
			s.logger.WarnContext(ctx, "profile submission failed", "err", err)
			return Reply{Message: ErrorMessage, Turn: turn}, fmt.Errorf("chat: submit profile: %w", err)
		}
		s.mu.Lock()
		s.result = &res
		s.mu.Unlock()
		reply.Result = &res
	}
	s.mu.Lock()
	s.pending = ""
	s.mu.Unlock()

	if prompt, ok := s.tracker.Prompt(); ok {
		reply.Message = prompt
	} else {
		reply.Message = conversation.CompletionMessage
	}
	s.appendMessage(domain.RoleAssistant, reply.Message)
	return reply, nil
}

// Reset starts a new conversation.
func (s *Session) Reset() error {
	if !s.gate.TryLock() {
		return ErrBusy
	}
	defer s.gate.Unlock()

	s.tracker.Reset()
	s.mu.Lock()
	s.transcript = nil
	s.result = nil
	s.pending = ""
	s.mu.Unlock()
	s.greet()
	return nil
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage{}, s.transcript...)
}

// RestoreTranscript replaces the displayed transcript, e.g. with one loaded
// from the backend. It does not change the questionnaire state.
func (s *Session) RestoreTranscript(msgs []domain.ChatMessage) error {
	if err := checkRoles(msgs); err != nil {
		return err
	}
	s.mu.Lock()
	s.transcript = append([]domain.ChatMessage{}, msgs...)
	s.mu.Unlock()
	return nil
}

// Result returns the latest recommendation result.
func (s *Session) Result() (domain.RecommendationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.RecommendationResult{}, false
	}
	return *s.result, true
}

// Pending returns the answer waiting for Retry, if any.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func checkRoles(msgs []domain.ChatMessage) error {
	for i, m := range msgs {
		switch m.Role {
		case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
		default:
			return fmt.Errorf("chat: message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}

func (s *Session) greet() {
	if prompt, ok := s.tracker.Prompt(); ok {
		s.appendMessage(domain.RoleAssistant, prompt)
	}
}

func (s *Session) appendMessage(role, content string) {
	s.mu.Lock()
	s.transcript = append(s.transcript, domain.ChatMessage{Role: role, Content: content})
	s.mu.Unlock()
}
