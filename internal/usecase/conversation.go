package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"tribu-agent/internal/conversation"
	"tribu-agent/internal/domain"
	"tribu-agent/internal/extract"
	"tribu-agent/internal/repository"
)

const (
	defaultMaxInput        = 500
	defaultTranscriptLimit = 50
)

type Moderator interface {
	Moderate(ctx context.Context, input string) (bool, error)
}

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (domain.Session, bool, error)
	SaveTurn(ctx context.Context, s domain.Session, messages []domain.ChatMessage) (domain.Session, error)
	ResetSession(ctx context.Context, s domain.Session) (domain.Session, error)
	GetTranscript(ctx context.Context, sessionID string, generation, limit int) ([]domain.ChatMessage, error)
}

type Recommender interface {
	Recommend(ctx context.Context, p domain.Profile) (domain.RecommendationResult, error)
}

type ConversationService struct {
	moderator       Moderator
	store           SessionStore
	recommender     Recommender
	extractor       extract.Extractor
	policy          conversation.Policy
	maxInputLen     int
	transcriptLimit int
}

type ProcessInput struct {
	SessionID string
	UserInput string
}

type ProcessOutput struct {
	SessionID        string
	AssistantMessage string
	Context          domain.EntitySet
	ProfileComplete  bool
	// Result is set only on the turn that submitted the profile.
	Result *domain.RecommendationResult
}

type ResetOutput struct {
	SessionID        string
	AssistantMessage string
}

func NewConversationService(m Moderator, s SessionStore, r Recommender, ex extract.Extractor, policy conversation.Policy, maxInputLen, transcriptLimit int) (*ConversationService, error) {
	if m == nil {
		return nil, errors.New("usecase: moderator must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if r == nil {
		return nil, errors.New("usecase: recommender must not be nil")
	}
	if ex == nil {
		return nil, errors.New("usecase: extractor must not be nil")
	}
	if policy == nil {
		return nil, errors.New("usecase: completion policy must not be nil")
	}
	if maxInputLen <= 0 {
		maxInputLen = defaultMaxInput
	}
	if transcriptLimit <= 0 {
		transcriptLimit = defaultTranscriptLimit
	}
	return &ConversationService{
		moderator:       m,
		store:           s,
		recommender:     r,
		extractor:       ex,
		policy:          policy,
		maxInputLen:     maxInputLen,
		transcriptLimit: transcriptLimit,
	}, nil
}

// Process answers the pending question of a session. A session is created
// when the id is empty or unknown.
func (s *ConversationService) Process(ctx context.Context, in ProcessInput) (ProcessOutput, error) {
	input := strings.TrimSpace(in.UserInput)
	if input == "" {
		return ProcessOutput{}, newError(ErrorInvalidInput, "empty_input", nil)
	}
	if len(input) > s.maxInputLen {
		return ProcessOutput{}, newError(ErrorInvalidInput, "input_too_long", nil)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	flagged, err := s.moderator.Moderate(ctx, input)
	if err != nil {
		return ProcessOutput{}, upstreamError("moderation", err)
	}
	if flagged {
		return ProcessOutput{}, newError(ErrorInvalidQuestion, "moderation_flagged", nil)
	}

	sess, found, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return ProcessOutput{}, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	if !found {
		sess = repository.NewSession(sessionID)
	}

	tracker, err := s.restore(sess.State)
	if err != nil {
		return ProcessOutput{}, newError(ErrorInternal, "state_restore_error", err)
	}

	wasComplete := tracker.Complete()
	if !wasComplete {
		turn := tracker.Submit(ctx, input)
		if !turn.Accepted {
			prompt, _ := tracker.Prompt()
			return s.output(sessionID, prompt, tracker, nil), nil
		}
	}

	submit := tracker.TakeSubmission()
	if wasComplete && !submit {
		return s.output(sessionID, conversation.CompletionMessage, tracker, nil), nil
	}

	var result *domain.RecommendationResult
	if submit {
		claimed, res, err := s.claimAndRecommend(ctx, sess, tracker)
		if err != nil {
			return ProcessOutput{}, err
		}
		sess = claimed
		result = &res
	}

	reply := conversation.CompletionMessage
	if prompt, ok := tracker.Prompt(); ok {
		reply = prompt
	}

	sess.State = tracker.Snapshot()
	if _, err := s.store.SaveTurn(ctx, sess, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: input},
		{Role: domain.RoleAssistant, Content: reply},
	}); err != nil {
		return ProcessOutput{}, writeError(err)
	}

	return s.output(sessionID, reply, tracker, result), nil
}

// claimAndRecommend stores the fired submission before running the
// pipeline, so a failed final write cannot lead to a second submission for
// the same completion. When the pipeline fails the stored state is put back
// to what it was before the answer.
func (s *ConversationService) claimAndRecommend(ctx context.Context, sess domain.Session, tracker *conversation.Tracker) (domain.Session, domain.RecommendationResult, error) {
	claim := sess
	claim.State = tracker.Snapshot()
	claimed, err := s.store.SaveTurn(ctx, claim, nil)
	if err != nil {
		return domain.Session{}, domain.RecommendationResult{}, writeError(err)
	}

	res, err := s.recommender.Recommend(ctx, tracker.Profile())
	if err != nil {
		uerr := upstreamError("recommendation", err)
		rollback := claimed
		rollback.State = sess.State
		if _, rerr := s.store.SaveTurn(ctx, rollback, nil); rerr != nil {
			uerr.Err = errors.Join(err, rerr)
		}
		return domain.Session{}, domain.RecommendationResult{}, uerr
	}
	return claimed, res, nil
}

func writeError(err error) *Error {
	if errors.Is(err, repository.ErrConflict) {
		return newError(ErrorConflict, "session_conflict", err)
	}
	return newError(ErrorInternal, "dynamodb_write_error", err)
}

// Reset starts a new conversation for the session and returns the first
// question.
func (s *ConversationService) Reset(ctx context.Context, sessionID string) (ResetOutput, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ResetOutput{}, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	sess, found, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return ResetOutput{}, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	if !found {
		sess = repository.NewSession(sessionID)
	}
	if _, err := s.store.ResetSession(ctx, sess); err != nil {
		return ResetOutput{}, writeError(err)
	}
	return ResetOutput{
		SessionID:        sessionID,
		AssistantMessage: conversation.PromptFor(domain.Categories[0]),
	}, nil
}

// Transcript returns the messages of the session's current conversation.
func (s *ConversationService) Transcript(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	sess, found, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_read_error", err)
	}
	if !found {
		return []domain.ChatMessage{}, nil
	}
	msgs, err := s.store.GetTranscript(ctx, sessionID, sess.Generation, s.transcriptLimit)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_transcript_error", err)
	}
	return msgs, nil
}

func (s *ConversationService) restore(state domain.ConversationState) (*conversation.Tracker, error) {
	tracker, err := conversation.NewTracker(s.extractor, s.policy)
	if err != nil {
		return nil, err
	}
	if state.Entities == nil {
		state.Entities = domain.EntitySet{}
	}
	if err := tracker.Restore(state); err != nil {
		return nil, err
	}
	return tracker, nil
}

func (s *ConversationService) output(sessionID, reply string, t *conversation.Tracker, result *domain.RecommendationResult) ProcessOutput {
	return ProcessOutput{
		SessionID:        sessionID,
		AssistantMessage: reply,
		Context:          t.Entities(),
		ProfileComplete:  t.Complete(),
		Result:           result,
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
