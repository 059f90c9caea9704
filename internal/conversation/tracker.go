// Package conversation walks the cultural questionnaire: it tracks the
// current category, stores extracted tags and decides when the profile is
// complete.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tribu-agent/internal/domain"
	"tribu-agent/internal/extract"
)

// CompletionMessage is shown once the questionnaire needs no more answers.
const CompletionMessage = "Thanks! Your cultural profile is complete. Let me find recommendations that match your taste."

var prompts = map[domain.Category]string{
	domain.CategoryMusic:     "Let's start with music. What genres or artists do you enjoy the most?",
	domain.CategoryArt:       "What kind of art inspires you? Painting, cinema, architecture, photography?",
	domain.CategoryFashion:   "How would you describe your personal style or the fashion you like?",
	domain.CategoryValues:    "What values matter most to you?",
	domain.CategoryPlaces:    "Which places do you love to spend time in or travel to?",
	domain.CategoryAudiences: "Finally, which communities or audiences do you feel part of?",
}

// PromptFor returns the question asked for a category.
func PromptFor(c domain.Category) string {
	if p, ok := prompts[c]; ok {
		return p
	}
	return fmt.Sprintf("Could you tell me about your favorite %s?", c)
}

// Turn describes the outcome of one submitted answer.
type Turn struct {
	Category domain.Category
	Tags     []string
	// Accepted is false when the answer was blank or the tracker was
	// already complete; in both cases no state changed.
	Accepted bool
	// Completed reports the tracker is complete after this turn, and
	// JustCompleted that this turn caused it.
	Completed     bool
	JustCompleted bool
}

// Tracker is the per-session questionnaire state machine. It is not safe
// for concurrent use; callers own one tracker per session.
type Tracker struct {
	extractor extract.Extractor
	policy    Policy

	step     int
	entities domain.EntitySet
	complete bool
	latch    Latch
}

func NewTracker(ex extract.Extractor, policy Policy) (*Tracker, error) {
	if ex == nil {
		return nil, errors.New("conversation: extractor must not be nil")
	}
	if policy == nil {
		return nil, errors.New("conversation: completion policy must not be nil")
	}
	return &Tracker{
		extractor: ex,
		policy:    policy,
		entities:  domain.EntitySet{},
	}, nil
}

// Current returns the category awaiting an answer.
func (t *Tracker) Current() (domain.Category, bool) {
	if t.complete || t.step >= len(domain.Categories) {
		return "", false
	}
	return domain.Categories[t.step], true
}

// Prompt returns the next question, or false when the flow is over.
func (t *Tracker) Prompt() (string, bool) {
	c, ok := t.Current()
	if !ok {
		return "", false
	}
	return PromptFor(c), true
}

func (t *Tracker) Step() int      { return t.step }
func (t *Tracker) Complete() bool { return t.complete }

// Entities returns a copy of the accumulated tags.
func (t *Tracker) Entities() domain.EntitySet {
	return t.entities.Clone()
}

// Profile assembles the current entities into a profile.
func (t *Tracker) Profile() domain.Profile {
	return AssembleProfile(t.entities)
}

// Submit extracts tags from answer for the current category, stores them and
// advances. Blank answers and answers after completion are ignored.
func (t *Tracker) Submit(ctx context.Context, answer string) Turn {
	c, ok := t.Current()
	if !ok {
		return Turn{Completed: t.complete}
	}
	if strings.TrimSpace(answer) == "" {
		return Turn{Category: c}
	}

	tags := t.extractor.Extract(ctx, c, answer)
	if len(tags) == 0 {
		return Turn{Category: c}
	}
	t.entities[c] = append([]string{}, tags...)
	t.step++

	turn := Turn{Category: c, Tags: tags, Accepted: true}
	if t.evaluate() {
		turn.JustCompleted = true
	}
	turn.Completed = t.complete
	return turn
}

// evaluate runs the completion check and reports whether it just moved the
// tracker into the complete state.
func (t *Tracker) evaluate() bool {
	if t.complete {
		return false
	}
	if t.step < len(domain.Categories) && !t.policy(t.entities) {
		return false
	}
	t.complete = true
	t.step = len(domain.Categories)
	return true
}

// TakeSubmission reports whether the caller should submit the completed
// profile. It returns true at most once per completion.
func (t *Tracker) TakeSubmission() bool {
	if !t.complete {
		return false
	}
	return t.latch.Fire()
}

// Submitted reports whether the profile for this completion was handed out.
func (t *Tracker) Submitted() bool {
	return t.latch.Fired()
}

// Reset returns the tracker to the first category with no answers.
func (t *Tracker) Reset() {
	t.step = 0
	t.entities = domain.EntitySet{}
	t.complete = false
	t.latch.Rearm()
}

// Snapshot captures the tracker state for persistence.
func (t *Tracker) Snapshot() domain.ConversationState {
	return domain.ConversationState{
		Step:      t.step,
		Entities:  t.entities.Clone(),
		Complete:  t.complete,
		Submitted: t.latch.Fired(),
	}
}

// Restore replaces the tracker state with a snapshot. The completion check
// is re-run so a snapshot taken under a stricter policy completes here.
func (t *Tracker) Restore(s domain.ConversationState) error {
	if s.Step < 0 || s.Step > len(domain.Categories) {
		return fmt.Errorf("conversation: step %d out of range", s.Step)
	}
	for c := range s.Entities {
		if !c.Valid() {
			return fmt.Errorf("conversation: unknown category %q", c)
		}
	}
	if s.Submitted && !s.Complete {
		return errors.New("conversation: submitted snapshot must be complete")
	}
	t.step = s.Step
	t.entities = s.Entities.Clone()
	t.complete = s.Complete
	if t.complete {
		t.step = len(domain.Categories)
	}
	t.latch.set(s.Submitted)
	t.evaluate()
	return nil
}
