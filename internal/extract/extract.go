// Package extract turns free-text answers into canonical cultural tags.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tribu-agent/internal/domain"
)

const (
	KindKeyword = "keyword"
	KindLLM     = "llm"
)

// Extractor maps an answer for a category to an ordered list of tags.
// Implementations never fail: when nothing can be recognised they return the
// trimmed answer itself so no answer is discarded.
type Extractor interface {
	Extract(ctx context.Context, category domain.Category, input string) []string
}

// New builds the extractor selected by kind. An empty kind selects the
// keyword extractor; logger is only used by the llm kind.
func New(kind string, llm ChatClient, model string, logger *slog.Logger) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindKeyword:
		return NewKeywordExtractor(DefaultVocabulary()), nil
	case KindLLM:
		return NewLLMExtractor(llm, model, NewKeywordExtractor(DefaultVocabulary()), logger)
	default:
		return nil, fmt.Errorf("extract: unknown extractor kind %q", kind)
	}
}

// verbatim is the fallback result for an answer nothing matched.
func verbatim(input string) []string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return []string{}
	}
	return []string{trimmed}
}
