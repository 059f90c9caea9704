package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"tribu-agent/internal/domain"
	"tribu-agent/internal/integrations/openai"
)

const maxLLMTags = 8

// ChatClient is the subset of the OpenAI client used for extraction.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, schema openai.Schema) (string, error)
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

// LLMExtractor asks a chat model for tags and falls back to another
// extractor whenever the model fails or returns nothing usable.
type LLMExtractor struct {
	llm      ChatClient
	model    string
	fallback Extractor
	logger   *slog.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor builds an LLMExtractor. A nil logger uses slog.Default.
func NewLLMExtractor(llm ChatClient, model string, fallback Extractor, logger *slog.Logger) (*LLMExtractor, error) {
	if llm == nil {
		return nil, errors.New("extract: llm client must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("extract: model must not be empty")
	}
	if fallback == nil {
		return nil, errors.New("extract: fallback extractor must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{llm: llm, model: strings.TrimSpace(model), fallback: fallback, logger: logger}, nil
}

func (e *LLMExtractor) Extract(ctx context.Context, category domain.Category, input string) []string {
	if strings.TrimSpace(input) == "" {
		return []string{}
	}
	raw, err := e.llm.Chat(ctx, e.model, buildExtractionMessages(category, input), tagsSchema())
	if err != nil {
		e.logger.WarnContext(ctx, "llm extraction failed, using fallback", "category", category, "err", err)
		return e.fallback.Extract(ctx, category, input)
	}
	tags, err := parseTags(raw)
	if err != nil || len(tags) == 0 {
		if err != nil {
			e.logger.WarnContext(ctx, "llm extraction malformed, using fallback", "category", category, "err", err)
		}
		return e.fallback.Extract(ctx, category, input)
	}
	return tags
}

func buildExtractionMessages(category domain.Category, input string) []domain.ChatMessage {
	system := strings.Join([]string{
		"Task:",
		fmt.Sprintf("Extract short canonical %s preferences from the user's answer.", category),
		"",
		"Rules:",
		"1) Use lowercase tags of one to three words.",
		"2) Keep the order in which preferences appear.",
		"3) Ignore preferences the user rejects.",
		fmt.Sprintf("4) Return at most %d tags.", maxLLMTags),
		"",
		"Output Contract:",
		"Return JSON only with key tags (array of strings). Return an empty array if nothing applies.",
	}, "\n")
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: strings.TrimSpace(input)},
	}
}

func tagsSchema() openai.Schema {
	return openai.Schema{
		Name: "cultural_tags",
		Body: json.RawMessage(`{
			"type":"object",
			"additionalProperties":false,
			"properties":{
				"tags":{"type":"array","items":{"type":"string"}}
			},
			"required":["tags"]
		}`),
	}
}

func parseTags(raw string) ([]string, error) {
	var out tagsResponse
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("extract: decode tags: %w", err)
	}

	tags := make([]string, 0, len(out.Tags))
	seen := make(map[string]struct{}, len(out.Tags))
	for _, t := range out.Tags {
		t = strings.ToLower(strings.Join(strings.Fields(t), " "))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
		if len(tags) == maxLLMTags {
			break
		}
	}
	return tags, nil
}
