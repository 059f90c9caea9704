// Package openai calls the OpenAI chat completion and moderation endpoints.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"tribu-agent/internal/domain"
	"tribu-agent/internal/integrations/paramstore"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Schema is a named JSON schema the model output must conform to.
type Schema struct {
	Name string
	Body json.RawMessage
}

type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	ResponseFormat responseFormat       `json:"response_format"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a small OpenAI client for schema-constrained chat completions
// and input moderation.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	temperature *float64
	token       *paramstore.Secret
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTemperature fixes the sampling temperature of chat completions.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// NewClient creates a Client whose API token is read from
// <paramPrefix>/open-ai-token on first use.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	token, err := paramstore.NewSecret(ps, paramPrefix+"/open-ai-token")
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint joins an API path onto the base URL, adding /v1 when the base
// does not carry it.
func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}

// Chat sends messages to the Chat Completions endpoint and returns the
// content of the first choice, constrained to schema.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage, schema Schema) (string, error) {
	if model == "" {
		return "", errors.New("openai: model must not be empty")
	}
	if schema.Name == "" || len(schema.Body) == 0 {
		return "", errors.New("openai: response schema must not be empty")
	}

	in := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: schema.Name, Strict: true, Schema: schema.Body},
		},
	}
	var out chatResponse
	if err := c.post(ctx, "/chat/completions", in, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// Moderate reports whether the moderation endpoint flags input.
func (c *Client) Moderate(ctx context.Context, input string) (bool, error) {
	var out moderationResponse
	if err := c.post(ctx, "/moderations", moderationRequest{Input: input}, &out); err != nil {
		return false, err
	}
	if len(out.Results) == 0 {
		return false, errors.New("openai: no results in moderation response")
	}
	return out.Results[0].Flagged, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	apiKey, err := c.token.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("openai: marshal %s request: %w", path, err)
	}

	url := endpoint(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return fmt.Errorf("openai: %s request failed: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
