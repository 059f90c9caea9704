// Package client talks to the TribuAI backend over HTTP.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"tribu-agent/internal/domain"
)

const defaultBaseURL = "http://localhost:8000"

// TransportError reports a failed request. StatusCode is zero when no
// response was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("client: request failed: %s", e.Message)
	}
	return fmt.Sprintf("client: status %d: %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) HTTPStatusCode() int {
	return e.StatusCode
}

// ProcessReply is the backend's answer to one incremental message.
type ProcessReply struct {
	AssistantMessage string                     `json:"assistant_message"`
	SessionID        string                     `json:"session_id"`
	Context          domain.EntitySet           `json:"context"`
	ProfileComplete  bool                       `json:"profile_complete"`
	CulturalProfile  *domain.CulturalProfile    `json:"cultural_profile,omitempty"`
	Recommendations  map[string][]domain.Entity `json:"recommendations,omitempty"`
	Matching         *domain.Matching           `json:"matching,omitempty"`
}

// Result returns the recommendation result carried by the reply, if any.
func (r ProcessReply) Result() (domain.RecommendationResult, bool) {
	if r.CulturalProfile == nil {
		return domain.RecommendationResult{}, false
	}
	return domain.RecommendationResult{
		CulturalProfile: *r.CulturalProfile,
		Recommendations: r.Recommendations,
		Matching:        r.Matching,
	}, true
}

type processRequest struct {
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithHTTPClient replaces the default client, which has no timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		return nil, errors.New("client: base URL must not be empty")
	}
	if c.httpClient == nil {
		return nil, errors.New("client: http client must not be nil")
	}
	return c, nil
}

// SubmitIncrementalMessage sends one answer of a backend-driven
// conversation.
func (c *Client) SubmitIncrementalMessage(ctx context.Context, sessionID, text string) (ProcessReply, error) {
	var out ProcessReply
	err := c.do(ctx, http.MethodPost, "/api/process", processRequest{UserInput: text, SessionID: sessionID}, &out)
	return out, err
}

// SubmitCompleteProfile requests recommendations for a finished profile.
func (c *Client) SubmitCompleteProfile(ctx context.Context, p domain.Profile) (domain.RecommendationResult, error) {
	var out domain.RecommendationResult
	err := c.do(ctx, http.MethodPost, "/api/process-profile", p, &out)
	return out, err
}

// Health returns the backend's health status, "healthy" when up.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out statusResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out.Status, err
}

// Status returns the backend's run status, "running" when up.
func (c *Client) Status(ctx context.Context) (string, error) {
	var out statusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out.Status, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Message: err.Error(), Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &TransportError{StatusCode: res.StatusCode, Message: errorMessage(res.StatusCode, buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return &TransportError{StatusCode: res.StatusCode, Message: err.Error(), Err: err}
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts the server's message from an error body, falling
// back to the raw body and then the status text.
func errorMessage(status int, body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		switch {
		case er.Message != "":
			return er.Message
		case er.Detail != "":
			return er.Detail
		case er.Error != "":
			return er.Error
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}
