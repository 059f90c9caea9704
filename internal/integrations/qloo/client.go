package qloo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"tribu-agent/internal/integrations/paramstore"
)

const (
	defaultBaseURL    = "https://hackathon.api.qloo.com"
	defaultUserAgent  = "TribuAI/1.0.0"
	defaultMinSpacing = 100 * time.Millisecond
)

// Result is a raw search hit as returned by the Qloo search endpoint.
type Result struct {
	Name        string `json:"name"`
	EntityID    string `json:"entity_id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Image       struct {
		URL string `json:"url"`
	} `json:"image"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

// TagNames returns the names of the result's tags.
func (r Result) TagNames() []string {
	out := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		if t.Name != "" {
			out = append(out, t.Name)
		}
	}
	return out
}

type searchResponse struct {
	Results  []Result `json:"results"`
	Entities []Result `json:"entities"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("qloo: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a rate-limited client for the Qloo search API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     *paramstore.Secret
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMinInterval sets the minimum spacing between two upstream requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewClient creates a Client whose API key is read from the parameter store
// on first use and cached once read successfully.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("qloo: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("qloo: parameter prefix must not be empty")
	}
	apiKey, err := paramstore.NewSecret(ps, paramPrefix+"/qloo-api-key")
	if err != nil {
		return nil, fmt.Errorf("qloo: %w", err)
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(defaultMinSpacing), 1),
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func searchURL(baseURL string, query string, take int) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("take", strconv.Itoa(take))
	params.Set("page", "1")
	params.Set("sort_by", "match")
	return base + "/search?" + params.Encode()
}

// Search returns up to take entities matching query.
func (c *Client) Search(ctx context.Context, query string, take int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("qloo: query must not be empty")
	}
	if take <= 0 {
		take = 5
	}

	apiKey, err := c.apiKey.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("qloo: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("qloo: rate limiter wait: %w", err)
	}

	u := searchURL(c.baseURL, query, take)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("qloo: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("X-Api-Key", apiKey)

	raw, err := c.doJSONRequest(req, u)
	if err != nil {
		return nil, fmt.Errorf("qloo: search request failed: %w", err)
	}

	var payload searchResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("qloo: decode search response: %w", err)
	}
	if payload.Results != nil {
		return payload.Results, nil
	}
	if payload.Entities != nil {
		return payload.Entities, nil
	}
	return []Result{}, nil
}

func (c *Client) doJSONRequest(req *http.Request, u string) ([]byte, error) {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
