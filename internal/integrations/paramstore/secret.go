package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// tokenPayload is the JSON shape API tokens are stored in.
type tokenPayload struct {
	Token string `json:"token"`
}

// Secret lazily reads a token parameter and caches it for the lifetime of
// the process. Failed reads are not cached.
type Secret struct {
	getter Getter
	name   string

	mu    sync.Mutex
	value string
}

func NewSecret(g Getter, name string) (*Secret, error) {
	if g == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: secret name must not be empty")
	}
	return &Secret{getter: g, name: name}, nil
}

// Resolve returns the token, fetching it on first use.
func (s *Secret) Resolve(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value != "" {
		return s.value, nil
	}
	raw, err := s.getter.GetParameter(ctx, s.name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch secret %s: %w", s.name, err)
	}
	token, err := DecodeToken(raw)
	if err != nil {
		return "", fmt.Errorf("paramstore: secret %s: %w", s.name, err)
	}
	s.value = token
	return token, nil
}

// DecodeToken extracts the token from a {"token": "..."} parameter value.
func DecodeToken(raw string) (string, error) {
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("unmarshal token JSON: %w", err)
	}
	token := strings.TrimSpace(tp.Token)
	if token == "" {
		return "", errors.New("token is empty")
	}
	return token, nil
}
