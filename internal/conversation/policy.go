package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"tribu-agent/internal/domain"
)

// Policy decides whether enough categories are populated to request
// recommendations.
type Policy func(domain.EntitySet) bool

// RequireAll is satisfied once every category holds at least one tag.
func RequireAll() Policy {
	return func(s domain.EntitySet) bool {
		return s.Populated() == len(domain.Categories)
	}
}

// RequireAtLeast is satisfied once n categories hold at least one tag.
func RequireAtLeast(n int) Policy {
	return func(s domain.EntitySet) bool {
		return s.Populated() >= n
	}
}

// ParsePolicy reads a policy name: "all" or "at-least-N" with N in 1..6.
func ParsePolicy(name string) (Policy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" {
		return RequireAll(), nil
	}
	if rest, ok := strings.CutPrefix(name, "at-least-"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 || n > len(domain.Categories) {
			return nil, fmt.Errorf("conversation: invalid threshold in policy %q", name)
		}
		return RequireAtLeast(n), nil
	}
	return nil, fmt.Errorf("conversation: unknown completion policy %q", name)
}
