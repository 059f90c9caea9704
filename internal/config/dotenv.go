// Package config loads local environment files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const DefaultEnvFile = ".env"

// EnvFiles splits a comma-separated list of env file paths, dropping blanks
// and repeats. An empty list yields DefaultEnvFile.
func EnvFiles(list string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{DefaultEnvFile}
	}
	return out
}

// LoadEnvFiles loads the env files among paths that exist and returns the
// ones it loaded. Variables already set in the process environment win, and
// earlier files win over later ones.
func LoadEnvFiles(paths ...string) ([]string, error) {
	var found []string
	for _, p := range paths {
		info, err := os.Stat(p)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return nil, fmt.Errorf("config: stat env file %s: %w", p, err)
		case info.IsDir():
			return nil, fmt.Errorf("config: env file %s is a directory", p)
		}
		found = append(found, p)
	}
	if len(found) == 0 {
		return nil, nil
	}
	if err := godotenv.Load(found...); err != nil {
		return nil, fmt.Errorf("config: load env files %s: %w", strings.Join(found, ","), err)
	}
	return found, nil
}
