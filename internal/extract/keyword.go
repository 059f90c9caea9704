package extract

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"

	"tribu-agent/internal/domain"
)

// Vocabulary holds the canonical keywords for each category, in output order.
type Vocabulary map[domain.Category][]string

// DefaultVocabulary returns the built-in keyword lists.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		domain.CategoryMusic: {
			"rock", "jazz", "electronic", "classical", "hip-hop", "indie",
			"pop", "folk", "blues", "reggae", "country",
		},
		domain.CategoryArt: {
			"painting", "sculpture", "photography", "cinema", "architecture",
			"street art", "minimalist", "abstract", "digital",
		},
		domain.CategoryFashion: {
			"streetwear", "minimalist", "sustainable", "vintage", "casual",
			"luxury", "bohemian", "formal",
		},
		domain.CategoryValues: {
			"sustainability", "creativity", "community", "freedom",
			"authenticity", "diversity", "tradition", "innovation",
		},
		domain.CategoryPlaces: {
			"beach", "mountains", "city", "museums", "cafes", "nature",
			"travel", "countryside",
		},
		domain.CategoryAudiences: {
			"urban creatives", "students", "professionals", "families",
			"artists", "gamers", "travelers", "entrepreneurs",
		},
	}
}

type categoryMatcher struct {
	keywords []string
	matcher  *ahocorasick.Matcher
}

// KeywordExtractor matches answers against fixed per-category vocabularies
// using case-insensitive substring containment.
type KeywordExtractor struct {
	matchers map[domain.Category]categoryMatcher
}

var _ Extractor = (*KeywordExtractor)(nil)

// NewKeywordExtractor compiles one automaton per category. Keywords are
// lower-cased; duplicates within a category are dropped.
func NewKeywordExtractor(vocab Vocabulary) *KeywordExtractor {
	e := &KeywordExtractor{matchers: make(map[domain.Category]categoryMatcher, len(vocab))}
	for category, words := range vocab {
		keywords := make([]string, 0, len(words))
		seen := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = normalize(w)
			if w == "" {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			keywords = append(keywords, w)
		}
		if len(keywords) == 0 {
			continue
		}
		e.matchers[category] = categoryMatcher{
			keywords: keywords,
			matcher:  ahocorasick.NewStringMatcher(keywords),
		}
	}
	return e
}

// keywords returns the compiled vocabulary for a category.
func (e *KeywordExtractor) keywords(category domain.Category) []string {
	return append([]string{}, e.matchers[category].keywords...)
}

// Extract returns every vocabulary keyword contained in input, ordered by
// vocabulary position. With no match it returns the trimmed input; a blank
// input yields an empty list.
func (e *KeywordExtractor) Extract(_ context.Context, category domain.Category, input string) []string {
	if strings.TrimSpace(input) == "" {
		return []string{}
	}
	m, ok := e.matchers[category]
	if !ok {
		return verbatim(input)
	}

	hits := m.matcher.MatchThreadSafe([]byte(normalize(input)))
	if len(hits) == 0 {
		return verbatim(input)
	}
	sort.Ints(hits)

	tags := make([]string, 0, len(hits))
	last := -1
	for _, idx := range hits {
		if idx == last || idx < 0 || idx >= len(m.keywords) {
			continue
		}
		last = idx
		tags = append(tags, m.keywords[idx])
	}
	if len(tags) == 0 {
		return verbatim(input)
	}
	return tags
}

func normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
