package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tribu-agent/internal/domain"
)

func TestKeywordExtractor_MatchedKeywordOnly(t *testing.T) {
	e := NewKeywordExtractor(DefaultVocabulary())
	got := e.Extract(context.Background(), domain.CategoryMusic, "I love jazz and techno")
	require.Equal(t, []string{"jazz"}, got)
}

func TestKeywordExtractor_FallsBackToVerbatim(t *testing.T) {
	e := NewKeywordExtractor(DefaultVocabulary())
	got := e.Extract(context.Background(), domain.CategoryMusic, "I really enjoy Taylor Swift")
	require.Equal(t, []string{"I really enjoy Taylor Swift"}, got)

	got = e.Extract(context.Background(), domain.CategoryMusic, "   Taylor Swift \n")
	require.Equal(t, []string{"Taylor Swift"}, got)
}

func TestKeywordExtractor_EveryKeywordAnyCaseAnyPosition(t *testing.T) {
	vocab := DefaultVocabulary()
	e := NewKeywordExtractor(vocab)
	for category, words := range vocab {
		for _, w := range words {
			inputs := []string{
				w,
				strings.ToUpper(w),
				"Honestly, " + strings.ToUpper(w[:1]) + w[1:] + " above everything",
				"mostly" + w + "ish",
			}
			for _, in := range inputs {
				got := e.Extract(context.Background(), category, in)
				require.Contains(t, got, w, "category=%s input=%q", category, in)
			}
		}
	}
}

func TestKeywordExtractor_OrderedByVocabularyAndDeduplicated(t *testing.T) {
	e := NewKeywordExtractor(DefaultVocabulary())
	got := e.Extract(context.Background(), domain.CategoryMusic, "Country, then ROCK, then jazz, and more jazz and rock")
	require.Equal(t, []string{"rock", "jazz", "country"}, got)
}

func TestKeywordExtractor_BlankInput(t *testing.T) {
	e := NewKeywordExtractor(DefaultVocabulary())
	require.Empty(t, e.Extract(context.Background(), domain.CategoryArt, "   "))
	require.NotNil(t, e.Extract(context.Background(), domain.CategoryArt, ""))
}

func TestKeywordExtractor_UnknownCategory(t *testing.T) {
	e := NewKeywordExtractor(DefaultVocabulary())
	got := e.Extract(context.Background(), domain.Category("food"), " tacos ")
	require.Equal(t, []string{"tacos"}, got)
}

func TestKeywordExtractor_MultiWordKeywords(t *testing.T) {
	e := NewKeywordExtractor(DefaultVocabulary())
	got := e.Extract(context.Background(), domain.CategoryArt, "Street Art and old cinema posters")
	require.Equal(t, []string{"cinema", "street art"}, got)

	got = e.Extract(context.Background(), domain.CategoryAudiences, "I hang out with urban creatives and gamers")
	require.Equal(t, []string{"urban creatives", "gamers"}, got)
}

func TestKeywordExtractor_NormalizesUnicode(t *testing.T) {
	e := NewKeywordExtractor(Vocabulary{domain.CategoryPlaces: {"Café"}})
	got := e.Extract(context.Background(), domain.CategoryPlaces, "a small CAFE\u0301 downtown")
	require.Equal(t, []string{"café"}, got)
}

func TestKeywordExtractor_CompilesCleanVocabulary(t *testing.T) {
	e := NewKeywordExtractor(Vocabulary{
		domain.CategoryMusic: {" Jazz ", "jazz", "", "Blues"},
		domain.CategoryArt:   {" "},
	})
	require.Equal(t, []string{"jazz", "blues"}, e.keywords(domain.CategoryMusic))
	require.Empty(t, e.keywords(domain.CategoryArt))
}

func TestKeywordExtractor_Deterministic(t *testing.T) {
	e := NewKeywordExtractor(DefaultVocabulary())
	first := e.Extract(context.Background(), domain.CategoryValues, "Creativity, community and freedom")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, e.Extract(context.Background(), domain.CategoryValues, "Creativity, community and freedom"))
	}
	require.Equal(t, []string{"creativity", "community", "freedom"}, first)
}

func TestDefaultVocabulary_Shape(t *testing.T) {
	vocab := DefaultVocabulary()
	require.Len(t, vocab, len(domain.Categories))
	for _, c := range domain.Categories {
		words := vocab[c]
		require.GreaterOrEqual(t, len(words), 6, "category=%s", c)
		require.LessOrEqual(t, len(words), 11, "category=%s", c)
	}
}

func TestNew_SelectsExtractor(t *testing.T) {
	ex, err := New("", nil, "", nil)
	require.NoError(t, err)
	require.IsType(t, &KeywordExtractor{}, ex)

	ex, err = New(" LLM ", &fakeChat{}, "gpt-4o-mini", nil)
	require.NoError(t, err)
	require.IsType(t, &LLMExtractor{}, ex)

	_, err = New("llm", nil, "gpt-4o-mini", nil)
	require.Error(t, err)

	_, err = New("regex", nil, "", nil)
	require.Error(t, err)
}
