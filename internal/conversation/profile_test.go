package conversation

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"tribu-agent/internal/domain"
)

func TestAssembleProfile_AlwaysSixKeys(t *testing.T) {
	for _, entities := range []domain.EntitySet{nil, {}, {domain.CategoryMusic: {"jazz"}}} {
		raw, err := json.Marshal(AssembleProfile(entities))
		require.NoError(t, err)

		var decoded map[string][]string
		require.NoError(t, json.Unmarshal(raw, &decoded))
		require.Len(t, decoded, len(domain.Categories))
		for _, c := range domain.Categories {
			v, ok := decoded[string(c)]
			require.True(t, ok, "missing %s", c)
			require.NotNil(t, v, "null %s", c)
		}
	}
}

func TestAssembleProfile_CopiesTags(t *testing.T) {
	entities := domain.EntitySet{
		domain.CategoryMusic:  {"jazz", "rock"},
		domain.CategoryValues: {"freedom"},
	}
	p := AssembleProfile(entities)
	require.Equal(t, []string{"jazz", "rock"}, p.Music)
	require.Equal(t, []string{"freedom"}, p.Values)

	entities[domain.CategoryMusic][0] = "mutated"
	require.Equal(t, "jazz", p.Music[0])

	require.Equal(t, entities.Populated(), p.EntitySet().Populated())
	require.Equal(t, 3, p.TagCount())
}
