package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tribu-agent/internal/domain"
	"tribu-agent/internal/integrations/qloo"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]qloo.Result
	errs    map[string]error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]qloo.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.results[query], nil
}

func result(name, id, typ, desc string) qloo.Result {
	r := qloo.Result{Name: name, EntityID: id, Type: typ, Description: desc}
	return r
}

func TestNewService_Validates(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}

func TestSeeds_FirstTwoPerCategory(t *testing.T) {
	p := domain.Profile{
		Music:  []string{"jazz", "rock", "folk"},
		Art:    []string{" "},
		Values: []string{"freedom"},
	}
	require.Equal(t, []string{"jazz", "rock", "freedom"}, Seeds(p))
	require.Empty(t, Seeds(domain.Profile{}))
}

func TestBuildCulturalProfile_Identity(t *testing.T) {
	cases := []struct {
		profile  domain.Profile
		identity string
	}{
		{domain.Profile{Music: []string{"jazz"}, Art: []string{"cinema"}}, "Creative Cultural Explorer"},
		{domain.Profile{Music: []string{"jazz"}}, "Music Enthusiast"},
		{domain.Profile{Art: []string{"cinema"}}, "Art Aficionado"},
		{domain.Profile{Values: []string{"freedom"}}, "Cultural Explorer"},
	}
	for _, tc := range cases {
		cp := BuildCulturalProfile(tc.profile)
		require.Equal(t, tc.identity, cp.Identity)
		require.NotEmpty(t, cp.Description)
		require.NotNil(t, cp.Places)
	}
}

func TestRecommend_EmptyProfileMakesNoCalls(t *testing.T) {
	s := &fakeSearcher{}
	svc, err := NewService(s, nil)
	require.NoError(t, err)

	res, err := svc.Recommend(context.Background(), domain.Profile{})
	require.NoError(t, err)
	require.Empty(t, s.queries)
	require.Empty(t, res.Recommendations[ListBrands])
	require.NotNil(t, res.Recommendations[ListPlaces])
	require.Equal(t, 0, res.Matching.AffinityPercentage)
	require.Equal(t, "General", res.Matching.AudienceCluster)
}

func TestRecommend_BuildsListsAndMatching(t *testing.T) {
	s := &fakeSearcher{
		results: map[string][]qloo.Result{
			"jazz brand": {
				result("Blue Note", "b1", "brand", "Jazz label"),
				result("brand", "b0", "brand", "generic"),
				result("Jazz Cafe", "p9", "place", "Club"),
			},
			"cinema brand": {
				result("Blue Note", "b1", "brand", "Jazz label"),
				result("Criterion", "b2", "", "Film label"),
			},
			"jazz place":   {result("Village Vanguard", "p1", "place", "Club")},
			"cinema place": {result("Film Forum", "p2", "", "")},
			"jazz":         {result("Jazz", "t1", "tag", "")},
			"cinema":       {result("Cinema", "t2", "tag", "")},
		},
		errs: map[string]error{"vintage": errors.New("upstream 500")},
	}
	svc, err := NewService(s, nil)
	require.NoError(t, err)

	res, err := svc.Recommend(context.Background(), domain.Profile{
		Music:   []string{"jazz"},
		Art:     []string{"cinema"},
		Fashion: []string{"vintage"},
	})
	require.NoError(t, err)
	require.Equal(t, "Creative Cultural Explorer", res.CulturalProfile.Identity)

	brands := res.Recommendations[ListBrands]
	names := make([]string, 0, len(brands))
	for _, b := range brands {
		names = append(names, b.Name)
	}
	require.ElementsMatch(t, []string{"Blue Note", "Jazz Cafe", "Criterion"}, names)

	places := res.Recommendations[ListPlaces]
	require.Len(t, places, 1)
	require.Equal(t, "Village Vanguard", places[0].Name)

	require.Equal(t, []string{"jazz", "cinema"}, res.Matching.SharedInterests)
	require.Equal(t, 85, res.Matching.AffinityPercentage)
	require.Equal(t, "Cultural Explorer", res.Matching.AudienceCluster)
}

func TestRecommend_CancelledContext(t *testing.T) {
	svc, err := NewService(&fakeSearcher{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Recommend(ctx, domain.Profile{Music: []string{"jazz"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScoreMatching(t *testing.T) {
	require.Equal(t, 90, scoreMatching([]string{"a", "b", "c"}).AffinityPercentage)
	require.Equal(t, "Cultural Explorer", scoreMatching([]string{"a", "b"}).AudienceCluster)
	require.Equal(t, "Cultural Curious", scoreMatching(nil).AudienceCluster)
}

func TestFilterAndDeduplicate(t *testing.T) {
	items := []domain.Entity{
		{Name: "Alpha", EntityID: "1", Description: "d"},
		{Name: "Alpha copy", EntityID: "1", Description: "d"},
		{Name: "Place", EntityID: "2", Description: "d"},
		{Name: "Bare", EntityID: "3"},
		{Name: "Zeta", EntityID: "4", Image: "http://img"},
		{Name: "Beta", EntityID: "5", Description: "d"},
		{Name: "Gamma", EntityID: "6", Description: "d"},
	}
	out := filterAndDeduplicate(items, 3)
	require.Len(t, out, 3)
	require.Equal(t, "Zeta", out[0].Name)
	ids := map[string]bool{}
	for _, e := range out {
		require.False(t, ids[e.EntityID])
		ids[e.EntityID] = true
		require.NotEqual(t, "Bare", e.Name)
		require.NotEqual(t, "Place", e.Name)
	}
}
