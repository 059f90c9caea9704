// Package recommend turns a submitted profile into a cultural identity,
// brand and place recommendations and an audience match.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"tribu-agent/internal/domain"
	"tribu-agent/internal/integrations/qloo"
)

const (
	ListBrands = "brands"
	ListPlaces = "places"

	seedsPerCategory = 2
	maxSeeds         = 3
	searchTake       = 5
	matchingTake     = 2
	maxPerList       = 3
)

// Searcher is the subset of the Qloo client used by the pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, take int) ([]qloo.Result, error)
}

// Service builds recommendation results from profiles.
type Service struct {
	search Searcher
	logger *slog.Logger
}

func NewService(s Searcher, logger *slog.Logger) (*Service, error) {
	if s == nil {
		return nil, errors.New("recommend: searcher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{search: s, logger: logger}, nil
}

// Recommend runs the full pipeline for a profile. Individual search failures
// are logged and skipped; only a cancelled context fails the call.
func (s *Service) Recommend(ctx context.Context, p domain.Profile) (domain.RecommendationResult, error) {
	seeds := Seeds(p)
	result := domain.RecommendationResult{
		CulturalProfile: BuildCulturalProfile(p),
		Recommendations: map[string][]domain.Entity{
			ListBrands: {},
			ListPlaces: {},
		},
	}

	var brands, places []domain.Entity
	var matching domain.Matching
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		brands = s.lookup(gctx, seeds, "brand")
		return gctx.Err()
	})
	g.Go(func() error {
		places = s.lookup(gctx, seeds, "place")
		return gctx.Err()
	})
	g.Go(func() error {
		matching = s.match(gctx, seeds)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return domain.RecommendationResult{}, fmt.Errorf("recommend: %w", err)
	}

	result.Recommendations[ListBrands] = brands
	result.Recommendations[ListPlaces] = places
	result.Matching = &matching
	s.logger.InfoContext(ctx, "recommendations built",
		"identity", result.CulturalProfile.Identity,
		"tags", p.TagCount(),
		"brands", len(brands),
		"places", len(places),
		"affinity", matching.AffinityPercentage,
	)
	return result, nil
}

// Seeds picks the search seeds: the first tags of every category, in
// category order.
func Seeds(p domain.Profile) []string {
	var seeds []string
	for _, c := range domain.Categories {
		tags := p.Get(c)
		if len(tags) > seedsPerCategory {
			tags = tags[:seedsPerCategory]
		}
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				seeds = append(seeds, t)
			}
		}
	}
	return seeds
}

// BuildCulturalProfile derives an identity label from the populated
// categories.
func BuildCulturalProfile(p domain.Profile) domain.CulturalProfile {
	cp := domain.CulturalProfile{
		Music:     nonNil(p.Music),
		Art:       nonNil(p.Art),
		Fashion:   nonNil(p.Fashion),
		Values:    nonNil(p.Values),
		Places:    nonNil(p.Places),
		Audiences: nonNil(p.Audiences),
	}
	switch hasMusic, hasArt := len(p.Music) > 0, len(p.Art) > 0; {
	case hasMusic && hasArt:
		cp.Identity = "Creative Cultural Explorer"
		cp.Description = "Someone who appreciates both music and visual arts, with a keen eye for style and cultural expression."
	case hasMusic:
		cp.Identity = "Music Enthusiast"
		cp.Description = "A passionate music lover with diverse cultural interests."
	case hasArt:
		cp.Identity = "Art Aficionado"
		cp.Description = "Someone who deeply appreciates visual arts and creative expression."
	default:
		cp.Identity = "Cultural Explorer"
		cp.Description = "A curious individual exploring various cultural dimensions."
	}
	return cp
}

func (s *Service) lookup(ctx context.Context, seeds []string, kind string) []domain.Entity {
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}
	var found []domain.Entity
	for _, seed := range seeds {
		results, err := s.search.Search(ctx, seed+" "+kind, searchTake)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WarnContext(ctx, "qloo search failed", "seed", seed, "kind", kind, "err", err)
			continue
		}

		var typed, rest []domain.Entity
		for _, r := range results {
			e := toEntity(r)
			switch {
			case r.Type == kind || strings.Contains(strings.ToLower(r.Name), kind):
				typed = append(typed, e)
			case !isGeneric(r.Name):
				rest = append(rest, e)
			}
		}
		found = append(found, typed...)
		if len(typed) < maxPerList {
			found = append(found, rest...)
		}
	}
	return filterAndDeduplicate(found, maxPerList)
}

func (s *Service) match(ctx context.Context, seeds []string) domain.Matching {
	if len(seeds) == 0 {
		return domain.Matching{SharedInterests: []string{}, AudienceCluster: "General"}
	}
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}

	shared := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		results, err := s.search.Search(ctx, seed, matchingTake)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.WarnContext(ctx, "qloo matching search failed", "seed", seed, "err", err)
			continue
		}
		if len(results) > 0 {
			shared = append(shared, seed)
		}
	}
	return scoreMatching(shared)
}

func scoreMatching(shared []string) domain.Matching {
	m := domain.Matching{SharedInterests: shared}
	switch {
	case len(shared) >= 3:
		m.AffinityPercentage, m.AudienceCluster = 90, "Cultural Enthusiast"
	case len(shared) == 2:
		m.AffinityPercentage, m.AudienceCluster = 85, "Cultural Explorer"
	default:
		m.AffinityPercentage, m.AudienceCluster = 75, "Cultural Curious"
	}
	return m
}

// filterAndDeduplicate drops generic names, duplicate ids and entries with
// neither description nor image, preferring richer entries.
func filterAndDeduplicate(items []domain.Entity, limit int) []domain.Entity {
	sorted := append([]domain.Entity{}, items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := isRich(sorted[i]), isRich(sorted[j])
		if ri != rj {
			return ri
		}
		return sorted[i].Name > sorted[j].Name
	})

	out := make([]domain.Entity, 0, limit)
	seen := make(map[string]struct{}, len(sorted))
	for _, e := range sorted {
		if isGeneric(e.Name) || !isRich(e) {
			continue
		}
		if e.EntityID != "" {
			if _, dup := seen[e.EntityID]; dup {
				continue
			}
			seen[e.EntityID] = struct{}{}
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

func toEntity(r qloo.Result) domain.Entity {
	return domain.Entity{
		Name:        r.Name,
		EntityID:    r.EntityID,
		Description: r.Description,
		Image:       r.Image.URL,
		Tags:        r.TagNames(),
	}
}

func isRich(e domain.Entity) bool {
	return e.Description != "" || e.Image != ""
}

func isGeneric(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "brand", "place":
		return true
	}
	return false
}

func nonNil(tags []string) []string {
	return append([]string{}, tags...)
}
