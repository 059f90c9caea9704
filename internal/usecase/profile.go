package usecase

import (
	"context"
	"errors"
	"strings"

	"tribu-agent/internal/conversation"
	"tribu-agent/internal/domain"
)

const maxProfileTags = 20

type ProfileService struct {
	recommender Recommender
}

func NewProfileService(r Recommender) (*ProfileService, error) {
	if r == nil {
		return nil, errors.New("usecase: recommender must not be nil")
	}
	return &ProfileService{recommender: r}, nil
}

// ProcessProfile runs the recommendation pipeline for a complete profile
// submitted in one request.
func (s *ProfileService) ProcessProfile(ctx context.Context, p domain.Profile) (domain.RecommendationResult, error) {
	set := domain.EntitySet{}
	for _, c := range domain.Categories {
		tags := p.Get(c)
		if len(tags) > maxProfileTags {
			return domain.RecommendationResult{}, newError(ErrorInvalidInput, "too_many_tags", nil)
		}
		clean := make([]string, 0, len(tags))
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" {
				clean = append(clean, t)
			}
		}
		set[c] = clean
	}

	res, err := s.recommender.Recommend(ctx, conversation.AssembleProfile(set))
	if err != nil {
		return domain.RecommendationResult{}, upstreamError("recommendation", err)
	}
	return res, nil
}
