package conversation

import "tribu-agent/internal/domain"

// AssembleProfile converts accumulated entities into the six-field profile.
// Every field is a non-nil slice, empty when the category is unanswered.
func AssembleProfile(entities domain.EntitySet) domain.Profile {
	tags := func(c domain.Category) []string {
		return append([]string{}, entities[c]...)
	}
	return domain.Profile{
		Music:     tags(domain.CategoryMusic),
		Art:       tags(domain.CategoryArt),
		Fashion:   tags(domain.CategoryFashion),
		Values:    tags(domain.CategoryValues),
		Places:    tags(domain.CategoryPlaces),
		Audiences: tags(domain.CategoryAudiences),
	}
}
