package domain

// Category is one of the fixed cultural dimensions of the questionnaire.
type Category string

const (
	CategoryMusic     Category = "music"
	CategoryArt       Category = "art"
	CategoryFashion   Category = "fashion"
	CategoryValues    Category = "values"
	CategoryPlaces    Category = "places"
	CategoryAudiences Category = "audiences"
)

// Categories lists every category in questionnaire order.
var Categories = []Category{
	CategoryMusic,
	CategoryArt,
	CategoryFashion,
	CategoryValues,
	CategoryPlaces,
	CategoryAudiences,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// EntitySet maps a category to its extracted tags. A missing or empty list
// means the category has not been answered yet.
type EntitySet map[Category][]string

// Populated returns the number of categories holding at least one tag.
func (s EntitySet) Populated() int {
	n := 0
	for _, c := range Categories {
		if len(s[c]) > 0 {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of s restricted to the known categories.
func (s EntitySet) Clone() EntitySet {
	out := make(EntitySet, len(s))
	for _, c := range Categories {
		tags, ok := s[c]
		if !ok {
			continue
		}
		out[c] = append([]string{}, tags...)
	}
	return out
}

// Profile is the six-field payload sent for recommendation generation.
type Profile struct {
	Music     []string `json:"music"`
	Art       []string `json:"art"`
	Fashion   []string `json:"fashion"`
	Values    []string `json:"values"`
	Places    []string `json:"places"`
	Audiences []string `json:"audiences"`
}

// Get returns the tags stored for a category.
func (p Profile) Get(c Category) []string {
	switch c {
	case CategoryMusic:
		return p.Music
	case CategoryArt:
		return p.Art
	case CategoryFashion:
		return p.Fashion
	case CategoryValues:
		return p.Values
	case CategoryPlaces:
		return p.Places
	case CategoryAudiences:
		return p.Audiences
	default:
		return nil
	}
}

// EntitySet converts the profile back into an EntitySet, skipping empty
// categories.
func (p Profile) EntitySet() EntitySet {
	out := make(EntitySet, len(Categories))
	for _, c := range Categories {
		if tags := p.Get(c); len(tags) > 0 {
			out[c] = append([]string{}, tags...)
		}
	}
	return out
}

// TagCount returns the total number of tags across all categories.
func (p Profile) TagCount() int {
	n := 0
	for _, c := range Categories {
		n += len(p.Get(c))
	}
	return n
}

// Entity is a recommended brand, place or other Qloo entity.
type Entity struct {
	Name        string   `json:"name"`
	EntityID    string   `json:"entity_id"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Tags        []string `json:"tags"`
}

// CulturalProfile describes the identity generated for a submitted profile.
type CulturalProfile struct {
	Identity    string   `json:"identity"`
	Description string   `json:"description"`
	Music       []string `json:"music"`
	Art         []string `json:"art"`
	Fashion     []string `json:"fashion"`
	Values      []string `json:"values"`
	Places      []string `json:"places"`
	Audiences   []string `json:"audiences"`
}

// Matching is the affinity between a profile and an audience cluster.
type Matching struct {
	AffinityPercentage int      `json:"affinity_percentage"`
	SharedInterests    []string `json:"shared_interests"`
	AudienceCluster    string   `json:"audience_cluster"`
}

// RecommendationResult is produced once per completed profile submission.
type RecommendationResult struct {
	CulturalProfile CulturalProfile     `json:"cultural_profile"`
	Recommendations map[string][]Entity `json:"recommendations"`
	Matching        *Matching           `json:"matching,omitempty"`
}
