package parser

import (
	"github.com/ternarybob/nutriparse/internal/models"
)

// Extractor is one type-specific structured extractor. Extract returns the
// partially filled result (variant and type set), the stats the quality
// score is computed from, and an error for documents this extractor cannot
// make sense of.
type Extractor interface {
	CanHandle(t models.ResultType) bool
	Extract(text string) (*models.Result, *ExtractionStats, error)
}

// Registry resolves the extractor for a detected result type. Extractors
// are consulted in registration order; first CanHandle wins.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry with the built-in extractors
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			&NutritionExtractor{},
			&RecipeExtractor{},
			&DietGuideExtractor{},
		},
	}
}

// Register appends a custom extractor
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// For returns the first extractor handling the given type
func (r *Registry) For(t models.ResultType) (Extractor, bool) {
	for _, e := range r.extractors {
		if e.CanHandle(t) {
			return e, true
		}
	}
	return nil, false
}
