package parser

import (
	"regexp"
	"strings"

	"github.com/ternarybob/nutriparse/internal/models"
)

// Keyword sets for document classification. Both English and Simplified
// Chinese labels are recognized; matching is case-insensitive for Latin
// script.
var (
	nutritionKeywords = []string{
		"nutrition facts",
		"nutritional information",
		"营养成分",
		"营养标签",
		"每100克",
		"per 100g",
		"per 100 g",
	}

	recipeKeywords = []string{
		"ingredients",
		"配料",
		"材料",
		"原料",
	}

	instructionKeywords = []string{
		"instructions",
		"directions",
		"method",
		"做法",
		"步骤",
	}

	numberedStepPattern = regexp.MustCompile(`(?m)^\s*(?:\d+[\.、\)]|step\s+\d+)`)
)

// DetectType classifies document text into a result type. Nutrition labels
// win over recipes when both signal; anything without a recognizable
// structure falls back to diet_guide since prose guides have no reliable
// keyword anchor.
func DetectType(text string) models.ResultType {
	lower := strings.ToLower(text)

	for _, kw := range nutritionKeywords {
		if strings.Contains(lower, kw) {
			return models.ResultTypeNutritionLabel
		}
	}

	hasIngredients := false
	for _, kw := range recipeKeywords {
		if strings.Contains(lower, kw) {
			hasIngredients = true
			break
		}
	}
	hasSteps := numberedStepPattern.MatchString(lower)
	if !hasSteps {
		for _, kw := range instructionKeywords {
			if strings.Contains(lower, kw) {
				hasSteps = true
				break
			}
		}
	}
	if hasIngredients && hasSteps {
		return models.ResultTypeRecipe
	}

	return models.ResultTypeDietGuide
}

// resultTypeFor maps an explicit parsing type onto a result type
func resultTypeFor(t models.ParsingType) models.ResultType {
	switch t {
	case models.ParsingTypeNutritionLabel:
		return models.ResultTypeNutritionLabel
	case models.ParsingTypeRecipe:
		return models.ResultTypeRecipe
	case models.ParsingTypeDietGuide:
		return models.ResultTypeDietGuide
	default:
		return models.ResultTypeUnknown
	}
}
