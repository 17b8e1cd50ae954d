package parser

import (
	"regexp"
	"strings"

	"github.com/ternarybob/nutriparse/internal/models"
)

var (
	ingredientHeaderPattern   = regexp.MustCompile(`(?im)^\s*(?:ingredients|配料|材料|原料)\s*[：:]?\s*$`)
	instructionHeaderPattern  = regexp.MustCompile(`(?im)^\s*(?:instructions|directions|method|做法|步骤)\s*[：:]?\s*$`)
	numberedInstructionPrefix = regexp.MustCompile(`^\s*(?:\d+[\.、\)]\s*|step\s+\d+[：:.]?\s*)`)

	prepTimePattern   = regexp.MustCompile(`(?i)(?:prep\s+time|准备时间)[：:\s]*([^\n]{1,30})`)
	cookTimePattern   = regexp.MustCompile(`(?i)(?:cook\s+time|烹饪时间|烹调时间)[：:\s]*([^\n]{1,30})`)
	servingsPattern   = regexp.MustCompile(`(?i)(?:servings|serves|yield|份量|人份)[：:\s]*([^\n]{1,30})`)
	difficultyPattern = regexp.MustCompile(`(?i)(?:difficulty|难度)[：:\s]*([^\n]{1,30})`)

	// quantity, optional unit, name, optional preparation after a comma
	ingredientLinePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?(?:\s*/\s*\d+)?)?\s*` +
		`(cups?|tbsp|tablespoons?|tsp|teaspoons?|oz|ounces?|lbs?|pounds?|kg|g|ml|l|克|千克|毫升|升|勺|杯|个|只|片|根|瓣)?\s*` +
		`(.+?)(?:[,，]\s*(.+))?\s*$`)
)

// RecipeExtractor builds recipe results from raw text
type RecipeExtractor struct{}

func (e *RecipeExtractor) CanHandle(t models.ResultType) bool {
	return t == models.ResultTypeRecipe
}

// Extract splits the text at the ingredient and instruction headers, then
// tokenizes each region line by line. The first non-empty line before any
// header is the title.
func (e *RecipeExtractor) Extract(text string) (*models.Result, *ExtractionStats, error) {
	stats := &ExtractionStats{ExpectedFields: 3} // title, ingredients, instructions

	recipe := &models.RecipeResult{}
	if m := prepTimePattern.FindStringSubmatch(text); m != nil {
		recipe.PrepTime = strings.TrimSpace(m[1])
	}
	if m := cookTimePattern.FindStringSubmatch(text); m != nil {
		recipe.CookTime = strings.TrimSpace(m[1])
	}
	if m := servingsPattern.FindStringSubmatch(text); m != nil {
		recipe.Servings = strings.TrimSpace(m[1])
	}
	if m := difficultyPattern.FindStringSubmatch(text); m != nil {
		recipe.Difficulty = strings.TrimSpace(m[1])
	}

	ingLoc := ingredientHeaderPattern.FindStringIndex(text)
	insLoc := instructionHeaderPattern.FindStringIndex(text)

	// Title: first non-empty line before the first header
	head := text
	if ingLoc != nil {
		head = text[:ingLoc[0]]
	} else if insLoc != nil {
		head = text[:insLoc[0]]
	}
	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			recipe.Title = line
			stats.PresentFields++
			break
		}
	}

	if ingLoc != nil {
		ingRegion := text[ingLoc[1]:]
		if insLoc != nil && insLoc[0] > ingLoc[1] {
			ingRegion = text[ingLoc[1]:insLoc[0]]
		}
		recipe.Ingredients = parseIngredients(ingRegion)
		if len(recipe.Ingredients) > 0 {
			stats.PresentFields++
		}
	}

	if insLoc != nil {
		recipe.Instructions = parseInstructions(text[insLoc[1]:])
		if len(recipe.Instructions) > 0 {
			stats.PresentFields++
		}
	}

	if len(recipe.Ingredients) == 0 && len(recipe.Instructions) == 0 {
		return nil, stats, models.NewJobError(models.ErrKindUnparseable, "no ingredient or instruction sections found")
	}

	return &models.Result{
		Type:   models.ResultTypeRecipe,
		Recipe: recipe,
	}, stats, nil
}

// parseIngredients tokenizes one ingredient per line
func parseIngredients(region string) []models.Ingredient {
	var out []models.Ingredient
	for _, line := range strings.Split(region, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-•*"))
		if line == "" {
			continue
		}
		// A numbered line signals we drifted into the instructions
		if numberedInstructionPrefix.MatchString(line) {
			break
		}
		m := ingredientLinePattern.FindStringSubmatch(line)
		if m == nil {
			out = append(out, models.Ingredient{Name: line})
			continue
		}
		ing := models.Ingredient{
			Quantity:    strings.TrimSpace(m[1]),
			Unit:        strings.TrimSpace(m[2]),
			Name:        strings.TrimSpace(m[3]),
			Preparation: strings.TrimSpace(m[4]),
		}
		if ing.Name == "" {
			ing.Name = line
		}
		out = append(out, ing)
	}
	return out
}

// parseInstructions collects numbered steps, joining continuation lines
// onto the previous step.
func parseInstructions(region string) []string {
	var steps []string
	for _, line := range strings.Split(region, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if loc := numberedInstructionPrefix.FindStringIndex(strings.ToLower(line)); loc != nil {
			steps = append(steps, strings.TrimSpace(line[loc[1]:]))
			continue
		}
		if len(steps) > 0 {
			steps[len(steps)-1] += " " + line
		} else {
			steps = append(steps, line)
		}
	}
	return steps
}
