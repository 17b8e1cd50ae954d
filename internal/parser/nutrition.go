package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/nutriparse/internal/models"
)

// nutrientPattern pairs a canonical nutrient key with the label regex that
// captures its value and optional unit.
type nutrientPattern struct {
	nutrient string
	re       *regexp.Regexp
}

// numUnit is the shared value+unit tail: a decimal number followed by an
// optional unit token.
const numUnit = `[：:\s]*(\d+(?:\.\d+)?)\s*(kcal|kj|千焦|千卡|大卡|mg|µg|ug|mcg|g|毫克|微克|克)?`

// Label patterns in both English and Simplified Chinese. Order matters
// where one label is a prefix of another (dietary fiber before fiber,
// vitamin labels before bare letters).
var nutrientPatterns = []nutrientPattern{
	{models.NutrientCalories, regexp.MustCompile(`(?i)(?:能量|热量|calories|energy)` + numUnit)},
	{models.NutrientProtein, regexp.MustCompile(`(?i)(?:蛋白质|protein)` + numUnit)},
	{models.NutrientFat, regexp.MustCompile(`(?i)(?:脂肪|total\s+fat|fat)` + numUnit)},
	{models.NutrientCarbohydrates, regexp.MustCompile(`(?i)(?:碳水化合物|total\s+carbohydrates?|carbohydrates?)` + numUnit)},
	{models.NutrientFiber, regexp.MustCompile(`(?i)(?:膳食纤维|dietary\s+fiber|fiber|fibre)` + numUnit)},
	{models.NutrientSugar, regexp.MustCompile(`(?i)(?:糖|sugars?)` + numUnit)},
	{models.NutrientSodium, regexp.MustCompile(`(?i)(?:钠|sodium)` + numUnit)},
	{models.NutrientCalcium, regexp.MustCompile(`(?i)(?:钙|calcium)` + numUnit)},
	{models.NutrientIron, regexp.MustCompile(`(?i)(?:铁|iron)` + numUnit)},
	{models.NutrientVitaminC, regexp.MustCompile(`(?i)(?:维生素\s*C|vitamin\s*C)` + numUnit)},
	{models.NutrientVitaminA, regexp.MustCompile(`(?i)(?:维生素\s*A|vitamin\s*A)` + numUnit)},
}

var (
	servingSizePattern = regexp.MustCompile(`(?i)(?:serving\s+size|每份|份量)[：:\s]*([^\n]{1,40})`)
	per100Pattern      = regexp.MustCompile(`(?i)(每\s*100\s*克|per\s*100\s*g)`)
	brandPattern       = regexp.MustCompile(`(?i)(?:brand|品牌)[：:\s]*([^\n]{1,60})`)
	productPattern     = regexp.MustCompile(`(?i)(?:product\s+name|product|产品名称|食品名称)[：:\s]*([^\n]{1,80})`)
)

// NutritionExtractor builds nutrition label results from raw text
type NutritionExtractor struct{}

// CanHandle reports whether this extractor serves the detected type
func (e *NutritionExtractor) CanHandle(t models.ResultType) bool {
	return t == models.ResultTypeNutritionLabel
}

// Extract scans the text for nutrient rows and label metadata. The unit
// stats feed the quality score: attempted counts every matched row,
// normalized counts rows that survived unit conversion and plausibility.
func (e *NutritionExtractor) Extract(text string) (*models.Result, *ExtractionStats, error) {
	nutrition := make(map[string]models.Measurement)
	stats := &ExtractionStats{ExpectedFields: len(nutrientPatterns)}

	for _, p := range nutrientPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		stats.AttemptedUnits++

		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		measurement, ok := NormalizeMeasurement(p.nutrient, value, m[2])
		if !ok {
			continue
		}
		// First match wins; later occurrences are usually per-serving
		// duplicates of the per-100g table.
		if _, exists := nutrition[p.nutrient]; exists {
			continue
		}
		nutrition[p.nutrient] = measurement
		stats.NormalizedUnits++
		stats.PresentFields++
	}

	if len(nutrition) == 0 {
		return nil, stats, models.NewJobError(models.ErrKindUnparseable, "no recognizable nutrient rows found")
	}

	info := models.FoodInfo{}
	if m := productPattern.FindStringSubmatch(text); m != nil {
		info.Name = strings.TrimSpace(m[1])
	}
	if m := brandPattern.FindStringSubmatch(text); m != nil {
		info.Brand = strings.TrimSpace(m[1])
	}
	if m := servingSizePattern.FindStringSubmatch(text); m != nil {
		info.ServingSize = strings.TrimSpace(m[1])
	} else if per100Pattern.MatchString(text) {
		info.ServingSize = "100g"
	}

	return &models.Result{
		Type: models.ResultTypeNutritionLabel,
		NutritionLabel: &models.NutritionLabelResult{
			FoodInfo:  info,
			Nutrition: nutrition,
		},
	}, stats, nil
}
