package parser

import (
	"strings"

	"github.com/ternarybob/nutriparse/internal/models"
)

// kJ to kcal conversion factor
const kjToKcal = 0.239

// canonicalUnits maps each nutrient to the unit its measurement is
// normalized into.
var canonicalUnits = map[string]string{
	models.NutrientCalories:      models.UnitKcal,
	models.NutrientProtein:       models.UnitGram,
	models.NutrientFat:           models.UnitGram,
	models.NutrientCarbohydrates: models.UnitGram,
	models.NutrientFiber:         models.UnitGram,
	models.NutrientSugar:         models.UnitGram,
	models.NutrientSodium:        models.UnitMilligram,
	models.NutrientCalcium:       models.UnitMilligram,
	models.NutrientIron:          models.UnitMilligram,
	models.NutrientVitaminC:      models.UnitMilligram,
	models.NutrientVitaminA:      models.UnitMicrogram,
}

// unitAliases folds written-out and Chinese unit spellings onto symbols
var unitAliases = map[string]string{
	"kcal": models.UnitKcal,
	"千卡":   models.UnitKcal,
	"大卡":   models.UnitKcal,
	"kj":   "kJ",
	"千焦":   "kJ",
	"g":    models.UnitGram,
	"克":    models.UnitGram,
	"mg":   models.UnitMilligram,
	"毫克":   models.UnitMilligram,
	"µg":   models.UnitMicrogram,
	"ug":   models.UnitMicrogram,
	"mcg":  models.UnitMicrogram,
	"微克":   models.UnitMicrogram,
}

// plausibleRanges bounds values after normalization, interpreted per 100 g
// of product. Values outside the range are rejected as extraction noise.
var plausibleRanges = map[string][2]float64{
	models.NutrientCalories:      {0, 900},
	models.NutrientProtein:       {0, 100},
	models.NutrientFat:           {0, 100},
	models.NutrientCarbohydrates: {0, 100},
	models.NutrientFiber:         {0, 50},
	models.NutrientSugar:         {0, 100},
	models.NutrientSodium:        {0, 10000},
	models.NutrientCalcium:       {0, 3000},
	models.NutrientIron:          {0, 100},
	models.NutrientVitaminC:      {0, 2000},
	models.NutrientVitaminA:      {0, 5000},
}

// NormalizeUnit resolves a raw unit token to its canonical spelling.
// Unknown tokens come back unchanged with ok=false.
func NormalizeUnit(raw string) (string, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return "", false
	}
	if u, ok := unitAliases[token]; ok {
		return u, true
	}
	// Already-canonical symbols round-trip
	switch raw {
	case models.UnitKcal, models.UnitGram, models.UnitMilligram, models.UnitMicrogram, "kJ":
		return raw, true
	}
	return raw, false
}

// NormalizeMeasurement converts a raw (value, unit) pair into the nutrient's
// canonical unit and checks plausibility. Normalization is idempotent:
// feeding a canonical measurement back returns it unchanged.
func NormalizeMeasurement(nutrient string, value float64, rawUnit string) (models.Measurement, bool) {
	target, known := canonicalUnits[nutrient]
	if !known {
		return models.Measurement{}, false
	}

	unit, ok := NormalizeUnit(rawUnit)
	if !ok {
		// A missing unit on an otherwise parsed value assumes the canonical
		// unit; labels frequently omit the unit on repeated rows.
		unit = target
	}

	switch {
	case unit == target:
		// nothing to convert
	case unit == "kJ" && target == models.UnitKcal:
		value *= kjToKcal
		unit = models.UnitKcal
	case unit == models.UnitGram && target == models.UnitMilligram:
		value *= 1000
		unit = models.UnitMilligram
	case unit == models.UnitMilligram && target == models.UnitGram:
		value /= 1000
		unit = models.UnitGram
	case unit == models.UnitMilligram && target == models.UnitMicrogram:
		value *= 1000
		unit = models.UnitMicrogram
	case unit == models.UnitMicrogram && target == models.UnitMilligram:
		value /= 1000
		unit = models.UnitMilligram
	default:
		return models.Measurement{}, false
	}

	if r, ok := plausibleRanges[nutrient]; ok {
		if value < r[0] || value > r[1] {
			return models.Measurement{}, false
		}
	}

	return models.Measurement{Value: value, Unit: unit}, true
}
