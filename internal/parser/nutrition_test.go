package parser

import (
	"math"
	"testing"

	"github.com/ternarybob/nutriparse/internal/models"
)

const englishLabel = `Nutrition Facts
Product Name: Crunchy Oat Bar
Brand: Hearthside
Serving Size: 40g
Calories: 180 kcal
Total Fat: 6 g
Sodium: 95 mg
Total Carbohydrates: 27 g
Fiber: 3 g
Sugars: 11 g
Protein: 4 g
Calcium: 20 mg
Iron: 1.2 mg
`

const chineseLabel = `营养成分表
每100克
能量: 1850 千焦
蛋白质: 7.5 g
脂肪: 15 克
碳水化合物: 68 g
钠: 120 毫克
`

func TestNutritionExtractorEnglish(t *testing.T) {
	e := &NutritionExtractor{}
	result, stats, err := e.Extract(englishLabel)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Type != models.ResultTypeNutritionLabel {
		t.Fatalf("type = %v", result.Type)
	}

	label := result.NutritionLabel
	if label.FoodInfo.Name != "Crunchy Oat Bar" {
		t.Errorf("name = %q", label.FoodInfo.Name)
	}
	if label.FoodInfo.Brand != "Hearthside" {
		t.Errorf("brand = %q", label.FoodInfo.Brand)
	}
	if label.FoodInfo.ServingSize != "40g" {
		t.Errorf("serving size = %q", label.FoodInfo.ServingSize)
	}

	checks := map[string]models.Measurement{
		models.NutrientCalories:      {Value: 180, Unit: "kcal"},
		models.NutrientFat:           {Value: 6, Unit: "g"},
		models.NutrientSodium:        {Value: 95, Unit: "mg"},
		models.NutrientCarbohydrates: {Value: 27, Unit: "g"},
		models.NutrientFiber:         {Value: 3, Unit: "g"},
		models.NutrientSugar:         {Value: 11, Unit: "g"},
		models.NutrientProtein:       {Value: 4, Unit: "g"},
		models.NutrientCalcium:       {Value: 20, Unit: "mg"},
		models.NutrientIron:          {Value: 1.2, Unit: "mg"},
	}
	for nutrient, want := range checks {
		got, ok := label.Nutrition[nutrient]
		if !ok {
			t.Errorf("missing nutrient %s", nutrient)
			continue
		}
		if math.Abs(got.Value-want.Value) > 0.001 || got.Unit != want.Unit {
			t.Errorf("%s = %v, want %v", nutrient, got, want)
		}
	}

	if stats.PresentFields != len(checks) {
		t.Errorf("present fields = %d, want %d", stats.PresentFields, len(checks))
	}
	if stats.NormalizedUnits != stats.AttemptedUnits {
		t.Errorf("normalization stats = %d/%d, want all normalized", stats.NormalizedUnits, stats.AttemptedUnits)
	}
}

func TestNutritionExtractorChinese(t *testing.T) {
	e := &NutritionExtractor{}
	result, _, err := e.Extract(chineseLabel)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	label := result.NutritionLabel
	if label.FoodInfo.ServingSize != "100g" {
		t.Errorf("serving size = %q, want 100g", label.FoodInfo.ServingSize)
	}

	calories, ok := label.Nutrition[models.NutrientCalories]
	if !ok {
		t.Fatal("missing calories")
	}
	if calories.Unit != "kcal" {
		t.Errorf("calories unit = %q, want kcal", calories.Unit)
	}
	if math.Abs(calories.Value-1850*0.239) > 0.01 {
		t.Errorf("calories = %v, want %v", calories.Value, 1850*0.239)
	}

	sodium := label.Nutrition[models.NutrientSodium]
	if sodium.Value != 120 || sodium.Unit != "mg" {
		t.Errorf("sodium = %v", sodium)
	}
	fat := label.Nutrition[models.NutrientFat]
	if fat.Value != 15 || fat.Unit != "g" {
		t.Errorf("fat = %v", fat)
	}
}

func TestNutritionExtractorNoRows(t *testing.T) {
	e := &NutritionExtractor{}
	_, _, err := e.Extract("nothing that looks like a label")
	jobErr := models.AsJobError(err)
	if jobErr == nil || jobErr.Kind != models.ErrKindUnparseable {
		t.Fatalf("expected unparseable, got %v", err)
	}
}

func TestNutritionExtractorFirstMatchWins(t *testing.T) {
	text := "Nutrition Facts\nProtein: 10 g\nProtein: 99 g\n"
	e := &NutritionExtractor{}
	result, _, err := e.Extract(text)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := result.NutritionLabel.Nutrition[models.NutrientProtein].Value; got != 10 {
		t.Errorf("protein = %v, want first match 10", got)
	}
}
