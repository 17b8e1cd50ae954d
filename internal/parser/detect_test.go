package parser

import (
	"testing"

	"github.com/ternarybob/nutriparse/internal/models"
)

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.ResultType
	}{
		{
			name: "english nutrition facts panel",
			text: "Nutrition Facts\nServing Size 1 cup\nCalories 250",
			want: models.ResultTypeNutritionLabel,
		},
		{
			name: "chinese nutrition label",
			text: "营养成分表\n每100克\n能量 1000千焦",
			want: models.ResultTypeNutritionLabel,
		},
		{
			name: "english recipe with numbered steps",
			text: "Tomato Soup\nIngredients\n2 cups tomatoes\nInstructions\n1. Chop the tomatoes\n2. Simmer for 20 minutes",
			want: models.ResultTypeRecipe,
		},
		{
			name: "chinese recipe",
			text: "西红柿炒蛋\n配料\n西红柿 2个\n做法\n1. 切西红柿\n2. 炒鸡蛋",
			want: models.ResultTypeRecipe,
		},
		{
			name: "ingredients without steps falls back to guide",
			text: "This product contains the following ingredients and nothing else of note in any structure",
			want: models.ResultTypeDietGuide,
		},
		{
			name: "prose defaults to diet guide",
			text: "Healthy eating means balancing your meals across the week.",
			want: models.ResultTypeDietGuide,
		},
		{
			name: "nutrition wins over recipe keywords",
			text: "Nutrition Facts\nIngredients: water, sugar\n1. not a real step",
			want: models.ResultTypeNutritionLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectType(tt.text); got != tt.want {
				t.Errorf("DetectType() = %v, want %v", got, tt.want)
			}
		})
	}
}
