package models

// ResultType tags the variant carried by a Result
type ResultType string

const (
	ResultTypeNutritionLabel ResultType = "nutrition_label"
	ResultTypeRecipe         ResultType = "recipe"
	ResultTypeDietGuide      ResultType = "diet_guide"
	ResultTypeUnknown        ResultType = "unknown"
)

// Canonical nutrient vocabulary. Extractors map free-text labels onto these
// keys; anything unrecognized is discarded rather than invented.
const (
	NutrientCalories      = "calories"
	NutrientProtein       = "protein"
	NutrientFat           = "fat"
	NutrientCarbohydrates = "carbohydrates"
	NutrientFiber         = "fiber"
	NutrientSugar         = "sugar"
	NutrientSodium        = "sodium"
	NutrientCalcium       = "calcium"
	NutrientIron          = "iron"
	NutrientVitaminC      = "vitamin_c"
	NutrientVitaminA      = "vitamin_a"
)

// Canonical units after normalization
const (
	UnitKcal      = "kcal"
	UnitGram      = "g"
	UnitMilligram = "mg"
	UnitMicrogram = "µg"
)

// Measurement is a normalized nutrient quantity
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// FoodInfo carries label-level metadata extracted from a nutrition label
type FoodInfo struct {
	Name        string `json:"name,omitempty"`
	Brand       string `json:"brand,omitempty"`
	ServingSize string `json:"serving_size,omitempty"`
}

// NutritionLabelResult is the structured output for nutrition label documents
type NutritionLabelResult struct {
	FoodInfo  FoodInfo               `json:"food_info"`
	Nutrition map[string]Measurement `json:"nutrition"`
}

// Ingredient is one tokenized recipe ingredient line
type Ingredient struct {
	Quantity    string `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Name        string `json:"name"`
	Preparation string `json:"preparation,omitempty"`
}

// RecipeResult is the structured output for recipe documents
type RecipeResult struct {
	Title        string       `json:"title"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	PrepTime     string       `json:"prep_time,omitempty"`
	CookTime     string       `json:"cook_time,omitempty"`
	Servings     string       `json:"servings,omitempty"`
	Difficulty   string       `json:"difficulty,omitempty"`
}

// GuideSection is one heading-delimited section of a diet guide
type GuideSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// DietGuideResult is the structured output for diet guide documents
type DietGuideResult struct {
	Sections []GuideSection `json:"sections"`
}

// Result is the tagged union produced by the parsing pipeline. Exactly one
// variant pointer matching Type is populated; RawText and QualityScore are
// common to every variant.
type Result struct {
	Type           ResultType            `json:"type"`
	NutritionLabel *NutritionLabelResult `json:"nutrition_label,omitempty"`
	Recipe         *RecipeResult         `json:"recipe,omitempty"`
	DietGuide      *DietGuideResult      `json:"diet_guide,omitempty"`

	RawText      string  `json:"raw_text"`
	QualityScore float64 `json:"quality_score"`
	PageCount    int     `json:"page_count,omitempty"`
	OCRUsed      bool    `json:"ocr_used,omitempty"`
}
