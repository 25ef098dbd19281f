// internal/models/nutrition.go
package models

type Macros struct {
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Carbohydrates float64 `json:"carbohydrates"`
	Fat           float64 `json:"fat"`
}

// Nutrient is a vitamin or mineral with a free-form amount ("90 mg").
type Nutrient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// NutritionalInfo is the estimated breakdown of one meal photo.
type NutritionalInfo struct {
	FoodItems []string   `json:"foodItems"`
	Macros    Macros     `json:"macros"`
	Vitamins  []Nutrient `json:"vitamins"`
	Minerals  []Nutrient `json:"minerals"`
	Summary   string     `json:"summary"`
}

func (n NutritionalInfo) Clone() NutritionalInfo {
	out := n
	out.FoodItems = append([]string(nil), n.FoodItems...)
	out.Vitamins = append([]Nutrient(nil), n.Vitamins...)
	out.Minerals = append([]Nutrient(nil), n.Minerals...)
	return out
}
