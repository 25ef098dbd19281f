// internal/models/history.go
package models

type MealHistoryItem struct {
	ID              string          `json:"id"`
	Timestamp       int64           `json:"timestamp"`
	NutritionalInfo NutritionalInfo `json:"nutritionalInfo"`
	ImageDataURL    string          `json:"imageDataUrl"`
}

func (m MealHistoryItem) Clone() MealHistoryItem {
	m.NutritionalInfo = m.NutritionalInfo.Clone()
	return m
}

type PlanHistoryItem struct {
	ID        string           `json:"id"`
	Timestamp int64            `json:"timestamp"`
	Plan      PersonalizedPlan `json:"plan"`
	Metrics   UserMetrics      `json:"metrics"`
	Goal      string           `json:"goal"`
}

func (p PlanHistoryItem) Clone() PlanHistoryItem {
	p.Plan = p.Plan.Clone()
	return p
}

// HistoryData holds both collections newest-first.
type HistoryData struct {
	Meals []MealHistoryItem `json:"meals"`
	Plans []PlanHistoryItem `json:"plans"`
}

// Clone returns a deep copy. Nil collections come back as empty slices so
// that encoded history always carries arrays.
func (h HistoryData) Clone() HistoryData {
	out := HistoryData{
		Meals: make([]MealHistoryItem, 0, len(h.Meals)),
		Plans: make([]PlanHistoryItem, 0, len(h.Plans)),
	}
	for _, m := range h.Meals {
		out.Meals = append(out.Meals, m.Clone())
	}
	for _, p := range h.Plans {
		out.Plans = append(out.Plans, p.Clone())
	}
	return out
}
