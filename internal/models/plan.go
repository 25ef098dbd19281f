// internal/models/plan.go
package models

import (
	"fmt"
	"sort"
)

// Weekdays is the fixed key set of every plan, in calendar order.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func IsWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

type DayMeals struct {
	Breakfast string `json:"breakfast"`
	Lunch     string `json:"lunch"`
	Dinner    string `json:"dinner"`
	Snacks    string `json:"snacks,omitempty"`
}

type PersonalizedPlan struct {
	Summary     string              `json:"summary"`
	MealPlan    map[string]DayMeals `json:"mealPlan"`
	WorkoutPlan map[string]string   `json:"workoutPlan"`
}

// CheckWeekdays reports an error unless both maps hold exactly the seven
// weekday keys.
func (p PersonalizedPlan) CheckWeekdays() error {
	if err := checkDays("mealPlan", keysOf(p.MealPlan)); err != nil {
		return err
	}
	return checkDays("workoutPlan", keysOf(p.WorkoutPlan))
}

func (p PersonalizedPlan) Clone() PersonalizedPlan {
	out := PersonalizedPlan{Summary: p.Summary}
	if p.MealPlan != nil {
		out.MealPlan = make(map[string]DayMeals, len(p.MealPlan))
		for k, v := range p.MealPlan {
			out.MealPlan[k] = v
		}
	}
	if p.WorkoutPlan != nil {
		out.WorkoutPlan = make(map[string]string, len(p.WorkoutPlan))
		for k, v := range p.WorkoutPlan {
			out.WorkoutPlan[k] = v
		}
	}
	return out
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func checkDays(field string, keys []string) error {
	for _, k := range keys {
		if !IsWeekday(k) {
			return fmt.Errorf("%s: unexpected key %q", field, k)
		}
	}
	if len(keys) != len(Weekdays) {
		return fmt.Errorf("%s: expected %d weekdays, got %d", field, len(Weekdays), len(keys))
	}
	return nil
}
