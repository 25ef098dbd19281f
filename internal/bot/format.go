// internal/bot/format.go
package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"nutricoach/internal/models"
)

const maxMessageLen = 4000

func formatNutrition(info *models.NutritionalInfo) string {
	var b strings.Builder
	b.WriteString("🍽 " + info.Summary + "\n\n")
	if len(info.FoodItems) > 0 {
		b.WriteString("Food: " + strings.Join(info.FoodItems, ", ") + "\n")
	}
	fmt.Fprintf(&b, "Calories: %.0f kcal\nProtein: %.1f g\nCarbohydrates: %.1f g\nFat: %.1f g\n",
		info.Macros.Calories, info.Macros.Protein, info.Macros.Carbohydrates, info.Macros.Fat)
	writeNutrients(&b, "Vitamins", info.Vitamins)
	writeNutrients(&b, "Minerals", info.Minerals)
	return b.String()
}

func writeNutrients(b *strings.Builder, title string, items []models.Nutrient) {
	if len(items) == 0 {
		return
	}
	parts := make([]string, 0, len(items))
	for _, n := range items {
		parts = append(parts, n.Name+" "+n.Amount)
	}
	b.WriteString(title + ": " + strings.Join(parts, ", ") + "\n")
}

func formatPlan(plan *models.PersonalizedPlan) string {
	var b strings.Builder
	b.WriteString("🎉 Your personalized plan is ready!\n\n" + plan.Summary + "\n")
	for _, day := range models.Weekdays {
		meals := plan.MealPlan[day]
		fmt.Fprintf(&b, "\n📅 %s\nBreakfast: %s\nLunch: %s\nDinner: %s\n", day, meals.Breakfast, meals.Lunch, meals.Dinner)
		if meals.Snacks != "" {
			b.WriteString("Snacks: " + meals.Snacks + "\n")
		}
		b.WriteString("Workout: " + plan.WorkoutPlan[day] + "\n")
	}
	return b.String()
}

func formatHistory(h models.HistoryData) string {
	if len(h.Meals) == 0 && len(h.Plans) == 0 {
		return "Your history is empty. Send a meal photo or use /plan."
	}

	var b strings.Builder
	if len(h.Meals) > 0 {
		b.WriteString("Meals:\n")
		for _, m := range h.Meals {
			fmt.Fprintf(&b, "• %s: %s (%.0f kcal)\n", formatTimestamp(m.Timestamp),
				strings.Join(m.NutritionalInfo.FoodItems, ", "), m.NutritionalInfo.Macros.Calories)
		}
	}
	if len(h.Plans) > 0 {
		if len(h.Meals) > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Plans:\n")
		for _, p := range h.Plans {
			fmt.Fprintf(&b, "• %s: %s\n", formatTimestamp(p.Timestamp), p.Goal)
		}
	}
	return b.String()
}

func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

// splitMessage breaks text on line boundaries into Telegram-sized chunks.
// A single line longer than limit is cut on a rune boundary.
func splitMessage(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			cut := runeCut(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// runeCut returns the largest index <= limit that starts a rune, or the
// end of the first rune when limit is smaller than it.
func runeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}
