// internal/gateway/prompts.go
package gateway

import (
	"fmt"

	"nutricoach/internal/models"
)

const systemPrompt = "You are an experienced nutritionist and personal trainer. Answer only with JSON matching the requested schema."

const mealInstruction = "Analyze the meal in this image. Identify each food item, " +
	"estimate the macronutrients for the whole meal (calories in kcal; protein, carbohydrates and fat in grams), " +
	"list the notable vitamins and minerals with estimated amounts, " +
	"and write a short summary of the meal's nutritional value."

func planPrompt(m models.UserMetrics, goal string) string {
	return fmt.Sprintf(
		"Create a personalized 7-day meal and workout plan for a person with the following details:\n"+
			"- Height: %s\n"+
			"- Weight: %s\n"+
			"- Age: %s\n"+
			"- Gender: %s\n"+
			"- Activity level: %s\n"+
			"- Goal: %s\n\n"+
			"Start with a short summary of the approach. "+
			"Then give a meal plan for every day from Monday to Sunday with breakfast, lunch, dinner and optional snacks, "+
			"and a workout plan for every day from Monday to Sunday (rest days included). "+
			"Answer in the language the goal is written in.",
		m.Height, m.Weight, m.Age, m.Gender, m.ActivityLevel.Label(), goal,
	)
}
