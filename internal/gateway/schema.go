// internal/gateway/schema.go
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"nutricoach/internal/models"
)

var errSchemaMismatch = errors.New("response does not match the requested schema")

var nutrientSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"name":   {Type: jsonschema.String},
		"amount": {Type: jsonschema.String, Description: "Amount with unit, e.g. 12 mg"},
	},
	Required: []string{"name", "amount"},
}

// NutritionalInfoSchema is the shape requested for a meal analysis.
var NutritionalInfoSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"foodItems": {
			Type:        jsonschema.Array,
			Description: "Food items identified in the image",
			Items:       &jsonschema.Definition{Type: jsonschema.String},
		},
		"macros": {
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"calories":      {Type: jsonschema.Number, Description: "kcal"},
				"protein":       {Type: jsonschema.Number, Description: "grams"},
				"carbohydrates": {Type: jsonschema.Number, Description: "grams"},
				"fat":           {Type: jsonschema.Number, Description: "grams"},
			},
			Required: []string{"calories", "protein", "carbohydrates", "fat"},
		},
		"vitamins": {Type: jsonschema.Array, Items: &nutrientSchema},
		"minerals": {Type: jsonschema.Array, Items: &nutrientSchema},
		"summary":  {Type: jsonschema.String, Description: "A short summary of the meal's nutritional value"},
	},
	Required: []string{"foodItems", "macros", "vitamins", "minerals", "summary"},
}

// PersonalizedPlanSchema is the shape requested for a weekly plan. Both
// maps are keyed by exactly models.Weekdays.
var PersonalizedPlanSchema = planSchema()

func planSchema() jsonschema.Definition {
	dayMeals := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"breakfast": {Type: jsonschema.String},
			"lunch":     {Type: jsonschema.String},
			"dinner":    {Type: jsonschema.String},
			"snacks":    {Type: jsonschema.String},
		},
		Required: []string{"breakfast", "lunch", "dinner"},
	}

	meals := make(map[string]jsonschema.Definition, len(models.Weekdays))
	workouts := make(map[string]jsonschema.Definition, len(models.Weekdays))
	for _, day := range models.Weekdays {
		meals[day] = dayMeals
		workouts[day] = jsonschema.Definition{Type: jsonschema.String}
	}
	days := append([]string(nil), models.Weekdays...)

	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"summary": {Type: jsonschema.String, Description: "Overview of the plan and how it serves the goal"},
			"mealPlan": {
				Type:                 jsonschema.Object,
				Properties:           meals,
				Required:             days,
				AdditionalProperties: false,
			},
			"workoutPlan": {
				Type:                 jsonschema.Object,
				Properties:           workouts,
				Required:             days,
				AdditionalProperties: false,
			},
		},
		Required: []string{"summary", "mealPlan", "workoutPlan"},
	}
}

// decodeResponse parses text into v after checking it against schema.
func decodeResponse(text string, schema jsonschema.Definition, v any) (ErrorKind, error) {
	text = cleanResponse(text)

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return KindDecode, fmt.Errorf("invalid JSON: %w", err)
	}
	raw, err := normalize(schema, raw)
	if err != nil {
		return KindSchema, err
	}
	if !jsonschema.Validate(schema, raw) {
		return KindSchema, errSchemaMismatch
	}

	// decode from the checked value, not the original text
	data, err := json.Marshal(raw)
	if err != nil {
		return KindDecode, fmt.Errorf("failed to re-encode response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return KindDecode, fmt.Errorf("failed to decode response: %w", err)
	}
	return "", nil
}

// normalize drops null optional properties and rejects keys that differ
// from a declared property only by case, since encoding/json would match
// either one to the same struct field.
func normalize(def jsonschema.Definition, v any) (any, error) {
	switch def.Type {
	case jsonschema.Object:
		obj, ok := v.(map[string]any)
		if !ok {
			return v, nil
		}
		out := make(map[string]any, len(obj))
		for key, val := range obj {
			prop, declared := def.Properties[key]
			if !declared {
				if name, clash := foldMatch(def.Properties, key); clash {
					return nil, fmt.Errorf("%w: field %q shadows %q", errSchemaMismatch, key, name)
				}
				out[key] = val
				continue
			}
			if val == nil && !slices.Contains(def.Required, key) {
				continue
			}
			n, err := normalize(prop, val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil

	case jsonschema.Array:
		arr, ok := v.([]any)
		if !ok || def.Items == nil {
			return v, nil
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			n, err := normalize(*def.Items, item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return v, nil
}

func foldMatch(props map[string]jsonschema.Definition, key string) (string, bool) {
	for name := range props {
		if strings.EqualFold(name, key) {
			return name, true
		}
	}
	return "", false
}

// cleanResponse drops markdown code fences some models wrap JSON in.
func cleanResponse(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
