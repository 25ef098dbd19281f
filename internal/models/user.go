// internal/models/user.go
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// User is the identity held by a session. Email is the identity key.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// ActivityLevels lists the accepted levels from least to most active.
var ActivityLevels = []ActivityLevel{
	ActivitySedentary,
	ActivityLight,
	ActivityModerate,
	ActivityActive,
	ActivityVeryActive,
}

func (a ActivityLevel) Valid() bool {
	for _, l := range ActivityLevels {
		if a == l {
			return true
		}
	}
	return false
}

// Label renders the level for humans ("very_active" -> "very active").
func (a ActivityLevel) Label() string {
	return strings.ReplaceAll(string(a), "_", " ")
}

// UserMetrics are the inputs of one plan-generation request.
// Height and weight are unit-agnostic strings such as "180cm" or "75 kg".
type UserMetrics struct {
	Height        string        `json:"height"`
	Weight        string        `json:"weight"`
	Age           string        `json:"age"`
	Gender        Gender        `json:"gender"`
	ActivityLevel ActivityLevel `json:"activityLevel"`
}

// ValidationError maps a form field to the reason it was rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := []string{"height", "weight", "age", "gender", "activityLevel", "goal"}
	parts := make([]string, 0, len(e.Fields))
	for _, k := range keys {
		if msg, ok := e.Fields[k]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", k, msg))
		}
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// Validate checks the metrics the way the plan form does before a request
// is made. It returns a *ValidationError naming every bad field, or nil.
func (m UserMetrics) Validate() error {
	verr := &ValidationError{}

	age, err := strconv.Atoi(strings.TrimSpace(m.Age))
	if err != nil || age < 1 || age > 120 {
		verr.add("age", "must be a whole number between 1 and 120")
	}
	if !positiveMeasure(m.Height) {
		verr.add("height", "must be a positive number")
	}
	if !positiveMeasure(m.Weight) {
		verr.add("weight", "must be a positive number")
	}
	if !m.Gender.Valid() {
		verr.add("gender", "must be one of male, female, other")
	}
	if !m.ActivityLevel.Valid() {
		verr.add("activityLevel", "must be one of sedentary, light, moderate, active, very_active")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ValidateRequest validates metrics and goal together.
func ValidateRequest(m UserMetrics, goal string) error {
	verr := &ValidationError{}
	if err := m.Validate(); err != nil {
		verr = err.(*ValidationError)
	}
	if strings.TrimSpace(goal) == "" {
		verr.add("goal", "must not be empty")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// positiveMeasure accepts a leading positive number followed by an
// optional unit, e.g. "180", "180cm", "75.5 kg".
func positiveMeasure(s string) bool {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	return err == nil && v > 0
}
