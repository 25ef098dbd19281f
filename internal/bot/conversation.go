// internal/bot/conversation.go
package bot

import (
	"strings"

	"nutricoach/internal/models"
)

const (
	StateHeight   = "height"
	StateWeight   = "weight"
	StateAge      = "age"
	StateGender   = "gender"
	StateActivity = "activity"
	StateGoal     = "goal"
	StateDone     = "done"
)

// reply is the text to send plus optional keyboard rows.
type reply struct {
	Text    string
	Buttons [][]string
}

// planConversation collects plan inputs one message at a time.
type planConversation struct {
	State   string
	Metrics models.UserMetrics
	Goal    string
}

func newPlanConversation() (*planConversation, reply) {
	return &planConversation{State: StateHeight},
		reply{Text: "Let's build your 7-day plan. What is your height? (e.g. 180cm or 5ft 11in)"}
}

// Advance consumes one answer. It re-asks the same question on invalid
// input and reports done once every field is valid.
func (c *planConversation) Advance(text string) (reply, bool) {
	text = strings.TrimSpace(text)

	switch c.State {
	case StateHeight:
		c.Metrics.Height = text
		if msg := fieldError(c.Metrics, "height"); msg != "" {
			return reply{Text: "Height " + msg + ". Please try again (e.g. 180cm):"}, false
		}
		c.State = StateWeight
		return reply{Text: "Thanks! What is your weight? (e.g. 75kg)"}, false

	case StateWeight:
		c.Metrics.Weight = text
		if msg := fieldError(c.Metrics, "weight"); msg != "" {
			return reply{Text: "Weight " + msg + ". Please try again (e.g. 75kg):"}, false
		}
		c.State = StateAge
		return reply{Text: "How old are you?"}, false

	case StateAge:
		c.Metrics.Age = text
		if msg := fieldError(c.Metrics, "age"); msg != "" {
			return reply{Text: "Age " + msg + ". Please try again:"}, false
		}
		c.State = StateGender
		return genderReply("What is your gender?"), false

	case StateGender:
		c.Metrics.Gender = models.Gender(strings.ToLower(text))
		if !c.Metrics.Gender.Valid() {
			return genderReply("Please choose one of the options below."), false
		}
		c.State = StateActivity
		return activityReply("How active are you?"), false

	case StateActivity:
		c.Metrics.ActivityLevel = models.ActivityLevel(strings.ReplaceAll(strings.ToLower(text), " ", "_"))
		if !c.Metrics.ActivityLevel.Valid() {
			return activityReply("Please choose one of the options below."), false
		}
		c.State = StateGoal
		return reply{Text: "Finally, what is your goal? Describe it in your own words (e.g. lose 5kg before summer)."}, false

	case StateGoal:
		if err := models.ValidateRequest(c.Metrics, text); err != nil {
			return reply{Text: "Please describe your goal."}, false
		}
		c.Goal = text
		c.State = StateDone
		return reply{Text: "Generating your plan, this can take a minute..."}, true
	}

	return reply{Text: "Use /plan to start over."}, false
}

func fieldError(m models.UserMetrics, field string) string {
	verr, ok := m.Validate().(*models.ValidationError)
	if !ok || verr == nil {
		return ""
	}
	return verr.Fields[field]
}

func genderReply(text string) reply {
	return reply{Text: text, Buttons: [][]string{{"male", "female", "other"}}}
}

func activityReply(text string) reply {
	labels := make([]string, 0, len(models.ActivityLevels))
	for _, l := range models.ActivityLevels {
		labels = append(labels, l.Label())
	}
	return reply{Text: text, Buttons: [][]string{labels[:3], labels[3:]}}
}
