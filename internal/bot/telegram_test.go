package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutricoach/internal/auth"
	"nutricoach/internal/kv"
	"nutricoach/internal/models"
	"nutricoach/internal/session"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
	fileURL  string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("no file")
	}
	return f.fileURL, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeAPI) last() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeGateway struct {
	err      error
	history  models.HistoryData
	analyzed []string
	plans    []models.UserMetrics
	goals    []string
	cleared  int
}

func (f *fakeGateway) AnalyzeMealImage(_ context.Context, imageBase64, mimeType string) (*models.NutritionalInfo, error) {
	f.analyzed = append(f.analyzed, mimeType+";"+imageBase64)
	if f.err != nil {
		return nil, f.err
	}
	return &models.NutritionalInfo{FoodItems: []string{"apple"}, Macros: models.Macros{Calories: 95}, Summary: "A fresh apple."}, nil
}

func (f *fakeGateway) GeneratePersonalizedPlan(_ context.Context, metrics models.UserMetrics, goal string) (*models.PersonalizedPlan, error) {
	f.plans = append(f.plans, metrics)
	f.goals = append(f.goals, goal)
	if f.err != nil {
		return nil, f.err
	}
	plan := &models.PersonalizedPlan{Summary: "Steady deficit.", MealPlan: map[string]models.DayMeals{}, WorkoutPlan: map[string]string{}}
	for _, day := range models.Weekdays {
		plan.MealPlan[day] = models.DayMeals{Breakfast: "oats", Lunch: "salad", Dinner: "fish"}
		plan.WorkoutPlan[day] = "walk"
	}
	return plan, nil
}

func (f *fakeGateway) GetHistory(context.Context) (models.HistoryData, error) {
	return f.history.Clone(), nil
}

func (f *fakeGateway) ClearHistory(context.Context) error {
	f.cleared++
	f.history = models.HistoryData{}
	return nil
}

type botFixture struct {
	api      *fakeAPI
	gw       *fakeGateway
	sessions *session.Manager
	bot      *TelegramBot
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	local := kv.NewMemory()
	gw := &fakeGateway{}
	authenticator := auth.NewMock(local, nil, auth.Latency{}, nil)
	sessions := session.NewManager(local, authenticator, gw, nil)
	_, err := authenticator.Register(context.Background(), "Alice", "alice@x.com", "pw")
	require.NoError(t, err)
	_, err = authenticator.Register(context.Background(), "Bob", "bob@x.com", "pw")
	require.NoError(t, err)

	api := &fakeAPI{}
	return &botFixture{api: api, gw: gw, sessions: sessions, bot: newTelegramBot(api, gw, sessions, nil)}
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		end := strings.IndexByte(text, ' ')
		if end < 0 {
			end = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return msg
}

func (f *botFixture) say(userID int64, text string) string {
	f.bot.dispatch(context.Background(), textMessage(userID, text))
	return f.api.last()
}

func TestCommandsRequireSignIn(t *testing.T) {
	f := newBotFixture(t)
	f.gw.history = models.HistoryData{Meals: []models.MealHistoryItem{{ID: "meal-1"}}}

	for _, cmd := range []string{"/history", "/clear", "/plan"} {
		assert.Contains(t, f.say(1, cmd), "/login", cmd)
	}
	assert.Equal(t, 0, f.gw.cleared)
	assert.Len(t, f.gw.history.Meals, 1)

	f.bot.dispatch(context.Background(), &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1},
		Chat:  &tgbotapi.Chat{ID: 1},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}},
	})
	assert.Contains(t, f.api.last(), "/login")
	assert.Empty(t, f.gw.analyzed)
}

func TestLogin(t *testing.T) {
	f := newBotFixture(t)

	assert.Contains(t, f.say(1, "/login alice@x.com"), "Usage")
	assert.Contains(t, f.say(1, "/login nobody@x.com pw"), "No account found")
	assert.Nil(t, f.sessions.Current())

	assert.Contains(t, f.say(1, "/login alice@x.com pw"), "Welcome, Alice")
	require.NotNil(t, f.sessions.Current())
	assert.Equal(t, "alice@x.com", f.sessions.Current().Email)

	// every login message is deleted since it may hold a password
	require.Len(t, f.api.requests, 3)
	del, ok := f.api.requests[2].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 7, del.MessageID)
}

func TestOtherSignInRevokesAccess(t *testing.T) {
	f := newBotFixture(t)
	f.say(1, "/login alice@x.com pw")
	assert.Contains(t, f.say(1, "/history"), "empty")

	// another Telegram user signs in; the single session moves to them
	f.say(2, "/login bob@x.com pw")
	assert.Contains(t, f.say(1, "/clear"), "/login")
	assert.Equal(t, 0, f.gw.cleared)

	assert.Equal(t, "History cleared.", f.say(2, "/clear"))
	assert.Equal(t, 1, f.gw.cleared)
}

func TestHistoryAndClear(t *testing.T) {
	f := newBotFixture(t)
	f.gw.history = models.HistoryData{Plans: []models.PlanHistoryItem{{ID: "plan-1", Goal: "run a marathon"}}}
	f.say(1, "/login alice@x.com pw")

	assert.Contains(t, f.say(1, "/history"), "run a marathon")
	assert.Equal(t, "History cleared.", f.say(1, "/clear"))
	assert.Contains(t, f.say(1, "/history"), "empty")
}

func TestLogoutClearsSession(t *testing.T) {
	f := newBotFixture(t)
	f.say(1, "/login alice@x.com pw")

	assert.Equal(t, "Signed out.", f.say(1, "/logout"))
	assert.Nil(t, f.sessions.Current())
	assert.Equal(t, 1, f.gw.cleared)
	assert.Contains(t, f.say(1, "/history"), "/login")
}

func TestPlanConversationGeneratesPlan(t *testing.T) {
	f := newBotFixture(t)
	f.say(1, "/login alice@x.com pw")

	assert.Contains(t, f.say(1, "/plan"), "height")
	for _, answer := range []string{"180cm", "75kg", "30", "male", "moderate"} {
		f.say(1, answer)
	}
	assert.Contains(t, f.say(1, "lose 5kg"), "personalized plan is ready")

	require.Len(t, f.gw.plans, 1)
	assert.Equal(t, models.UserMetrics{
		Height:        "180cm",
		Weight:        "75kg",
		Age:           "30",
		Gender:        models.GenderMale,
		ActivityLevel: models.ActivityModerate,
	}, f.gw.plans[0])
	assert.Equal(t, "lose 5kg", f.gw.goals[0])

	// the conversation is over
	assert.Contains(t, f.say(1, "hello"), "/plan")
}

func TestPlanConversationFailure(t *testing.T) {
	f := newBotFixture(t)
	f.gw.err = errors.New("upstream down")
	f.say(1, "/login alice@x.com pw")

	f.say(1, "/plan")
	for _, answer := range []string{"180cm", "75kg", "30", "female", "light"} {
		f.say(1, answer)
	}
	assert.Contains(t, f.say(1, "tone up"), "couldn't generate")
}

func TestCancelStopsConversation(t *testing.T) {
	f := newBotFixture(t)
	f.say(1, "/login alice@x.com pw")
	f.say(1, "/plan")

	assert.Equal(t, "Cancelled.", f.say(1, "/cancel"))
	assert.Contains(t, f.say(1, "180cm"), "/plan")
	assert.Empty(t, f.gw.plans)
}

func TestPhotoIsAnalyzed(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngHeader)
	}))
	defer files.Close()

	f := newBotFixture(t)
	f.api.fileURL = files.URL + "/photo.png"
	f.say(1, "/login alice@x.com pw")

	f.bot.dispatch(context.Background(), &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1},
		Chat:  &tgbotapi.Chat{ID: 1},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	})

	require.Len(t, f.gw.analyzed, 1)
	assert.Equal(t, "image/png;"+base64.StdEncoding.EncodeToString(pngHeader), f.gw.analyzed[0])
	texts := f.api.texts()
	assert.Contains(t, texts[len(texts)-2], "Analyzing")
	assert.Contains(t, f.api.last(), "A fresh apple.")
	assert.Contains(t, f.api.last(), "Calories: 95 kcal")
}

func TestPhotoRejectsNonImage(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 not a photo"))
	}))
	defer files.Close()

	f := newBotFixture(t)
	f.api.fileURL = files.URL
	f.say(1, "/login alice@x.com pw")

	f.bot.dispatch(context.Background(), &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1},
		Chat:  &tgbotapi.Chat{ID: 1},
		Photo: []tgbotapi.PhotoSize{{FileID: "doc"}},
	})
	assert.Empty(t, f.gw.analyzed)
	assert.Contains(t, f.api.last(), "couldn't read that photo")
}

func TestDispatchIgnoresAnonymousMessages(t *testing.T) {
	f := newBotFixture(t)
	f.bot.dispatch(context.Background(), nil)
	f.bot.dispatch(context.Background(), &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"})
	assert.Empty(t, f.api.texts())
}
