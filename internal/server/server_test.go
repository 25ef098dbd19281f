package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutricoach/internal/auth"
	"nutricoach/internal/kv"
	"nutricoach/internal/models"
	"nutricoach/internal/session"
)

type fakeGateway struct {
	err      error
	history  models.HistoryData
	cleared  int
	lastMime string
	lastGoal string
}

func (f *fakeGateway) AnalyzeMealImage(_ context.Context, _, mimeType string) (*models.NutritionalInfo, error) {
	f.lastMime = mimeType
	if f.err != nil {
		return nil, f.err
	}
	return &models.NutritionalInfo{FoodItems: []string{"apple"}, Summary: "fruit"}, nil
}

func (f *fakeGateway) GeneratePersonalizedPlan(_ context.Context, _ models.UserMetrics, goal string) (*models.PersonalizedPlan, error) {
	f.lastGoal = goal
	if f.err != nil {
		return nil, f.err
	}
	return &models.PersonalizedPlan{Summary: "plan"}, nil
}

func (f *fakeGateway) GetHistory(context.Context) (models.HistoryData, error) {
	return f.history.Clone(), nil
}

func (f *fakeGateway) ClearHistory(context.Context) error {
	f.cleared++
	f.history = models.HistoryData{}
	return nil
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	gw      *fakeGateway
	tokens  *TokenIssuer
}

func newTestAPI(t *testing.T) *testAPI {
	local := kv.NewMemory()
	gw := &fakeGateway{}
	sessions := session.NewManager(local, auth.NewMock(local, nil, auth.Latency{}, nil), gw, nil)
	tokens := NewTokenIssuer("test-secret", time.Hour)
	srv := NewServer(Options{Port: "0", AllowedOrigins: []string{"*"}}, gw, sessions, tokens, nil)
	return &testAPI{t: t, handler: srv.Handler(), gw: gw, tokens: tokens}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) register(name, email string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/register", "", credentialsRequest{Name: name, Email: email, Password: "pw"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(a.t, resp.Token)
	return resp.Token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Alice", "alice@x.com")

	rec := api.do(http.MethodGet, "/api/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"name":"Alice","email":"alice@x.com"}}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/auth/register", "", credentialsRequest{Name: "A2", Email: "alice@x.com", Password: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/login", "", credentialsRequest{Email: "bob@x.com", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No account found with this email.", decodeError(t, rec).Error)

	rec = api.do(http.MethodPost, "/api/auth/login", "", credentialsRequest{Email: "alice@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, api.gw.cleared)

	rec = api.do(http.MethodGet, "/api/history", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/login", "", credentialsRequest{Email: "alice@x.com", Password: "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGoogleLogin(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/auth/google", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, auth.DemoUser, *resp.User)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	api := newTestAPI(t)
	api.register("Alice", "alice@x.com")

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/history", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/history", "garbage", nil).Code)

	expired := NewTokenIssuer("test-secret", -time.Minute)
	stale, err := expired.Issue("alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/history", stale, nil).Code)

	other, err := api.tokens.Issue("mallory@x.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/history", other, nil).Code)
}

func TestAnalyzeMeal(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Alice", "alice@x.com")

	rec := api.do(http.MethodPost, "/api/meals/analyze", token, analyzeMealRequest{ImageBase64: "QUJD", MimeType: "image/png"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"foodItems":["apple"]`)

	rec = api.do(http.MethodPost, "/api/meals/analyze", token, analyzeMealRequest{ImageBase64: "data:image/webp;base64,QUJD"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", api.gw.lastMime)

	rec = api.do(http.MethodPost, "/api/meals/analyze", token, analyzeMealRequest{ImageBase64: "QUJD", MimeType: "application/pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	api.gw.err = errors.New("upstream down")
	rec = api.do(http.MethodPost, "/api/meals/analyze", token, analyzeMealRequest{ImageBase64: "QUJD", MimeType: "image/png"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to analyze the meal. Please try again.", decodeError(t, rec).Error)
}

func TestGeneratePlan(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Alice", "alice@x.com")
	metrics := models.UserMetrics{Height: "180cm", Weight: "75kg", Age: "30", Gender: models.GenderMale, ActivityLevel: models.ActivityModerate}

	rec := api.do(http.MethodPost, "/api/plans", token, planRequest{Metrics: metrics, Goal: "  lose 5kg "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lose 5kg", api.gw.lastGoal)

	bad := metrics
	bad.Age = "200"
	rec = api.do(http.MethodPost, "/api/plans", token, planRequest{Metrics: bad, Goal: ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Contains(t, resp.Fields, "age")
	assert.Contains(t, resp.Fields, "goal")

	api.gw.err = errors.New("bad schema")
	rec = api.do(http.MethodPost, "/api/plans", token, planRequest{Metrics: metrics, Goal: "lose 5kg"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHistoryRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Alice", "alice@x.com")
	api.gw.history = models.HistoryData{Meals: []models.MealHistoryItem{{ID: "meal-1", Timestamp: 1}}}

	rec := api.do(http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var h models.HistoryData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Len(t, h.Meals, 1)
	assert.Equal(t, "meal-1", h.Meals[0].ID)
	assert.NotNil(t, h.Plans)

	rec = api.do(http.MethodDelete, "/api/history", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodGet, "/api/history", token, nil)
	assert.JSONEq(t, `{"meals":[],"plans":[]}`, rec.Body.String())
}

func TestInvalidBody(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
