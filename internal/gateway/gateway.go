// Package gateway turns application requests into schema-constrained
// generation calls and records successful results in the history store.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nutricoach/internal/gpt"
	"nutricoach/internal/models"
	"nutricoach/internal/store"
	"nutricoach/pkg/logger"
)

// Generator performs one structured generation call and returns the raw
// response text.
type Generator interface {
	Generate(ctx context.Context, req gpt.Request) (string, error)
}

type Gateway struct {
	gen          Generator
	store        store.HistoryStore
	logger       *logger.Logger
	now          func() time.Time
	idSuffix     func() string
	historyDelay time.Duration
}

type Option func(*Gateway)

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithHistoryDelay sets the simulated latency of GetHistory and ClearHistory.
func WithHistoryDelay(d time.Duration) Option {
	return func(g *Gateway) { g.historyDelay = d }
}

func WithIDSuffix(fn func() string) Option {
	return func(g *Gateway) { g.idSuffix = fn }
}

func New(gen Generator, st store.HistoryStore, l *logger.Logger, opts ...Option) *Gateway {
	if l == nil {
		l = logger.NewNop()
	}
	g := &Gateway{
		gen:      gen,
		store:    st,
		logger:   l.Named("gateway"),
		now:      time.Now,
		idSuffix: randomSuffix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AnalyzeMealImage estimates the nutritional content of a meal photo and
// prepends the result to the meal history.
func (g *Gateway) AnalyzeMealImage(ctx context.Context, imageBase64, mimeType string) (*models.NutritionalInfo, error) {
	const op = "analyze meal image"

	image := gpt.Image{MimeType: mimeType, Base64: imageBase64}
	text, err := g.gen.Generate(ctx, gpt.Request{
		System:     systemPrompt,
		Prompt:     mealInstruction,
		Image:      &image,
		SchemaName: "nutritional_info",
		Schema:     NutritionalInfoSchema,
	})
	if err != nil {
		return nil, g.fail(op, KindUpstream, err)
	}

	var info models.NutritionalInfo
	if kind, err := decodeResponse(text, NutritionalInfoSchema, &info); err != nil {
		return nil, g.fail(op, kind, err)
	}

	ts := g.now().UnixMilli()
	item := models.MealHistoryItem{
		ID:              g.newID("meal", ts),
		Timestamp:       ts,
		NutritionalInfo: info,
		ImageDataURL:    image.DataURL(),
	}
	if err := g.store.AddMeal(ctx, item); err != nil {
		return nil, g.fail(op, KindStorage, err)
	}

	g.logger.Infow("Meal analyzed", "id", item.ID, "food_items", len(info.FoodItems), "calories", info.Macros.Calories)
	return &info, nil
}

// GeneratePersonalizedPlan produces a 7-day meal and workout plan. The
// metrics are expected to be validated by the caller.
func (g *Gateway) GeneratePersonalizedPlan(ctx context.Context, metrics models.UserMetrics, goal string) (*models.PersonalizedPlan, error) {
	const op = "generate personalized plan"

	text, err := g.gen.Generate(ctx, gpt.Request{
		System:     systemPrompt,
		Prompt:     planPrompt(metrics, goal),
		SchemaName: "personalized_plan",
		Schema:     PersonalizedPlanSchema,
	})
	if err != nil {
		return nil, g.fail(op, KindUpstream, err)
	}

	var plan models.PersonalizedPlan
	if kind, err := decodeResponse(text, PersonalizedPlanSchema, &plan); err != nil {
		return nil, g.fail(op, kind, err)
	}
	if err := plan.CheckWeekdays(); err != nil {
		return nil, g.fail(op, KindSchema, err)
	}

	ts := g.now().UnixMilli()
	item := models.PlanHistoryItem{
		ID:        g.newID("plan", ts),
		Timestamp: ts,
		Plan:      plan,
		Metrics:   metrics,
		Goal:      goal,
	}
	if err := g.store.AddPlan(ctx, item); err != nil {
		return nil, g.fail(op, KindStorage, err)
	}

	g.logger.Infow("Plan generated", "id", item.ID, "activity_level", metrics.ActivityLevel)
	return &plan, nil
}

// GetHistory returns an independent copy of both collections.
func (g *Gateway) GetHistory(ctx context.Context) (models.HistoryData, error) {
	if err := g.wait(ctx); err != nil {
		return models.HistoryData{}, err
	}
	history, err := g.store.History(ctx)
	if err != nil {
		return models.HistoryData{}, fmt.Errorf("failed to read history: %w", err)
	}
	return history, nil
}

func (g *Gateway) ClearHistory(ctx context.Context) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	if err := g.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	g.logger.Infow("History cleared")
	return nil
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.historyDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.historyDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Gateway) fail(op string, kind ErrorKind, err error) error {
	g.logger.Errorw("Generation request failed", "op", op, "kind", kind, "error", err)
	return &RequestError{Op: op, Kind: kind, Err: err}
}

// newID keeps the prefix-timestamp form and adds a random suffix so two
// items created in the same millisecond do not share an id.
func (g *Gateway) newID(prefix string, ts int64) string {
	return fmt.Sprintf("%s-%d-%s", prefix, ts, g.idSuffix())
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
