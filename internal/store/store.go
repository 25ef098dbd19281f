// Package store keeps the meal and plan history behind one interface so
// callers never touch the backing collection directly.
package store

import (
	"context"
	"fmt"

	"nutricoach/config"
	"nutricoach/internal/models"
)

// HistoryStore holds both history collections newest-first.
// History always returns a copy the caller may mutate freely.
type HistoryStore interface {
	History(ctx context.Context) (models.HistoryData, error)
	AddMeal(ctx context.Context, item models.MealHistoryItem) error
	AddPlan(ctx context.Context, item models.PlanHistoryItem) error
	Clear(ctx context.Context) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Store) (HistoryStore, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case DriverSQLite:
		lite, err := NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
