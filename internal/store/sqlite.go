// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"nutricoach/internal/models"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS meal_history (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        payload TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS plan_history (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        payload TEXT NOT NULL
    );
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) AddMeal(ctx context.Context, item models.MealHistoryItem) error {
	return s.insert(ctx, "meal_history", item.ID, item.Timestamp, item)
}

func (s *SQLite) AddPlan(ctx context.Context, item models.PlanHistoryItem) error {
	return s.insert(ctx, "plan_history", item.ID, item.Timestamp, item)
}

func (s *SQLite) insert(ctx context.Context, table, id string, ts int64, item any) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s row: %w", table, err)
	}
	query := `INSERT INTO ` + table + ` (id, created_at, payload) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, ts, string(payload)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func (s *SQLite) History(ctx context.Context) (models.HistoryData, error) {
	history := models.HistoryData{
		Meals: []models.MealHistoryItem{},
		Plans: []models.PlanHistoryItem{},
	}

	err := s.scan(ctx, "meal_history", func(raw []byte) error {
		var item models.MealHistoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return err
		}
		history.Meals = append(history.Meals, item)
		return nil
	})
	if err != nil {
		return history, err
	}

	err = s.scan(ctx, "plan_history", func(raw []byte) error {
		var item models.PlanHistoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return err
		}
		history.Plans = append(history.Plans, item)
		return nil
	})
	return history, err
}

func (s *SQLite) scan(ctx context.Context, table string, fn func([]byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM `+table+` ORDER BY seq DESC`)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		if err := fn([]byte(payload)); err != nil {
			return fmt.Errorf("failed to decode %s row: %w", table, err)
		}
	}
	return rows.Err()
}

func (s *SQLite) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"meal_history", "plan_history"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
