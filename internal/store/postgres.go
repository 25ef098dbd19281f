// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"nutricoach/config"
	"nutricoach/internal/models"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg config.Postgres) (*Postgres, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)
	return connectPostgres(ctx, connStr, cfg)
}

func connectPostgres(ctx context.Context, connStr string, cfg config.Postgres) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnLifetime
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &Postgres{pool: pool}
	if err := db.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *Postgres) initSchema(ctx context.Context) error {
	schema := `
        CREATE TABLE IF NOT EXISTS meal_history (
            seq        BIGSERIAL PRIMARY KEY,
            id         TEXT NOT NULL,
            created_at BIGINT NOT NULL,
            payload    JSONB NOT NULL
        );
        CREATE TABLE IF NOT EXISTS plan_history (
            seq        BIGSERIAL PRIMARY KEY,
            id         TEXT NOT NULL,
            created_at BIGINT NOT NULL,
            payload    JSONB NOT NULL
        );
    `
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (db *Postgres) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

func (db *Postgres) AddMeal(ctx context.Context, item models.MealHistoryItem) error {
	return db.insert(ctx, "meal_history", item.ID, item.Timestamp, item)
}

func (db *Postgres) AddPlan(ctx context.Context, item models.PlanHistoryItem) error {
	return db.insert(ctx, "plan_history", item.ID, item.Timestamp, item)
}

func (db *Postgres) insert(ctx context.Context, table, id string, ts int64, item any) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s row: %w", table, err)
	}

	query := `INSERT INTO ` + table + ` (id, created_at, payload) VALUES ($1, $2, $3)`
	if _, err := db.pool.Exec(ctx, query, id, ts, payload); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func (db *Postgres) History(ctx context.Context) (models.HistoryData, error) {
	history := models.HistoryData{
		Meals: []models.MealHistoryItem{},
		Plans: []models.PlanHistoryItem{},
	}

	meals, err := db.payloads(ctx, "meal_history")
	if err != nil {
		return history, err
	}
	for _, raw := range meals {
		var item models.MealHistoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return history, fmt.Errorf("failed to decode meal history: %w", err)
		}
		history.Meals = append(history.Meals, item)
	}

	plans, err := db.payloads(ctx, "plan_history")
	if err != nil {
		return history, err
	}
	for _, raw := range plans {
		var item models.PlanHistoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return history, fmt.Errorf("failed to decode plan history: %w", err)
		}
		history.Plans = append(history.Plans, item)
	}

	return history, nil
}

func (db *Postgres) payloads(ctx context.Context, table string) ([][]byte, error) {
	rows, err := db.pool.Query(ctx, `SELECT payload FROM `+table+` ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

func (db *Postgres) Clear(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `TRUNCATE meal_history, plan_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
