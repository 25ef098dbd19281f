// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"nutricoach/internal/models"
)

type Memory struct {
	mu   sync.RWMutex
	data models.HistoryData
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) History(_ context.Context) (models.HistoryData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Clone(), nil
}

func (m *Memory) AddMeal(_ context.Context, item models.MealHistoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Meals = append([]models.MealHistoryItem{item.Clone()}, m.data.Meals...)
	return nil
}

func (m *Memory) AddPlan(_ context.Context, item models.PlanHistoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Plans = append([]models.PlanHistoryItem{item.Clone()}, m.data.Plans...)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.data = models.HistoryData{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
