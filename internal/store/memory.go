package store

import (
	"context"
	"sync"

	"alertdesk/internal/domain"
)

// MemoryStore keeps alerts in process memory for single-instance mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []domain.Alert
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert validates, assigns an id, and appends the alert.
// Params: normalized alert.
// Returns: stored alert or validation error.
func (s *MemoryStore) Insert(_ context.Context, alert domain.Alert) (domain.Alert, error) {
	stored, err := prepareInsert(alert)
	if err != nil {
		return domain.Alert{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, stored)
	return stored, nil
}

// List returns matching alerts newest first.
// Params: type filter and limit.
// Returns: copy of matching alerts, never nil.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectAlerts(s.alerts, filter), nil
}

// CountByType counts alerts with the given type.
func (s *MemoryStore) CountByType(_ context.Context, alertType domain.AlertType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, alert := range s.alerts {
		if alert.Type == alertType {
			count++
		}
	}
	return count, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close releases memory store resources.
func (s *MemoryStore) Close() error {
	return nil
}
