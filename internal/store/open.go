package store

import (
	"context"
	"fmt"
	"time"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"
	"alertdesk/internal/metrics"
)

// Open builds the configured backend wrapped with per-call timeout and metrics.
// Params: startup context and store settings.
// Returns: ready store or setup error.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		backend Store
		err     error
	)
	switch cfg.Backend {
	case config.StoreBackendMemory, "":
		backend = NewMemoryStore()
	case config.StoreBackendNATS:
		backend, err = NewNATSStore(cfg.NATS)
	case config.StoreBackendPostgres:
		backend, err = NewPostgresStore(ctx, cfg.Postgres)
	case config.StoreBackendRedis:
		backend, err = NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	name := cfg.Backend
	if name == "" {
		name = config.StoreBackendMemory
	}
	return Instrument(backend, name, time.Duration(cfg.TimeoutMS)*time.Millisecond), nil
}

// Instrument wraps a store with per-call timeout, latency metrics, and error classification.
// Backend failures that are not already classified surface as PersistenceError.
// Params: backend store, backend label, and timeout (<=0 disables it).
// Returns: decorated store.
func Instrument(next Store, backend string, timeout time.Duration) Store {
	return &instrumented{next: next, backend: backend, timeout: timeout}
}

type instrumented struct {
	next    Store
	backend string
	timeout time.Duration
}

func (s *instrumented) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *instrumented) Insert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	started := time.Now()
	stored, err := s.next.Insert(ctx, alert)
	metrics.ObserveStore(s.backend, "insert", started, err)
	return stored, classify("insert", err)
}

func (s *instrumented) List(ctx context.Context, filter Filter) ([]domain.Alert, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	started := time.Now()
	alerts, err := s.next.List(ctx, filter)
	metrics.ObserveStore(s.backend, "list", started, err)
	return alerts, classify("list", err)
}

func (s *instrumented) CountByType(ctx context.Context, alertType domain.AlertType) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	started := time.Now()
	count, err := s.next.CountByType(ctx, alertType)
	metrics.ObserveStore(s.backend, "count", started, err)
	return count, classify("count", err)
}

func (s *instrumented) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	started := time.Now()
	err := s.next.Ping(ctx)
	metrics.ObserveStore(s.backend, "ping", started, err)
	return classify("ping", err)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}

// classify keeps validation and persistence errors and wraps anything else as persistence.
func classify(op string, err error) error {
	if err == nil || domain.IsValidation(err) || domain.IsPersistence(err) {
		return err
	}
	return domain.NewPersistenceError(op, err)
}
