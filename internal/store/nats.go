package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSStore persists alerts in a JetStream KV bucket, one key per alert id.
// Params: NATS connection and KV bucket handle.
// Returns: KV-backed alert store.
type NATSStore struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// NewNATSStore opens (or creates) the alert bucket.
// Params: NATS store settings.
// Returns: initialized store or setup error.
func NewNATSStore(settings config.NATSStoreConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","), nats.Name("alertdesk-store"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBucket {
			nc.Close()
			return nil, fmt.Errorf("open alert bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      settings.Bucket,
			Description: "alertdesk canonical alerts",
			History:     1,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create alert bucket %q: %w", settings.Bucket, err)
		}
	}

	return &NATSStore{nc: nc, kv: kv}, nil
}

// Insert writes the alert document under its id; existing ids are rejected.
// Params: normalized alert.
// Returns: stored alert or persistence error.
func (s *NATSStore) Insert(_ context.Context, alert domain.Alert) (domain.Alert, error) {
	stored, err := prepareInsert(alert)
	if err != nil {
		return domain.Alert{}, err
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return domain.Alert{}, domain.NewPersistenceError("insert", fmt.Errorf("encode alert: %w", err))
	}
	if _, err := s.kv.Create(stored.ID, body); err != nil {
		return domain.Alert{}, domain.NewPersistenceError("insert", fmt.Errorf("put alert %s: %w", stored.ID, err))
	}
	return stored, nil
}

// List loads every alert document and returns matches newest first.
func (s *NATSStore) List(_ context.Context, filter Filter) ([]domain.Alert, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, domain.NewPersistenceError("list", err)
	}
	return selectAlerts(all, filter), nil
}

// CountByType counts alert documents of one type.
func (s *NATSStore) CountByType(_ context.Context, alertType domain.AlertType) (int64, error) {
	all, err := s.loadAll()
	if err != nil {
		return 0, domain.NewPersistenceError("count", err)
	}
	var count int64
	for _, alert := range all {
		if alert.Type == alertType {
			count++
		}
	}
	return count, nil
}

// loadAll reads every key in the bucket; deleted keys between listing and reading are skipped.
func (s *NATSStore) loadAll() ([]domain.Alert, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return []domain.Alert{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]domain.Alert, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(key)
		if err != nil {
			if errors.Is(err, nats.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("get alert %s: %w", key, err)
		}
		var alert domain.Alert
		if err := json.Unmarshal(entry.Value(), &alert); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", key, err)
		}
		out = append(out, alert)
	}
	return out, nil
}

// Ping checks connection state and bucket reachability.
func (s *NATSStore) Ping(_ context.Context) error {
	if !s.nc.IsConnected() {
		return domain.NewPersistenceError("ping", fmt.Errorf("nats connection status %s", s.nc.Status()))
	}
	if _, err := s.kv.Status(); err != nil {
		return domain.NewPersistenceError("ping", fmt.Errorf("bucket status: %w", err))
	}
	return nil
}

// Close closes underlying NATS connection.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
