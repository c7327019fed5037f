package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps alert JSON under <prefix>:alert:<id> with sorted-set indexes
// <prefix>:alerts and <prefix>:alerts:<type> scored by unix microseconds.
// Equal scores fall back to member order, so ZREVRANGE yields id desc on ties.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore parses the URL and verifies connectivity.
// Params: context bounding the initial ping and redis settings.
// Returns: ready store or setup error.
func NewRedisStore(ctx context.Context, settings config.RedisStoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreWithClient(client, settings.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) alertKey(id string) string {
	return s.prefix + ":alert:" + id
}

func (s *RedisStore) indexKey(alertType domain.AlertType) string {
	if alertType == "" {
		return s.prefix + ":alerts"
	}
	return s.prefix + ":alerts:" + string(alertType)
}

// Insert writes the document and both index entries in one MULTI/EXEC.
// Params: normalized alert.
// Returns: stored alert or persistence error.
func (s *RedisStore) Insert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	stored, err := prepareInsert(alert)
	if err != nil {
		return domain.Alert{}, err
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return domain.Alert{}, domain.NewPersistenceError("insert", fmt.Errorf("encode alert: %w", err))
	}
	member := redis.Z{Score: float64(stored.Timestamp.UnixMicro()), Member: stored.ID}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.alertKey(stored.ID), body, 0)
		pipe.ZAdd(ctx, s.indexKey(""), member)
		pipe.ZAdd(ctx, s.indexKey(stored.Type), member)
		return nil
	})
	if err != nil {
		return domain.Alert{}, domain.NewPersistenceError("insert", err)
	}
	return stored, nil
}

// List reads ids from the matching index newest first, then loads documents.
// Params: type filter and limit (<=0 unbounded).
// Returns: matching alerts, never nil; index entries without a document are skipped.
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]domain.Alert, error) {
	stop := int64(-1)
	if filter.Limit > 0 {
		stop = int64(filter.Limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(filter.Type), 0, stop).Result()
	if err != nil {
		return nil, domain.NewPersistenceError("list", err)
	}
	out := make([]domain.Alert, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.alertKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.NewPersistenceError("list", err)
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var alert domain.Alert
		if err := json.Unmarshal([]byte(raw), &alert); err != nil {
			return nil, domain.NewPersistenceError("list", fmt.Errorf("decode alert %s: %w", ids[i], err))
		}
		out = append(out, alert)
	}
	return out, nil
}

// CountByType returns the cardinality of the type index.
func (s *RedisStore) CountByType(ctx context.Context, alertType domain.AlertType) (int64, error) {
	if alertType == "" {
		return 0, nil
	}
	count, err := s.client.ZCard(ctx, s.indexKey(alertType)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, domain.NewPersistenceError("count", err)
	}
	return count, nil
}

// Ping checks server reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	return domain.NewPersistenceError("ping", s.client.Ping(ctx).Err())
}

// Close closes the client pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
