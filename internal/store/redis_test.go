package store

import (
	"context"
	"testing"

	"alertdesk/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "desk")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreContract(t *testing.T) {
	t.Parallel()

	store, _ := newMiniredisStore(t)
	runStoreContract(t, store)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	t.Parallel()

	store, mr := newMiniredisStore(t)
	stored, err := store.Insert(context.Background(), dosAlert(0, "10.0.0.5"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !mr.Exists("desk:alert:" + stored.ID) {
		t.Fatalf("expected document key for %s", stored.ID)
	}
	members, err := mr.ZMembers("desk:alerts:dos")
	if err != nil || len(members) != 1 || members[0] != stored.ID {
		t.Fatalf("unexpected dos index %v err=%v", members, err)
	}
	if _, err := mr.ZMembers("desk:alerts"); err != nil {
		t.Fatalf("expected global index: %v", err)
	}
}

func TestRedisStoreSkipsDanglingIndexEntries(t *testing.T) {
	t.Parallel()

	store, mr := newMiniredisStore(t)
	stored, err := store.Insert(context.Background(), fraudAlert(0, "tx-1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	mr.Del("desk:alert:" + stored.ID)
	alerts, err := store.List(context.Background(), Filter{})
	if err != nil || len(alerts) != 0 {
		t.Fatalf("expected dangling entry skipped, got %v err=%v", alerts, err)
	}
}

func TestRedisStoreUnreachableIsPersistenceError(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), "desk")
	defer store.Close()
	mr.Close()
	if _, err := store.Insert(context.Background(), fraudAlert(0, "tx-1")); !domain.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if err := store.Ping(context.Background()); !domain.IsPersistence(err) {
		t.Fatalf("expected persistence ping error, got %v", err)
	}
}
