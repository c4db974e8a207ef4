package stripewebhook

import (
	"context"
	"testing"
	"time"
)

type memoryIdempotencyStore struct {
	values map[string]string
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "rw:idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestIdempotencyGuardDedupesAndReleases(t *testing.T) {
	guard, err := NewIdempotencyGuard(&memoryIdempotencyStore{values: map[string]string{}}, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	if seen, err := guard.CheckAndMark(ctx, "evt_1"); err != nil || seen {
		t.Fatalf("first delivery: seen=%v err=%v", seen, err)
	}
	if seen, err := guard.CheckAndMark(ctx, "evt_1"); err != nil || !seen {
		t.Fatalf("redelivery should be seen: seen=%v err=%v", seen, err)
	}
	if err := guard.Delete(ctx, "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if seen, _ := guard.CheckAndMark(ctx, "evt_1"); seen {
		t.Fatal("released event should be claimable again")
	}
	if _, err := guard.CheckAndMark(ctx, ""); err == nil {
		t.Fatal("expected error for empty event id")
	}
}
