package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CartKey(sessionID string) string
}

// snapshot is the persisted form of State; totals are recomputed on load.
type snapshot struct {
	Lines     []Line    `json:"lines"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStore keeps cart state in Redis under rw:cart:<session>. Every save
// refreshes the TTL, so an active cart never expires.
type RedisStore struct {
	client redisStore
	ttl    time.Duration
}

// NewRedisStore builds the Redis-backed cart store.
func NewRedisStore(client redisStore, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Load returns the session's cart, or an empty cart when none was stored.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (State, error) {
	raw, err := s.client.Get(ctx, s.client.CartKey(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{Lines: []Line{}}.withTotals(), nil
		}
		return State{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return State{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart")
	}
	if snap.Lines == nil {
		snap.Lines = []Line{}
	}
	return State{Lines: snap.Lines, Version: snap.Version, UpdatedAt: snap.UpdatedAt}.withTotals(), nil
}

// Save writes the full cart state.
func (s *RedisStore) Save(ctx context.Context, sessionID string, state State) error {
	payload, err := json.Marshal(snapshot{Lines: state.Lines, Version: state.Version, UpdatedAt: state.UpdatedAt})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.client.Set(ctx, s.client.CartKey(sessionID), payload, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}
