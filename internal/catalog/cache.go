package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	kindProduct    = "product"
	kindVariations = "variations"
	kindOrder      = "order"
)

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(kind string, id int64) string
}

// CachedGateway memoizes catalog reads in Redis (cache-aside). Writes pass
// through and drop the affected order entry. Concurrent misses on one key
// share a single upstream call.
type CachedGateway struct {
	next  Gateway
	store cacheStore
	ttl   config.CacheConfig
	group singleflight.Group
	logg  *logger.Logger
}

// NewCachedGateway wraps next with a Redis-backed cache.
func NewCachedGateway(next Gateway, store cacheStore, ttl config.CacheConfig, logg *logger.Logger) (*CachedGateway, error) {
	if next == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog gateway required")
	}
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cache store required")
	}
	return &CachedGateway{next: next, store: store, ttl: ttl, logg: logg}, nil
}

func (g *CachedGateway) FetchProduct(ctx context.Context, id int64) (*types.Product, error) {
	return readThrough(ctx, g, kindProduct, id, g.ttl.ProductTTL, func(ctx context.Context) (*types.Product, error) {
		return g.next.FetchProduct(ctx, id)
	})
}

func (g *CachedGateway) FetchVariations(ctx context.Context, productID int64) ([]types.Variation, error) {
	return readThrough(ctx, g, kindVariations, productID, g.ttl.VariationTTL, func(ctx context.Context) ([]types.Variation, error) {
		return g.next.FetchVariations(ctx, productID)
	})
}

func (g *CachedGateway) FetchOrder(ctx context.Context, id int64) (*types.Order, error) {
	return readThrough(ctx, g, kindOrder, id, g.ttl.OrderTTL, func(ctx context.Context) (*types.Order, error) {
		return g.next.FetchOrder(ctx, id)
	})
}

func (g *CachedGateway) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	return g.next.CreateOrder(ctx, req)
}

func (g *CachedGateway) UpdateOrderStatus(ctx context.Context, id int64, status enums.OrderStatus) (*types.Order, error) {
	order, err := g.next.UpdateOrderStatus(ctx, id, status)
	g.dropOrder(ctx, id)
	return order, err
}

func (g *CachedGateway) MarkOrderPaid(ctx context.Context, id int64, transactionID string) (*types.Order, error) {
	order, err := g.next.MarkOrderPaid(ctx, id, transactionID)
	g.dropOrder(ctx, id)
	return order, err
}

// InvalidateProduct drops the cached product and its variations.
func (g *CachedGateway) InvalidateProduct(ctx context.Context, productID int64) error {
	if err := g.store.Del(ctx, g.store.CacheKey(kindProduct, productID), g.store.CacheKey(kindVariations, productID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate product cache")
	}
	return nil
}

// InvalidateOrder drops the cached order.
func (g *CachedGateway) InvalidateOrder(ctx context.Context, orderID int64) error {
	if err := g.store.Del(ctx, g.store.CacheKey(kindOrder, orderID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate order cache")
	}
	return nil
}

func (g *CachedGateway) dropOrder(ctx context.Context, id int64) {
	if err := g.InvalidateOrder(ctx, id); err != nil {
		g.warn(ctx, "catalog.cache.invalidate_failed", id, err)
	}
}

func (g *CachedGateway) warn(ctx context.Context, msg string, id int64, err error) {
	if g.logg == nil {
		return
	}
	g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"id": id, "error": err.Error()}), msg)
}

// readThrough serves key from Redis or loads and stores it. Cache failures
// degrade to a direct upstream read; upstream errors are never cached.
func readThrough[T any](ctx context.Context, g *CachedGateway, kind string, id int64, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	key := g.store.CacheKey(kind, id)

	raw, err := g.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached T
		uErr := json.Unmarshal([]byte(raw), &cached)
		if uErr == nil {
			return cached, nil
		}
		g.warn(ctx, "catalog.cache.corrupt_entry", id, uErr)
	case !errors.Is(err, redis.Nil):
		g.warn(ctx, "catalog.cache.read_failed", id, err)
	}

	// The flight is shared by every waiter on key, so it must not die with
	// the first caller's request.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := g.group.Do(key, func() (any, error) {
		fresh, err := load(flightCtx)
		if err != nil {
			return fresh, err
		}
		if ttl > 0 {
			payload, mErr := json.Marshal(fresh)
			if mErr != nil {
				return fresh, nil
			}
			if sErr := g.store.Set(flightCtx, key, payload, ttl); sErr != nil {
				g.warn(flightCtx, "catalog.cache.write_failed", id, sErr)
			}
		}
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unexpected cached %s type %T", kind, v))
	}
	return out, nil
}
