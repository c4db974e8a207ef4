package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	"github.com/angelmondragon/ravewear-storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	data   map[string]string
	getErr error
	sets   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.sets++
	switch v := value.(type) {
	case []byte:
		s.data[key] = string(v)
	default:
		s.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (s *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *fakeStore) CacheKey(kind string, id int64) string {
	return fmt.Sprintf("rw:cache:%s:%d", kind, id)
}

type countingGateway struct {
	productCalls   int
	variationCalls int
	orderCalls     int
	productErr     error
	orderStatus    enums.OrderStatus
	honorCancel    bool
}

func (g *countingGateway) FetchProduct(ctx context.Context, id int64) (*types.Product, error) {
	g.productCalls++
	if g.honorCancel && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if g.productErr != nil {
		return nil, g.productErr
	}
	return &types.Product{ID: id, Name: "Holo Mesh Tee", Price: decimal.RequireFromString("29.50")}, nil
}

func (g *countingGateway) FetchVariations(_ context.Context, productID int64) ([]types.Variation, error) {
	g.variationCalls++
	return []types.Variation{}, nil
}

func (g *countingGateway) CreateOrder(_ context.Context, req types.OrderRequest) (*types.Order, error) {
	return &types.Order{ID: 1}, nil
}

func (g *countingGateway) FetchOrder(_ context.Context, id int64) (*types.Order, error) {
	g.orderCalls++
	status := g.orderStatus
	if status == "" {
		status = enums.OrderStatusPending
	}
	return &types.Order{ID: id, Status: status}, nil
}

func (g *countingGateway) UpdateOrderStatus(_ context.Context, id int64, status enums.OrderStatus) (*types.Order, error) {
	g.orderStatus = status
	return &types.Order{ID: id, Status: status}, nil
}

func (g *countingGateway) MarkOrderPaid(_ context.Context, id int64, _ string) (*types.Order, error) {
	g.orderStatus = enums.OrderStatusProcessing
	return &types.Order{ID: id, Status: g.orderStatus}, nil
}

func newCached(t *testing.T, gw Gateway, store cacheStore) *CachedGateway {
	t.Helper()
	cached, err := NewCachedGateway(gw, store, config.CacheConfig{
		ProductTTL:   time.Minute,
		VariationTTL: time.Minute,
		OrderTTL:     time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("new cached gateway: %v", err)
	}
	return cached
}

func TestCachedGatewayServesRepeatReadsFromCache(t *testing.T) {
	gw := &countingGateway{}
	cached := newCached(t, gw, newFakeStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		product, err := cached.FetchProduct(ctx, 7)
		if err != nil {
			t.Fatalf("fetch product: %v", err)
		}
		if !product.Price.Equal(decimal.RequireFromString("29.5")) {
			t.Fatalf("unexpected price %s", product.Price)
		}
	}
	if gw.productCalls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", gw.productCalls)
	}
}

func TestCachedGatewayKeepsEmptyVariationsNonNil(t *testing.T) {
	gw := &countingGateway{}
	cached := newCached(t, gw, newFakeStore())

	for i := 0; i < 2; i++ {
		variations, err := cached.FetchVariations(context.Background(), 7)
		if err != nil {
			t.Fatalf("fetch variations: %v", err)
		}
		if variations == nil {
			t.Fatalf("expected loaded (non-nil) variations on call %d", i)
		}
	}
	if gw.variationCalls != 1 {
		t.Fatalf("expected cached variations, got %d calls", gw.variationCalls)
	}
}

func TestInvalidateProductForcesRefetch(t *testing.T) {
	gw := &countingGateway{}
	store := newFakeStore()
	cached := newCached(t, gw, store)
	ctx := context.Background()

	_, _ = cached.FetchProduct(ctx, 7)
	_, _ = cached.FetchVariations(ctx, 7)
	if err := cached.InvalidateProduct(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = cached.FetchProduct(ctx, 7)
	_, _ = cached.FetchVariations(ctx, 7)

	if gw.productCalls != 2 || gw.variationCalls != 2 {
		t.Fatalf("expected refetch after invalidation, got product=%d variations=%d", gw.productCalls, gw.variationCalls)
	}
}

func TestSharedLoadOutlivesCallerCancellation(t *testing.T) {
	gw := &countingGateway{honorCancel: true}
	store := newFakeStore()
	cached := newCached(t, gw, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	product, err := cached.FetchProduct(ctx, 7)
	if err != nil {
		t.Fatalf("expected load to ignore the caller's cancellation, got %v", err)
	}
	if product.ID != 7 || store.sets != 1 {
		t.Fatalf("expected product cached, got id=%d sets=%d", product.ID, store.sets)
	}
}

func TestUpstreamErrorsAreNotCached(t *testing.T) {
	gw := &countingGateway{productErr: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	store := newFakeStore()
	cached := newCached(t, gw, store)

	for i := 0; i < 2; i++ {
		if _, err := cached.FetchProduct(context.Background(), 9); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if gw.productCalls != 2 || store.sets != 0 {
		t.Fatalf("errors must not be cached: calls=%d sets=%d", gw.productCalls, store.sets)
	}
}

func TestCacheReadFailureFallsBackToUpstream(t *testing.T) {
	gw := &countingGateway{}
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	cached := newCached(t, gw, store)

	if _, err := cached.FetchProduct(context.Background(), 7); err != nil {
		t.Fatalf("expected upstream fallback, got %v", err)
	}
	if gw.productCalls != 1 {
		t.Fatalf("expected upstream call, got %d", gw.productCalls)
	}
}

func TestMarkOrderPaidDropsCachedOrder(t *testing.T) {
	gw := &countingGateway{}
	cached := newCached(t, gw, newFakeStore())
	ctx := context.Background()

	order, _ := cached.FetchOrder(ctx, 42)
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if _, err := cached.MarkOrderPaid(ctx, 42, "pi_123"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	order, _ = cached.FetchOrder(ctx, 42)
	if order.Status != enums.OrderStatusProcessing {
		t.Fatalf("expected fresh order after payment, got %s", order.Status)
	}
	if gw.orderCalls != 2 {
		t.Fatalf("expected order refetch, got %d calls", gw.orderCalls)
	}
}
