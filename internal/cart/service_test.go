package cart

import (
	"context"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	pkgredis "github.com/angelmondragon/ravewear-storefront/pkg/redis"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/shopspring/decimal"
)

type stubCatalog struct {
	resolver *stubResolver
}

func (s *stubCatalog) FetchProduct(_ context.Context, id int64) (*types.Product, error) {
	if id != s.resolver.product.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	p := s.resolver.product
	return &p, nil
}

func (s *stubCatalog) FetchVariations(_ context.Context, _ int64) ([]types.Variation, error) {
	return s.resolver.variations, nil
}

type stubLocker struct {
	held     map[string]bool
	acquired int
	released int
	lockErr  error
}

func (s *stubLocker) Lock(_ context.Context, scope, id string, _ time.Duration) (pkgredis.ReleaseFunc, error) {
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	key := scope + ":" + id
	if s.held[key] {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, scope+" is busy")
	}
	s.held[key] = true
	s.acquired++
	return func(context.Context) error {
		delete(s.held, key)
		s.released++
		return nil
	}, nil
}

func newTestService(t *testing.T) (Service, *memoryStore, *stubLocker, *stubResolver) {
	t.Helper()
	resolver := teeResolver()
	store := newMemoryStore()
	locker := &stubLocker{held: map[string]bool{}}
	svc, err := NewService(ServiceParams{
		Store:    store,
		Resolver: resolver,
		Catalog:  &stubCatalog{resolver: resolver},
		Locker:   locker,
		LockTTL:  time.Second,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store, locker, resolver
}

func TestServiceAddLineResolvesFromAttributes(t *testing.T) {
	t.Parallel()

	svc, store, locker, _ := newTestService(t)
	view, err := svc.AddLine(context.Background(), "sid", AddLineRequest{
		ProductID:  10,
		Quantity:   2,
		Attributes: []types.SelectedAttribute{{Name: "Color", Option: "Pink"}, {Name: "Size", Option: "L"}},
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].VariationID == nil || *view.Lines[0].VariationID != 102 {
		t.Fatalf("expected pink variation line, got %+v", view.Lines)
	}
	if view.Lines[0].DisplayName != "Holo Mesh Tee" || view.Lines[0].SKU != "HMT-PK-L" {
		t.Fatalf("presentation not copied: %+v", view.Lines[0])
	}
	if !view.Subtotal.Equal(decimal.RequireFromString("68")) {
		t.Fatalf("expected subtotal 68, got %s", view.Subtotal)
	}
	if !view.CheckoutEligible {
		t.Fatal("expected fully resolved cart to be eligible")
	}
	if store.saves != 1 {
		t.Fatalf("expected one save, got %d", store.saves)
	}
	if locker.acquired != 1 || locker.released != 1 {
		t.Fatalf("expected lock acquired and released once, got %d/%d", locker.acquired, locker.released)
	}
}

func TestServiceAddLineByVariationID(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	variationID := int64(101)
	view, err := svc.AddLine(context.Background(), "sid", AddLineRequest{ProductID: 10, Quantity: 1, VariationID: &variationID})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if got := view.Lines[0].Chosen(); got["Color"] != "Blue" || got["Size"] != "L" {
		t.Fatalf("expected attributes copied from variation, got %+v", got)
	}
	if !view.Lines[0].UnitPrice.Equal(decimal.RequireFromString("32")) {
		t.Fatalf("expected variation price, got %s", view.Lines[0].UnitPrice)
	}
}

func TestServiceAddLineRejectsMismatchedVariation(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	variationID := int64(101)
	_, err := svc.AddLine(context.Background(), "sid", AddLineRequest{
		ProductID:   10,
		Quantity:    1,
		VariationID: &variationID,
		Attributes:  []types.SelectedAttribute{{Name: "Color", Option: "Pink"}, {Name: "Size", Option: "L"}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceAddLineCatalogMisconfigured(t *testing.T) {
	t.Parallel()

	svc, _, _, resolver := newTestService(t)
	resolver.variations = []types.Variation{}
	_, err := svc.AddLine(context.Background(), "sid", AddLineRequest{ProductID: 10, Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServicePartialSelectionIsNotEligible(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	view, err := svc.AddLine(ctx, "sid", AddLineRequest{
		ProductID:  10,
		Quantity:   1,
		Attributes: []types.SelectedAttribute{{Name: "Color", Option: "Blue"}},
	})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if view.CheckoutEligible {
		t.Fatal("expected partial selection to block checkout")
	}

	view, err = svc.SetLineAttributes(ctx, "sid", LineRef{ProductID: 10}, "Size", "L")
	if err != nil {
		t.Fatalf("set attributes: %v", err)
	}
	if !view.CheckoutEligible {
		t.Fatal("expected completed selection to unlock checkout")
	}
}

func TestServiceMutationsRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	variationID := int64(101)
	ref := LineRef{ProductID: 10, VariationID: &variationID}

	if _, err := svc.AddLine(ctx, "sid", AddLineRequest{ProductID: 10, Quantity: 1, VariationID: &variationID}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	view, err := svc.SetQuantity(ctx, "sid", ref, 4)
	if err != nil || view.Lines[0].Quantity != 4 {
		t.Fatalf("set quantity: %+v %v", view, err)
	}
	view, err = svc.RemoveLine(ctx, "sid", ref)
	if err != nil || !view.IsEmpty() {
		t.Fatalf("remove line: %+v %v", view, err)
	}
	view, err = svc.RemoveLine(ctx, "sid", ref)
	if err != nil || !view.IsEmpty() {
		t.Fatalf("second remove should be a no-op: %+v %v", view, err)
	}

	got, err := svc.Get(ctx, "sid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 3 || got.CheckoutEligible {
		t.Fatalf("unexpected view %+v", got)
	}
}

func TestServiceBusySession(t *testing.T) {
	t.Parallel()

	svc, store, locker, _ := newTestService(t)
	locker.held["cart:sid"] = true

	_, err := svc.Clear(context.Background(), "sid")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.saves != 0 {
		t.Fatal("expected no save while session is locked")
	}
}

func TestServiceRequiresSession(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
