package cart

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/ravewear-storefront/internal/variation"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/logger"
	pkgredis "github.com/angelmondragon/ravewear-storefront/pkg/redis"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

const lockScope = "cart"

type catalogReader interface {
	FetchProduct(ctx context.Context, id int64) (*types.Product, error)
	FetchVariations(ctx context.Context, productID int64) ([]types.Variation, error)
}

type sessionLocker interface {
	Lock(ctx context.Context, scope, id string, ttl time.Duration) (pkgredis.ReleaseFunc, error)
}

// View is a cart state plus its checkout eligibility.
type View struct {
	State
	CheckoutEligible bool `json:"checkout_eligible"`
}

// AddLineRequest is a shopper's add-to-cart. Either VariationID or a complete
// attribute selection identifies a variation of a variable product.
type AddLineRequest struct {
	ProductID   int64
	Quantity    int
	VariationID *int64
	Attributes  []types.SelectedAttribute
}

// LineRef addresses an existing line by its composite key.
type LineRef struct {
	ProductID   int64
	VariationID *int64
}

// Service runs cart engine operations for a cart session.
type Service interface {
	Get(ctx context.Context, sessionID string) (*View, error)
	AddLine(ctx context.Context, sessionID string, req AddLineRequest) (*View, error)
	SetQuantity(ctx context.Context, sessionID string, ref LineRef, quantity int) (*View, error)
	RemoveLine(ctx context.Context, sessionID string, ref LineRef) (*View, error)
	SetLineAttributes(ctx context.Context, sessionID string, ref LineRef, attributeName, option string) (*View, error)
	Clear(ctx context.Context, sessionID string) (*View, error)
}

// ServiceParams wires the cart service.
type ServiceParams struct {
	Store    Store
	Resolver LineResolver
	Catalog  catalogReader
	Locker   sessionLocker
	LockTTL  time.Duration
	Logger   *logger.Logger
}

type service struct {
	store    Store
	resolver LineResolver
	catalog  catalogReader
	locker   sessionLocker
	lockTTL  time.Duration
	logg     *logger.Logger
}

// NewService validates dependencies and builds the cart service.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart store required")
	}
	if params.Resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "variation resolver required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog gateway required")
	}
	if params.Locker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session locker required")
	}
	ttl := params.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &service{
		store:    params.Store,
		resolver: params.Resolver,
		catalog:  params.Catalog,
		locker:   params.Locker,
		lockTTL:  ttl,
		logg:     params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, sessionID string) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &View{State: state, CheckoutEligible: eligible(state)}, nil
}

func (s *service) AddLine(ctx context.Context, sessionID string, req AddLineRequest) (*View, error) {
	if req.ProductID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if req.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	input, err := s.buildAddInput(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.withEngine(ctx, sessionID, func(e *Engine) error {
		return e.AddLine(ctx, input)
	})
}

// buildAddInput prices the line from the catalog: the shopper never supplies a price.
func (s *service) buildAddInput(ctx context.Context, req AddLineRequest) (AddLineInput, error) {
	attrs := normalizeAttributes(req.Attributes)

	if req.VariationID != nil && len(attrs) == 0 {
		variations, err := s.catalog.FetchVariations(ctx, req.ProductID)
		if err != nil {
			return AddLineInput{}, err
		}
		found := false
		for _, v := range variations {
			if v.ID == *req.VariationID {
				attrs = append(attrs, v.Attributes...)
				found = true
				break
			}
		}
		if !found {
			return AddLineInput{}, pkgerrors.New(pkgerrors.CodeNotFound, "variation not found")
		}
	}

	res, err := s.resolver.Resolve(ctx, req.ProductID, Line{SelectedAttributes: attrs}.Chosen())
	if err != nil {
		return AddLineInput{}, err
	}
	if res.Result.CatalogMisconfigured {
		return AddLineInput{}, pkgerrors.New(pkgerrors.CodeValidation, "product has variation attributes but no purchasable variations").
			WithDetails(map[string]any{"product_id": req.ProductID})
	}
	if req.VariationID != nil && (res.Effective.VariationID == nil || *res.Effective.VariationID != *req.VariationID) {
		return AddLineInput{}, pkgerrors.New(pkgerrors.CodeValidation, "variation does not match the selected attributes")
	}

	return AddLineInput{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		VariationID: res.Effective.VariationID,
		Attributes:  attrs,
		Presentation: Presentation{
			DisplayName:        res.Product.Name,
			ImageRef:           res.Effective.ImageRef,
			SKU:                res.Effective.SKU,
			UnitPrice:          res.Effective.UnitPrice,
			RequiredAttributes: res.Product.VariationAttributeNames(),
		},
	}, nil
}

func (s *service) SetQuantity(ctx context.Context, sessionID string, ref LineRef, quantity int) (*View, error) {
	return s.withEngine(ctx, sessionID, func(e *Engine) error {
		return e.SetQuantity(ctx, ref.ProductID, ref.VariationID, quantity)
	})
}

func (s *service) RemoveLine(ctx context.Context, sessionID string, ref LineRef) (*View, error) {
	return s.withEngine(ctx, sessionID, func(e *Engine) error {
		return e.RemoveLine(ctx, ref.ProductID, ref.VariationID)
	})
}

func (s *service) SetLineAttributes(ctx context.Context, sessionID string, ref LineRef, attributeName, option string) (*View, error) {
	return s.withEngine(ctx, sessionID, func(e *Engine) error {
		return e.SetLineAttributes(ctx, ref.ProductID, ref.VariationID, attributeName, option)
	})
}

func (s *service) Clear(ctx context.Context, sessionID string) (*View, error) {
	return s.withEngine(ctx, sessionID, func(e *Engine) error {
		return e.Clear(ctx)
	})
}

// withEngine loads the session's cart under its lock, runs op and returns the
// resulting view.
func (s *service) withEngine(ctx context.Context, sessionID string, op func(*Engine) error) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	release, err := s.locker.Lock(ctx, lockScope, sessionID, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rErr := release(context.WithoutCancel(ctx)); rErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", rErr.Error()), "cart.lock.release_failed")
		}
	}()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(sessionID, state, s.store, s.resolver)
	unsubscribe := engine.Subscribe(func(next State) {
		if s.logg == nil {
			return
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"cart_version": next.Version,
			"lines":        len(next.Lines),
			"subtotal":     next.Subtotal.String(),
		}), "cart.updated")
	})
	defer unsubscribe()

	if err := op(engine); err != nil {
		return nil, err
	}
	return &View{State: engine.State(), CheckoutEligible: engine.IsCheckoutEligible()}, nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session required")
	}
	return nil
}

var _ LineResolver = (*variation.Resolver)(nil)
