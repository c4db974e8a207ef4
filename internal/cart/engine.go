package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/ravewear-storefront/internal/variation"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/shopspring/decimal"
)

// Store persists a session's cart state.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, sessionID string, state State) error
}

// LineResolver recomputes a line's variation from its attribute selection.
// variation.Resolver implements it.
type LineResolver interface {
	Resolve(ctx context.Context, productID int64, chosen map[string]string) (*variation.Resolution, error)
}

// Subscriber is notified with the new state after each committed mutation.
type Subscriber func(State)

// Presentation holds the denormalized fields copied onto a line at add time.
type Presentation struct {
	DisplayName        string
	ImageRef           string
	SKU                string
	UnitPrice          decimal.Decimal
	RequiredAttributes []string
}

// MaxLineQuantity caps a single line, including the sum of merged adds.
const MaxLineQuantity = 999

// AddLineInput is the payload of AddLine.
type AddLineInput struct {
	ProductID    int64
	Quantity     int
	VariationID  *int64
	Attributes   []types.SelectedAttribute
	Presentation Presentation
}

// Engine owns one session's cart. Each mutation is applied to a copy,
// persisted through the Store and only then committed, so a failed save never
// leaves the in-memory state ahead of storage. Callers serialize access per
// session; the mutex only guards against misuse inside one process.
type Engine struct {
	mu          sync.Mutex
	sessionID   string
	state       State
	store       Store
	resolver    LineResolver
	subscribers map[int]Subscriber
	nextSubID   int
	now         func() time.Time
}

// NewEngine binds an engine to sessionID, starting from initial.
func NewEngine(sessionID string, initial State, store Store, resolver LineResolver) *Engine {
	return &Engine{
		sessionID:   sessionID,
		state:       initial.clone(),
		store:       store,
		resolver:    resolver,
		subscribers: map[int]Subscriber{},
		now:         time.Now,
	}
}

// State returns a copy of the current cart with freshly derived totals.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// IsCheckoutEligible is false for an empty cart or when any line that needs a
// variation lacks a choice for one of its variation attributes or a resolved
// variation.
func (e *Engine) IsCheckoutEligible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return eligible(e.state)
}

func eligible(s State) bool {
	if s.IsEmpty() {
		return false
	}
	for _, l := range s.Lines {
		if !l.resolved() {
			return false
		}
	}
	return true
}

// Subscribe registers fn and returns a function that removes it.
func (e *Engine) Subscribe(fn Subscriber) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

// AddLine merges into the line with the same (product, variation) key by
// summing quantities, or appends a new line.
func (e *Engine) AddLine(ctx context.Context, in AddLineInput) error {
	if in.ProductID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if in.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if in.Quantity > MaxLineQuantity {
		return quantityLimitError()
	}
	if in.Presentation.UnitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}

	return e.mutate(ctx, func(s *State) (bool, error) {
		key := KeyOf(in.ProductID, in.VariationID)
		if i := s.indexOf(key); i >= 0 {
			merged, err := mergeQuantity(s.Lines[i].Quantity, in.Quantity)
			if err != nil {
				return false, err
			}
			s.Lines[i].Quantity = merged
			return true, nil
		}
		line := Line{
			ProductID:          in.ProductID,
			Quantity:           in.Quantity,
			UnitPrice:          in.Presentation.UnitPrice,
			SelectedAttributes: normalizeAttributes(in.Attributes),
			RequiredAttributes: append([]string(nil), in.Presentation.RequiredAttributes...),
			DisplayName:        in.Presentation.DisplayName,
			ImageRef:           in.Presentation.ImageRef,
			SKU:                in.Presentation.SKU,
		}
		if in.VariationID != nil {
			id := *in.VariationID
			line.VariationID = &id
		}
		s.Lines = append(s.Lines, line)
		return true, nil
	})
}

// SetQuantity replaces the quantity of a line; a quantity <= 0 removes it.
// A missing line is a no-op.
func (e *Engine) SetQuantity(ctx context.Context, productID int64, variationID *int64, quantity int) error {
	if quantity <= 0 {
		return e.RemoveLine(ctx, productID, variationID)
	}
	if quantity > MaxLineQuantity {
		return quantityLimitError()
	}
	return e.mutate(ctx, func(s *State) (bool, error) {
		i := s.indexOf(KeyOf(productID, variationID))
		if i < 0 || s.Lines[i].Quantity == quantity {
			return false, nil
		}
		s.Lines[i].Quantity = quantity
		return true, nil
	})
}

// RemoveLine deletes a line. Removing a missing line is a no-op.
func (e *Engine) RemoveLine(ctx context.Context, productID int64, variationID *int64) error {
	return e.mutate(ctx, func(s *State) (bool, error) {
		i := s.indexOf(KeyOf(productID, variationID))
		if i < 0 {
			return false, nil
		}
		s.Lines = append(s.Lines[:i], s.Lines[i+1:]...)
		return true, nil
	})
}

// SetLineAttributes changes one attribute of a line and re-resolves its
// variation, price and SKU. An empty option clears the attribute and resets the
// line to base product values. When the re-keyed line collides with another
// line the two merge. An unresolved outcome leaves the cart untouched.
func (e *Engine) SetLineAttributes(ctx context.Context, productID int64, currentVariationID *int64, attributeName, option string) error {
	attributeName = strings.TrimSpace(attributeName)
	if attributeName == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "attribute name is required")
	}
	if e.resolver == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "variation resolver unavailable")
	}

	current := e.State()
	idx := current.indexOf(KeyOf(productID, currentVariationID))
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	attrs := withAttribute(current.Lines[idx].SelectedAttributes, attributeName, option)
	chosen := Line{SelectedAttributes: attrs}.Chosen()

	res, err := e.resolver.Resolve(ctx, productID, chosen)
	if err != nil {
		return err
	}
	if res.Result.Outcome == variation.Unresolved {
		return nil
	}
	effective := res.Effective
	if option == "" {
		effective = variation.EffectiveFor(*res.Product, variation.Result{Outcome: variation.NoMatch})
	}

	return e.mutate(ctx, func(s *State) (bool, error) {
		i := s.indexOf(KeyOf(productID, currentVariationID))
		if i < 0 {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
		}
		line := s.Lines[i]
		line.SelectedAttributes = attrs
		line.VariationID = effective.VariationID
		line.UnitPrice = effective.UnitPrice
		line.SKU = effective.SKU
		line.ImageRef = effective.ImageRef
		line.DisplayName = res.Product.Name
		line.RequiredAttributes = res.Product.VariationAttributeNames()

		if j := s.indexOf(line.Key()); j >= 0 && j != i {
			merged, err := mergeQuantity(s.Lines[j].Quantity, line.Quantity)
			if err != nil {
				return false, err
			}
			s.Lines[j].Quantity = merged
			s.Lines = append(s.Lines[:i], s.Lines[i+1:]...)
			return true, nil
		}
		s.Lines[i] = line
		return true, nil
	})
}

func mergeQuantity(existing, added int) (int, error) {
	if existing > MaxLineQuantity-added {
		return 0, quantityLimitError()
	}
	return existing + added, nil
}

func quantityLimitError() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per-item limit").
		WithDetails(map[string]any{"max_quantity": MaxLineQuantity})
}

// Clear empties the cart.
func (e *Engine) Clear(ctx context.Context) error {
	return e.mutate(ctx, func(s *State) (bool, error) {
		if s.IsEmpty() {
			return false, nil
		}
		s.Lines = []Line{}
		return true, nil
	})
}

// mutate applies fn to a copy of the state. Changed states get fresh totals, a
// bumped version, are persisted and then committed and broadcast.
func (e *Engine) mutate(ctx context.Context, fn func(*State) (bool, error)) error {
	e.mu.Lock()
	next := e.state.clone()
	changed, err := fn(&next)
	if err != nil || !changed {
		e.mu.Unlock()
		return err
	}
	next.Version++
	next.UpdatedAt = e.now().UTC()
	next = next.withTotals()

	if e.store != nil {
		if err := e.store.Save(ctx, e.sessionID, next); err != nil {
			e.mu.Unlock()
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
		}
	}
	e.state = next
	subs := make([]Subscriber, 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
	return nil
}
