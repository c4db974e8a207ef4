package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Session is the checkout progress for one cart session. The form data is
// kept across failures so the shopper can resubmit without retyping it.
type Session struct {
	CartSessionID    string              `json:"cart_session_id"`
	State            State               `json:"state"`
	AttemptID        string              `json:"attempt_id,omitempty"`
	IdempotencyToken string              `json:"idempotency_token,omitempty"`
	Billing          types.OrderAddress  `json:"billing"`
	Shipping         *types.OrderAddress `json:"shipping,omitempty"`
	OrderID          int64               `json:"order_id,omitempty"`
	PaymentIntentID  string              `json:"payment_intent_id,omitempty"`
	ClientSecret     string              `json:"client_secret,omitempty"`
	RedirectURL      string              `json:"redirect_url,omitempty"`
	AmountMinor      int64               `json:"amount_minor,omitempty"`
	Currency         string              `json:"currency,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// NewSession starts an idle checkout session.
func NewSession(cartSessionID string) *Session {
	return &Session{CartSessionID: cartSessionID, State: Idle()}
}

// apply runs ev through Transition and stores the result on success.
func (s *Session) apply(ev Event) error {
	next, err := Transition(s.State, ev)
	if err != nil {
		return err
	}
	s.State = next
	return nil
}

// restart clears the previous attempt's references while keeping the form data.
func (s *Session) restart() {
	s.State = Idle()
	s.AttemptID = ""
	s.IdempotencyToken = ""
	s.OrderID = 0
	s.PaymentIntentID = ""
	s.ClientSecret = ""
	s.RedirectURL = ""
	s.AmountMinor = 0
	s.Currency = ""
}

type sessionRedis interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CheckoutSessionKey(sessionID string) string
}

// SessionStore persists checkout sessions in Redis under rw:checkout:<session>.
type SessionStore interface {
	Load(ctx context.Context, cartSessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, cartSessionID string) error
}

type redisSessionStore struct {
	client sessionRedis
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore builds the Redis-backed checkout session store.
func NewSessionStore(client sessionRedis, ttl time.Duration) (SessionStore, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisSessionStore{client: client, ttl: ttl, now: time.Now}, nil
}

// Load returns the stored session or nil when there is none.
func (s *redisSessionStore) Load(ctx context.Context, cartSessionID string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.client.CheckoutSessionKey(cartSessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode checkout session")
	}
	return &session, nil
}

func (s *redisSessionStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.CartSessionID == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "checkout session requires a cart session id")
	}
	session.UpdatedAt = s.now().UTC()
	payload, err := json.Marshal(session)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout session")
	}
	if err := s.client.Set(ctx, s.client.CheckoutSessionKey(session.CartSessionID), payload, s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save checkout session")
	}
	return nil
}

func (s *redisSessionStore) Delete(ctx context.Context, cartSessionID string) error {
	if err := s.client.Del(ctx, s.client.CheckoutSessionKey(cartSessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete checkout session")
	}
	return nil
}
