package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(WithCartSessionID(ctx, "sess-1"))
}

func checkoutRequest(body string) *http.Request {
	return requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(body))
}

func TestRouteRuleSelection(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		pattern  string
		ttl      time.Duration
		required bool
		ok       bool
	}{
		{"checkout", http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL, true, true},
		{"add line", http.MethodPost, "/api/v1/cart/lines", defaultIdempotencyTTL, false, true},
		{"checkout read", http.MethodGet, "/api/v1/checkout", 0, false, false},
		{"set quantity", http.MethodPut, "/api/v1/cart/lines/quantity", 0, false, false},
	}

	for _, tt := range tests {
		rule, ok := routeRule(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && (rule.ttl != tt.ttl || rule.required != tt.required) {
			t.Fatalf("%s: unexpected rule %+v", tt.name, rule)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeaderOnCheckout(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, checkoutRequest(`{"payment_method_id":"pm_card_visa"}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareOptionalKeyPassesThrough(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/cart/lines", "/api/v1/cart/lines", strings.NewReader(`{"product_id":10,"quantity":1}`))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected both adds to run without a key, got %d", calls)
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":"PAYMENT_DECLINED"}}`))
	})

	req := checkoutRequest(`{"payment_method_id":"pm_card_visa"}`)
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected first response 402 got %d", resp.Code)
	}

	replay := checkoutRequest(`{"payment_method_id":"pm_card_visa"}`)
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected replay status 402 got %d", rec.Code)
	}
	if rec.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if !strings.Contains(rec.Body.String(), "PAYMENT_DECLINED") {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	for i := 0; i < 2; i++ {
		req := checkoutRequest(`{}`)
		req.Header.Set("Idempotency-Key", "retry-me")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected retry after 503 to reach handler, calls=%d", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := checkoutRequest(`{"payment_method_id":"pm_1"}`)
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := checkoutRequest(`{"payment_method_id":"pm_2"}`)
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareDuplicateDuringFirstRequestDoesNotOverwrite(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	body := `{"payment_method_id":"pm_card_visa"}`
	var duplicate *httptest.ResponseRecorder
	var calls int

	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// A retry arrives while the first submit is still running.
		dup := checkoutRequest(body)
		dup.Header.Set("Idempotency-Key", "same")
		duplicate = httptest.NewRecorder()
		mw(handler).ServeHTTP(duplicate, dup)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"state":{"stage":"succeeded"}}}`))
	})

	first := checkoutRequest(body)
	first.Header.Set("Idempotency-Key", "same")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, first)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}
	if duplicate == nil || duplicate.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %+v", duplicate)
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}

	replay := checkoutRequest(body)
	replay.Header.Set("Idempotency-Key", "same")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "succeeded") {
		t.Fatalf("expected replay of the 201, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyMiddlewareReleasesKeyAfterPanic(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	req := checkoutRequest(`{}`)
	req.Header.Set("Idempotency-Key", "crash")
	func() {
		defer func() { _ = recover() }()
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}()

	if len(store.data) != 0 {
		t.Fatalf("expected reservation released, got %v", store.data)
	}
}
