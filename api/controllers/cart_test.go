package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ravewear-storefront/api/middleware"
	cartsvc "github.com/angelmondragon/ravewear-storefront/internal/cart"
	pkgauth "github.com/angelmondragon/ravewear-storefront/pkg/auth"
	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
)

type stubCartService struct {
	view    *cartsvc.View
	err     error
	added   *cartsvc.AddLineRequest
	ref     *cartsvc.LineRef
	qty     int
	attr    [2]string
	cleared bool
}

func (s *stubCartService) Get(ctx context.Context, sessionID string) (*cartsvc.View, error) {
	return s.view, s.err
}

func (s *stubCartService) AddLine(ctx context.Context, sessionID string, req cartsvc.AddLineRequest) (*cartsvc.View, error) {
	s.added = &req
	return s.view, s.err
}

func (s *stubCartService) SetQuantity(ctx context.Context, sessionID string, ref cartsvc.LineRef, quantity int) (*cartsvc.View, error) {
	s.ref = &ref
	s.qty = quantity
	return s.view, s.err
}

func (s *stubCartService) RemoveLine(ctx context.Context, sessionID string, ref cartsvc.LineRef) (*cartsvc.View, error) {
	s.ref = &ref
	return s.view, s.err
}

func (s *stubCartService) SetLineAttributes(ctx context.Context, sessionID string, ref cartsvc.LineRef, name, option string) (*cartsvc.View, error) {
	s.ref = &ref
	s.attr = [2]string{name, option}
	return s.view, s.err
}

func (s *stubCartService) Clear(ctx context.Context, sessionID string) (*cartsvc.View, error) {
	s.cleared = true
	return s.view, s.err
}

func sessionRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithCartSessionID(req.Context(), "sess-1"))
}

func sampleView() *cartsvc.View {
	return &cartsvc.View{
		State: cartsvc.State{
			Lines: []cartsvc.Line{{
				ProductID:   10,
				Quantity:    2,
				UnitPrice:   decimal.RequireFromString("25.00"),
				DisplayName: "Holo Bodysuit",
				SKU:         "HB-1",
			}},
			Subtotal: decimal.RequireFromString("50.00"),
			Total:    decimal.RequireFromString("50.00"),
		},
		CheckoutEligible: true,
	}
}

func TestCartFetchSuccess(t *testing.T) {
	handler := CartFetch(&stubCartService{view: sampleView()}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, sessionRequest(http.MethodGet, "/api/v1/cart", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Lines            []cartsvc.Line `json:"lines"`
			CheckoutEligible bool           `json:"checkout_eligible"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Lines) != 1 || !envelope.Data.CheckoutEligible {
		t.Fatalf("unexpected cart %+v", envelope.Data)
	}
}

func TestCartFetchMissingSession(t *testing.T) {
	handler := CartFetch(&stubCartService{}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddLinePassesSelection(t *testing.T) {
	svc := &stubCartService{view: sampleView()}
	body := `{"product_id":10,"quantity":1,"attributes":[{"name":" Size ","option":"M"}]}`

	resp := httptest.NewRecorder()
	CartAddLine(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/lines", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.added == nil || svc.added.ProductID != 10 || svc.added.Quantity != 1 {
		t.Fatalf("unexpected add request %+v", svc.added)
	}
	if len(svc.added.Attributes) != 1 || svc.added.Attributes[0].Name != "Size" {
		t.Fatalf("expected trimmed attribute, got %+v", svc.added.Attributes)
	}
}

func TestCartAddLineRejectsZeroQuantity(t *testing.T) {
	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartAddLine(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/lines", `{"product_id":10,"quantity":0}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.added != nil {
		t.Fatal("service should not be called for an invalid body")
	}
}

func TestCartAddLineRejectsQuantityAboveLimit(t *testing.T) {
	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartAddLine(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPost, "/api/v1/cart/lines", `{"product_id":10,"quantity":9223372036854775807}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.added != nil {
		t.Fatal("service should not be called for an oversized quantity")
	}
}

func TestCartSetQuantityZeroAllowed(t *testing.T) {
	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartSetQuantity(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPut, "/api/v1/cart/lines/quantity", `{"product_id":10,"variation_id":11,"quantity":0}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.ref == nil || svc.ref.VariationID == nil || *svc.ref.VariationID != 11 || svc.qty != 0 {
		t.Fatalf("unexpected ref %+v qty %d", svc.ref, svc.qty)
	}
}

func TestCartSetLineAttribute(t *testing.T) {
	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartSetLineAttribute(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodPut, "/api/v1/cart/lines/attributes", `{"product_id":10,"name":"Color","option":"Holo"}`))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.attr != [2]string{"Color", "Holo"} {
		t.Fatalf("unexpected attribute %v", svc.attr)
	}
}

func TestCartServiceErrorMapped(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeNotFound, "line not found")}
	resp := httptest.NewRecorder()
	CartRemoveLine(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodDelete, "/api/v1/cart/lines", `{"product_id":99}`))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCartClear(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{}}
	resp := httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(resp, sessionRequest(http.MethodDelete, "/api/v1/cart", ""))
	if resp.Code != http.StatusOK || !svc.cleared {
		t.Fatalf("expected cleared cart, got %d cleared=%v", resp.Code, svc.cleared)
	}
}

func testCartSessionConfig() config.CartSessionConfig {
	return config.CartSessionConfig{Secret: "cart-secret", Issuer: "ravewear-test", TTL: time.Hour}
}

func TestCartSessionStartMintsNewSession(t *testing.T) {
	cfg := testCartSessionConfig()
	resp := httptest.NewRecorder()
	CartSessionStart(cfg, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/cart/session", nil))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	token := resp.Header().Get(middleware.CartTokenHeader)
	claims, err := pkgauth.ParseCartToken(cfg, token)
	if err != nil {
		t.Fatalf("minted token does not parse: %v", err)
	}
	if claims.SessionID == "" {
		t.Fatal("expected session id")
	}
}

func TestCartSessionStartKeepsExistingSession(t *testing.T) {
	cfg := testCartSessionConfig()
	existing, claims, err := pkgauth.MintCartToken(cfg, time.Now(), "sess-keep")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/session", nil)
	req.Header.Set(middleware.CartTokenHeader, existing)
	resp := httptest.NewRecorder()
	CartSessionStart(cfg, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	refreshed, err := pkgauth.ParseCartToken(cfg, resp.Header().Get(middleware.CartTokenHeader))
	if err != nil {
		t.Fatalf("refreshed token does not parse: %v", err)
	}
	if refreshed.SessionID != claims.SessionID {
		t.Fatalf("expected session %s kept, got %s", claims.SessionID, refreshed.SessionID)
	}
}
