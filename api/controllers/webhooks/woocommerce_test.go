package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	woowebhook "github.com/angelmondragon/ravewear-storefront/internal/webhooks/woocommerce"
)

type fakeWooService struct {
	deliveries []woowebhook.Delivery
}

func (f *fakeWooService) HandleDelivery(_ context.Context, d woowebhook.Delivery) error {
	f.deliveries = append(f.deliveries, d)
	return nil
}

func wooRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/woocommerce", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(woowebhook.HeaderSignature, signature)
	}
	req.Header.Set(woowebhook.HeaderTopic, "product.updated")
	req.Header.Set(woowebhook.HeaderResource, "product")
	req.Header.Set(woowebhook.HeaderEvent, "updated")
	req.Header.Set(woowebhook.HeaderID, "12")
	return req
}

func TestWooCommerceWebhook_AcceptsSignedDelivery(t *testing.T) {
	body := []byte(`{"id":101,"parent_id":10}`)
	svc := &fakeWooService{}
	rec := httptest.NewRecorder()
	WooCommerceWebhook(svc, "s3cret", nil, nil).ServeHTTP(rec, wooRequest(body, woowebhook.Sign(body, "s3cret")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.deliveries) != 1 || svc.deliveries[0].Topic != "product.updated" {
		t.Fatalf("unexpected deliveries %+v", svc.deliveries)
	}
	if got := svc.deliveries[0]; got.Event != "updated" || got.WebhookID != "12" {
		t.Fatalf("expected event and webhook id headers on the delivery, got %+v", got)
	}
}

func TestWooCommerceWebhook_RejectsTamperedBody(t *testing.T) {
	signed := []byte(`{"id":101,"price":"30.00"}`)
	tampered := []byte(`{"id":101,"price":"0.01"}`)
	svc := &fakeWooService{}
	rec := httptest.NewRecorder()
	WooCommerceWebhook(svc, "s3cret", nil, nil).ServeHTTP(rec, wooRequest(tampered, woowebhook.Sign(signed, "s3cret")))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(svc.deliveries) != 0 {
		t.Fatal("tampered delivery must not reach the service")
	}
}

func TestWooCommerceWebhook_AcknowledgesPing(t *testing.T) {
	svc := &fakeWooService{}
	rec := httptest.NewRecorder()
	WooCommerceWebhook(svc, "s3cret", nil, nil).ServeHTTP(rec, wooRequest([]byte("webhook_id=7"), ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ping, got %d", rec.Code)
	}
	if len(svc.deliveries) != 0 {
		t.Fatal("ping must not reach the service")
	}
}
