package woowebhook

import (
	"context"
	"testing"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
)

type recordingInvalidator struct {
	products []int64
	orders   []int64
}

func (r *recordingInvalidator) InvalidateProduct(_ context.Context, id int64) error {
	r.products = append(r.products, id)
	return nil
}

func (r *recordingInvalidator) InvalidateOrder(_ context.Context, id int64) error {
	r.orders = append(r.orders, id)
	return nil
}

func TestHandleDeliveryInvalidatesVariationAndParent(t *testing.T) {
	inv := &recordingInvalidator{}
	svc, err := NewService(inv, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	err = svc.HandleDelivery(context.Background(), Delivery{
		Topic:    "product.updated",
		Resource: "product",
		Payload:  []byte(`{"id":101,"parent_id":10}`),
	})
	if err != nil {
		t.Fatalf("handle delivery: %v", err)
	}
	if len(inv.products) != 2 || inv.products[0] != 101 || inv.products[1] != 10 {
		t.Fatalf("expected product 101 and parent 10 invalidated, got %v", inv.products)
	}
}

func TestHandleDeliveryInvalidatesOrderFromTopic(t *testing.T) {
	inv := &recordingInvalidator{}
	svc, _ := NewService(inv, nil)
	if err := svc.HandleDelivery(context.Background(), Delivery{Topic: "order.updated", Payload: []byte(`{"id":42}`)}); err != nil {
		t.Fatalf("handle delivery: %v", err)
	}
	if len(inv.orders) != 1 || inv.orders[0] != 42 {
		t.Fatalf("expected order 42 invalidated, got %v", inv.orders)
	}
}

func TestHandleDeliveryIgnoresOtherResources(t *testing.T) {
	inv := &recordingInvalidator{}
	svc, _ := NewService(inv, nil)
	if err := svc.HandleDelivery(context.Background(), Delivery{Topic: "customer.created", Payload: []byte(`not json`)}); err != nil {
		t.Fatalf("expected ignore, got %v", err)
	}
	if len(inv.products)+len(inv.orders) != 0 {
		t.Fatal("expected no invalidation")
	}
}

func TestHandleDeliveryRejectsMalformedPayload(t *testing.T) {
	svc, _ := NewService(&recordingInvalidator{}, nil)
	err := svc.HandleDelivery(context.Background(), Delivery{Topic: "product.deleted", Payload: []byte(`{"name":"x"}`)})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEventOfPrefersHeader(t *testing.T) {
	cases := map[string]Delivery{
		"deleted":  {Topic: "product.deleted"},
		"restored": {Topic: "product.updated", Event: "Restored"},
		"":         {},
	}
	for want, d := range cases {
		if got := eventOf(d); got != want {
			t.Fatalf("eventOf(%+v) = %q, want %q", d, got, want)
		}
	}
}
