package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/angelmondragon/ravewear-storefront/pkg/types"
)

type addLineBody struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1,max=99"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":10,"quantity":0}`))
	var body addLineBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok || details["quantity"] == "" {
		t.Fatalf("expected quantity detail, got %v", pkgerrors.As(err).Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":10,"quantity":1,"price":"0.01"}`))
	var body addLineBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected unknown field rejection, got %v", err)
	}
}

func TestParseIDParam(t *testing.T) {
	build := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("productId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}
	id, err := ParseIDParam(build("42"), "productId")
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}
	for _, bad := range []string{"", "abc", "-1", "0"} {
		if _, err := ParseIDParam(build(bad), "productId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%q: expected validation error, got %v", bad, err)
		}
	}
}

func TestSanitizeAttributesKeepsCase(t *testing.T) {
	got := SanitizeAttributes([]types.SelectedAttribute{{Name: "  Color ", Option: " Blue "}}, 64)
	if got[0].Name != "Color" || got[0].Option != "Blue" {
		t.Fatalf("unexpected %+v", got[0])
	}
}
