package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestVariantValidate(t *testing.T) {
	v := domain.Variant{ID: "sku-1", ProductID: "prod-1", Quantity: 10}
	if errs := v.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid variant, got %v", errs)
	}

	v.ProductID = ""
	v.Quantity = -1
	if errs := v.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 validation errors, got %v", errs)
	}
}

func TestLowStockSeverityFor(t *testing.T) {
	if got := domain.LowStockSeverityFor(3); got != domain.LowStockWarning {
		t.Fatalf("expected warning for positive stock, got %s", got)
	}
	if got := domain.LowStockSeverityFor(0); got != domain.LowStockCritical {
		t.Fatalf("expected critical for zero stock, got %s", got)
	}
}

func TestValidateLines(t *testing.T) {
	cases := []struct {
		name    string
		lines   []domain.LineItem
		wantErr bool
	}{
		{name: "ok", lines: []domain.LineItem{{SKU: "sku-1", Qty: 2}}},
		{name: "empty", lines: nil, wantErr: true},
		{name: "no sku", lines: []domain.LineItem{{Qty: 2}}, wantErr: true},
		{name: "zero qty", lines: []domain.LineItem{{SKU: "sku-1"}}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := domain.ValidateLines(tc.lines)
			if tc.wantErr && len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			if !tc.wantErr && len(errs) != 0 {
				t.Fatalf("expected no errors, got %v", errs)
			}
		})
	}
}
