package services

import (
	"errors"
	"testing"

	domain "github.com/fieldstone/storefront/internal/domain"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestUnitPriceUsesOverride(t *testing.T) {
	product := domain.Product{ID: "prod-1", BasePrice: 1000}
	variant := domain.Variant{ID: "var-1", PriceOverride: int64Ptr(750)}

	price, err := UnitPrice(product, variant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 750 {
		t.Fatalf("expected override 750, got %d", price)
	}
}

func TestUnitPriceFallsBackToBasePrice(t *testing.T) {
	product := domain.Product{ID: "prod-1", BasePrice: 1000}
	variant := domain.Variant{ID: "var-1"}

	price, err := UnitPrice(product, variant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 1000 {
		t.Fatalf("expected base price 1000, got %d", price)
	}
}

func TestUnitPriceRejectsNegativeValues(t *testing.T) {
	product := domain.Product{ID: "prod-1", BasePrice: -1}
	if _, err := UnitPrice(product, domain.Variant{ID: "var-1"}); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for negative base price, got %v", err)
	}

	variant := domain.Variant{ID: "var-1", PriceOverride: int64Ptr(-5)}
	if _, err := UnitPrice(domain.Product{ID: "prod-1", BasePrice: 100}, variant); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice for negative override, got %v", err)
	}
}

func TestPriceLineDenormalizesCatalogState(t *testing.T) {
	product := domain.Product{ID: "prod-1", Name: "Canvas Tote", BasePrice: 2400}
	variant := domain.Variant{ID: "var-1", Color: "Navy", Size: strPtr("M")}
	item := domain.CartItem{ID: "item-1", Quantity: 3}

	line, err := PriceLine(product, variant, item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.ProductName != "Canvas Tote" || line.Color != "Navy" {
		t.Fatalf("expected denormalized product data, got %+v", line)
	}
	if line.Subtotal != 7200 {
		t.Fatalf("expected subtotal 7200, got %d", line.Subtotal)
	}
}

func TestSumLinesTotalEqualsLineSum(t *testing.T) {
	breakdown, err := SumLines([]domain.PricedLine{
		{ItemID: "item-1", UnitPrice: 100000, Quantity: 2, Subtotal: 200000},
		{ItemID: "item-2", UnitPrice: 2400, Quantity: 1, Subtotal: 2400},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if breakdown.Total != 202400 {
		t.Fatalf("expected total 202400, got %d", breakdown.Total)
	}
}

func TestSumLinesRejectsEmptyAndNonPositive(t *testing.T) {
	if _, err := SumLines(nil); !errors.Is(err, ErrInvalidTotal) {
		t.Fatalf("expected ErrInvalidTotal for empty lines, got %v", err)
	}
	if _, err := SumLines([]domain.PricedLine{{Subtotal: 0}}); !errors.Is(err, ErrInvalidTotal) {
		t.Fatalf("expected ErrInvalidTotal for zero total, got %v", err)
	}
}
