package services

import (
	"errors"
	"fmt"

	domain "github.com/fieldstone/storefront/internal/domain"
)

var (
	// ErrInvalidPrice indicates the catalog yields no usable unit price.
	// This is a data integrity failure and must never be defaulted to zero.
	ErrInvalidPrice = errors.New("pricing: invalid price")
	// ErrInvalidTotal indicates the computed cart total is not a positive amount.
	ErrInvalidTotal = errors.New("pricing: invalid total")
)

// UnitPrice computes the minor-unit price for one variant: the variant's
// override when present, otherwise the product's base price.
func UnitPrice(product domain.Product, variant domain.Variant) (int64, error) {
	if variant.PriceOverride != nil {
		if *variant.PriceOverride < 0 {
			return 0, fmt.Errorf("%w: variant %s override %d", ErrInvalidPrice, variant.ID, *variant.PriceOverride)
		}
		return *variant.PriceOverride, nil
	}
	if product.BasePrice < 0 {
		return 0, fmt.Errorf("%w: product %s base price %d", ErrInvalidPrice, product.ID, product.BasePrice)
	}
	return product.BasePrice, nil
}

// PriceLine builds the denormalized priced line for a cart item against the
// current catalog state.
func PriceLine(product domain.Product, variant domain.Variant, item domain.CartItem) (domain.PricedLine, error) {
	unit, err := UnitPrice(product, variant)
	if err != nil {
		return domain.PricedLine{}, err
	}
	if item.Quantity <= 0 {
		return domain.PricedLine{}, fmt.Errorf("%w: item %s quantity %d", ErrInvalidPrice, item.ID, item.Quantity)
	}
	return domain.PricedLine{
		ItemID:      item.ID,
		ProductID:   product.ID,
		VariantID:   variant.ID,
		ProductName: product.Name,
		Color:       variant.Color,
		Size:        variant.Size,
		UnitPrice:   unit,
		Quantity:    item.Quantity,
		Subtotal:    unit * int64(item.Quantity),
	}, nil
}

// SumLines totals priced lines. Integer minor units make the sum exact; the
// guard rejects empty or non-positive totals before an order is persisted.
func SumLines(lines []domain.PricedLine) (domain.PricingBreakdown, error) {
	var total int64
	for _, line := range lines {
		total += line.Subtotal
	}
	if len(lines) == 0 || total <= 0 {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: computed total %d over %d lines", ErrInvalidTotal, total, len(lines))
	}
	return domain.PricingBreakdown{
		Subtotal: total,
		Total:    total,
		Lines:    lines,
	}, nil
}
