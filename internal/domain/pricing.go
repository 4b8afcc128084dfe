package domain

// PricedLine pairs a cart item with its authoritative unit price at
// checkout time.
type PricedLine struct {
	ItemID      string
	ProductID   string
	VariantID   string
	ProductName string
	Color       string
	Size        *string
	UnitPrice   int64
	Quantity    int
	Subtotal    int64
}

// PricingBreakdown captures the aggregated monetary results of pricing a cart.
type PricingBreakdown struct {
	Subtotal int64
	Total    int64
	Lines    []PricedLine
}
