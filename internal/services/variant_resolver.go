package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/fieldstone/storefront/internal/domain"
	"github.com/fieldstone/storefront/internal/platform/textutil"
)

// ErrNoVariantsAvailable indicates the product has no sellable unit at all.
var ErrNoVariantsAvailable = errors.New("variant: no variants available")

// ResolutionStrategy selects how a variant hint is interpreted.
type ResolutionStrategy string

const (
	// ResolutionExactAttributes matches against the hint's color and size.
	ResolutionExactAttributes ResolutionStrategy = "exact_attributes"
	// ResolutionLegacyToken resolves an opaque stored token (historically
	// "default") to a concrete variant so the caller can persist the
	// corrected id going forward.
	ResolutionLegacyToken ResolutionStrategy = "legacy_token"
)

// VariantHint describes the caller's idea of which variant it wants. Color
// and size carry attribute hints; Token carries the opaque legacy reference.
type VariantHint struct {
	Strategy ResolutionStrategy
	Color    string
	Size     *string
	Token    string
}

// VariantMatch is the resolver outcome. Degraded flags matches that fell
// through to the first-variant fallback; callers persist the concrete
// variant id so the next lookup is exact.
type VariantMatch struct {
	Variant  domain.Variant
	Degraded bool
}

// ResolveVariant finds the variant a hint refers to, preferring precise
// matches and degrading gracefully through substring and single-attribute
// matches. Historical carts carry inconsistently cased and padded attribute
// data, so matching is case-insensitive and whitespace-trimmed throughout.
// It fails only when the product has zero variants.
func ResolveVariant(product domain.Product, hint VariantHint) (VariantMatch, error) {
	if len(product.Variants) == 0 {
		return VariantMatch{}, fmt.Errorf("%w: product %s", ErrNoVariantsAvailable, product.ID)
	}

	if hint.Strategy == ResolutionLegacyToken {
		if variant, ok := variantByID(product, hint.Token); ok {
			return VariantMatch{Variant: variant}, nil
		}
		return VariantMatch{Variant: product.Variants[0], Degraded: true}, nil
	}

	color := textutil.Fold(hint.Color)
	size := foldOptional(hint.Size)

	// Exact color and size.
	if color != "" && size != nil {
		for _, v := range product.Variants {
			if textutil.FoldEqual(v.Color, color) && sizeMatches(v.Size, size) {
				return VariantMatch{Variant: v}, nil
			}
		}
		// Substring color, exact size.
		for _, v := range product.Variants {
			if textutil.FoldContains(v.Color, color) && sizeMatches(v.Size, size) {
				return VariantMatch{Variant: v}, nil
			}
		}
	}

	// Size alone, when no color was supplied or no color matched.
	if size != nil {
		for _, v := range product.Variants {
			if sizeMatches(v.Size, size) {
				return VariantMatch{Variant: v}, nil
			}
		}
	}

	// Color alone when no size was supplied, exact then substring.
	if color != "" && size == nil {
		for _, v := range product.Variants {
			if textutil.FoldEqual(v.Color, color) {
				return VariantMatch{Variant: v}, nil
			}
		}
		for _, v := range product.Variants {
			if textutil.FoldContains(v.Color, color) {
				return VariantMatch{Variant: v}, nil
			}
		}
	}

	return VariantMatch{Variant: product.Variants[0], Degraded: true}, nil
}

func variantByID(product domain.Product, id string) (domain.Variant, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Variant{}, false
	}
	for _, v := range product.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return domain.Variant{}, false
}

func foldOptional(v *string) *string {
	if v == nil {
		return nil
	}
	folded := textutil.Fold(*v)
	if folded == "" {
		return nil
	}
	return &folded
}

func sizeMatches(variantSize *string, want *string) bool {
	if variantSize == nil || want == nil {
		return false
	}
	return textutil.FoldEqual(*variantSize, *want)
}
