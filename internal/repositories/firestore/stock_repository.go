package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/fieldstone/storefront/internal/domain"
	pfirestore "github.com/fieldstone/storefront/internal/platform/firestore"
	"github.com/fieldstone/storefront/internal/repositories"
)

// StockRepository mutates per-variant stock counters on the product document.
// Every mutation runs inside a transaction so the availability check and the
// decrement are a single atomic step.
type StockRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection)
	return &StockRepository{provider: provider, products: products}, nil
}

func (r *StockRepository) Reserve(ctx context.Context, req repositories.StockReserveRequest) (repositories.StockMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockMutationResult{}, errors.New("stock repository not initialised")
	}
	if req.Quantity <= 0 {
		return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock reserve: quantity must be > 0", nil)
	}
	return r.adjust(ctx, "stock.reserve", req.ProductID, req.VariantID, -req.Quantity, req.Now)
}

func (r *StockRepository) Release(ctx context.Context, req repositories.StockReleaseRequest) (repositories.StockMutationResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockMutationResult{}, errors.New("stock repository not initialised")
	}
	if req.Quantity <= 0 {
		return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock release: quantity must be > 0", nil)
	}
	return r.adjust(ctx, "stock.release", req.ProductID, req.VariantID, req.Quantity, req.Now)
}

func (r *StockRepository) adjust(ctx context.Context, op, productID, variantID string, delta int, now time.Time) (repositories.StockMutationResult, error) {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" || variantID == "" {
		return repositories.StockMutationResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "stock adjust: product and variant ids are required", nil)
	}

	var result repositories.StockMutationResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		variant, ok := doc.Variants[variantID]
		if !ok {
			return repositories.NewStockError(repositories.StockErrorVariantNotFound, fmt.Sprintf("variant %s not found on product %s", variantID, productID), nil)
		}

		next := variant.Stock + delta
		if next < 0 {
			stockErr := repositories.NewStockError(repositories.StockErrorInsufficientStock, fmt.Sprintf("insufficient stock for variant %s", variantID), nil)
			stockErr.Available = variant.Stock
			return stockErr
		}

		updatedAt := now.UTC()
		if err := tx.Update(ref, []firestore.Update{
			{FieldPath: firestore.FieldPath{"variants", variantID, "stock"}, Value: next},
			{Path: "updatedAt", Value: updatedAt},
		}); err != nil {
			return err
		}

		result = repositories.StockMutationResult{
			Level: domain.StockLevel{
				ProductID: productID,
				VariantID: variantID,
				Stock:     next,
				UpdatedAt: updatedAt,
			},
		}
		return nil
	})
	if err != nil {
		return repositories.StockMutationResult{}, wrapStockError(op, err)
	}
	return result, nil
}

var _ repositories.StockRepository = (*StockRepository)(nil)

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
