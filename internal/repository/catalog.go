package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tarot-backend/internal/model"
)

// CatalogRepository reads the static fortune-type and product catalog.
// Catalog rows are seeded at startup and read-only at request time.
type CatalogRepository struct {
	db Querier
}

// NewCatalogRepository creates a new CatalogRepository instance.
func NewCatalogRepository(db Querier) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *CatalogRepository) WithTx(tx pgx.Tx) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

// GetFortuneTypeByKey looks up a catalog entry by key.
func (r *CatalogRepository) GetFortuneTypeByKey(ctx context.Context, key string) (*model.FortuneType, error) {
	const query = `
		SELECT id, key, access_type_default, requires_warning
		FROM fortune_types
		WHERE key = $1
	`

	var ft model.FortuneType
	err := r.db.QueryRow(ctx, query, key).Scan(&ft.ID, &ft.Key, &ft.AccessType, &ft.RequiresWarning)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFortuneTypeNotFound
		}
		return nil, fmt.Errorf("failed to get fortune type: %w", err)
	}
	return &ft, nil
}

// GetProduct looks up a product by key and platform.
func (r *CatalogRepository) GetProduct(ctx context.Context, productKey, platform string) (*model.Product, error) {
	const query = `
		SELECT id, product_key, platform, fortune_type_id
		FROM products
		WHERE product_key = $1 AND platform = $2
	`

	var p model.Product
	err := r.db.QueryRow(ctx, query, productKey, platform).Scan(&p.ID, &p.ProductKey, &p.Platform, &p.FortuneTypeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}
