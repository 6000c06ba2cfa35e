package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

const productsTableDDL = `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT,
		description TEXT,
		category TEXT,
		price DOUBLE PRECISION,
		tags TEXT[],
		images TEXT[]
	)`

// CatalogStore reads the product catalog from PostgreSQL.
type CatalogStore struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewCatalogStore(db DatabaseQuerier, logger *logrus.Logger) *CatalogStore {
	return &CatalogStore{
		db:     db,
		logger: logger,
	}
}

func (s *CatalogStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, productsTableDDL); err != nil {
		return fmt.Errorf("failed to create products table: %w", err)
	}
	return nil
}

// FetchAllProducts returns the catalog in id order.
func (s *CatalogStore) FetchAllProducts(ctx context.Context) ([]models.Product, error) {
	query := `
		SELECT id, COALESCE(name, ''), COALESCE(description, ''), COALESCE(category, ''),
			COALESCE(price, 0), COALESCE(tags, '{}'), COALESCE(images, '{}')
		FROM products
		ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Tags, &p.Images); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	return products, nil
}

// FetchProductsByIDs returns display details for the ids that still exist.
func (s *CatalogStore) FetchProductsByIDs(ctx context.Context, ids []string) (map[string]models.ProductDetails, error) {
	details := make(map[string]models.ProductDetails, len(ids))
	if len(ids) == 0 {
		return details, nil
	}

	query := `
		SELECT id, COALESCE(name, ''), COALESCE(price, 0), COALESCE(category, ''), COALESCE(images, '{}')
		FROM products
		WHERE id = ANY($1)`

	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query products by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var d models.ProductDetails
		if err := rows.Scan(&id, &d.Name, &d.Price, &d.Category, &d.Images); err != nil {
			return nil, fmt.Errorf("failed to scan product details: %w", err)
		}
		if d.Images == nil {
			d.Images = []string{}
		}
		details[id] = d
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read product details: %w", err)
	}

	return details, nil
}
