package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/engage-orders/internal/domain/catalog"
)

const (
	getProductSQL = `SELECT id, service_id, name, description, quantity, price, currency, delivery_time, active
		FROM products WHERE id = $1`

	getServiceSQL = `SELECT id, name, description, active FROM services WHERE id = $1`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	store *Store
}

// NewCatalogRepository returns a CatalogRepository that uses the given store.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{store: store}
}

// GetProduct returns a product by id regardless of its active flag.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.store.conn(ctx).Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetService returns a service by id regardless of its active flag.
func (r *CatalogRepository) GetService(ctx context.Context, id string) (*catalog.Service, error) {
	var s catalog.Service
	err := r.store.conn(ctx).QueryRow(ctx, getServiceSQL, id).Scan(
		&s.ID, &s.Name, &s.Description, &s.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get service %q", id)
	}
	return &s, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.ServiceID, &p.Name, &p.Description, &p.Quantity,
		&p.Price, &p.Currency, &p.DeliveryTime, &p.Active,
	)
	return p, err
}
