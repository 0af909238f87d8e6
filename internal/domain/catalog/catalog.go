package catalog

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product or service does not exist.
var ErrNotFound = errors.New("catalog item not found")

// Supported currency symbols.
const (
	CurrencyTRY = "₺"
	CurrencyUSD = "$"
	CurrencyEUR = "€"
)

// IsCurrency reports whether s is a supported currency symbol.
func IsCurrency(s string) bool {
	switch s {
	case CurrencyTRY, CurrencyUSD, CurrencyEUR:
		return true
	default:
		return false
	}
}

// Service groups products, e.g. a social platform offering.
type Service struct {
	ID          string
	Name        string
	Description string
	Active      bool
}

// Product is a purchasable bundle of a service.
type Product struct {
	ID           string
	ServiceID    string
	Name         string
	Description  string
	Quantity     int
	Price        decimal.Decimal
	Currency     string
	DeliveryTime string
	Active       bool
}

// FormattedQuantity renders the bundle size as 1.5K / 2.0M style text.
func (p Product) FormattedQuantity() string {
	switch {
	case p.Quantity >= 1_000_000:
		return strconv.FormatFloat(float64(p.Quantity)/1_000_000, 'f', 1, 64) + "M"
	case p.Quantity >= 1_000:
		return strconv.FormatFloat(float64(p.Quantity)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.Itoa(p.Quantity)
	}
}

// Repository provides read access to products and services.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetService(ctx context.Context, id string) (*Service, error)
}
