package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("catalog: medicine not found")
	ErrInactive = errors.New("catalog: medicine is inactive")
)

// Medicine is the catalog read model. The catalog context owns it; this
// core only reads price, rates and flags. Percentage rates are 0-100.
type Medicine struct {
	ID                   string
	Name                 string
	UnitPrice            decimal.Decimal
	UnitCost             decimal.Decimal
	TaxRate              decimal.Decimal
	DiscountPct          decimal.Decimal
	PrescriptionRequired bool
	Active               bool
}

type Lookup interface {
	Medicine(ctx context.Context, id string) (*Medicine, error)
}
