package customer

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("customer: not found")

// Customer is the customer-context read model; only existence matters here.
type Customer struct {
	ID    string
	Name  string
	Email string
}

type Lookup interface {
	Customer(ctx context.Context, id string) (*Customer, error)
}
