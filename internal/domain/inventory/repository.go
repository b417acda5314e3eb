package inventory

import "context"

type Repository interface {
	Get(ctx context.Context, medicineID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
}
