package uow

import (
	"context"
	"errors"

	"github.com/pharmadesk/ordercore/internal/domain/audit"
	"github.com/pharmadesk/ordercore/internal/domain/inventory"
	"github.com/pharmadesk/ordercore/internal/domain/order"
)

var (
	// ErrConflict is the store's serialization failure: two transactions
	// raced on the same row. Safe to retry.
	ErrConflict = errors.New("uow: serialization conflict")
	// ErrTransient marks an operation that exhausted its retries and may
	// succeed later. Distinct from business rejections, which never will.
	ErrTransient = errors.New("uow: transient failure")
)

// UnitOfWork exposes the transactional repositories of one in-flight
// transaction. Everything written through it commits or aborts together.
type UnitOfWork interface {
	Orders() order.Repository
	Inventory() inventory.Repository
	Audit() audit.Recorder
}

// Store is the transactional store primitive. Implementations guarantee
// atomicity of the whole function body and detect conflicting concurrent
// row mutation, reporting it as ErrConflict. An application-level
// read-then-write without this guarantee must never be substituted here.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx UnitOfWork) error) error
}
