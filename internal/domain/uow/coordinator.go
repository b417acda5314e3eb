package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pharmadesk/ordercore/internal/observability"
	"github.com/pharmadesk/ordercore/internal/observability/logctx"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 10 * time.Millisecond
)

// Coordinator wraps a Store and retries serialization conflicts a bounded
// number of times with exponential backoff. Business errors pass through
// untouched on the first occurrence; only ErrConflict is retried.
type Coordinator struct {
	store       Store
	maxAttempts int
	backoff     time.Duration
	log         observability.Logger
	conflicts   observability.Counter
}

func NewCoordinator(store Store, maxAttempts int, backoff time.Duration, tel observability.Observability) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Coordinator{
		store:       store,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         tel.Logger().With(observability.F("component", "tx_coordinator")),
		conflicts:   tel.Metrics().Counter(observability.MTxConflicts),
	}
}

// Run executes fn inside a transaction. The function must be safe to run
// more than once: on every attempt it starts from a fresh snapshot and its
// staged writes from prior attempts are discarded.
func (c *Coordinator) Run(ctx context.Context, op string, fn func(ctx context.Context, tx UnitOfWork) error) error {
	logger := logctx.FromOr(ctx, c.log)
	backoff := c.backoff

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.store.RunInTransaction(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}

		c.conflicts.Add(1, observability.L("op", op))
		logger.Warn("transaction_conflict",
			observability.F("op", op),
			observability.F("attempt", attempt),
		)

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}
