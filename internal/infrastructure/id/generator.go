package id

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UUIDGenerator issues random UUIDs for order and audit ids.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// OrderNumberGenerator issues human-readable order numbers of the form
// ORD-YYYYMMDD-XXXXXX. Uniqueness within a day relies on the random
// suffix; the order id stays the durable key.
type OrderNumberGenerator struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewOrderNumberGenerator(seed int64) *OrderNumberGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &OrderNumberGenerator{rand: rand.New(rand.NewSource(seed))}
}

func (g *OrderNumberGenerator) NewOrderNumber(t time.Time) string {
	g.mu.Lock()
	n := g.rand.Uint32() & 0xFFFFFF
	g.mu.Unlock()
	return fmt.Sprintf("ORD-%s-%06X", t.UTC().Format("20060102"), n)
}
