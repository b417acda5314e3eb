package id

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator(t *testing.T) {
	gen := NewUUIDGenerator()

	a := gen.NewID()
	b := gen.NewID()

	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestOrderNumberGenerator_Format(t *testing.T) {
	gen := NewOrderNumberGenerator(42)
	at := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)

	n := gen.NewOrderNumber(at)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20250601-[0-9A-F]{6}$`), n)
}

func TestOrderNumberGenerator_DeterministicWithSeed(t *testing.T) {
	a := NewOrderNumberGenerator(42)
	b := NewOrderNumberGenerator(42)
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, a.NewOrderNumber(at), b.NewOrderNumber(at))
	assert.NotEqual(t, a.NewOrderNumber(at), a.NewOrderNumber(at))
}
