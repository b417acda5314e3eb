package order

import "time"

type IDGenerator interface {
	NewID() string
}

type NumberGenerator interface {
	NewOrderNumber(t time.Time) string
}
