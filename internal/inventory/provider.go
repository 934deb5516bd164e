// Package inventory talks to the upstream mail supplier.
package inventory

import (
	"context"
	"errors"
)

// ErrAllocationFailed is returned whenever the upstream did not hand over the full
// requested quantity. Partial fulfilment counts as failure.
var ErrAllocationFailed = errors.New("allocation failed")

// Provider abstracts the supplier's stock and allocation API.
type Provider interface {
	// CheckStock returns the available quantity, or 0 when the upstream cannot be
	// read. Callers treat unknown and empty the same way.
	CheckStock(ctx context.Context, itemType string) int
	// Allocate reserves quantity items and returns their opaque tokens. It is not
	// idempotent and must not be retried by callers.
	Allocate(ctx context.Context, itemType string, quantity int) ([]string, error)
}
