package inventory

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Provider for tests and local runs.
type Fake struct {
	mu sync.Mutex

	// Stock is the reported and allocatable quantity per item type.
	Stock map[string]int
	// FailAllocate makes every allocation fail.
	FailAllocate bool
	// ShortBy delivers this many items fewer than requested.
	ShortBy int
	// ReportedStock overrides what CheckStock reports, without changing what Allocate can serve.
	ReportedStock map[string]int

	allocateCalls int
	issued        int
}

func NewFake(stock map[string]int) *Fake {
	if stock == nil {
		stock = map[string]int{}
	}
	return &Fake{Stock: stock}
}

func (f *Fake) CheckStock(_ context.Context, itemType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.ReportedStock[itemType]; ok {
		return n
	}
	return f.Stock[itemType]
}

func (f *Fake) Allocate(_ context.Context, itemType string, quantity int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocateCalls++

	if f.FailAllocate {
		return nil, fmt.Errorf("%w: upstream unavailable", ErrAllocationFailed)
	}
	deliver := quantity - f.ShortBy
	if deliver > f.Stock[itemType] {
		deliver = f.Stock[itemType]
	}
	if deliver < quantity {
		return nil, fmt.Errorf("%w: received %d of %d items", ErrAllocationFailed, max(deliver, 0), quantity)
	}

	f.Stock[itemType] -= quantity
	tokens := make([]string, quantity)
	for i := range tokens {
		f.issued++
		tokens[i] = fmt.Sprintf("%s-%04d@example.com:secret", itemType, f.issued)
	}
	return tokens, nil
}

// AllocateCalls reports how many times Allocate ran.
func (f *Fake) AllocateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocateCalls
}

var _ Provider = (*Fake)(nil)
