package payment

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Gateway. Transactions are registered with Settle.
type Fake struct {
	mu           sync.Mutex
	FailCheckout bool
	checkouts    []CheckoutRequest
	transactions map[string]Verification
}

func NewFake() *Fake {
	return &Fake{transactions: make(map[string]Verification)}
}

func (f *Fake) CreateCheckout(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCheckout {
		return nil, fmt.Errorf("%w: checkout unavailable", ErrGateway)
	}
	f.checkouts = append(f.checkouts, req)
	return &Checkout{PaymentURL: fmt.Sprintf("https://pay.test/checkout/%d", req.DepositID)}, nil
}

func (f *Fake) Verify(_ context.Context, transactionID string) (*Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction %s", ErrGateway, transactionID)
	}
	return &v, nil
}

// Settle records the gateway's view of a transaction.
func (f *Fake) Settle(v Verification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions[v.TransactionID] = v
}

func (f *Fake) Checkouts() []CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CheckoutRequest(nil), f.checkouts...)
}

var _ Gateway = (*Fake)(nil)
