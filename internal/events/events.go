// Package events publishes domain events to RabbitMQ.
package events

import (
	"context"
	"sync"
	"time"
)

const Exchange = "mail_market_events"

const (
	RoutingPurchaseCompleted  = "purchase.completed"
	RoutingDepositRequested   = "deposit.requested"
	RoutingDepositApproved    = "deposit.approved"
	RoutingDepositCancelled   = "deposit.cancelled"
	RoutingAllocationOrphaned = "alert.allocation_orphaned"
	RoutingPaymentUnmatched   = "alert.payment_unmatched"
)

// Publisher is implemented by anything that can deliver events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

type PurchaseCompleted struct {
	PurchaseID int64     `json:"purchase_id"`
	UserID     int64     `json:"user_id"`
	ItemType   string    `json:"item_type"`
	Quantity   int       `json:"quantity"`
	TotalCost  string    `json:"total_cost"`
	Balance    string    `json:"balance"`
	Timestamp  time.Time `json:"timestamp"`
}

type DepositChanged struct {
	DepositID int64     `json:"deposit_id"`
	UserID    int64     `json:"user_id"`
	Amount    string    `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type AllocationOrphaned struct {
	UserID    int64     `json:"user_id"`
	ItemType  string    `json:"item_type"`
	Quantity  int       `json:"quantity"`
	TotalCost string    `json:"total_cost"`
	Items     []string  `json:"items"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentUnmatched reports money the gateway collected for a deposit that
// can no longer be credited.
type PaymentUnmatched struct {
	DepositID     int64     `json:"deposit_id"`
	UserID        int64     `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	Paid          string    `json:"paid"`
	DepositStatus string    `json:"deposit_status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Recorded is one captured event.
type Recorded struct {
	RoutingKey string
	Body       any
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func (r *Recorder) Publish(_ context.Context, routingKey string, body any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{RoutingKey: routingKey, Body: body})
	return nil
}

func (r *Recorder) Close() {}

// Keys returns the routing keys in publish order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.events))
	for i, e := range r.events {
		keys[i] = e.RoutingKey
	}
	return keys
}

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}
