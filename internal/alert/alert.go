// Package alert reports money or goods that left one side of a transaction
// without being recorded on the other.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-market/internal/events"
	"mail-market/internal/metrics"
	"mail-market/internal/storage"
)

type OrphanedAllocation struct {
	UserID    int64
	ItemType  string
	Quantity  int
	TotalCost decimal.Decimal
	Items     []string
	Cause     error
}

// Sink receives orphaned allocations.
type Sink interface {
	AllocationOrphaned(ctx context.Context, o OrphanedAllocation)
}

// UnmatchedPayment is a gateway payment whose deposit is no longer pending.
type UnmatchedPayment struct {
	DepositID     int64
	UserID        int64
	TransactionID string
	Amount        decimal.Decimal
	Paid          decimal.Decimal
	DepositStatus string
}

// PaymentSink receives payments that could not be credited.
type PaymentSink interface {
	PaymentUnmatched(ctx context.Context, p UnmatchedPayment)
}

type orphanRecord struct {
	events.AllocationOrphaned
	ID string `json:"id"`
}

// Notifier logs the allocation, archives its items and publishes an event.
// Archive and publisher are optional.
type Notifier struct {
	log       logrus.FieldLogger
	publisher events.Publisher
	archive   storage.Archive
	now       func() time.Time
}

func NewNotifier(log logrus.FieldLogger, publisher events.Publisher, archive storage.Archive) *Notifier {
	return &Notifier{log: log, publisher: publisher, archive: archive, now: time.Now}
}

func (n *Notifier) AllocationOrphaned(ctx context.Context, o OrphanedAllocation) {
	metrics.RecordOrphanedAllocation()

	reason := "unknown"
	if o.Cause != nil {
		reason = o.Cause.Error()
	}
	ts := n.now().UTC()
	record := orphanRecord{
		ID: uuid.NewString(),
		AllocationOrphaned: events.AllocationOrphaned{
			UserID:    o.UserID,
			ItemType:  o.ItemType,
			Quantity:  o.Quantity,
			TotalCost: o.TotalCost.String(),
			Items:     o.Items,
			Reason:    reason,
			Timestamp: ts,
		},
	}

	entry := n.log.WithFields(logrus.Fields{
		"component": "alert",
		"orphan_id": record.ID,
		"user_id":   o.UserID,
		"item_type": o.ItemType,
		"quantity":  o.Quantity,
		"total":     o.TotalCost.String(),
	})
	entry.WithError(o.Cause).Error("allocation delivered but purchase not recorded")

	key := fmt.Sprintf("%s%s-%d-%s.json", storage.OrphanPrefix, ts.Format("20060102T150405Z"), o.UserID, record.ID)
	n.deliver(ctx, entry, key, record, events.RoutingAllocationOrphaned, record.AllocationOrphaned)
}

type unmatchedRecord struct {
	events.PaymentUnmatched
	ID string `json:"id"`
}

func (n *Notifier) PaymentUnmatched(ctx context.Context, p UnmatchedPayment) {
	metrics.RecordUnmatchedPayment()

	ts := n.now().UTC()
	record := unmatchedRecord{
		ID: uuid.NewString(),
		PaymentUnmatched: events.PaymentUnmatched{
			DepositID:     p.DepositID,
			UserID:        p.UserID,
			TransactionID: p.TransactionID,
			Amount:        p.Amount.String(),
			Paid:          p.Paid.String(),
			DepositStatus: p.DepositStatus,
			Timestamp:     ts,
		},
	}

	entry := n.log.WithFields(logrus.Fields{
		"component":      "alert",
		"alert_id":       record.ID,
		"deposit_id":     p.DepositID,
		"user_id":        p.UserID,
		"transaction_id": p.TransactionID,
		"amount":         p.Amount.String(),
		"paid":           p.Paid.String(),
		"deposit_status": p.DepositStatus,
	})
	entry.Error("payment confirmed by gateway but deposit cannot be credited")

	key := fmt.Sprintf("%s%s-%d-%s.json", storage.UnmatchedPrefix, ts.Format("20060102T150405Z"), p.DepositID, record.ID)
	n.deliver(ctx, entry, key, record, events.RoutingPaymentUnmatched, record.PaymentUnmatched)
}

func (n *Notifier) deliver(ctx context.Context, entry logrus.FieldLogger, key string, record any, routingKey string, body any) {
	// detached so a cancelled request still leaves a trail
	bg := context.WithoutCancel(ctx)

	if n.archive != nil {
		if err := n.archive.PutJSON(bg, key, record); err != nil {
			entry.WithError(err).Errorf("archive %s", routingKey)
		}
	}
	if n.publisher != nil {
		if err := n.publisher.Publish(bg, routingKey, body); err != nil {
			entry.WithError(err).Errorf("publish %s", routingKey)
		}
	}
}

var (
	_ Sink        = (*Notifier)(nil)
	_ PaymentSink = (*Notifier)(nil)
)
