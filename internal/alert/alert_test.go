package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-market/internal/events"
	"mail-market/internal/storage"
)

func TestNotifierAllocationOrphaned(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &events.Recorder{}
	archive := storage.NewMemoryArchive()
	n := NewNotifier(logger, rec, archive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.AllocationOrphaned(ctx, OrphanedAllocation{
		UserID:    7,
		ItemType:  "outlook",
		Quantity:  2,
		TotalCost: decimal.RequireFromString("3.00"),
		Items:     []string{"a@x:pw", "b@x:pw"},
		Cause:     errors.New("disk full"),
	})

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, int64(7), hook.LastEntry().Data["user_id"])

	assert.Equal(t, []string{events.RoutingAllocationOrphaned}, rec.Keys())
	evt := rec.Events()[0].Body.(events.AllocationOrphaned)
	assert.Equal(t, "disk full", evt.Reason)
	assert.Equal(t, "3", evt.TotalCost)

	objs, err := archive.ListObjects(context.Background(), storage.OrphanPrefix)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	body, ok := archive.Get(objs[0].Key)
	require.True(t, ok)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.Equal(t, []any{"a@x:pw", "b@x:pw"}, stored["items"])
	assert.NotEmpty(t, stored["id"])
}

func TestNotifierWithoutOptionalSinks(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := NewNotifier(logger, nil, nil)
	n.AllocationOrphaned(context.Background(), OrphanedAllocation{UserID: 1, ItemType: "gmail", Quantity: 1})
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestNotifierPaymentUnmatched(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &events.Recorder{}
	archive := storage.NewMemoryArchive()
	n := NewNotifier(logger, rec, archive)

	n.PaymentUnmatched(context.Background(), UnmatchedPayment{
		DepositID:     12,
		UserID:        4,
		TransactionID: "tx-12",
		Amount:        decimal.RequireFromString("100"),
		Paid:          decimal.RequireFromString("100"),
		DepositStatus: "cancelled",
	})

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, int64(12), entry.Data["deposit_id"])
	assert.Equal(t, int64(4), entry.Data["user_id"])
	assert.Equal(t, "100", entry.Data["amount"])

	require.Equal(t, []string{events.RoutingPaymentUnmatched}, rec.Keys())
	evt := rec.Events()[0].Body.(events.PaymentUnmatched)
	assert.Equal(t, "tx-12", evt.TransactionID)
	assert.Equal(t, "cancelled", evt.DepositStatus)

	objs, err := archive.ListObjects(context.Background(), storage.UnmatchedPrefix)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Contains(t, objs[0].Key, "-12-")
}
