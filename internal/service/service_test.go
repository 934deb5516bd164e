package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"mail-market/internal/alert"
	"mail-market/internal/domain"
	"mail-market/internal/events"
	"mail-market/internal/inventory"
	"mail-market/internal/repository"
	"mail-market/internal/repository/sqlite"
	"mail-market/internal/storage"
)

type testEnv struct {
	users     repository.UserRepository
	deposits  repository.DepositRepository
	purchases repository.PurchaseRepository
	settings  repository.SettingsRepository
	inventory *inventory.Fake
	events    *events.Recorder
	archive   *storage.MemoryArchive
	logger    *logrus.Logger
	logs      *test.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, hook := test.NewNullLogger()
	env := &testEnv{
		users:     sqlite.NewUserRepository(db),
		deposits:  sqlite.NewDepositRepository(db),
		purchases: sqlite.NewPurchaseRepository(db),
		settings:  sqlite.NewSettingsRepository(db),
		inventory: inventory.NewFake(map[string]int{"A": 100, "b": 100}),
		events:    &events.Recorder{},
		archive:   storage.NewMemoryArchive(),
		logger:    logger,
		logs:      hook,
	}
	ctx := context.Background()
	require.NoError(t, env.users.Init(ctx))
	require.NoError(t, env.deposits.Init(ctx))
	require.NoError(t, env.purchases.Init(ctx))
	require.NoError(t, env.settings.Init(ctx))
	return env
}

func (e *testEnv) createUser(t *testing.T, name, balance string) *domain.User {
	t.Helper()
	ctx := context.Background()
	user := &domain.User{Username: name, PasswordHash: "hash"}
	_, err := e.users.Create(ctx, user)
	require.NoError(t, err)
	if balance != "" && balance != "0" {
		_, err = e.users.AdjustBalance(ctx, user.ID, decimal.RequireFromString(balance))
		require.NoError(t, err)
	}
	return user
}

func (e *testEnv) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	user, err := e.users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return user.Balance
}

func (e *testEnv) purchaseService(purchases repository.PurchaseRepository) PurchaseService {
	if purchases == nil {
		purchases = e.purchases
	}
	return NewPurchaseService(PurchaseDeps{
		Users:     e.users,
		Purchases: purchases,
		Inventory: e.inventory,
		Prices:    PriceList{"a": decimal.RequireFromString("10.00"), "b": decimal.RequireFromString("0.35")},
		Alerts:    alert.NewNotifier(e.logger, e.events, e.archive),
		Events:    e.events,
		Archive:   e.archive,
		Logger:    e.logger,
	})
}

func (e *testEnv) depositService() DepositService {
	return NewDepositService(e.deposits, e.users, DepositPolicy{
		MinAmount:       decimal.NewFromInt(10),
		MethodMinimums:  map[string]decimal.Decimal{"Bkash": decimal.NewFromInt(50)},
		ReferenceExempt: []string{domain.DepositMethodAuto},
	}, e.events, e.logger)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
