package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-market/internal/domain"
	"mail-market/internal/repository"
)

// These tests need a disposable database: MAILMARKET_TEST_POSTGRES_URL=postgres://...
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("MAILMARKET_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("MAILMARKET_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, NewUserRepository(pool).Init(ctx))
	require.NoError(t, NewDepositRepository(pool).Init(ctx))
	require.NoError(t, NewPurchaseRepository(pool).Init(ctx))
	require.NoError(t, NewSettingsRepository(pool).Init(ctx))
	return pool
}

func createUser(t *testing.T, users repository.UserRepository, balance int64) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:     fmt.Sprintf("pg-user-%d", time.Now().UnixNano()),
		PasswordHash: "hash",
	}
	_, err := users.Create(context.Background(), user)
	require.NoError(t, err)
	if balance > 0 {
		_, err = users.AdjustBalance(context.Background(), user.ID, decimal.NewFromInt(balance))
		require.NoError(t, err)
	}
	return user
}

func TestPostgresPurchaseCommitGuard(t *testing.T) {
	pool := openTestPool(t)
	users := NewUserRepository(pool)
	purchases := NewPurchaseRepository(pool)
	user := createUser(t, users, 50)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := purchases.Commit(context.Background(), &domain.Purchase{
				UserID: user.ID, ItemType: "a", Quantity: 5,
				UnitPrice: decimal.NewFromInt(10), TotalCost: decimal.NewFromInt(50),
				Items: []string{"1", "2", "3", "4", "5"},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	got, err := users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}

func TestPostgresDepositApproveOnce(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	deposits := NewDepositRepository(pool)
	user := createUser(t, users, 0)

	deposit := &domain.Deposit{UserID: user.ID, Username: user.Username, Amount: decimal.NewFromInt(100), Method: "manual"}
	_, err := deposits.Insert(ctx, deposit)
	require.NoError(t, err)

	_, balance, err := deposits.Approve(ctx, deposit.ID, "TRX-9")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	_, _, err = deposits.Approve(ctx, deposit.ID, "")
	assert.ErrorIs(t, err, repository.ErrDepositProcessed)

	got, err := deposits.Get(ctx, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, "TRX-9", got.Reference)
	assert.Equal(t, domain.DepositStatusApproved, got.Status)
}

func TestPostgresDepositCancel(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	deposits := NewDepositRepository(pool)
	user := createUser(t, NewUserRepository(pool), 0)

	deposit := &domain.Deposit{UserID: user.ID, Username: user.Username, Amount: decimal.NewFromInt(40), Method: "auto"}
	_, err := deposits.Insert(ctx, deposit)
	require.NoError(t, err)

	cancelled, err := deposits.Cancel(ctx, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusCancelled, cancelled.Status)
	assert.Equal(t, user.ID, cancelled.UserID)

	_, err = deposits.Cancel(ctx, deposit.ID)
	assert.ErrorIs(t, err, repository.ErrDepositProcessed)
}
