package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"mail-market/internal/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("user already exists")
	ErrDepositNotFound   = errors.New("deposit not found")
	ErrDepositProcessed  = errors.New("deposit already processed")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// DepositRepository persists deposits and guards their status transitions.
type DepositRepository interface {
	Init(ctx context.Context) error
	// Insert stores the deposit with status pending regardless of the value set on it.
	Insert(ctx context.Context, deposit *domain.Deposit) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Deposit, error)
	// Transition moves a deposit from one status to another only if its current
	// status equals from. It reports whether the update applied.
	Transition(ctx context.Context, id int64, from, to domain.DepositStatus) (bool, error)
	// Cancel flips a pending deposit to cancelled and returns the updated row.
	// A deposit that is no longer pending yields ErrDepositProcessed.
	Cancel(ctx context.Context, id int64) (*domain.Deposit, error)
	// Approve flips a pending deposit to approved and credits its amount to the
	// owner in the same transaction. A non-empty reference replaces the stored one.
	Approve(ctx context.Context, id int64, reference string) (*domain.Deposit, decimal.Decimal, error)
	// ListByStatus returns deposits oldest first.
	ListByStatus(ctx context.Context, status domain.DepositStatus) ([]domain.Deposit, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Deposit, error)
	ListStale(ctx context.Context, method string, createdBefore time.Time) ([]domain.Deposit, error)
}

// PurchaseRepository persists purchases.
type PurchaseRepository interface {
	Init(ctx context.Context) error
	// Commit debits purchase.TotalCost from the owner only if the balance covers
	// it and inserts the purchase in the same transaction. It returns the new balance.
	Commit(ctx context.Context, purchase *domain.Purchase) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Purchase, error)
}

// SettingsRepository stores admin-managed settings.
type SettingsRepository interface {
	Init(ctx context.Context) error
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	ReplacePaymentMethods(ctx context.Context, methods []domain.PaymentMethod) error
}
