package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"mail-market/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// AdjustBalance atomically adds delta to the stored balance and returns the
	// resulting balance. A result below zero is rejected with ErrInsufficientFunds.
	AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (decimal.Decimal, error)
}
