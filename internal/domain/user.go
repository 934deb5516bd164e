package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered customer and their spendable balance.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Balance      decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
