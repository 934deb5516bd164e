package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is the immutable record of inventory delivered to a user.
type Purchase struct {
	ID        int64
	UserID    int64
	ItemType  string
	Quantity  int
	UnitPrice decimal.Decimal
	TotalCost decimal.Decimal
	Items     []string
	CreatedAt time.Time
}
