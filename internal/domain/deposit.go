package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusApproved  DepositStatus = "approved"
	DepositStatusCancelled DepositStatus = "cancelled"
)

// DepositMethodAuto marks deposits created through the payment gateway checkout.
const DepositMethodAuto = "auto"

// DepositMethodManual is used when a user does not name a method.
const DepositMethodManual = "manual"

// Deposit is a user's claim of an external transfer awaiting confirmation.
type Deposit struct {
	ID        int64
	UserID    int64
	Username  string
	Amount    decimal.Decimal
	Reference string
	Method    string
	Status    DepositStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether no further transition is allowed from s.
func (s DepositStatus) Terminal() bool {
	return s == DepositStatusApproved || s == DepositStatusCancelled
}

// CanTransition reports whether a deposit may move from s to next.
func (s DepositStatus) CanTransition(next DepositStatus) bool {
	return s == DepositStatusPending && next.Terminal()
}

func (s DepositStatus) Valid() bool {
	switch s {
	case DepositStatusPending, DepositStatusApproved, DepositStatusCancelled:
		return true
	}
	return false
}
