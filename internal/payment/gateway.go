// Package payment talks to the hosted checkout gateway used for automatic
// deposits.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrGateway wraps every failure to reach or understand the gateway.
var ErrGateway = errors.New("payment gateway error")

const StatusCompleted = "COMPLETED"

type CheckoutRequest struct {
	DepositID  int64
	UserID     int64
	Username   string
	Amount     decimal.Decimal
	SuccessURL string
	CancelURL  string
	WebhookURL string
}

type Checkout struct {
	PaymentURL string
}

type Verification struct {
	TransactionID string
	Status        string
	Amount        decimal.Decimal
	DepositID     int64
}

func (v *Verification) Completed() bool {
	return v.Status == StatusCompleted
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	Verify(ctx context.Context, transactionID string) (*Verification, error)
}
