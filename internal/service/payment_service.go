package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-market/internal/alert"
	"mail-market/internal/domain"
	"mail-market/internal/payment"
	"mail-market/internal/repository"
)

// ErrPaymentUnavailable means the checkout gateway could not be used.
var ErrPaymentUnavailable = errors.New("payment gateway unavailable")

type CheckoutSession struct {
	DepositID  int64  `json:"deposit_id"`
	PaymentURL string `json:"payment_url"`
}

// PaymentService manages deposit targets and gateway checkouts.
type PaymentService interface {
	PaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	ReplacePaymentMethods(ctx context.Context, methods []domain.PaymentMethod) ([]domain.PaymentMethod, error)
	StartCheckout(ctx context.Context, userID int64, amount decimal.Decimal) (*CheckoutSession, error)
	// CompleteCheckout is driven by the gateway webhook. Redelivery is harmless.
	CompleteCheckout(ctx context.Context, transactionID string) (*domain.Deposit, error)
}

type paymentService struct {
	settings   repository.SettingsRepository
	users      repository.UserRepository
	deposits   DepositService
	gateway    payment.Gateway
	alerts     alert.PaymentSink
	appBaseURL string
	log        logrus.FieldLogger
}

func NewPaymentService(settings repository.SettingsRepository, users repository.UserRepository, deposits DepositService, gateway payment.Gateway, alerts alert.PaymentSink, appBaseURL string, logger logrus.FieldLogger) PaymentService {
	if logger == nil {
		logger = logrus.New()
	}
	if alerts == nil {
		alerts = alert.NewNotifier(logger, nil, nil)
	}
	return &paymentService{
		settings:   settings,
		users:      users,
		deposits:   deposits,
		gateway:    gateway,
		alerts:     alerts,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		log:        logger.WithField("component", "payment"),
	}
}

func (s *paymentService) PaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	methods, err := s.settings.ListPaymentMethods(ctx)
	if err != nil {
		s.log.WithError(err).Error("list payment methods")
		return nil, ErrStorageFailure
	}
	return methods, nil
}

func (s *paymentService) ReplacePaymentMethods(ctx context.Context, methods []domain.PaymentMethod) ([]domain.PaymentMethod, error) {
	cleaned := make([]domain.PaymentMethod, 0, len(methods))
	for i, m := range methods {
		m.Method = strings.TrimSpace(m.Method)
		m.Number = strings.TrimSpace(m.Number)
		m.ID = strings.TrimSpace(m.ID)
		if m.Method == "" || m.Number == "" {
			return nil, invalidf("payment method %d needs a label and a number", i+1)
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		cleaned = append(cleaned, m)
	}

	if err := s.settings.ReplacePaymentMethods(ctx, cleaned); err != nil {
		s.log.WithError(err).Error("replace payment methods")
		return nil, ErrStorageFailure
	}
	s.log.WithField("count", len(cleaned)).Info("payment methods replaced")
	return cleaned, nil
}

func (s *paymentService) StartCheckout(ctx context.Context, userID int64, amount decimal.Decimal) (*CheckoutSession, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: not configured", ErrPaymentUnavailable)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}

	deposit, err := s.deposits.Request(ctx, DepositRequest{
		UserID: userID,
		Amount: amount,
		Method: domain.DepositMethodAuto,
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"deposit_id": deposit.ID,
		"amount":     amount.String(),
	})

	checkout, err := s.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		DepositID:  deposit.ID,
		UserID:     userID,
		Username:   user.Username,
		Amount:     amount,
		SuccessURL: s.appBaseURL + "/dashboard?payment=success",
		CancelURL:  s.appBaseURL + "/dashboard?payment=cancelled",
		WebhookURL: s.appBaseURL + "/api/payment/auto/webhook",
	})
	if err != nil {
		log.WithError(err).Warn("checkout failed, cancelling deposit")
		if _, cancelErr := s.deposits.Cancel(context.WithoutCancel(ctx), deposit.ID); cancelErr != nil {
			log.WithError(cancelErr).Error("cancel deposit after failed checkout")
		}
		return nil, ErrPaymentUnavailable
	}

	log.Info("checkout started")
	return &CheckoutSession{DepositID: deposit.ID, PaymentURL: checkout.PaymentURL}, nil
}

func (s *paymentService) CompleteCheckout(ctx context.Context, transactionID string) (*domain.Deposit, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, invalidf("transaction id is required")
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: not configured", ErrPaymentUnavailable)
	}

	log := s.log.WithField("transaction_id", transactionID)
	v, err := s.gateway.Verify(ctx, transactionID)
	if err != nil {
		log.WithError(err).Warn("verify transaction")
		return nil, ErrPaymentUnavailable
	}
	log = log.WithField("deposit_id", v.DepositID)

	if !v.Completed() {
		return nil, invalidf("transaction status is %s", v.Status)
	}

	pending, err := s.deposits.Get(ctx, v.DepositID)
	if err != nil {
		return nil, err
	}
	if pending.Status == domain.DepositStatusApproved && pending.Reference == v.TransactionID {
		log.Debug("checkout already completed")
		return pending, nil
	}
	if pending.Status != domain.DepositStatusPending {
		// the gateway holds the money, an operator has to refund or credit it
		s.alerts.PaymentUnmatched(ctx, alert.UnmatchedPayment{
			DepositID:     pending.ID,
			UserID:        pending.UserID,
			TransactionID: v.TransactionID,
			Amount:        pending.Amount,
			Paid:          v.Amount,
			DepositStatus: string(pending.Status),
		})
		return nil, fmt.Errorf("%w: already processed", ErrDepositNotFound)
	}
	if pending.Method != domain.DepositMethodAuto {
		return nil, invalidf("deposit %d was not created by checkout", v.DepositID)
	}
	if v.Amount.LessThan(pending.Amount) {
		log.WithFields(logrus.Fields{"paid": v.Amount.String(), "expected": pending.Amount.String()}).Warn("underpaid checkout")
		return nil, invalidf("paid %s is below the deposit amount %s", v.Amount.StringFixed(2), pending.Amount.StringFixed(2))
	}

	deposit, _, err := s.deposits.Approve(ctx, v.DepositID, v.TransactionID)
	if err != nil {
		return nil, err
	}
	log.Info("checkout completed")
	return deposit, nil
}
