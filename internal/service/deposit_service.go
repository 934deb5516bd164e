package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-market/internal/domain"
	"mail-market/internal/events"
	"mail-market/internal/metrics"
	"mail-market/internal/repository"
)

// DepositPolicy controls which deposit requests are accepted.
type DepositPolicy struct {
	MinAmount       decimal.Decimal
	MethodMinimums  map[string]decimal.Decimal
	ReferenceExempt []string
}

func (p DepositPolicy) minimumFor(method string) decimal.Decimal {
	if min, ok := p.MethodMinimums[method]; ok {
		return min
	}
	return p.MinAmount
}

func (p DepositPolicy) referenceRequired(method string) bool {
	for _, exempt := range p.ReferenceExempt {
		if strings.EqualFold(exempt, method) {
			return false
		}
	}
	return true
}

type DepositRequest struct {
	UserID    int64
	Amount    decimal.Decimal
	Reference string
	Method    string
}

// DepositService runs the pending → approved/cancelled workflow.
type DepositService interface {
	Request(ctx context.Context, req DepositRequest) (*domain.Deposit, error)
	Get(ctx context.Context, id int64) (*domain.Deposit, error)
	// Approve credits the deposit amount. A non-empty reference overrides the
	// one the user supplied.
	Approve(ctx context.Context, id int64, reference string) (*domain.Deposit, decimal.Decimal, error)
	Cancel(ctx context.Context, id int64) (*domain.Deposit, error)
	ListPending(ctx context.Context) ([]domain.Deposit, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.Deposit, error)
	// ExpireStale cancels pending deposits of method created more than olderThan ago.
	ExpireStale(ctx context.Context, method string, olderThan time.Duration) (int, error)
}

type depositService struct {
	deposits repository.DepositRepository
	users    repository.UserRepository
	policy   DepositPolicy
	events   events.Publisher
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewDepositService(deposits repository.DepositRepository, users repository.UserRepository, policy DepositPolicy, publisher events.Publisher, logger logrus.FieldLogger) DepositService {
	if logger == nil {
		logger = logrus.New()
	}
	minimums := make(map[string]decimal.Decimal, len(policy.MethodMinimums))
	for k, v := range policy.MethodMinimums {
		minimums[strings.ToLower(k)] = v
	}
	policy.MethodMinimums = minimums
	return &depositService{
		deposits: deposits,
		users:    users,
		policy:   policy,
		events:   publisher,
		log:      logger.WithField("component", "deposit"),
		now:      time.Now,
	}
}

func (s *depositService) Request(ctx context.Context, req DepositRequest) (*domain.Deposit, error) {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = domain.DepositMethodManual
	}
	reference := strings.TrimSpace(req.Reference)

	if !req.Amount.IsPositive() {
		return nil, invalidf("amount must be positive")
	}
	if min := s.policy.minimumFor(method); req.Amount.LessThan(min) {
		return nil, invalidf("minimum deposit for %s is %s", method, min.StringFixed(2))
	}
	if reference == "" && s.policy.referenceRequired(method) {
		return nil, invalidf("transaction reference is required for %s", method)
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":   req.UserID,
		"amount":    req.Amount.String(),
		"method":    method,
		"operation": "request_deposit",
	})

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, s.fail(log, err)
	}

	now := s.now().UTC()
	deposit := &domain.Deposit{
		UserID:    req.UserID,
		Username:  user.Username,
		Amount:    req.Amount,
		Reference: reference,
		Method:    method,
		Status:    domain.DepositStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.deposits.Insert(ctx, deposit); err != nil {
		return nil, s.fail(log, err)
	}

	log.WithField("deposit_id", deposit.ID).Info("deposit requested")
	metrics.RecordDepositTransition(string(domain.DepositStatusPending), method)
	s.publish(ctx, events.RoutingDepositRequested, deposit, log)
	return deposit, nil
}

func (s *depositService) Get(ctx context.Context, id int64) (*domain.Deposit, error) {
	deposit, err := s.deposits.Get(ctx, id)
	if err != nil {
		return nil, s.fail(s.log.WithFields(logrus.Fields{"deposit_id": id, "operation": "get_deposit"}), err)
	}
	return deposit, nil
}

func (s *depositService) Approve(ctx context.Context, id int64, reference string) (*domain.Deposit, decimal.Decimal, error) {
	log := s.log.WithFields(logrus.Fields{"deposit_id": id, "operation": "approve_deposit"})

	deposit, balance, err := s.deposits.Approve(ctx, id, strings.TrimSpace(reference))
	if err != nil {
		return nil, decimal.Zero, s.fail(log, err)
	}

	log.WithFields(logrus.Fields{
		"user_id": deposit.UserID,
		"amount":  deposit.Amount.String(),
		"balance": balance.String(),
	}).Info("deposit approved")
	metrics.RecordDepositTransition(string(domain.DepositStatusApproved), deposit.Method)
	s.publish(ctx, events.RoutingDepositApproved, deposit, log)
	return deposit, balance, nil
}

func (s *depositService) Cancel(ctx context.Context, id int64) (*domain.Deposit, error) {
	log := s.log.WithFields(logrus.Fields{"deposit_id": id, "operation": "cancel_deposit"})

	deposit, err := s.deposits.Cancel(ctx, id)
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.WithField("user_id", deposit.UserID).Info("deposit cancelled")
	metrics.RecordDepositTransition(string(domain.DepositStatusCancelled), deposit.Method)
	s.publish(ctx, events.RoutingDepositCancelled, deposit, log)
	return deposit, nil
}

func (s *depositService) ListPending(ctx context.Context) ([]domain.Deposit, error) {
	deposits, err := s.deposits.ListByStatus(ctx, domain.DepositStatusPending)
	if err != nil {
		return nil, s.fail(s.log.WithField("operation", "list_pending"), err)
	}
	return deposits, nil
}

func (s *depositService) ListForUser(ctx context.Context, userID int64) ([]domain.Deposit, error) {
	deposits, err := s.deposits.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.fail(s.log.WithFields(logrus.Fields{"user_id": userID, "operation": "list_user_deposits"}), err)
	}
	return deposits, nil
}

func (s *depositService) ExpireStale(ctx context.Context, method string, olderThan time.Duration) (int, error) {
	log := s.log.WithFields(logrus.Fields{"method": method, "operation": "expire_deposits"})

	cutoff := s.now().UTC().Add(-olderThan)
	stale, err := s.deposits.ListStale(ctx, method, cutoff)
	if err != nil {
		return 0, s.fail(log, err)
	}

	expired := 0
	for i := range stale {
		d := &stale[i]
		ok, err := s.deposits.Transition(ctx, d.ID, domain.DepositStatusPending, domain.DepositStatusCancelled)
		if err != nil {
			return expired, s.fail(log.WithField("deposit_id", d.ID), err)
		}
		if !ok {
			continue
		}
		expired++
		d.Status = domain.DepositStatusCancelled
		metrics.RecordDepositTransition(string(domain.DepositStatusCancelled), d.Method)
		s.publish(ctx, events.RoutingDepositCancelled, d, log)
	}
	if expired > 0 {
		log.WithField("count", expired).Info("expired abandoned deposits")
	}
	return expired, nil
}

func (s *depositService) publish(ctx context.Context, routingKey string, d *domain.Deposit, log logrus.FieldLogger) {
	if s.events == nil {
		return
	}
	evt := events.DepositChanged{
		DepositID: d.ID,
		UserID:    d.UserID,
		Amount:    d.Amount.String(),
		Method:    d.Method,
		Status:    string(d.Status),
		Timestamp: s.now().UTC(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), routingKey, evt); err != nil {
		log.WithError(err).Warn("publish deposit event")
	}
}

// fail maps err and logs it when it is an infrastructure fault.
func (s *depositService) fail(log logrus.FieldLogger, err error) error {
	mapped := storageError(err)
	if errors.Is(mapped, ErrStorageFailure) {
		log.WithError(err).Error("deposit operation failed")
	}
	return mapped
}
