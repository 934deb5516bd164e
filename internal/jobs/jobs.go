package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mail-market/internal/domain"
	"mail-market/internal/metrics"
)

// DepositExpirer cancels pending deposits that were never paid.
type DepositExpirer interface {
	ExpireStale(ctx context.Context, method string, olderThan time.Duration) (int, error)
}

// Jobs holds the scheduled tasks.
type Jobs struct {
	deposits    DepositExpirer
	checkoutTTL time.Duration
	timeout     time.Duration
	log         logrus.FieldLogger
}

func NewJobs(deposits DepositExpirer, checkoutTTL time.Duration, logger logrus.FieldLogger) *Jobs {
	if checkoutTTL <= 0 {
		checkoutTTL = 24 * time.Hour
	}
	return &Jobs{
		deposits:    deposits,
		checkoutTTL: checkoutTTL,
		timeout:     time.Minute,
		log:         logger.WithField("component", "jobs"),
	}
}

// ExpireAbandonedCheckouts cancels gateway deposits nobody paid within the TTL.
func (j *Jobs) ExpireAbandonedCheckouts() {
	log := j.log.WithField("job", "expire_checkouts")
	log.Debug("starting checkout expiry job")

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.deposits.ExpireStale(ctx, domain.DepositMethodAuto, j.checkoutTTL)
	metrics.RecordJobRun("expire_checkouts", err == nil)
	if err != nil {
		log.WithError(err).Error("checkout expiry failed")
		return
	}
	log.WithField("expired", n).Debug("checkout expiry job finished")
}
