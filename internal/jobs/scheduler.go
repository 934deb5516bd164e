package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron           *cron.Cron
	jobs           *Jobs
	log            logrus.FieldLogger
	expirySchedule string
}

func NewScheduler(jobs *Jobs, logger logrus.FieldLogger, expirySchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:           c,
		jobs:           jobs,
		log:            logger.WithField("component", "scheduler"),
		expirySchedule: expirySchedule,
	}
}

// Start registers the jobs and starts the cron scheduler. An invalid
// schedule is reported and the job is left out.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.expirySchedule, s.jobs.ExpireAbandonedCheckouts); err != nil {
		s.log.WithError(err).WithField("schedule", s.expirySchedule).Error("failed to schedule checkout expiry job")
		return err
	}
	s.log.WithField("schedule", s.expirySchedule).Info("scheduled checkout expiry job")

	s.cron.Start()
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
