package api

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/zring/cfbmodel/internal/logging"
)

// DefaultJobTimeout bounds one scheduled prediction run.
const DefaultJobTimeout = 10 * time.Minute

// Scheduler runs a job on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	timeout time.Duration
	logger  *logrus.Logger
}

// NewScheduler validates spec, a standard five-field cron expression, and
// registers job. loc defaults to time.Local.
func NewScheduler(spec string, loc *time.Location, job func(ctx context.Context) error, logger *logrus.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		timeout: DefaultJobTimeout,
		logger:  logging.OrNop(logger),
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.WithError(err).Error("Scheduled prediction failed")
			return
		}
		s.logger.WithField("duration", time.Since(start)).Info("Scheduled prediction completed")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("next_run", s.Next()).Info("Prediction schedule started")
}

// Next returns the next activation time. It is zero until Start is called.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop stops the scheduler and waits for a running job, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
