package services

import (
	"context"
	"sync/atomic"
	"time"

	"referral-ledger/logging"
	"referral-ledger/monitoring"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ReturnRunner performs one return pass.
type ReturnRunner interface {
	RunScheduledReturnPass(ctx context.Context) (RunStats, error)
}

// ReturnScheduler triggers return passes on a fixed interval. At most one pass runs at a time
// within the process; a trigger that arrives while a pass is running is skipped, not queued.
type ReturnScheduler struct {
	runner   ReturnRunner
	interval time.Duration
	log      *zap.Logger
	metrics  *monitoring.Metrics

	running atomic.Bool
	lastRun atomic.Int64 // unix nanos of the last completed pass
	sched   gocron.Scheduler
}

func NewReturnScheduler(runner ReturnRunner, interval time.Duration, log *zap.Logger, metrics *monitoring.Metrics) *ReturnScheduler {
	return &ReturnScheduler{
		runner:   runner,
		interval: interval,
		log:      logging.OrNop(log).Named("scheduler"),
		metrics:  metrics,
	}
}

func (s *ReturnScheduler) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			_, _ = s.TriggerNow(context.Background())
		}),
		gocron.WithName("investment-returns"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}

	sched.Start()
	s.sched = sched
	s.log.Info("return scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop waits for a running pass to finish.
func (s *ReturnScheduler) Stop() error {
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.log.Info("return scheduler stopped")
	return err
}

// Running reports whether a pass is in progress.
func (s *ReturnScheduler) Running() bool {
	return s.running.Load()
}

// TriggerNow runs one pass unless another is in progress, in which case it returns
// ErrRunInProgress immediately.
func (s *ReturnScheduler) TriggerNow(ctx context.Context) (RunStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("previous return pass still running, skipping this trigger")
		s.metrics.ReturnOverlapSkipped()
		return RunStats{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	fields := []zap.Field{}
	if last := s.lastRun.Load(); last != 0 {
		fields = append(fields, zap.Duration("since_last_run", time.Since(time.Unix(0, last))))
	}
	s.log.Info("running scheduled return pass", fields...)

	stats, err := s.runner.RunScheduledReturnPass(ctx)
	if err != nil {
		s.log.Error("return pass failed", zap.Error(err))
		return stats, err
	}
	s.lastRun.Store(time.Now().UnixNano())
	return stats, nil
}
