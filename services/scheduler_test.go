package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"referral-ledger/monitoring"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (r *blockingRunner) RunScheduledReturnPass(ctx context.Context) (RunStats, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	<-r.release
	return RunStats{Processed: 1}, nil
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	sched := NewReturnScheduler(runner, time.Hour, nil, metrics)

	done := make(chan error, 1)
	go func() {
		_, err := sched.TriggerNow(context.Background())
		done <- err
	}()
	<-runner.started

	if !sched.Running() {
		t.Fatalf("scheduler should report a running pass")
	}
	if _, err := sched.TriggerNow(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(runner.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if got := runner.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one pass, got %d", got)
	}

	expected := `
# HELP ledger_return_overlap_skipped_total Return passes skipped because the previous pass was still running.
# TYPE ledger_return_overlap_skipped_total counter
ledger_return_overlap_skipped_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "ledger_return_overlap_skipped_total"); err != nil {
		t.Fatalf("overlap metric: %v", err)
	}

	runner.started = make(chan struct{}, 1)
	if _, err := sched.TriggerNow(context.Background()); err != nil {
		t.Fatalf("guard must be released after a run: %v", err)
	}
}

type countingRunner struct {
	calls atomic.Int32
	fired chan struct{}
}

func (r *countingRunner) RunScheduledReturnPass(ctx context.Context) (RunStats, error) {
	if r.calls.Add(1) == 1 {
		close(r.fired)
	}
	return RunStats{}, nil
}

func TestSchedulerStartRunsOnInterval(t *testing.T) {
	runner := &countingRunner{fired: make(chan struct{})}
	sched := NewReturnScheduler(runner, 20*time.Millisecond, nil, nil)
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	select {
	case <-runner.fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduled pass never ran")
	}
}

func TestSchedulerPropagatesFatalPassError(t *testing.T) {
	f := newFixture(t)
	f.store.Fail("FindActiveInvestments", "", errors.New("db down"))
	sched := NewReturnScheduler(NewReturnProcessor(f.deps, 1), time.Hour, nil, nil)

	if _, err := sched.TriggerNow(f.ctx); !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}
	if sched.Running() {
		t.Fatalf("guard must be released after a failed pass")
	}
}
