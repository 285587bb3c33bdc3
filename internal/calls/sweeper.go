package calls

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically applies ExpireStale on a cron schedule.
type Sweeper struct {
	mgr     *Manager
	log     *slog.Logger
	quartz  *cron.Cron
	timeout time.Duration
}

func NewSweeper(mgr *Manager, schedule string, log *slog.Logger) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		mgr:     mgr,
		log:     log,
		quartz:  cron.New(cron.WithLogger(cronLogger{log: log}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: log}))),
		timeout: 10 * time.Second,
	}
	if _, err := s.quartz.AddFunc(schedule, s.runScheduled); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() { s.quartz.Start() }

// Stop halts scheduling and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.quartz.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs one sweep synchronously.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.mgr.ExpireStale(ctx)
	if err != nil {
		s.log.Error("call sweep failed", "err", err)
		return 0
	}
	if n > 0 {
		s.log.Info("expired stale calls", "count", n)
	}
	return n
}

func (s *Sweeper) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
