package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"device_sync/internal/logger"
	"device_sync/internal/models"
	"device_sync/internal/notify"
)

// Scheduler drives periodic status+stats polling.
type Scheduler struct {
	api      DeviceAPI
	rec      *Reconciler
	loading  *loadingTracker
	notifier notify.Notifier
	timeouts Timeouts
	log      *logger.Logger
	spawn    func(func())
	onChange func()

	mu       sync.Mutex
	cfg      models.AutoRefreshConfig
	stop     chan struct{}
	done     chan struct{}
	runLoops atomic.Int32

	statusFailing atomic.Bool
	statsFailing  atomic.Bool
}

func newScheduler(api DeviceAPI, rec *Reconciler, loading *loadingTracker, n notify.Notifier, timeouts Timeouts, interval time.Duration, log *logger.Logger, spawn func(func()), onChange func()) *Scheduler {
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}
	return &Scheduler{
		api:      api,
		rec:      rec,
		loading:  loading,
		notifier: n,
		timeouts: timeouts,
		log:      logger.OrNop(log),
		spawn:    spawn,
		onChange: onChange,
		cfg:      models.AutoRefreshConfig{IntervalMs: interval.Milliseconds()},
	}
}

// Enable starts auto-refresh: one immediate refresh, then one per interval.
// Enabling an enabled scheduler does nothing.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	if s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.cfg.Enabled = true
	interval := s.cfg.Interval()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(interval, s.stop, s.done)
	s.mu.Unlock()

	s.log.Infow("auto_refresh_enabled", "interval", interval)
	s.changed()
}

// Disable stops future timer firings and returns once the timer goroutine has
// exited. Polls already in flight still complete and are applied if newer.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.cfg.Enabled = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Infow("auto_refresh_disabled")
	s.changed()
}

// Toggle flips auto-refresh and reports the new state.
func (s *Scheduler) Toggle() bool {
	if s.Config().Enabled {
		s.Disable()
		return false
	}
	s.Enable()
	return true
}

// Config returns the current auto-refresh settings.
func (s *Scheduler) Config() models.AutoRefreshConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Scheduler) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	s.runLoops.Add(1)
	defer func() {
		s.runLoops.Add(-1)
		close(done)
	}()

	s.spawn(func() { s.Refresh(context.Background()) })

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			// stop wins over a tick that became ready at the same time.
			select {
			case <-stop:
				return
			default:
			}
			s.spawn(func() { s.Refresh(context.Background()) })
		}
	}
}

// Refresh fetches status and stats concurrently and returns when both settle,
// whether or not auto-refresh is enabled.
func (s *Scheduler) Refresh(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.PollStatus(ctx)
	}()
	go func() {
		defer wg.Done()
		s.PollStats(ctx)
	}()
	wg.Wait()
}

// PollStatus fetches GET /status and hands the outcome to the reconciler.
func (s *Scheduler) PollStatus(ctx context.Context) {
	seq := s.rec.NextSeq()
	st, err := s.api.Status(ctx, s.timeouts.Status)
	if err != nil {
		applied := s.rec.ApplyPollFailure(err, seq)
		s.log.Warnw("poll_failed", "kind", "status", "seq", seq, "applied", applied, "err", err)
		if applied && !s.statusFailing.Swap(true) {
			s.notifier.Notify(notify.LevelError, "Could not load device status: "+describeFailure(err))
		}
		return
	}
	if s.rec.ApplyPollResult(st, seq) {
		s.statusFailing.Store(false)
	}
}

// PollStats fetches GET /stats. On failure the last stats are kept.
func (s *Scheduler) PollStats(ctx context.Context) {
	end := s.loading.begin(loadingStats)
	defer end()

	seq := s.rec.NextSeq()
	stats, err := s.api.Stats(ctx, s.timeouts.Stats)
	if err != nil {
		s.log.Warnw("poll_failed", "kind", "stats", "seq", seq, "err", err)
		if !s.statsFailing.Swap(true) {
			s.notifier.Notify(notify.LevelError, "Could not load statistics: "+describeFailure(err))
		}
		return
	}
	if s.rec.ApplyStats(stats, seq) {
		s.statsFailing.Store(false)
	}
}

func (s *Scheduler) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
