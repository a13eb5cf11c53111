package service

import (
	"context"
	"sync"
	"time"

	"device_sync/internal/logger"
	"device_sync/internal/models"
	"device_sync/internal/notify"
	"device_sync/internal/transport"
)

// DeviceAPI is the backend surface the engine drives.
type DeviceAPI interface {
	Status(ctx context.Context, timeout time.Duration) (models.DeviceStatus, error)
	Stats(ctx context.Context, timeout time.Duration) (models.StatsSnapshot, error)
	Connect(ctx context.Context, timeout time.Duration) (transport.CommandReply, error)
	Disconnect(ctx context.Context, timeout time.Duration) (transport.CommandReply, error)
	Control(ctx context.Context, action string, timeout time.Duration) (transport.CommandReply, error)
	ExportURL(format string, days int) string
}

// PushListener is the push-channel side of the engine.
type PushListener interface {
	Start() error
	Stop()
}

// Timeouts bound each backend call.
type Timeouts struct {
	Status     time.Duration
	Stats      time.Duration
	Connect    time.Duration
	Disconnect time.Duration
	Command    time.Duration
}

// DefaultTimeouts mirrors the backend's expectations: connecting the serial
// link can take a while, everything else should be quick.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Status:     5 * time.Second,
		Stats:      5 * time.Second,
		Connect:    10 * time.Second,
		Disconnect: 5 * time.Second,
		Command:    5 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Status <= 0 {
		t.Status = d.Status
	}
	if t.Stats <= 0 {
		t.Stats = d.Stats
	}
	if t.Connect <= 0 {
		t.Connect = d.Connect
	}
	if t.Disconnect <= 0 {
		t.Disconnect = d.Disconnect
	}
	if t.Command <= 0 {
		t.Command = d.Command
	}
	return t
}

// Options are the engine's injected collaborators.
type Options struct {
	API         DeviceAPI
	Notifier    notify.Notifier
	Opener      Opener
	Logger      *logger.Logger
	Timeouts    Timeouts
	AutoRefresh models.AutoRefreshConfig
}

// Engine keeps one canonical view of a remote device consistent across polling,
// user commands and push events. Consumers read it through Snapshot and
// Subscribe and act through the command methods; errors returned by those
// methods have already been surfaced through the Notifier and the journal.
type Engine struct {
	rec        *Reconciler
	journal    *Journal
	loading    *loadingTracker
	scheduler  *Scheduler
	dispatcher *Dispatcher
	notifier   notify.Notifier
	log        *logger.Logger

	autoRefresh bool
	inflight    sync.WaitGroup

	mu        sync.Mutex
	push      PushListener
	listeners map[int]func(models.Snapshot)
	nextID    int
	started   bool
	stopped   bool

	// notifyMu serializes snapshot delivery so listeners see changes in order.
	notifyMu sync.Mutex
}

func NewEngine(opts Options) *Engine {
	log := logger.OrNop(opts.Logger)
	n := opts.Notifier
	if n == nil {
		n = notify.Discard{}
	}
	timeouts := opts.Timeouts.withDefaults()

	e := &Engine{
		notifier:    n,
		log:         log,
		autoRefresh: opts.AutoRefresh.Enabled,
		listeners:   make(map[int]func(models.Snapshot)),
	}
	e.rec = NewReconciler(log.Named("reconciler"), e.changed)
	e.journal = NewJournal(e.changed)
	e.loading = newLoadingTracker(e.changed)
	e.scheduler = newScheduler(opts.API, e.rec, e.loading, n, timeouts,
		opts.AutoRefresh.Interval(), log.Named("scheduler"), e.spawn, e.changed)
	e.dispatcher = &Dispatcher{
		api:       opts.API,
		rec:       e.rec,
		refresher: e.scheduler,
		journal:   e.journal,
		loading:   e.loading,
		notifier:  n,
		opener:    opts.Opener,
		timeouts:  timeouts,
		log:       log.Named("dispatcher"),
	}
	e.rec.SetRefresher(func() {
		e.spawn(func() { e.scheduler.Refresh(context.Background()) })
	})
	return e
}

// AttachPush sets the push listener started and stopped with the engine.
func (e *Engine) AttachPush(l PushListener) {
	e.mu.Lock()
	e.push = l
	e.mu.Unlock()
}

// Start begins polling (immediately, then per interval when auto-refresh is
// on) and attaches the push listener. A push channel that is down is not fatal.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	push := e.push
	e.mu.Unlock()

	if push != nil {
		if err := push.Start(); err != nil {
			e.log.Warnw("push_listener_not_started", "err", err)
		}
	}
	if e.autoRefresh {
		e.scheduler.Enable()
	} else {
		e.spawn(func() { e.scheduler.Refresh(context.WithoutCancel(ctx)) })
	}
	e.log.Infow("engine_started", "auto_refresh", e.autoRefresh)
	return nil
}

// Stop halts the scheduler, detaches the push listener and freezes state.
// In-flight requests are not aborted; their results are dropped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	push := e.push
	e.mu.Unlock()

	e.scheduler.Disable()
	if push != nil {
		push.Stop()
	}
	e.rec.Halt()
	e.log.Infow("engine_stopped")
}

// Backend calls are bounded by their own timeouts only. The caller's
// cancellation is dropped so a consumer going away is never recorded as the
// backend being unavailable.

func (e *Engine) Connect(ctx context.Context) error {
	return e.dispatcher.Connect(context.WithoutCancel(ctx))
}

func (e *Engine) Disconnect(ctx context.Context) error {
	return e.dispatcher.Disconnect(context.WithoutCancel(ctx))
}

func (e *Engine) SendCommand(ctx context.Context, action string) error {
	return e.dispatcher.SendCommand(context.WithoutCancel(ctx), action)
}

func (e *Engine) ExportData(format string, days int) (string, error) {
	return e.dispatcher.ExportData(format, days)
}

// ToggleAutoRefresh flips polling and reports whether it is now enabled.
func (e *Engine) ToggleAutoRefresh() bool { return e.scheduler.Toggle() }

// Refresh re-polls status and stats and returns when both settle.
func (e *Engine) Refresh(ctx context.Context) { e.scheduler.Refresh(context.WithoutCancel(ctx)) }

func (e *Engine) ClearEvents() { e.journal.Clear() }

// ApplyPushPatch, RequestRefresh and Record make the engine the push listener's sink.
func (e *Engine) ApplyPushPatch(p models.StatusPatch) { e.rec.ApplyPushPatch(p) }
func (e *Engine) RequestRefresh()                     { e.rec.RequestRefresh() }
func (e *Engine) Record(ev models.Event)              { e.journal.Record(ev) }

// Snapshot returns a consistent copy of everything consumers may render.
func (e *Engine) Snapshot() models.Snapshot {
	return models.Snapshot{
		Status:      e.rec.Status(),
		Connection:  e.rec.Connection(),
		Stats:       e.rec.Stats(),
		Loading:     e.loading.snapshot(),
		Events:      e.journal.List(),
		AutoRefresh: e.scheduler.Config(),
	}
}

// Subscribe registers fn for every state change and returns its cancel func.
// fn runs synchronously on the goroutine that made the change and must not
// call mutating engine methods itself.
func (e *Engine) Subscribe(fn func(models.Snapshot)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) changed() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if len(e.listeners) == 0 {
		e.mu.Unlock()
		return
	}
	fns := make([]func(models.Snapshot), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	snap := e.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// spawn runs background work the engine does not wait on, except in tests.
func (e *Engine) spawn(fn func()) {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		fn()
	}()
}
