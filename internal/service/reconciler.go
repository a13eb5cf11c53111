package service

import (
	"sync"
	"sync/atomic"

	"device_sync/internal/logger"
	"device_sync/internal/models"
	"device_sync/internal/normalize"
)

// Reconciler is the only writer of the canonical DeviceStatus and StatsSnapshot.
//
// Every poll, stats fetch or command is tagged with NextSeq() when it is
// dispatched. A completion is applied only when its tag is newer than the last
// one applied for that resource, so completions that arrive out of order can
// never roll state back.
type Reconciler struct {
	seq atomic.Uint64

	mu            sync.Mutex
	status        models.DeviceStatus
	connection    models.ConnectionState
	stats         models.StatsSnapshot
	lastStatusSeq uint64
	lastStatsSeq  uint64
	halted        bool
	refresh       func()

	onChange func()
	log      *logger.Logger
}

func NewReconciler(log *logger.Logger, onChange func()) *Reconciler {
	return &Reconciler{
		status:     models.DefaultStatus(),
		connection: models.ConnUnknown,
		onChange:   onChange,
		log:        logger.OrNop(log),
	}
}

// NextSeq returns a fresh dispatch tag. Call it before issuing the request.
func (r *Reconciler) NextSeq() uint64 {
	return r.seq.Add(1)
}

// ApplyPollResult replaces the status wholesale if seq is newer than the last applied.
func (r *Reconciler) ApplyPollResult(st models.DeviceStatus, seq uint64) bool {
	return r.applyStatus(seq, "poll", func(models.DeviceStatus) models.DeviceStatus {
		return normalize.Enforce(st)
	})
}

// ApplyPollFailure records a failed poll: the device is treated as
// disconnected, the LED as unknown, and the failure is prepended to the messages.
func (r *Reconciler) ApplyPollFailure(err error, seq uint64) bool {
	msg := "status poll failed: " + describeFailure(err)
	return r.applyStatus(seq, "poll_failure", func(prev models.DeviceStatus) models.DeviceStatus {
		next := prev.WithMessage(msg)
		next.Connected = false
		next.LedState = models.LedUnknown
		return next
	})
}

// ApplyPushPatch applies a push-driven partial update. The patch takes a fresh
// tag, so every poll dispatched before it arrived is stale.
func (r *Reconciler) ApplyPushPatch(p models.StatusPatch) bool {
	if p.Empty() {
		return false
	}
	return r.applyStatus(r.NextSeq(), "push_patch", func(prev models.DeviceStatus) models.DeviceStatus {
		next := prev.Clone()
		if p.Connected != nil {
			next.Connected = *p.Connected
		}
		if p.LedState != nil {
			next.LedState = *p.LedState
		}
		if p.Message != "" {
			next = next.WithMessage(p.Message)
		}
		return normalize.Enforce(next)
	})
}

// ApplyStats replaces the stats snapshot if seq is newer than the last applied.
func (r *Reconciler) ApplyStats(s models.StatsSnapshot, seq uint64) bool {
	s.EfficiencyPct = models.EfficiencyPct(s.AvgDurationSec)

	r.mu.Lock()
	if r.halted || seq <= r.lastStatsSeq {
		last := r.lastStatsSeq
		r.mu.Unlock()
		r.log.Debugw("stale_result_discarded", "kind", "stats", "seq", seq, "last_applied", last)
		return false
	}
	r.lastStatsSeq = seq
	r.stats = s
	r.mu.Unlock()

	r.changed()
	return true
}

func (r *Reconciler) applyStatus(seq uint64, kind string, next func(models.DeviceStatus) models.DeviceStatus) bool {
	r.mu.Lock()
	if r.halted || seq <= r.lastStatusSeq {
		last, halted := r.lastStatusSeq, r.halted
		r.mu.Unlock()
		r.log.Debugw("stale_result_discarded", "kind", kind, "seq", seq, "last_applied", last, "halted", halted)
		return false
	}
	r.lastStatusSeq = seq
	r.status = next(r.status)
	prev := r.connection
	if r.status.Connected {
		r.connection = models.ConnConnected
	} else {
		r.connection = models.ConnDisconnected
	}
	curr := r.connection
	r.mu.Unlock()

	if prev != curr {
		r.log.Infow("connection_state_changed", "from", prev, "to", curr, "seq", seq, "via", kind)
	}
	r.changed()
	return true
}

// SetRefresher installs the hook RequestRefresh fires.
func (r *Reconciler) SetRefresher(fn func()) {
	r.mu.Lock()
	r.refresh = fn
	r.mu.Unlock()
}

// RequestRefresh asks for a full status+stats re-poll. It does not block.
func (r *Reconciler) RequestRefresh() {
	r.mu.Lock()
	fn, halted := r.refresh, r.halted
	r.mu.Unlock()
	if fn == nil || halted {
		return
	}
	fn()
}

// Halt stops all further mutation. It cannot be undone.
func (r *Reconciler) Halt() {
	r.mu.Lock()
	r.halted = true
	r.mu.Unlock()
}

func (r *Reconciler) Status() models.DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Clone()
}

func (r *Reconciler) Connection() models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connection
}

func (r *Reconciler) Stats() models.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// LastApplied returns the last applied status and stats tags.
func (r *Reconciler) LastApplied() (status, stats uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStatusSeq, r.lastStatsSeq
}

func (r *Reconciler) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}
