package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"device_sync/internal/models"
	"device_sync/internal/notify"
	"device_sync/internal/transport"
)

// ---- DeviceAPI fake ----

type fakeAPI struct {
	mu sync.Mutex

	status    models.DeviceStatus
	statusErr error
	// statusGate, when set, blocks Status until a value is received.
	statusGate chan struct{}
	inStatus   chan struct{}

	stats    models.StatsSnapshot
	statsErr error

	reply  transport.CommandReply
	cmdErr error

	statusCalls     int
	statsCalls      int
	connectCalls    int
	disconnectCalls int
	controlCalls    int
	actions         []string
	timeouts        []time.Duration
}

func (f *fakeAPI) Status(ctx context.Context, timeout time.Duration) (models.DeviceStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	gate, in := f.statusGate, f.inStatus
	f.mu.Unlock()

	if in != nil {
		in <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status.Clone(), f.statusErr
}

func (f *fakeAPI) Stats(ctx context.Context, timeout time.Duration) (models.StatsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	return f.stats, f.statsErr
}

func (f *fakeAPI) Connect(ctx context.Context, timeout time.Duration) (transport.CommandReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	f.timeouts = append(f.timeouts, timeout)
	return f.reply, f.cmdErr
}

func (f *fakeAPI) Disconnect(ctx context.Context, timeout time.Duration) (transport.CommandReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	f.timeouts = append(f.timeouts, timeout)
	return f.reply, f.cmdErr
}

func (f *fakeAPI) Control(ctx context.Context, action string, timeout time.Duration) (transport.CommandReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controlCalls++
	f.actions = append(f.actions, action)
	f.timeouts = append(f.timeouts, timeout)
	return f.reply, f.cmdErr
}

func (f *fakeAPI) ExportURL(format string, days int) string {
	return "http://backend/export?format=" + format
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) calls() (status, stats, control int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.statsCalls, f.controlCalls
}

func (f *fakeAPI) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls + f.statsCalls + f.connectCalls + f.disconnectCalls + f.controlCalls
}

// ---- Notifier fake ----

type recordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recordingNotifier) Notify(level notify.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, notify.Notification{Level: level, Message: message})
}

func (r *recordingNotifier) count(level notify.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Level == level {
			n++
		}
	}
	return n
}

// ---- Opener fake ----

type recordingOpener struct {
	urls []string
	err  error
}

func (o *recordingOpener) Open(url string) error {
	o.urls = append(o.urls, url)
	return o.err
}

// ---- helpers ----

func connectedStatus(port string, led models.LedState) models.DeviceStatus {
	return models.DeviceStatus{Connected: true, Port: port, LedState: led, RecentMessages: []string{}}
}

func newTestEngine(api *fakeAPI, n *recordingNotifier, auto bool, interval time.Duration) *Engine {
	return NewEngine(Options{
		API:         api,
		Notifier:    n,
		AutoRefresh: models.AutoRefreshConfig{Enabled: auto, IntervalMs: interval.Milliseconds()},
	})
}

// waitIdle blocks until background refreshes spawned so far have finished.
func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("background work did not settle")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
