package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"device_sync/internal/models"
	"device_sync/internal/notify"
	"device_sync/internal/transport"
)

type fakePush struct {
	mu      sync.Mutex
	started int
	stopped int
	err     error
}

func (p *fakePush) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started++
	return p.err
}

func (p *fakePush) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func TestEngine_StartPollsOnceWithoutAutoRefresh(t *testing.T) {
	api := &fakeAPI{status: connectedStatus("COM3", models.LedOn)}
	e := newTestEngine(api, &recordingNotifier{}, false, time.Hour)
	push := &fakePush{}
	e.AttachPush(push)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = e.Start(context.Background())
	waitIdle(t, e)

	status, stats, _ := api.calls()
	if status != 1 || stats != 1 {
		t.Fatalf("status=%d stats=%d, want one initial refresh", status, stats)
	}
	if push.started != 1 {
		t.Fatalf("push started %d times", push.started)
	}

	e.Stop()
	e.Stop()
	if push.stopped != 1 {
		t.Fatalf("push stopped %d times", push.stopped)
	}
}

func TestEngine_PushStartFailureIsNotFatal(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEngine(api, &recordingNotifier{}, true, time.Hour)
	e.AttachPush(&fakePush{err: context.DeadlineExceeded})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.Snapshot().AutoRefresh.Enabled {
		t.Fatalf("auto refresh should be enabled")
	}
	e.Stop()
	waitIdle(t, e)
	if e.scheduler.runLoops.Load() != 0 {
		t.Fatalf("timer loop still running after Stop")
	}
}

func TestEngine_StopFreezesState(t *testing.T) {
	api := &fakeAPI{status: connectedStatus("COM3", models.LedOn)}
	e := newTestEngine(api, &recordingNotifier{}, false, time.Hour)
	e.Refresh(context.Background())
	e.Stop()

	api.set(func(f *fakeAPI) { f.status = connectedStatus("COM4", models.LedOff) })
	e.Refresh(context.Background())
	off := models.LedOff
	e.ApplyPushPatch(models.StatusPatch{LedState: &off})
	e.RequestRefresh()
	waitIdle(t, e)

	if got := e.Snapshot().Status; got.Port != "COM3" || got.LedState != models.LedOn {
		t.Fatalf("state changed after Stop: %+v", got)
	}
}

func TestEngine_SubscribeAndUnsubscribe(t *testing.T) {
	api := &fakeAPI{status: connectedStatus("COM3", models.LedOn)}
	e := newTestEngine(api, &recordingNotifier{}, false, time.Hour)
	defer e.Stop()

	var (
		mu    sync.Mutex
		snaps []models.Snapshot
	)
	unsubscribe := e.Subscribe(func(s models.Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	e.Record(models.Event{Type: models.EventStatus, Source: models.SourcePhysical})
	mu.Lock()
	if len(snaps) != 1 || len(snaps[0].Events) != 1 {
		mu.Unlock()
		t.Fatalf("expected one snapshot with the new event, got %d", len(snaps))
	}
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	e.ClearEvents()
	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != 1 {
		t.Fatalf("listener called after unsubscribe")
	}
}

func TestEngine_RequestRefreshPollsInBackground(t *testing.T) {
	api := &fakeAPI{status: connectedStatus("COM3", models.LedOn)}
	e := newTestEngine(api, &recordingNotifier{}, false, time.Hour)
	defer e.Stop()

	e.RequestRefresh()
	waitIdle(t, e)
	if status, stats, _ := api.calls(); status != 1 || stats != 1 {
		t.Fatalf("status=%d stats=%d", status, stats)
	}
	if e.Snapshot().Connection != models.ConnConnected {
		t.Fatalf("connection=%v", e.Snapshot().Connection)
	}
}

// slowBackend answers every endpoint after delay with a connected device.
func slowBackend(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/status":
			_, _ = io.WriteString(w, `{"success":true,"data":{"connected":true,"port":"COM3","ledState":"ON"}}`)
		case "/stats":
			_, _ = io.WriteString(w, `{"success":true,"data":{"totalCommands":2}}`)
		default:
			_, _ = io.WriteString(w, `{"success":true,"message":"ok"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEngine_CallerCancelIsNotABackendFailure(t *testing.T) {
	srv := slowBackend(t, 200*time.Millisecond)
	n := &recordingNotifier{}
	e := NewEngine(Options{
		API:      transport.NewDeviceAPI(transport.NewClient(srv.URL, nil, nil)),
		Notifier: n,
	})
	defer e.Stop()
	e.rec.ApplyPollResult(connectedStatus("COM3", models.LedOn), e.rec.NextSeq())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	e.Refresh(ctx)

	snap := e.Snapshot()
	if !snap.Status.Connected || snap.Status.LedState != models.LedOn || snap.Connection != models.ConnConnected {
		t.Fatalf("caller cancel corrupted status: %+v conn=%v", snap.Status, snap.Connection)
	}
	if len(snap.Status.RecentMessages) != 0 {
		t.Fatalf("no failure message expected, got %v", snap.Status.RecentMessages)
	}
	if snap.Stats.TotalCommands != 2 {
		t.Fatalf("stats poll should still complete, got %+v", snap.Stats)
	}

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := e.SendCommand(ctx, "toggle"); err != nil {
		t.Fatalf("SendCommand with a cancelled caller: %v", err)
	}
	if got := n.count(notify.LevelError); got != 0 {
		t.Fatalf("error notifications=%d, want 0", got)
	}
}
