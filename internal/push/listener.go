package push

import (
	"encoding/json"
	"sync"

	"device_sync/internal/logger"
	"device_sync/internal/notify"
)

// Listener keeps exactly the four category subscriptions on a Channel while it
// is connected and none while it is not.
type Listener struct {
	ch       Channel
	sink     Sink
	notifier notify.Notifier
	log      *logger.Logger

	mu       sync.Mutex
	attached []string
	stopped  bool
}

func NewListener(ch Channel, sink Sink, n notify.Notifier, log *logger.Logger) *Listener {
	if n == nil {
		n = notify.Discard{}
	}
	return &Listener{ch: ch, sink: sink, notifier: n, log: logger.OrNop(log)}
}

// Start opens the channel and subscribes once it reports connected.
func (l *Listener) Start() error {
	l.ch.OnConnectionChange(l.Sync)
	if err := l.ch.Open(); err != nil {
		return err
	}
	l.Sync(l.ch.Connected())
	return nil
}

// Stop drops every subscription and closes the channel. It cannot be undone.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.detach()
	l.mu.Unlock()

	l.ch.Close()
	l.log.Infow("push_listener_stopped")
}

// Sync follows the channel's connection state.
func (l *Listener) Sync(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	switch {
	case connected && len(l.attached) == 0:
		l.attach()
	case !connected && len(l.attached) > 0:
		l.detach()
	}
}

// Subscriptions returns the categories currently subscribed.
func (l *Listener) Subscriptions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.attached...)
}

func (l *Listener) attach() {
	for _, cat := range Categories {
		if err := l.ch.Subscribe(cat, l.handler(cat)); err != nil {
			l.log.Warnw("push_subscribe_failed", "category", cat, "err", err)
			l.detach()
			return
		}
		l.attached = append(l.attached, cat)
	}
	l.log.Infow("push_listener_attached", "categories", len(l.attached))
}

func (l *Listener) detach() {
	for _, cat := range l.attached {
		if err := l.ch.Unsubscribe(cat); err != nil {
			l.log.Debugw("push_unsubscribe_failed", "category", cat, "err", err)
		}
	}
	if len(l.attached) > 0 {
		l.log.Infow("push_listener_detached", "categories", len(l.attached))
	}
	l.attached = nil
}

func (l *Listener) handler(category string) Handler {
	return func(data json.RawMessage) {
		act, err := Normalize(category, data)
		if err != nil {
			l.log.Warnw("push_event_dropped", "category", category, "err", err)
			return
		}
		l.log.Debugw("push_event", "category", category)
		l.apply(act)
	}
}

func (l *Listener) apply(act Action) {
	if act.Notice != nil {
		l.notifier.Notify(act.Notice.Level, act.Notice.Message)
	}
	if act.Patch != nil {
		l.sink.ApplyPushPatch(*act.Patch)
	}
	if act.Event != nil {
		l.sink.Record(*act.Event)
	}
	if act.Refresh {
		l.sink.RequestRefresh()
	}
}
