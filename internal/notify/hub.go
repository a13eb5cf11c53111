package notify

import (
	"sync"
	"time"

	"device_sync/internal/logger"
)

// subscriberBuffer bounds each consumer's queue; slow consumers lose notifications.
const subscriberBuffer = 32

// Hub logs every notification and fans it out to subscribers.
type Hub struct {
	log *logger.Logger

	mu   sync.Mutex
	subs map[chan Notification]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  logger.OrNop(log),
		subs: make(map[chan Notification]struct{}),
	}
}

// Notify implements Notifier.
func (h *Hub) Notify(level Level, message string) {
	n := Notification{Level: level, Message: message, Timestamp: time.Now().UTC()}

	switch level {
	case LevelError:
		h.log.Errorw("notification", "level", level, "message", message)
	case LevelWarning:
		h.log.Warnw("notification", "level", level, "message", message)
	default:
		h.log.Infow("notification", "level", level, "message", message)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.log.Debugw("notification_dropped", "reason", "subscriber_full")
		}
	}
}

// Subscribe returns a channel receiving every later notification.
func (h *Hub) Subscribe() chan Notification {
	ch := make(chan Notification, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (h *Hub) Unsubscribe(ch chan Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; !ok {
		return
	}
	delete(h.subs, ch)
	close(ch)
}
