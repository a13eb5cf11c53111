package push

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"device_sync/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 1 << 16
	reconnectDelay = 2 * time.Second
)

var errChannelClosed = errors.New("push channel closed")

// frame is the wire format of one pushed event.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSChannel receives events over a WebSocket and redials after the link drops.
type WSChannel struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    *logger.Logger

	mu        sync.Mutex
	handlers  map[string]Handler
	hook      func(bool)
	conn      *websocket.Conn
	connected bool
	opened    bool
	closed    bool

	stop chan struct{}
	done chan struct{}
}

func NewWSChannel(url string, header http.Header, log *logger.Logger) *WSChannel {
	return &WSChannel{
		url:      url,
		header:   header,
		dialer:   &websocket.Dialer{HandshakeTimeout: writeWait},
		log:      logger.OrNop(log),
		handlers: make(map[string]Handler),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Open dials once and then keeps the link up in the background. A failed first
// dial is returned but redialing continues.
func (c *WSChannel) Open() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errChannelClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.mu.Unlock()

	conn, err := c.dial()
	go c.run(conn)
	return err
}

// Close stops redialing and closes the link. Handlers are not called afterwards.
func (c *WSChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	opened := c.opened
	conn := c.conn
	close(c.stop)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if opened {
		<-c.done
	}
}

func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *WSChannel) Subscribe(category string, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	c.handlers[category] = h
	return nil
}

func (c *WSChannel) Unsubscribe(category string) error {
	c.mu.Lock()
	delete(c.handlers, category)
	c.mu.Unlock()
	return nil
}

// Subscriptions reports how many categories have a handler.
func (c *WSChannel) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *WSChannel) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *WSChannel) dial() (*websocket.Conn, error) {
	conn, _, err := c.dialer.Dial(c.url, c.header)
	if err != nil {
		c.log.Warnw("push_dial_failed", "url", c.url, "err", err)
		return nil, err
	}
	return conn, nil
}

func (c *WSChannel) run(conn *websocket.Conn) {
	defer close(c.done)
	for {
		if conn != nil {
			c.serve(conn)
		}
		select {
		case <-c.stop:
			return
		case <-time.After(reconnectDelay):
		}
		conn, _ = c.dial()
	}
}

// serve owns one connection until it fails or the channel is closed.
func (c *WSChannel) serve(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	c.setConnected(true)
	c.log.Infow("push_connected", "url", c.url)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingDone := make(chan struct{})
	go c.ping(conn, pingDone)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.log.Warnw("push_frame_dropped", "err", err)
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Infow("push_read_failed", "err", err)
			}
			break
		}
		c.deliver(f)
	}

	close(pingDone)
	_ = conn.Close()
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	c.setConnected(false)
	c.log.Infow("push_disconnected", "url", c.url)
}

func (c *WSChannel) ping(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Infow("push_ping_failed", "err", err)
				return
			}
		}
	}
}

func (c *WSChannel) deliver(f frame) {
	c.mu.Lock()
	h, ok := c.handlers[f.Event]
	closed := c.closed
	c.mu.Unlock()
	if !ok || closed {
		c.log.Debugw("push_frame_ignored", "event", f.Event)
		return
	}
	h(f.Data)
}

func (c *WSChannel) setConnected(v bool) {
	c.mu.Lock()
	changed := c.connected != v
	c.connected = v
	hook := c.hook
	c.mu.Unlock()
	if changed && hook != nil {
		hook(v)
	}
}
