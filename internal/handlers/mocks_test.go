package handlers

import (
	"context"
	"net/http"
	"sync"

	"device_sync/internal/models"

	"github.com/gin-gonic/gin"
)

// ---- Engine mock ----

type mockEngine struct {
	mu sync.Mutex

	snapshot   models.Snapshot
	connectErr error
	discErr    error
	commandErr error
	exportURL  string
	exportErr  error
	autoOn     bool

	listeners    map[int]func(models.Snapshot)
	nextID       int
	connectCalls int
	refreshCalls int
	clearCalls   int
	lastAction   string
	lastFormat   string
	lastDays     int
	unsubscribed int
}

func newMockEngine() *mockEngine {
	return &mockEngine{listeners: map[int]func(models.Snapshot){}}
}

func (m *mockEngine) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *mockEngine) Subscribe(fn func(models.Snapshot)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		if _, ok := m.listeners[id]; ok {
			delete(m.listeners, id)
			m.unsubscribed++
		}
		m.mu.Unlock()
	}
}

// publish replaces the snapshot and notifies subscribers.
func (m *mockEngine) publish(s models.Snapshot) {
	m.mu.Lock()
	m.snapshot = s
	fns := make([]func(models.Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (m *mockEngine) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *mockEngine) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	return m.connectErr
}

func (m *mockEngine) Disconnect(ctx context.Context) error { return m.discErr }

func (m *mockEngine) SendCommand(ctx context.Context, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAction = action
	return m.commandErr
}

func (m *mockEngine) ExportData(format string, days int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFormat, m.lastDays = format, days
	return m.exportURL, m.exportErr
}

func (m *mockEngine) ToggleAutoRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoOn = !m.autoOn
	return m.autoOn
}

func (m *mockEngine) Refresh(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
}

func (m *mockEngine) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
}

// ---- Token parser mock ----

type mockAuth struct {
	enabled        bool
	subject        string
	parseErr       error
	lastParseToken string
}

func (m *mockAuth) Enabled() bool { return m.enabled }

func (m *mockAuth) ParseToken(token string) (string, error) {
	m.lastParseToken = token
	return m.subject, m.parseErr
}

// ---- Shared Test Helpers ----

func newTestRouter(e Engine, auth TokenParser) *gin.Engine {
	h := NewHandler(e, auth, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
