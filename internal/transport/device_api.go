package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"device_sync/internal/models"
	"device_sync/internal/normalize"
)

// Backend endpoints, relative to the client base URL.
const (
	endpointStatus     = "/status"
	endpointConnect    = "/connect"
	endpointDisconnect = "/disconnect"
	endpointControl    = "/control/"
	endpointStats      = "/stats"
	endpointExport     = "/export"
)

// CommandReply is the normalized answer to connect/disconnect/control.
type CommandReply struct {
	Message string
	// Status is set only when the backend echoed a full status object.
	Status *models.DeviceStatus
}

// DeviceAPI speaks the device backend's REST surface and hands back strict models.
type DeviceAPI struct {
	client *Client
}

func NewDeviceAPI(client *Client) *DeviceAPI {
	return &DeviceAPI{client: client}
}

// Status fetches GET /status.
func (a *DeviceAPI) Status(ctx context.Context, timeout time.Duration) (models.DeviceStatus, error) {
	res, err := a.client.Do(ctx, http.MethodGet, endpointStatus, nil, timeout)
	if err != nil {
		return models.DeviceStatus{}, err
	}
	m, ok := normalize.Object(res.Data)
	if !ok {
		return models.DeviceStatus{}, &ParseError{Endpoint: endpointStatus, Err: errors.New("status is not an object")}
	}
	return normalize.Status(m), nil
}

// Stats fetches GET /stats.
func (a *DeviceAPI) Stats(ctx context.Context, timeout time.Duration) (models.StatsSnapshot, error) {
	res, err := a.client.Do(ctx, http.MethodGet, endpointStats, nil, timeout)
	if err != nil {
		return models.StatsSnapshot{}, err
	}
	m, ok := normalize.Object(res.Data)
	if !ok {
		return models.StatsSnapshot{}, &ParseError{Endpoint: endpointStats, Err: errors.New("stats is not an object")}
	}
	return normalize.Stats(m), nil
}

func (a *DeviceAPI) Connect(ctx context.Context, timeout time.Duration) (CommandReply, error) {
	return a.command(ctx, endpointConnect, timeout)
}

func (a *DeviceAPI) Disconnect(ctx context.Context, timeout time.Duration) (CommandReply, error) {
	return a.command(ctx, endpointDisconnect, timeout)
}

// Control posts /control/{action}. The action is path-escaped.
func (a *DeviceAPI) Control(ctx context.Context, action string, timeout time.Duration) (CommandReply, error) {
	return a.command(ctx, endpointControl+url.PathEscape(action), timeout)
}

// ExportURL builds the download location for GET /export. The backend streams
// the file; there is no completion signal.
func (a *DeviceAPI) ExportURL(format string, days int) string {
	q := url.Values{}
	q.Set("format", format)
	q.Set("days", strconv.Itoa(days))
	return a.client.BaseURL() + endpointExport + "?" + q.Encode()
}

func (a *DeviceAPI) command(ctx context.Context, endpoint string, timeout time.Duration) (CommandReply, error) {
	res, err := a.client.Do(ctx, http.MethodPost, endpoint, nil, timeout)
	if err != nil {
		return CommandReply{}, fmt.Errorf("%s: %w", strings.TrimPrefix(endpoint, "/"), err)
	}
	reply := CommandReply{Message: res.Message}
	if m, ok := normalize.Object(res.Data); ok {
		if reply.Message == "" {
			if v, ok := normalize.First(m, "message", "mensaje"); ok {
				reply.Message = normalize.String(v)
			}
		}
		if hasStatus(m) {
			st := normalize.Status(m)
			reply.Status = &st
		}
	}
	return reply, nil
}

// hasStatus reports whether a command reply carries enough to replace the status.
func hasStatus(m map[string]any) bool {
	if _, ok := m["status"].(map[string]any); ok {
		return true
	}
	_, ok := normalize.First(m, "connected", "isConnected", "conectado")
	return ok
}
