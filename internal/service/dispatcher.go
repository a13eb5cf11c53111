package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"device_sync/internal/logger"
	"device_sync/internal/models"
	"device_sync/internal/notify"
	"device_sync/internal/transport"
)

const (
	defaultExportDays = 30
	exportPendingFor  = time.Second
	maxActionLength   = 64
)

var exportFormats = map[string]bool{"csv": true, "json": true}

// Opener hands a download URL to whatever renders the portal (a browser tab,
// a redirect). There is no completion signal.
type Opener interface {
	Open(url string) error
}

// refresher is what the dispatcher calls after a successful command.
type refresher interface {
	Refresh(ctx context.Context)
}

// Dispatcher executes user commands against the backend. Concurrent dispatches
// are allowed and unordered; the reconciler keeps the resulting state coherent.
type Dispatcher struct {
	api       DeviceAPI
	rec       *Reconciler
	refresher refresher
	journal   *Journal
	loading   *loadingTracker
	notifier  notify.Notifier
	opener    Opener
	timeouts  Timeouts
	log       *logger.Logger
}

// command describes one backend operation and how its outcome is reported.
type command struct {
	name      string
	category  loadingCategory
	eventType models.EventType
	success   string
	failure   string
	call      func(ctx context.Context) (transport.CommandReply, error)
}

// Connect opens the device link on the backend.
func (d *Dispatcher) Connect(ctx context.Context) error {
	return d.dispatch(ctx, command{
		name:      "connect",
		category:  loadingConnection,
		eventType: models.EventConnection,
		success:   "Device connected",
		failure:   "Could not connect the device",
		call: func(ctx context.Context) (transport.CommandReply, error) {
			return d.api.Connect(ctx, d.timeouts.Connect)
		},
	})
}

// Disconnect closes the device link on the backend.
func (d *Dispatcher) Disconnect(ctx context.Context) error {
	return d.dispatch(ctx, command{
		name:      "disconnect",
		category:  loadingConnection,
		eventType: models.EventConnection,
		success:   "Device disconnected",
		failure:   "Could not disconnect the device",
		call: func(ctx context.Context) (transport.CommandReply, error) {
			return d.api.Disconnect(ctx, d.timeouts.Disconnect)
		},
	})
}

// SendCommand posts a control action. When the device is not connected it
// returns ErrNotConnected at once, without touching the network or loading flags.
func (d *Dispatcher) SendCommand(ctx context.Context, action string) error {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" || len(action) > maxActionLength {
		d.notifier.Notify(notify.LevelError, "Invalid command")
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if !d.rec.Status().Connected {
		d.notifier.Notify(notify.LevelError, "Device is not connected")
		d.log.Infow("command_rejected", "action", action, "reason", "not_connected")
		return ErrNotConnected
	}
	return d.dispatch(ctx, command{
		name:      action,
		category:  loadingControl,
		eventType: models.EventCommand,
		success:   fmt.Sprintf("Command %q executed", action),
		failure:   fmt.Sprintf("Command %q failed", action),
		call: func(ctx context.Context) (transport.CommandReply, error) {
			return d.api.Control(ctx, action, d.timeouts.Command)
		},
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, c command) error {
	end := d.loading.begin(c.category)
	defer end()

	seq := d.rec.NextSeq()
	start := time.Now()
	reply, err := c.call(ctx)
	elapsed := time.Since(start)

	if err != nil {
		reason := describeFailure(err)
		d.log.Errorw("command_failed", "command", c.name, "seq", seq, "elapsed", elapsed, "err", err)
		d.journal.Append(models.EventError, models.SourceWeb, map[string]any{
			"command": c.name,
			"error":   reason,
		})
		d.notifier.Notify(notify.LevelError, c.failure+": "+reason)
		return fmt.Errorf("%s: %w", c.name, err)
	}

	if reply.Status != nil {
		d.rec.ApplyPollResult(*reply.Status, seq)
	}
	d.journal.Append(c.eventType, models.SourceWeb, map[string]any{
		"command":    c.name,
		"message":    reply.Message,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	msg := c.success
	if reply.Message != "" {
		msg += ": " + reply.Message
	}
	d.notifier.Notify(notify.LevelSuccess, msg)
	d.log.Infow("command_succeeded", "command", c.name, "seq", seq, "elapsed", elapsed)

	// Derived counters must follow the action just taken.
	d.refresher.Refresh(ctx)
	return nil
}

// ExportData opens the backend export download. Format defaults to csv and days
// to 30. Loading.Export stays up briefly since the download gives no signal.
func (d *Dispatcher) ExportData(format string, days int) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if !exportFormats[format] {
		d.notifier.Notify(notify.LevelError, "Unsupported export format")
		return "", fmt.Errorf("%w: got %q", ErrInvalidExport, format)
	}
	if days <= 0 {
		days = defaultExportDays
	}

	end := d.loading.begin(loadingExport)
	url := d.api.ExportURL(format, days)
	if d.opener != nil {
		if err := d.opener.Open(url); err != nil {
			end()
			d.log.Errorw("export_open_failed", "url", url, "err", err)
			d.notifier.Notify(notify.LevelError, "Could not start the export")
			return "", fmt.Errorf("open export: %w", err)
		}
	}
	time.AfterFunc(exportPendingFor, end)

	d.log.Infow("export_started", "format", format, "days", days)
	d.notifier.Notify(notify.LevelInfo, fmt.Sprintf("Exporting last %d days as %s", days, strings.ToUpper(format)))
	return url, nil
}
