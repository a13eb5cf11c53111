package service

import (
	"errors"
	"fmt"

	"device_sync/internal/transport"
)

// Local precondition failures. No network call is made when these are returned.
var (
	ErrNotConnected  = errors.New("device is not connected")
	ErrInvalidAction = errors.New("invalid control action")
	ErrInvalidExport = errors.New("invalid export request: format must be csv or json")
)

// describeFailure turns any engine error into the short text shown to users
// and written into the device message list.
func describeFailure(err error) string {
	var (
		te *transport.TimeoutError
		ne *transport.NetworkError
		he *transport.HTTPError
		pe *transport.ParseError
		be *transport.BackendError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return fmt.Sprintf("request timed out after %s", te.After)
	case errors.As(err, &be):
		return be.Message
	case errors.As(err, &he):
		if he.Message != "" {
			return fmt.Sprintf("backend returned HTTP %d: %s", he.Status, he.Message)
		}
		return fmt.Sprintf("backend returned HTTP %d", he.Status)
	case errors.As(err, &pe):
		return "invalid response from backend"
	case errors.As(err, &ne):
		return "backend unreachable"
	case errors.Is(err, ErrNotConnected):
		return ErrNotConnected.Error()
	}
	return err.Error()
}
