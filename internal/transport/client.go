package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"device_sync/internal/logger"
	"device_sync/internal/normalize"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 1 << 20 // 1 MB
	maxErrorText    = 200
	mimeJSON        = "application/json"
)

// CredentialStore supplies the bearer token attached to backend requests.
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
}

// Result is a decoded backend envelope.
type Result struct {
	Status  int
	Message string
	Data    json.RawMessage
}

// Decode unmarshals the envelope payload into out.
func (r Result) Decode(endpoint string, out any) error {
	if len(r.Data) == 0 {
		return &ParseError{Endpoint: endpoint, Err: errors.New("empty payload")}
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return &ParseError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// Client performs timeout-bounded JSON requests against the device backend.
// It never retries; that is the caller's decision.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialStore
	log     *logger.Logger
	now     func() time.Time
}

// NewClient builds a client rooted at baseURL. creds may be nil.
func NewClient(baseURL string, creds CredentialStore, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Per-request deadlines are set in Do; the client itself has none.
		http:  &http.Client{},
		creds: creds,
		log:   logger.OrNop(log),
		now:   time.Now,
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends one request and decodes the backend envelope. Failures are one of
// *TimeoutError, *NetworkError, *HTTPError, *ParseError or *BackendError.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("encode request body for %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return Result{}, &NetworkError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", mimeJSON)
	if body != nil {
		req.Header.Set("Content-Type", mimeJSON)
	}
	c.authorize(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, c.classify(ctx, reqCtx, endpoint, timeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Result{}, c.classify(ctx, reqCtx, endpoint, timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &HTTPError{Endpoint: endpoint, Status: resp.StatusCode, Message: envelopeMessage(raw)}
	}
	return decodeEnvelope(endpoint, resp.StatusCode, raw)
}

// classify separates our own timer elapsing from every other transport failure.
func (c *Client) classify(parent, reqCtx context.Context, endpoint string, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Endpoint: endpoint, After: timeout}
	}
	return &NetworkError{Endpoint: endpoint, Err: err}
}

// authorize attaches the stored bearer token unless it is a JWT that already expired.
func (c *Client) authorize(ctx context.Context, req *http.Request) {
	if c.creds == nil {
		return
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		c.log.Warnw("credential_lookup_failed", "err", err)
		return
	}
	if token == "" {
		return
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil {
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(c.now()) {
			c.log.Warnw("credential_expired", "expired_at", claims.ExpiresAt.Time)
			return
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func decodeEnvelope(endpoint string, status int, raw []byte) (Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Result{Status: status}, nil
	}
	if !json.Valid(raw) {
		return Result{}, &ParseError{Endpoint: endpoint, Err: errors.New("body is not valid JSON")}
	}

	var env envelope
	if raw[0] != '{' || json.Unmarshal(raw, &env) != nil || env.Success == nil {
		// Bare payload without the success/data wrapper.
		return Result{Status: status, Data: raw}, nil
	}
	msg := env.Message
	if msg == "" {
		msg = errorText(env.Error)
	}
	if !*env.Success {
		if msg == "" {
			msg = "backend reported failure"
		}
		return Result{}, &BackendError{Endpoint: endpoint, Message: msg}
	}
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = raw
	}
	return Result{Status: status, Message: msg, Data: data}, nil
}

// envelopeMessage extracts a human message from an error body, if any.
func envelopeMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorText {
			msg = msg[:maxErrorText]
		}
		return msg
	}
	if env.Message != "" {
		return env.Message
	}
	return errorText(env.Error)
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if m, ok := normalize.Object(raw); ok {
		if v, ok := normalize.First(m, "message", "mensaje"); ok {
			return normalize.String(v)
		}
	}
	return ""
}
