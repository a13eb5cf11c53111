package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type staticCreds struct {
	token string
	err   error
}

func (s staticCreds) Token(ctx context.Context) (string, error) { return s.token, s.err }

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestDo_EnvelopeSuccess(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing Accept header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"connected":true}}`))
	})
	c := NewClient(srv.URL, nil, nil)

	res, err := c.Do(context.Background(), http.MethodGet, "/status", nil, time.Second)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if res.Message != "ok" || string(res.Data) != `{"connected":true}` {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDo_BarePayload(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"connected":false,"port":"COM3"}`))
	})
	res, err := NewClient(srv.URL, nil, nil).Do(context.Background(), http.MethodGet, "/status", nil, time.Second)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	var out struct {
		Port string `json:"port"`
	}
	if err := res.Decode("/status", &out); err != nil || out.Port != "COM3" {
		t.Fatalf("decode: %v %+v", err, out)
	}
}

func TestDo_ErrorKinds(t *testing.T) {
	t.Run("backend_error", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"error":"Arduino no conectado"}`))
		})
		_, err := NewClient(srv.URL, nil, nil).Do(context.Background(), http.MethodPost, "/connect", nil, time.Second)
		var be *BackendError
		if !errors.As(err, &be) || be.Message != "Arduino no conectado" {
			t.Fatalf("expected BackendError, got %v", err)
		}
	})

	t.Run("http_error", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"maintenance"}`))
		})
		_, err := NewClient(srv.URL, nil, nil).Do(context.Background(), http.MethodGet, "/status", nil, time.Second)
		var he *HTTPError
		if !errors.As(err, &he) || he.Status != http.StatusServiceUnavailable || he.Message != "maintenance" {
			t.Fatalf("expected HTTPError 503, got %v", err)
		}
	})

	t.Run("parse_error", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>nope</html>`))
		})
		_, err := NewClient(srv.URL, nil, nil).Do(context.Background(), http.MethodGet, "/status", nil, time.Second)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)
		_, err := NewClient(srv.URL, nil, nil).Do(context.Background(), http.MethodGet, "/status", nil, 50*time.Millisecond)
		var te *TimeoutError
		if !errors.As(err, &te) || te.After != 50*time.Millisecond {
			t.Fatalf("expected TimeoutError, got %v", err)
		}
		var ne *NetworkError
		if errors.As(err, &ne) {
			t.Fatalf("timeout must not be reported as a network error")
		}
	})

	t.Run("network_error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := NewClient(url, nil, nil).Do(context.Background(), http.MethodGet, "/status", nil, time.Second)
		var ne *NetworkError
		if !errors.As(err, &ne) {
			t.Fatalf("expected NetworkError, got %v", err)
		}
	})

	t.Run("caller_cancel_is_not_timeout", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewClient(srv.URL, nil, nil).Do(ctx, http.MethodGet, "/status", nil, time.Second)
		var ne *NetworkError
		if !errors.As(err, &ne) {
			t.Fatalf("expected NetworkError for caller cancel, got %v", err)
		}
	})
}

func TestDo_Authorization(t *testing.T) {
	var gotAuth string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	})

	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name  string
		creds CredentialStore
		want  string
	}{
		{"valid_jwt", staticCreds{token: valid}, "Bearer " + valid},
		{"opaque_token", staticCreds{token: "opaque"}, "Bearer opaque"},
		{"expired_jwt", staticCreds{token: expired}, ""},
		{"store_error", staticCreds{err: errors.New("locked")}, ""},
		{"no_store", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotAuth = ""
			if _, err := NewClient(srv.URL, tc.creds, nil).Do(context.Background(), http.MethodGet, "/status", nil, time.Second); err != nil {
				t.Fatalf("Do: %v", err)
			}
			if gotAuth != tc.want {
				t.Fatalf("Authorization=%q, want %q", gotAuth, tc.want)
			}
		})
	}
}
