// File: internal/executor/provider_test.go
package executor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
)

func newPersistentProvider(t *testing.T, endpoint string) *PersistentProvider {
	t.Helper()
	return NewPersistentProvider(config.ExecutorConfig{
		Endpoint:       endpoint,
		AcquireTimeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestDiscoverWebsocketURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/json/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Browser":"Chrome/130.0","webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/abc"}`))
	}))
	defer server.Close()

	p := newPersistentProvider(t, server.URL)
	wsURL, err := p.discoverWebsocketURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", wsURL)
}

func TestDiscoverWebsocketURLFailures(t *testing.T) {
	t.Run("non-200 status is not transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		p := newPersistentProvider(t, server.URL)
		_, err := p.discoverWebsocketURL(context.Background())
		var connErr *schemas.ExecutorConnectivityError
		require.ErrorAs(t, err, &connErr)
		assert.False(t, connErr.Transient)
	})

	t.Run("missing websocket URL is not transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"Browser":"Chrome/130.0"}`))
		}))
		defer server.Close()

		p := newPersistentProvider(t, server.URL)
		_, err := p.discoverWebsocketURL(context.Background())
		var connErr *schemas.ExecutorConnectivityError
		require.ErrorAs(t, err, &connErr)
		assert.False(t, connErr.Transient)
	})

	t.Run("connection refused is transient", func(t *testing.T) {
		// Grab a port nothing is listening on.
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		endpoint := "http://" + l.Addr().String()
		require.NoError(t, l.Close())

		p := newPersistentProvider(t, endpoint)
		_, err = p.discoverWebsocketURL(context.Background())
		var connErr *schemas.ExecutorConnectivityError
		require.ErrorAs(t, err, &connErr)
		assert.True(t, connErr.Transient)
	})
}

func TestIsTransientNetErr(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"etimedout", syscall.ETIMEDOUT, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}, false},
		{"plain error", errors.New("unsupported protocol scheme"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.transient, isTransientNetErr(tc.err))
		})
	}
}
