package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, maxRetries int) *Client {
	t.Helper()
	c, err := New(Config{
		MaxRetries:    maxRetries,
		Timeout:       2 * time.Second,
		BackoffBase:   time.Millisecond,
		RatePerSecond: 0,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestFetch_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, 5)
	resp, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestFetch_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	resp, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), resp.Body)
	require.EqualValues(t, 4, calls.Load())
}

func TestFetch_ExhaustionReturnsError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, 4)
	resp, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.Nil(t, resp)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 4, fe.Attempts)
	require.Equal(t, http.StatusTooManyRequests, fe.LastStatus)
	require.EqualValues(t, 4, calls.Load())
}

func TestFetch_NonOKIsNeverAccepted(t *testing.T) {
	t.Parallel()

	// 204 carries no body but is still not an accepted response.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, 2)
	_, err := c.Fetch(context.Background(), srv.URL, Options{})
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusNoContent, fe.LastStatus)
}

func TestFetch_ConnectionErrorRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Close() // refuse all connections

	c := newTestClient(t, 3)
	_, err := c.Fetch(context.Background(), srv.URL, Options{})
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 3, fe.Attempts)
	require.NotNil(t, fe.Err)
}

func TestFetch_ContextCancellationStopsRetrying(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, 20)
	_, err := c.Fetch(ctx, srv.URL, Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestFetch_StreamModeReturnsReader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("binary-bytes"))
	}))
	defer srv.Close()

	c := newTestClient(t, 2)
	resp, err := c.Fetch(context.Background(), srv.URL, Options{Stream: true})
	require.NoError(t, err)
	require.Nil(t, resp.Body)
	require.NotNil(t, resp.Stream)
	defer resp.Stream.Close()

	buf := make([]byte, 32)
	n, _ := resp.Stream.Read(buf)
	require.Equal(t, "binary-bytes", string(buf[:n]))
}

func TestFetch_ImpersonationHeadersSent(t *testing.T) {
	t.Parallel()

	var gotAppID, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAppID = r.Header.Get("X-IG-App-ID")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{AppID: "test-app-id", MaxRetries: 1}, zap.NewNop())
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	require.Equal(t, "test-app-id", gotAppID)
	require.Contains(t, gotUA, "Chrome/131")
}
