package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestClient() *Client {
	return NewClient(Config{UserAgent: "feedmap-test", Retry: fastRetry()}, zap.NewNop())
}

func TestClient_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "feedmap-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	result, err := newTestClient().Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.True(t, result.IsSuccess())
	assert.Equal(t, `{"items":[]}`, string(result.Body))
	assert.Equal(t, "application/json", result.ContentType)
	assert.GreaterOrEqual(t, result.ElapsedSeconds, 0.0)
}

func TestClient_Fetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	result, err := newTestClient().Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Fetch_RetriesClientTimeout(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{Timeout: 100 * time.Millisecond, Retry: fastRetry()}, zap.NewNop())
	result, err := client.Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Fetch_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := newTestClient().Fetch(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, result.HTTPStatus)
	assert.False(t, result.IsSuccess())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Fetch_PersistentFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	result, err := newTestClient().Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrHTTPStatus)
	se, ok := AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusTooManyRequests, result.HTTPStatus)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Fetch_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	result, err := newTestClient().Fetch(context.Background(), url)

	require.Error(t, err)
	assert.Nil(t, result)
}

func TestClient_Fetch_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[1,2,3,4,5,6,7,8,9]}`))
	}))
	defer server.Close()

	client := NewClient(Config{MaxBodyBytes: 8, Retry: fastRetry()}, zap.NewNop())
	_, err := client.Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestStatusError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusOK, false},
	}
	for _, tt := range tests {
		err := &StatusError{URL: "https://x/api?token=secret", StatusCode: tt.status}
		assert.Equal(t, tt.want, err.IsRetryable(), "status %d", tt.status)
		assert.Equal(t, tt.want, retry.IsRetryable(err), "status %d", tt.status)
		assert.NotContains(t, err.Error(), "secret")
	}
}
