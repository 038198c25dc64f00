package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"range-meter/src/logger"
	"range-meter/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(retries int) *AsyncNetworkManager {
	cfg := &models.MConfig{
		Network:  models.MNetworkConfig{RequestTimeout: 5, MaxRetries: retries, UserAgent: "range-meter-test"},
		Upstream: models.MUpstreamConfig{APIKey: "secret"},
	}
	nm := NewAsyncNetworkManager(cfg, logger.NewNopLogger())
	nm.backoff = func(int) time.Duration { return 0 }
	return nm
}

func TestGet_SendsHeadersAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "range-meter-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "20", r.URL.Query().Get("days"))
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	body, err := newManager(0).Get(context.Background(), srv.URL+"/history/EURUSD", map[string]string{"days": "20"})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`done`))
	}))
	defer srv.Close()

	body, err := newManager(2).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newManager(3).Get(context.Background(), srv.URL, nil)
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_GivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newManager(1).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusTooManyRequests, status.StatusCode)
}
