/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-crptapi/log"
	"github.com/acronis/go-crptapi/log/logtest"
	"github.com/acronis/go-crptapi/testutil"
)

func TestNewWithOpts(t *testing.T) {
	srv := testutil.NewRecordingServer(http.StatusInternalServerError, "boom")
	defer srv.Close()

	logger := logtest.NewRecorder()
	collector := NewPrometheusMetricsCollector("")
	cfg := NewDefaultConfig()
	cfg.Metrics.Enabled = true

	client, err := NewWithOpts(cfg, Opts{
		UserAgent:   "crpt-test",
		RequestType: "create_document",
		Logger:      logger,
		Collector:   collector,
	})
	require.NoError(t, err)
	require.Equal(t, cfg.Timeout, client.Timeout)

	resp, err := doPost(t, context.Background(), client, srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "crpt-test", reqs[0].Header.Get("User-Agent"))
	requestID := reqs[0].Header.Get(RequestIDHeader)
	require.NotEmpty(t, requestID)

	entry, found := logger.FindEntry("client http request finished with error status")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
	loggedID, found := entry.FindField("request_id")
	require.True(t, found)
	require.Equal(t, requestID, string(loggedID.Bytes))

	host := strings.TrimPrefix(srv.URL, "http://")
	testutil.RequireSamplesCountInHistogram(t,
		collector.Durations.WithLabelValues("create_document", host, "POST create_document", "500").(prometheus.Histogram), 1)
}

func TestNewWithOptsRateLimitError(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.RateLimits.Enabled = true
	_, err := NewWithOpts(cfg, Opts{})
	require.EqualError(t, err, "create rate limiting round tripper: rate limit must be positive")

	require.Panics(t, func() { Must(cfg) })
}

func TestNewWithDisabledLogger(t *testing.T) {
	srv := testutil.NewRecordingServer(http.StatusOK, "ok")
	defer srv.Close()

	cfg := NewDefaultConfig()
	cfg.Logger.Enabled = false
	client := Must(cfg)
	resp, err := doPost(t, context.Background(), client, srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(srv.Requests()[0].Header.Get("User-Agent"), "go-crptapi/"))
}
