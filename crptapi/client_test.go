/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package crptapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-crptapi/httpclient"
	"github.com/acronis/go-crptapi/log"
	"github.com/acronis/go-crptapi/log/logtest"
	"github.com/acronis/go-crptapi/testutil"
)

const documentsCreatePath = "/api/v3/lk/documents/create"

const testSignature = "someDigitalSignature"

var testDocument = Document{
	Description:    "Test document",
	ParticipantInn: "1234567890",
	DocID:          "DOC-123",
	DocStatus:      "NEW",
	DocType:        "LP_INTRODUCE_GOODS",
	ImportRequest:  false,
	ProductionDate: "2023-10-26",
	ProductionType: "OWN_PRODUCTION",
}

// Latency between admission and the moment the fake registry receives the request.
const deliveryTolerance = 50 * time.Millisecond

func newTestClient(t *testing.T, endpoint string, limiterCfg LimiterConfig, opts Opts) *Client {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Endpoint = endpoint
	if limiterCfg.EvictionInterval == 0 {
		limiterCfg.EvictionInterval = 10 * time.Millisecond
	}
	cfg.Limiter = limiterCfg
	client, err := NewWithOpts(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })
	return client
}

func closedServerURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr + documentsCreatePath
}

func TestClient_CreateDocument_WireContract(t *testing.T) {
	srv := testutil.NewRecordingServer(http.StatusOK, `{"value":"ok"}`)
	defer srv.Close()

	client := newTestClient(t, srv.URL+documentsCreatePath, LimiterConfig{Window: time.Second, MaxRequests: 5}, Opts{})
	result, err := client.CreateDocument(context.Background(), testDocument, testSignature)
	require.NoError(t, err)
	require.Equal(t, `{"value":"ok"}`, result)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, documentsCreatePath, reqs[0].Path)
	require.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	require.NotEmpty(t, reqs[0].Header.Get(httpclient.RequestIDHeader))
	require.True(t, strings.HasPrefix(reqs[0].Header.Get("User-Agent"), "go-crptapi/"))
	require.JSONEq(t, `{
		"document": {
			"description": "Test document",
			"participantInn": "1234567890",
			"docId": "DOC-123",
			"docStatus": "NEW",
			"docType": "LP_INTRODUCE_GOODS",
			"importRequest": false,
			"productionDate": "2023-10-26",
			"productionType": "OWN_PRODUCTION"
		},
		"signature": "someDigitalSignature"
	}`, string(reqs[0].Body))
}

func TestClient_CreateDocument_SequentialCallsAboveLimitWait(t *testing.T) {
	const window = time.Second
	const maxRequests = 5

	srv := testutil.NewRecordingServer(http.StatusOK, "ok")
	defer srv.Close()

	metrics := NewPrometheusMetricsCollector("")
	limiterMetrics := NewLimiterPrometheusMetricsCollector("")
	client := newTestClient(t, srv.URL+documentsCreatePath, LimiterConfig{Window: window, MaxRequests: maxRequests},
		Opts{Metrics: metrics, LimiterMetrics: limiterMetrics})

	startTime := time.Now()
	for i := 0; i < 2*maxRequests; i++ {
		result, err := client.CreateDocument(context.Background(), testDocument, testSignature)
		require.NoError(t, err)
		require.Equal(t, "ok", result)
	}
	elapsed := time.Since(startTime)
	require.GreaterOrEqual(t, elapsed, window-deliveryTolerance)
	require.Less(t, elapsed, 3*window)

	reqs := srv.Requests()
	require.Len(t, reqs, 2*maxRequests)
	require.Less(t, reqs[maxRequests-1].ReceivedAt.Sub(reqs[0].ReceivedAt), window/2,
		"first %d calls should not wait", maxRequests)
	for i := maxRequests; i < len(reqs); i++ {
		require.GreaterOrEqual(t, reqs[i].ReceivedAt.Sub(reqs[i-maxRequests].ReceivedAt), window-deliveryTolerance,
			"call %d was sent too early", i+1)
	}

	testutil.RequireSamplesCountInCounter(t, metrics.Submissions.WithLabelValues(string(SubmissionOutcomeSuccess)), 10)
	testutil.RequireSamplesCountInCounter(t, limiterMetrics.Admissions, 10)
}

func TestClient_CreateDocument_ConcurrentCallers(t *testing.T) {
	const window = 500 * time.Millisecond
	const maxRequests = 3
	const callers = 9

	srv := testutil.NewRecordingServer(http.StatusOK, "ok")
	defer srv.Close()

	client := newTestClient(t, srv.URL+documentsCreatePath, LimiterConfig{Window: window, MaxRequests: maxRequests}, Opts{})

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.CreateDocument(context.Background(), testDocument, testSignature)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	reqs := srv.Requests()
	require.Len(t, reqs, callers)
	receivedAt := make([]time.Time, 0, len(reqs))
	for _, req := range reqs {
		receivedAt = append(receivedAt, req.ReceivedAt)
	}
	sort.Slice(receivedAt, func(i, j int) bool { return receivedAt[i].Before(receivedAt[j]) })
	for i := maxRequests; i < len(receivedAt); i++ {
		require.GreaterOrEqual(t, receivedAt[i].Sub(receivedAt[i-maxRequests]), window-deliveryTolerance)
	}
}

func TestClient_CreateDocument_APIError(t *testing.T) {
	const window = 200 * time.Millisecond
	const respBody = `{"error_message":"too many requests"}`

	srv := testutil.NewRecordingServer(http.StatusTooManyRequests, respBody)
	defer srv.Close()

	logger := logtest.NewRecorder()
	metrics := NewPrometheusMetricsCollector("")
	endpoint := srv.URL + documentsCreatePath
	client := newTestClient(t, endpoint, LimiterConfig{Window: window, MaxRequests: 1},
		Opts{Logger: logger, Metrics: metrics})

	_, err := client.CreateDocument(context.Background(), testDocument, testSignature)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, respBody, apiErr.Body)
	require.Equal(t, http.MethodPost, apiErr.Method)
	require.Equal(t, endpoint, apiErr.URL)
	var transportErr *TransportError
	require.False(t, errors.As(err, &transportErr))

	entry, found := logger.FindEntry("document submission rejected")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	status, found := entry.FindField("status")
	require.True(t, found)
	require.Equal(t, int64(http.StatusTooManyRequests), status.Int)
	_, found = logger.FindEntry("client http request finished with error status")
	require.True(t, found)
	testutil.RequireSamplesCountInCounter(t, metrics.Submissions.WithLabelValues(string(SubmissionOutcomeAPIError)), 1)

	// The slot consumed by the failed call is not given back.
	srv.SetResponse(http.StatusOK, "ok")
	startTime := time.Now()
	result, err := client.CreateDocument(context.Background(), testDocument, testSignature)
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.GreaterOrEqual(t, time.Since(startTime), window/2)
}

func TestClient_CreateDocument_TransportError(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		endpoint := closedServerURL(t)
		metrics := NewPrometheusMetricsCollector("")
		logger := logtest.NewRecorder()
		client := newTestClient(t, endpoint, LimiterConfig{Window: time.Second, MaxRequests: 5},
			Opts{Metrics: metrics, Logger: logger})

		_, err := client.CreateDocument(context.Background(), testDocument, testSignature)
		require.Error(t, err)
		var transportErr *TransportError
		require.True(t, errors.As(err, &transportErr))
		require.Equal(t, http.MethodPost, transportErr.Method)
		require.Equal(t, endpoint, transportErr.URL)
		require.Error(t, transportErr.Err)
		var apiErr *APIError
		require.False(t, errors.As(err, &apiErr))

		_, found := logger.FindEntry("document submission failed")
		require.True(t, found)
		testutil.RequireSamplesCountInCounter(t,
			metrics.Submissions.WithLabelValues(string(SubmissionOutcomeTransportError)), 1)
	})

	t.Run("cancelled in flight", func(t *testing.T) {
		srv := testutil.NewRecordingServer(http.StatusOK, "ok")
		defer srv.Close()
		srv.SetDelay(5 * time.Second)

		client := newTestClient(t, srv.URL+documentsCreatePath, LimiterConfig{Window: time.Second, MaxRequests: 5}, Opts{})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := client.CreateDocument(ctx, testDocument, testSignature)
		var transportErr *TransportError
		require.True(t, errors.As(err, &transportErr))
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.NotErrorIs(t, err, ErrAdmissionCancelled)
	})
}

func TestClient_CreateDocument_AdmissionCancelled(t *testing.T) {
	srv := testutil.NewRecordingServer(http.StatusOK, "ok")
	defer srv.Close()

	metrics := NewPrometheusMetricsCollector("")
	client := newTestClient(t, srv.URL+documentsCreatePath, LimiterConfig{Window: 10 * time.Second, MaxRequests: 1},
		Opts{Metrics: metrics})

	_, err := client.CreateDocument(context.Background(), testDocument, testSignature)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	startTime := time.Now()
	_, err = client.CreateDocument(ctx, testDocument, testSignature)
	require.ErrorIs(t, err, ErrAdmissionCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(startTime), time.Second)

	require.Len(t, srv.Requests(), 1)
	testutil.RequireSamplesCountInCounter(t,
		metrics.Submissions.WithLabelValues(string(SubmissionOutcomeAdmissionCancelled)), 1)
}

func TestClient_Close(t *testing.T) {
	srv := testutil.NewRecordingServer(http.StatusOK, "ok")
	defer srv.Close()

	client := newTestClient(t, srv.URL+documentsCreatePath, LimiterConfig{Window: 10 * time.Second, MaxRequests: 1}, Opts{})
	_, err := client.CreateDocument(context.Background(), testDocument, testSignature)
	require.NoError(t, err)

	blockedErr := make(chan error, 1)
	go func() {
		_, err := client.CreateDocument(context.Background(), testDocument, testSignature)
		blockedErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, client.Close())
	select {
	case err = <-blockedErr:
		require.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(time.Second):
		require.Fail(t, "blocked call was not released by Close")
	}

	_, err = client.CreateDocument(context.Background(), testDocument, testSignature)
	require.ErrorIs(t, err, ErrClientClosed)
	require.NoError(t, client.Close())
	require.Len(t, srv.Requests(), 1)
}

func TestClient_ApproximateAlgorithms(t *testing.T) {
	for _, algorithm := range []LimiterAlgorithm{LimiterAlgorithmSlidingWindow, LimiterAlgorithmLeakyBucket} {
		algorithm := algorithm
		t.Run(string(algorithm), func(t *testing.T) {
			srv := testutil.NewRecordingServer(http.StatusOK, "ok")
			defer srv.Close()

			client := newTestClient(t, srv.URL+documentsCreatePath,
				LimiterConfig{Window: 200 * time.Millisecond, MaxRequests: 2, Algorithm: algorithm}, Opts{})
			for i := 0; i < 4; i++ {
				result, err := client.CreateDocument(context.Background(), testDocument, testSignature)
				require.NoError(t, err)
				require.Equal(t, "ok", result)
			}
			require.Len(t, srv.Requests(), 4)
		})
	}
}

func TestNewWithOpts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "relative endpoint",
			mutate:  func(cfg *Config) { cfg.Endpoint = "/api/v3/lk/documents/create" },
			wantErr: `endpoint: should be an absolute http(s) url, got "/api/v3/lk/documents/create"`,
		},
		{
			name:    "zero max requests",
			mutate:  func(cfg *Config) { cfg.Limiter.MaxRequests = 0 },
			wantErr: "create rate limiter: rate count should be positive, got 0",
		},
		{
			name:    "zero window",
			mutate:  func(cfg *Config) { cfg.Limiter.Window = 0 },
			wantErr: "create rate limiter: rate duration should be positive, got 0s",
		},
		{
			name:    "unknown algorithm",
			mutate:  func(cfg *Config) { cfg.Limiter.Algorithm = "tokenBucket" },
			wantErr: `create rate limiter: unknown limiter algorithm "tokenBucket"`,
		},
		{
			name:    "invalid transport config",
			mutate:  func(cfg *Config) { cfg.Client.RateLimits.Enabled = true },
			wantErr: "create http client: create rate limiting round tripper: rate limit must be positive",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Limiter.Window = time.Second
			cfg.Limiter.MaxRequests = 5
			tt.mutate(cfg)
			_, err := NewWithOpts(cfg, Opts{})
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestNewWithLimit(t *testing.T) {
	client, err := NewWithLimit(time.Second, 5)
	require.NoError(t, err)
	require.Equal(t, DefaultEndpoint, client.endpoint)
	require.NoError(t, client.Close())

	_, err = NewWithLimit(time.Second, -1)
	require.Error(t, err)
}

func TestErrorMessages(t *testing.T) {
	apiErr := &APIError{Method: http.MethodPost, URL: "http://localhost/x", StatusCode: 500, Body: strings.Repeat("a", 300)}
	require.Equal(t,
		`method: [POST] url: [http://localhost/x] status: [500] body: "`+strings.Repeat("a", maxErrorBodyLen)+`..."`,
		apiErr.Error())

	inner := errors.New("connection reset")
	transportErr := &TransportError{Method: http.MethodPost, URL: "http://localhost/x", Err: inner}
	require.Equal(t, "method: [POST] url: [http://localhost/x] transport error: connection reset", transportErr.Error())
	require.ErrorIs(t, transportErr, inner)
}
