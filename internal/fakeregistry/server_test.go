/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package fakeregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-crptapi/crptapi"
	"github.com/acronis/go-crptapi/internal/ratelimit"
	"github.com/acronis/go-crptapi/log/logtest"
	"github.com/acronis/go-crptapi/testutil"
)

const testSubmission = `{"document":{"description":"Test document","participantInn":"1234567890","docId":"DOC-123",` +
	`"docStatus":"NEW","docType":"LP_INTRODUCE_GOODS","importRequest":false,"productionDate":"2023-10-26",` +
	`"productionType":"OWN_PRODUCTION"},"signature":"someDigitalSignature"}`

func startServer(t *testing.T, opts Opts) (*Server, *logtest.Recorder) {
	t.Helper()
	logger := logtest.NewRecorder()
	srv, err := New(logger, opts)
	require.NoError(t, err)

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.Eventually(t, func() bool { return srv.GetPort() != 0 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, testutil.WaitListeningServer(fmt.Sprintf("127.0.0.1:%d", srv.GetPort()), 5*time.Second))

	t.Cleanup(func() {
		require.NoError(t, srv.Stop(true))
		testutil.RequireNoErrorInChannel(t, fatalErr)
	})
	return srv, logger
}

func post(t *testing.T, url, contentType, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(respBody)
}

func TestServer_CreateDocument(t *testing.T) {
	srv, logger := startServer(t, Opts{})

	status, body := post(t, srv.Endpoint(), "application/json; charset=utf-8", testSubmission)
	require.Equal(t, http.StatusOK, status)
	var resp createResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Len(t, resp.Value, 20)

	docs := srv.Documents()
	require.Len(t, docs, 1)
	require.Equal(t, resp.Value, docs[0].ID)
	require.Equal(t, "DOC-123", docs[0].Submission.Document.DocID)
	require.Equal(t, "someDigitalSignature", docs[0].Submission.Signature)

	_, found := logger.FindEntry("document accepted")
	require.True(t, found)
	testutil.RequireSamplesCountInCounter(t, srv.metrics.Requests.WithLabelValues("200"), 1)
}

func TestServer_CreateDocument_BadRequests(t *testing.T) {
	srv, _ := startServer(t, Opts{})

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "wrong content type",
			contentType: "text/plain",
			body:        testSubmission,
			wantStatus:  http.StatusUnsupportedMediaType,
			wantMessage: "content type should be application/json",
		},
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        `{"document":`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid request body: unexpected EOF",
		},
		{
			name:        "missing signature",
			contentType: "application/json",
			body:        `{"document":{"docId":"DOC-1"}}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "signature is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, srv.Endpoint(), tt.contentType, tt.body)
			require.Equal(t, tt.wantStatus, status)
			var resp errorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			require.Equal(t, tt.wantMessage, resp.ErrorMessage)
		})
	}
	require.Empty(t, srv.Documents())
}

func TestServer_Limit(t *testing.T) {
	const window = 300 * time.Millisecond
	srv, _ := startServer(t, Opts{Limit: ratelimit.Rate{Count: 2, Duration: window}})

	for i := 0; i < 2; i++ {
		status, _ := post(t, srv.Endpoint(), "application/json", testSubmission)
		require.Equal(t, http.StatusOK, status)
	}
	status, body := post(t, srv.Endpoint(), "application/json", testSubmission)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.JSONEq(t, `{"error_message":"too many requests"}`, body)

	time.Sleep(window)
	status, _ = post(t, srv.Endpoint(), "application/json", testSubmission)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, srv.Documents(), 3)
	testutil.RequireSamplesCountInCounter(t, srv.metrics.Requests.WithLabelValues("429"), 1)
}

func TestServer_Limit_MalformedRequestsAreNotCounted(t *testing.T) {
	srv, _ := startServer(t, Opts{Limit: ratelimit.Rate{Count: 1, Duration: time.Minute}})

	status, _ := post(t, srv.Endpoint(), "text/plain", testSubmission)
	require.Equal(t, http.StatusUnsupportedMediaType, status)
	status, _ = post(t, srv.Endpoint(), "application/json", `{"document":`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, srv.Endpoint(), "application/json", testSubmission)
	require.Equal(t, http.StatusOK, status)
	status, _ = post(t, srv.Endpoint(), "application/json", testSubmission)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Len(t, srv.Documents(), 1)
}

func TestServer_PreConfiguredListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv, err := New(logtest.NewRecorder(), Opts{Listener: listener})
	require.NoError(t, err)

	// The endpoint is known before the server is started.
	port := listener.Addr().(*net.TCPAddr).Port
	require.Equal(t, port, srv.GetPort())
	require.Equal(t, fmt.Sprintf("http://127.0.0.1:%d%s", port, DocumentsCreatePath), srv.Endpoint())

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	status, _ := post(t, srv.Endpoint(), "application/json", testSubmission)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, srv.Stop(true))
	testutil.RequireNoErrorInChannel(t, fatalErr)
}

func TestServer_StopBeforeStartReleasesListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	srv, err := New(logtest.NewRecorder(), Opts{Listener: listener})
	require.NoError(t, err)

	require.NoError(t, srv.Stop(false))

	relistened, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, relistened.Close())
}

func TestServer_WithClient(t *testing.T) {
	const window = 300 * time.Millisecond
	const maxRequests = 2
	// The registry window is a bit shorter to absorb the delivery latency.
	srv, _ := startServer(t, Opts{Limit: ratelimit.Rate{Count: maxRequests, Duration: window - 50*time.Millisecond}})

	cfg := crptapi.NewDefaultConfig()
	cfg.Endpoint = srv.Endpoint()
	cfg.Limiter.Window = window
	cfg.Limiter.MaxRequests = maxRequests
	cfg.Limiter.EvictionInterval = 10 * time.Millisecond
	client, err := crptapi.New(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close()) }()

	doc := crptapi.Document{DocID: "DOC-123", DocType: "LP_INTRODUCE_GOODS"}
	for i := 0; i < 3*maxRequests; i++ {
		result, err := client.CreateDocument(context.Background(), doc, "someDigitalSignature")
		require.NoError(t, err)
		require.Contains(t, result, `"value"`)
	}
	require.Len(t, srv.Documents(), 3*maxRequests)
}

func TestNew_InvalidLimit(t *testing.T) {
	_, err := New(nil, Opts{Limit: ratelimit.Rate{Count: 1}})
	require.EqualError(t, err, "registry limit: rate duration should be positive, got 0s")
}
