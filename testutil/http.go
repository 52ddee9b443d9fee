/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// RecordedRequest is a snapshot of a request received by RecordingServer.
type RecordedRequest struct {
	Method     string
	Path       string
	Header     http.Header
	Body       []byte
	ReceivedAt time.Time
}

// RecordingServer is an httptest.Server that records all received requests
// and replies with the configured status code and body.
type RecordingServer struct {
	*httptest.Server

	mu         sync.Mutex
	requests   []RecordedRequest
	statusCode int
	body       []byte
	delay      time.Duration
}

// NewRecordingServer starts a new RecordingServer that replies with the given status code and body.
func NewRecordingServer(statusCode int, body string) *RecordingServer {
	rs := &RecordingServer{statusCode: statusCode, body: []byte(body)}
	rs.Server = httptest.NewServer(http.HandlerFunc(rs.serveHTTP))
	return rs
}

// SetResponse changes the status code and body of subsequent responses.
func (rs *RecordingServer) SetResponse(statusCode int, body string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.statusCode = statusCode
	rs.body = []byte(body)
}

// SetDelay makes the server wait before replying. The wait is interrupted when the client goes away.
func (rs *RecordingServer) SetDelay(delay time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.delay = delay
}

// Requests returns all recorded requests.
func (rs *RecordingServer) Requests() []RecordedRequest {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]RecordedRequest{}, rs.requests...)
}

func (rs *RecordingServer) serveHTTP(rw http.ResponseWriter, r *http.Request) {
	receivedAt := time.Now()
	body, _ := io.ReadAll(r.Body)

	rs.mu.Lock()
	rs.requests = append(rs.requests, RecordedRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Header:     r.Header.Clone(),
		Body:       body,
		ReceivedAt: receivedAt,
	})
	statusCode, respBody, delay := rs.statusCode, rs.body, rs.delay
	rs.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	rw.WriteHeader(statusCode)
	_, _ = rw.Write(respBody)
}
