/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package crptapi

import (
	"fmt"

	"github.com/acronis/go-crptapi/internal/ratelimit"
)

// ErrAdmissionCancelled is returned (wrapped together with the context error)
// when the context is done before the request is admitted by the rate limiter.
var ErrAdmissionCancelled = ratelimit.ErrAdmissionCancelled

// ErrClientClosed is returned by CreateDocument after the client has been closed.
var ErrClientClosed = ratelimit.ErrAdmitterClosed

const maxErrorBodyLen = 255

// APIError is returned when the remote service responds with a non-2xx status code.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	// Body is the response body as is.
	Body string
}

// Error implements error interface.
func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen] + "..."
	}
	return fmt.Sprintf("method: [%s] url: [%s] status: [%d] body: %q", e.Method, e.URL, e.StatusCode, body)
}

// TransportError is returned when no complete response was obtained from the remote service
// (connection failure, cancellation while in flight, body read failure).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("method: [%s] url: [%s] transport error: %s", e.Method, e.URL, e.Err)
}

// Unwrap allows checking the underlying error with errors.Is and errors.As.
func (e *TransportError) Unwrap() error {
	return e.Err
}
