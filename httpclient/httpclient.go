/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds *http.Client with a chain of round trippers for outgoing requests:
// request ID, user agent, client-side smoothing, metrics and logging.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/acronis/go-crptapi/log"
)

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// UserAgent is a user agent string. The library's one is used if empty.
	UserAgent string

	// RequestType is a type of request, e.g. "create_document".
	RequestType string

	// Delegate is the next RoundTripper in the chain. A clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	// Logger is used by the logging round tripper if LoggerProvider is not set.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector.
	Collector MetricsCollector
}

// New wraps delegate transports with logging, metrics, rate limiting, user agent and request id
// and returns an error if any occurs.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must is like New but panics if any error occurs.
func Must(cfg *Config) *http.Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// NewWithOpts wraps delegate transports in accordance with configuration and options.
// The outermost round tripper sets the request ID, so it's available for logging.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Logger.Enabled {
		logOpts := cfg.Logger.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		if logOpts.LoggerProvider == nil && opts.Logger != nil {
			logger := opts.Logger
			logOpts.LoggerProvider = func(context.Context) log.FieldLogger { return logger }
		}
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, logOpts)
	}

	if cfg.Metrics.Enabled {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	if cfg.RateLimits.Enabled {
		var err error
		if delegate, err = NewRateLimitingRoundTripperWithOpts(
			delegate, cfg.RateLimits.Limit, cfg.RateLimits.TransportOpts(),
		); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)

	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout}, nil
}

// MustWithOpts is like NewWithOpts but panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
