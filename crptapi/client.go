/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package crptapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acronis/go-crptapi/httpclient"
	"github.com/acronis/go-crptapi/internal/ratelimit"
	"github.com/acronis/go-crptapi/log"
)

// RequestTypeCreateDocument is the request type reported in logs and metrics of the HTTP transport.
const RequestTypeCreateDocument = "create_document"

// Clock provides the current time to the rate limiter.
type Clock = ratelimit.Clock

// Opts represents options for NewWithOpts.
type Opts struct {
	// Logger is used for logging of the client, its rate limiter and HTTP transport.
	// Nothing is logged if nil.
	Logger log.FieldLogger

	// HTTPClient is used for sending requests.
	// If nil, a client built from Config.Client by httpclient.NewWithOpts is used.
	HTTPClient *http.Client

	// TransportMetrics collects metrics of outgoing HTTP requests when Config.Client.Metrics is enabled.
	// It's ignored if HTTPClient is set.
	TransportMetrics httpclient.MetricsCollector

	LimiterMetrics LimiterMetricsCollector
	Metrics        MetricsCollector

	// Clock is used by the rate limiter. The real clock is used if nil.
	Clock Clock
}

// Client submits documents to the registry and limits the rate of submissions.
// It's safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	admitter   ratelimit.Admitter
	logger     log.FieldLogger
	metrics    MetricsCollector
}

// New creates a new Client with the given configuration.
func New(cfg *Config) (*Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithLimit creates a new Client for the default endpoint
// that sends at most maxRequests requests within any window.
func NewWithLimit(window time.Duration, maxRequests int) (*Client, error) {
	cfg := NewDefaultConfig()
	cfg.Limiter.Window = window
	cfg.Limiter.MaxRequests = maxRequests
	return New(cfg)
}

// NewWithOpts creates a new Client with the given configuration and options.
// The background eviction of the rate limiter is started, so Close should be called when the client isn't needed.
func NewWithOpts(cfg *Config, opts Opts) (*Client, error) {
	if err := validateEndpoint(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		clientCfg := cfg.Client
		if clientCfg == nil {
			clientCfg = httpclient.NewDefaultConfig()
		}
		var err error
		if httpClient, err = httpclient.NewWithOpts(clientCfg, httpclient.Opts{
			RequestType: RequestTypeCreateDocument,
			Logger:      opts.Logger,
			Collector:   opts.TransportMetrics,
		}); err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
	}

	admitter, err := newAdmitter(cfg.Limiter, opts)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: httpClient,
		admitter:   admitter,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

func newAdmitter(cfg LimiterConfig, opts Opts) (ratelimit.Admitter, error) {
	maxRate := ratelimit.Rate{Count: cfg.MaxRequests, Duration: cfg.Window}
	logger := opts.Logger.With(log.String("rate_limit", maxRate.String()))

	var limiter ratelimit.Limiter
	var err error
	switch cfg.Algorithm {
	case LimiterAlgorithmSlidingLog, "":
		return ratelimit.NewSlidingLogAdmitterWithOpts(maxRate, ratelimit.SlidingLogAdmitterOpts{
			EvictionInterval: cfg.EvictionInterval,
			Clock:            opts.Clock,
			Logger:           logger,
			MetricsCollector: opts.LimiterMetrics,
		})
	case LimiterAlgorithmSlidingWindow:
		limiter, err = ratelimit.NewSlidingWindowLimiterWithOpts(maxRate,
			ratelimit.SlidingWindowLimiterOpts{Clock: opts.Clock})
	case LimiterAlgorithmLeakyBucket:
		limiter, err = ratelimit.NewLeakyBucketLimiter(maxRate)
	default:
		return nil, fmt.Errorf("unknown limiter algorithm %q", cfg.Algorithm)
	}
	if err != nil {
		return nil, err
	}
	return ratelimit.NewWaitingAdmitterWithOpts(limiter, ratelimit.WaitingAdmitterOpts{
		Clock:            opts.Clock,
		Logger:           logger,
		MetricsCollector: opts.LimiterMetrics,
	}), nil
}

// CreateDocument submits the signed document and returns the response body of the registry as is.
//
// The call blocks while the rate limit is reached. If ctx is done first, the returned error wraps
// ErrAdmissionCancelled and ctx.Err(), and nothing is sent. A non-2xx response is returned as *APIError,
// a failure to get a response as *TransportError. A consumed slot is never given back, even if the request fails.
func (c *Client) CreateDocument(ctx context.Context, doc Document, signature string) (string, error) {
	body, err := json.Marshal(SignedSubmission{Document: doc, Signature: signature})
	if err != nil {
		return "", fmt.Errorf("marshal signed submission: %w", err)
	}

	if err = c.admitter.Admit(ctx); err != nil {
		c.metrics.ObserveSubmission(admissionFailureOutcome(err), 0)
		return "", fmt.Errorf("admit document submission: %w", err)
	}

	startTime := time.Now()
	result, err := c.submit(ctx, body)
	elapsed := time.Since(startTime)

	var apiErr *APIError
	switch {
	case err == nil:
		c.metrics.ObserveSubmission(SubmissionOutcomeSuccess, elapsed)
	case errors.As(err, &apiErr):
		c.metrics.ObserveSubmission(SubmissionOutcomeAPIError, elapsed)
		c.logger.Error("document submission rejected",
			log.String("doc_id", doc.DocID), log.Int("status", apiErr.StatusCode))
	default:
		c.metrics.ObserveSubmission(SubmissionOutcomeTransportError, elapsed)
		c.logger.Error("document submission failed", log.String("doc_id", doc.DocID), log.Error(err))
	}
	return result, err
}

func admissionFailureOutcome(err error) SubmissionOutcome {
	switch {
	case errors.Is(err, ErrAdmissionCancelled):
		return SubmissionOutcomeAdmissionCancelled
	case errors.Is(err, ErrClientClosed):
		return SubmissionOutcomeClientClosed
	}
	return SubmissionOutcomeAdmissionFailed
}

func (c *Client) submit(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Method: http.MethodPost, URL: c.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Method: req.Method, URL: c.endpoint, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("failed to close response body", log.Error(closeErr))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Method: req.Method, URL: c.endpoint, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &APIError{Method: req.Method, URL: c.endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return string(respBody), nil
}

// Close stops the background eviction of the rate limiter.
// Blocked and subsequent CreateDocument calls fail with ErrClientClosed. It's safe to call Close multiple times.
func (c *Client) Close() error {
	return c.admitter.Close()
}
