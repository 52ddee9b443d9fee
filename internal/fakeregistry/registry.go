/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package fakeregistry

import (
	"encoding/json"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/acronis/go-crptapi/crptapi"
	"github.com/acronis/go-crptapi/internal/ratelimit"
	"github.com/acronis/go-crptapi/log"
)

const maxRequestBodySize = 1 << 20

// AcceptedDocument is a submission accepted by the registry.
type AcceptedDocument struct {
	ID         string
	Submission crptapi.SignedSubmission
	AcceptedAt time.Time
}

type errorResponse struct {
	ErrorMessage string `json:"error_message"`
}

type createResponse struct {
	Value string `json:"value"`
}

type registry struct {
	limit   ratelimit.Rate
	metrics *PrometheusMetrics
	logger  log.FieldLogger

	mu        sync.Mutex
	tracker   *ratelimit.WindowTracker
	documents []AcceptedDocument
}

func newRegistry(limit ratelimit.Rate, metrics *PrometheusMetrics, logger log.FieldLogger) *registry {
	return &registry{
		limit:   limit,
		metrics: metrics,
		logger:  logger,
		tracker: ratelimit.NewWindowTracker(limit.Count),
	}
}

// allow checks the request against the registry limit the same way the remote service does:
// a request is rejected if limit.Count requests were already received within the last limit.Duration.
func (reg *registry) allow(now time.Time) bool {
	if reg.limit.Count == 0 {
		return true
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.tracker.EvictExpired(now, reg.limit.Duration)
	if reg.tracker.Size() >= reg.limit.Count {
		return false
	}
	reg.tracker.RecordAdmission(now)
	return true
}

func (reg *registry) createDocument(rw http.ResponseWriter, r *http.Request) {
	now := time.Now()
	logger := reg.logger.With(log.String("request_id", r.Header.Get("X-Request-ID")))

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		reg.respond(rw, http.StatusUnsupportedMediaType,
			errorResponse{ErrorMessage: "content type should be application/json"}, logger)
		return
	}

	var submission crptapi.SignedSubmission
	decoder := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&submission); err != nil {
		reg.respond(rw, http.StatusBadRequest, errorResponse{ErrorMessage: "invalid request body: " + err.Error()}, logger)
		return
	}
	if submission.Signature == "" {
		reg.respond(rw, http.StatusBadRequest, errorResponse{ErrorMessage: "signature is required"}, logger)
		return
	}

	// Only well-formed submissions count against the limit; the arrival time is what's recorded.
	if !reg.allow(now) {
		logger.Warn("document rejected, rate limit exceeded", log.String("limit", reg.limit.String()))
		reg.respond(rw, http.StatusTooManyRequests, errorResponse{ErrorMessage: "too many requests"}, logger)
		return
	}

	doc := AcceptedDocument{ID: xid.New().String(), Submission: submission, AcceptedAt: now}
	reg.mu.Lock()
	reg.documents = append(reg.documents, doc)
	reg.mu.Unlock()

	logger.Info("document accepted", log.String("id", doc.ID), log.String("doc_id", submission.Document.DocID))
	reg.respond(rw, http.StatusOK, createResponse{Value: doc.ID}, logger)
}

func (reg *registry) respond(rw http.ResponseWriter, status int, data interface{}, logger log.FieldLogger) {
	reg.metrics.incRequests(status)
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(data); err != nil {
		logger.Error("failed to write response", log.Error(err))
	}
}

func (reg *registry) accepted() []AcceptedDocument {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return append([]AcceptedDocument{}, reg.documents...)
}
