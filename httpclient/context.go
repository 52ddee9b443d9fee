/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyRequestID
)

func getStringFromContext(ctx context.Context, key ctxKey) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// NewContextWithRequestType creates a new context with request type (e.g. "create_document").
// It overrides the request type the transports were built with.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts request type from the context.
func GetRequestTypeFromContext(ctx context.Context) string {
	return getStringFromContext(ctx, ctxKeyRequestType)
}

// NewContextWithRequestID creates a new context with request ID which will be sent in X-Request-ID header.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestIDFromContext extracts request ID from the context.
func GetRequestIDFromContext(ctx context.Context) string {
	return getStringFromContext(ctx, ctxKeyRequestID)
}

func requestTypeOrDefault(ctx context.Context, defaultType string) string {
	if reqType := GetRequestTypeFromContext(ctx); reqType != "" {
		return reqType
	}
	return defaultType
}
