/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides admission control for outgoing calls that must not exceed
// a fixed number of requests within any sliding time window.
//
// SlidingLogAdmitter is the exact implementation: it keeps a log of admission timestamps
// (WindowTracker), blocks callers while the window is full and is woken by a background
// eviction worker that prunes timestamps older than the window.
//
// SlidingWindowLimiter and LeakyBucketLimiter are approximate, constant-memory alternatives
// implementing the non-blocking Limiter interface. WaitingAdmitter turns any Limiter into a blocking Admitter.
package ratelimit
