/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package crptapi provides a client for the CRPT ("Honest Sign") document API.
//
// The client never sends more than the configured number of requests within a rolling time window.
// Calls that exceed the limit block in CreateDocument until a slot frees up or their context is done.
package crptapi
