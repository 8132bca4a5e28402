// Package errors provides error handling for madtrips.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints surfaced to the UI layer
//
// Usage:
//
//	if err := pool.Connect(ctx); err != nil {
//	    return errors.Wrap(err, "failed to reach relay pool")
//	}
//
//	if errors.Is(err, errors.ErrNoRelays) {
//	    // show reconnect affordance
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
	Join   = crdb.Join
)

// Sentinel errors for the graph engine. Use with errors.Is(); wrap with
// errors.Wrap() to add context while preserving the type.
var (
	// ErrNoRelays indicates zero relay endpoints are connected after all
	// retry tiers were exhausted. The only error that surfaces to users.
	ErrNoRelays = New("no relay endpoints reachable")

	// ErrNotFound indicates a requested profile or contact list does not
	// exist on any connected relay. Not fatal: builds degrade to bare nodes.
	ErrNotFound = New("record not found")

	// ErrTimeout indicates a relay query exceeded its bound. Triggers one
	// reconnect+retry before the caller degrades to partial data.
	ErrTimeout = New("relay query timed out")

	// ErrInvalidIdentity indicates a malformed public identifier. Rejected
	// immediately, never retried.
	ErrInvalidIdentity = New("invalid identity")

	// ErrInvalidRecord indicates a relay event that failed decode/validate
	// at the transport boundary.
	ErrInvalidRecord = New("invalid record")

	// ErrCacheCorrupt indicates a cache entry that failed a sanity check.
	// Callers treat it as a miss; it never propagates.
	ErrCacheCorrupt = New("cache entry corrupt")
)
