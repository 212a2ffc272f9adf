// Copyright 2025 Lawline Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a sync error for propagation policy.
type Kind int

const (
	// KindUnknown is surfaced verbatim.
	KindUnknown Kind = iota
	// KindUnconfigured means no remote endpoint is configured. Fatal
	// until the user acts.
	KindUnconfigured
	// KindUninitialized means the remote schema or tables are absent.
	// Fatal until the user acts.
	KindUninitialized
	// KindTransient covers network failures, timeouts, rate limiting and
	// 5xx responses. Retried silently.
	KindTransient
	// KindPermission is an authorization denial. Surfaced, not retried.
	KindPermission
	// KindValidation marks a malformed record. The record is dropped and
	// the cycle continues.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnconfigured:
		return "unconfigured"
	case KindUninitialized:
		return "uninitialized"
	case KindTransient:
		return "transient"
	case KindPermission:
		return "permission"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified remote-interaction error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the error kind, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the error should be retried with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
