package schemas

import (
	"fmt"
)

// The error taxonomy is deliberately small and closed: the HTTP boundary maps
// every kind to a status code, so each failure mode surfaced by the core must
// be one of these types (or wrap one).

// InvalidInputError rejects an empty, blank or absent prompt. It is never
// retried and always surfaces before any resource acquisition.
type InvalidInputError struct{}

func (e *InvalidInputError) Error() string { return "Empty prompt not allowed" }

// ClassificationError reports a failure of the delegated (LLM-backed)
// classification or extraction path. It is always recovered locally by
// falling back to the deterministic classifier and never surfaces to callers;
// the type exists so the fallback sites can log what went wrong.
type ClassificationError struct {
	Stage string // "classify" or "extract"
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("delegated %s failed: %v", e.Stage, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ExecutorConnectivityError is a single-attempt connection failure. Transient
// failures (timeouts, connection refused) are retried per the backoff policy;
// a non-transient failure means the executor is not running at all and
// short-circuits the remaining retries.
type ExecutorConnectivityError struct {
	Transient bool
	Err       error
}

func (e *ExecutorConnectivityError) Error() string {
	if e.Transient {
		return fmt.Sprintf("executor connection failed (transient): %v", e.Err)
	}
	return fmt.Sprintf("executor not running: %v", e.Err)
}

func (e *ExecutorConnectivityError) Unwrap() error { return e.Err }

// ExecutorUnavailableError reports that both the persistent and fallback
// connection paths are exhausted. It embeds both underlying causes and a
// human-readable remediation hint.
type ExecutorUnavailableError struct {
	PersistentErr      error
	FallbackErr        error
	PersistentAttempts int
	Hint               string
}

func (e *ExecutorUnavailableError) Error() string {
	return fmt.Sprintf(
		"automation executor unavailable: persistent session failed after %d attempt(s) (%v); fallback session failed (%v)",
		e.PersistentAttempts, e.PersistentErr, e.FallbackErr,
	)
}

func (e *ExecutorUnavailableError) Unwrap() error { return e.PersistentErr }

// HarvestExecutionError wraps any unclassified failure during agent dispatch,
// so callers can distinguish known failure kinds from unexpected ones.
type HarvestExecutionError struct {
	Err error
}

func (e *HarvestExecutionError) Error() string {
	return fmt.Sprintf("harvest execution failed: %v", e.Err)
}

func (e *HarvestExecutionError) Unwrap() error { return e.Err }

// RecordValidationError marks a single malformed result record. The record is
// dropped with a warning; the overall harvest call still succeeds.
type RecordValidationError struct {
	MissingFields []string
	Reason        string
}

func (e *RecordValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing required fields"
	}
	return fmt.Sprintf("invalid record (%s): %v", reason, e.MissingFields)
}
