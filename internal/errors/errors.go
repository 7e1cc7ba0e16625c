// Package errors provides centralized error handling for MarieCoder.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrCatalogFetch indicates that the marketplace catalog request failed
	// (network error or non-success HTTP status).
	ErrCatalogFetch = errors.New("marketplace catalog fetch failed")

	// ErrCatalogRequestTimeout indicates that the marketplace catalog request
	// exceeded its configured request timeout.
	ErrCatalogRequestTimeout = errors.New("marketplace request timed out")

	// ErrCatalogMalformed indicates that the marketplace catalog response body
	// could not be decoded.
	ErrCatalogMalformed = errors.New("marketplace catalog response malformed")

	// ErrPersistence indicates that a state store read or write failed.
	ErrPersistence = errors.New("state persistence failed")

	// ErrStateRecoveryFailed indicates that single-shot recovery from a
	// persistence failure did not succeed and a restart is required.
	ErrStateRecoveryFailed = errors.New("state recovery failed")

	// ErrKeyNotFound indicates that the requested key does not exist in the store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrHistoryNotFound indicates that no history item exists for a task id.
	ErrHistoryNotFound = errors.New("task history item not found")

	// ErrNoActiveTask indicates that an operation requiring an active task was
	// invoked while no task is live.
	ErrNoActiveTask = errors.New("no active task")

	// ErrCancelWaitTimeout indicates that the bounded wait during task
	// cancellation elapsed before the task reached a settled state.
	// This error is advisory: it is logged, never propagated.
	ErrCancelWaitTimeout = errors.New("cancellation wait timed out")

	// ErrLockTimeout indicates a file lock could not be acquired within the
	// timeout period.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrInvalidDuration indicates that a duration value is invalid.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidEndpoint indicates that the marketplace endpoint URL is invalid.
	ErrInvalidEndpoint = errors.New("invalid marketplace endpoint")

	// ErrValueOutOfRange indicates that a value is outside the allowed range.
	ErrValueOutOfRange = errors.New("value out of range")

	// ErrDetectorNotAvailable indicates that no root detector was provided.
	ErrDetectorNotAvailable = errors.New("root detector not available")

	// ErrWatcherClosed indicates an operation on a closed workspace watcher.
	ErrWatcherClosed = errors.New("workspace watcher closed")

	// ErrTaskFactoryNotAvailable indicates that no task factory was provided.
	ErrTaskFactoryNotAvailable = errors.New("task factory not available")
)
