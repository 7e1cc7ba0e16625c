// Package testutil provides testing utilities for MarieCoder.
//
// This package contains mock errors and test helpers used across test files.
// It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors for testing purposes.
// These errors are used to simulate various failure scenarios in tests.
var (
	// ErrMockNetwork indicates a mock network error occurred (used in tests).
	ErrMockNetwork = errors.New("network error")

	// ErrMockStoreUnavailable indicates a mock state store is unavailable (used in tests).
	ErrMockStoreUnavailable = errors.New("state store unavailable")

	// ErrMockAbortFailed indicates a mock task abort failure (used in tests).
	ErrMockAbortFailed = errors.New("abort failed")

	// ErrMockDetectorFailed indicates a mock root detection failure (used in tests).
	ErrMockDetectorFailed = errors.New("root detection failed")

	// ErrMockPushFailed indicates a mock state push failure (used in tests).
	ErrMockPushFailed = errors.New("state push failed")

	// ErrMockListener indicates a mock event listener failure (used in tests).
	ErrMockListener = errors.New("listener failed")
)
