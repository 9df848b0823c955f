// Package errors provides error handling for guidepost.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operator-facing messages
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Classify against the pipeline taxonomy
//	if errors.Is(err, errors.ErrTransfer) {
//	    // previous published state is still intact
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithStack     = crdb.WithStack
	WithMessage   = crdb.WithMessage
	WithMessagef  = crdb.WithMessagef
	Join          = crdb.Join
	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection and classification
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	Mark          = crdb.Mark
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Assertions and panics
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Pipeline error taxonomy. Every failure surfaced by the publish pipeline
// wraps exactly one of these sentinels, so callers can decide between
// terminating the process and waiting for the next trigger with errors.Is().
var (
	// ErrConfiguration indicates invalid settings (bad schema name, unknown
	// enumeration value, out-of-range port). Fatal before any cycle runs.
	ErrConfiguration = New("invalid configuration")

	// ErrBootstrap indicates the one-time result schema creation failed. Fatal.
	ErrBootstrap = New("schema bootstrap failed")

	// ErrLoad indicates the recommendation catalog could not be loaded.
	// The current cycle is aborted; the process keeps awaiting triggers.
	ErrLoad = New("recommendation load failed")

	// ErrExecution indicates a single recommendation's evaluation failed.
	// The handle is skipped; the cycle continues with the remaining handles.
	ErrExecution = New("recommendation execution failed")

	// ErrTransfer indicates the staging-to-result transfer failed and was
	// rolled back. The previously published state is retained.
	ErrTransfer = New("result transfer failed")
)

// IsConfiguration checks if an error is or wraps ErrConfiguration.
func IsConfiguration(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsBootstrap checks if an error is or wraps ErrBootstrap.
func IsBootstrap(err error) bool {
	return err != nil && Is(err, ErrBootstrap)
}

// IsLoad checks if an error is or wraps ErrLoad.
func IsLoad(err error) bool {
	return err != nil && Is(err, ErrLoad)
}

// IsExecution checks if an error is or wraps ErrExecution.
func IsExecution(err error) bool {
	return err != nil && Is(err, ErrExecution)
}

// IsTransfer checks if an error is or wraps ErrTransfer.
func IsTransfer(err error) bool {
	return err != nil && Is(err, ErrTransfer)
}

// IsFatal reports whether an error must terminate the process rather than
// abort only the current cycle.
func IsFatal(err error) bool {
	return err != nil && IsAny(err, ErrConfiguration, ErrBootstrap)
}
