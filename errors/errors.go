// Package errors provides error handling for conusflow.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack
// traces, wrapping, and rich details through a single import path.
//
// Usage:
//
//	if err := ledger.Load(); err != nil {
//	    return errors.Wrap(err, "failed to load failure ledger")
//	}
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
)

// Sentinel errors shared across conusflow.
// Use with errors.Is(); wrap with errors.Wrap() to add context while
// preserving the type.
var (
	// ErrNoData indicates the dataset has no records for the requested day
	ErrNoData = New("no data available for date")

	// ErrValidationFailed indicates a produced daily file failed QC checks
	ErrValidationFailed = New("validation failed")

	// ErrLaunch indicates a worker process could not be started
	ErrLaunch = New("failed to launch worker process")

	// ErrTimeout indicates a worker exceeded its configured deadline
	ErrTimeout = New("worker timed out")

	// ErrAssetUnavailable indicates the STAC catalog could not provide the asset
	ErrAssetUnavailable = New("dataset asset unavailable")
)

// IsValidationError checks if an error is or wraps ErrValidationFailed
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidationFailed)
}

// IsLaunchError checks if an error is or wraps ErrLaunch
func IsLaunchError(err error) bool {
	return err != nil && Is(err, ErrLaunch)
}

// IsTimeoutError checks if an error is or wraps ErrTimeout
func IsTimeoutError(err error) bool {
	return err != nil && Is(err, ErrTimeout)
}
