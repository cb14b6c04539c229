package domain

import "errors"

// Sentinel errors shared across pipeline stages. Configuration and
// degeneracy errors are fatal: the pipeline halts before a corrupted label
// set can reach persistence.
var (
	// ErrInvalidInput marks malformed requests or configuration.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataQuality marks per-record ledger defects (missing timestamp,
	// NaN amount, empty customer id). Always reported with row context.
	ErrDataQuality = errors.New("data quality error")

	// ErrDegenerate marks clustering input that cannot support the
	// configured k (too few customers or too few distinct RFM points).
	ErrDegenerate = errors.New("degenerate clustering input")

	// ErrZeroVariance marks a feature with a single distinct value, which
	// cannot be meaningfully binned or scaled.
	ErrZeroVariance = errors.New("zero-variance feature")

	// ErrSingleClass marks a proxy label with only one class present, for
	// which WoE is undefined.
	ErrSingleClass = errors.New("single-class target")

	// ErrFrozen marks an attempt to mutate a frozen artifact bundle.
	ErrFrozen = errors.New("artifact bundle is frozen")
)
