package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the augmentation pipeline.
var (
	// ErrOutOfOrder is returned by the supplementary store when an append
	// carries a timestamp at or before the latest stored record. The
	// affected interval is skipped and never retried.
	ErrOutOfOrder = errors.New("record timestamp out of order")

	// ErrSchemaVersion is returned when the on-disk schema version does not
	// match the version this binary writes. Fatal at startup.
	ErrSchemaVersion = errors.New("incompatible supplementary schema version")

	// ErrStoreUnavailable wraps persistence failures during append. The
	// interval is lost for supplementary purposes; the host archive is
	// unaffected.
	ErrStoreUnavailable = errors.New("supplementary store unavailable")

	// ErrAdapter marks a failed or timed-out third-party source. Treated as
	// absent data, never fatal.
	ErrAdapter = errors.New("adapter source failed")
)

// ComputationError records a single derived field that could not be computed.
// Other fields of the same record still compute; the failing one is absent.
type ComputationError struct {
	Field  Field
	Time   time.Time
	Inputs map[ObsType]float64
	Err    error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computing %s at %s: %v", e.Field, e.Time.Format(time.RFC3339), e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }
