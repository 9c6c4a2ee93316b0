package domain

import "fmt"

// FaultKind classifies runtime faults surfaced to callers.
type FaultKind string

const (
	FaultAdapterUnavailable FaultKind = "adapter_unavailable"
	FaultCalibrationMissing FaultKind = "calibration_missing"
	FaultBufferOverflow     FaultKind = "buffer_overflow"
	FaultSessionCancelled   FaultKind = "session_cancelled"
	FaultInvalidConfig      FaultKind = "invalid_config"
)

// Fault is a structured error carrying the fault kind and, where one
// applies, the signal source it originated from.
type Fault struct {
	Kind     FaultKind
	SourceID string
	Err      error
}

func (f *Fault) Error() string {
	if f.SourceID != "" {
		if f.Err != nil {
			return fmt.Sprintf("%s (source %s): %v", f.Kind, f.SourceID, f.Err)
		}
		return fmt.Sprintf("%s (source %s)", f.Kind, f.SourceID)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

func (f *Fault) Unwrap() error { return f.Err }

// NewFault wraps err with a kind and originating source.
func NewFault(kind FaultKind, sourceID string, err error) *Fault {
	return &Fault{Kind: kind, SourceID: sourceID, Err: err}
}

// FaultKindOf extracts the kind from err, or "" if err carries no Fault.
func FaultKindOf(err error) FaultKind {
	for err != nil {
		if f, ok := err.(*Fault); ok {
			return f.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
