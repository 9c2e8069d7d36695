package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrInvalidState        = errors.New("invalid state")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrDuplicateSubmission = errors.New("duplicate submission")
)

// StateReason tags an ErrInvalidState failure with the specific lifecycle
// violation, so callers can surface an actionable message ("event has
// ended", "nothing to finalize") instead of a generic failure.
type StateReason string

const (
	ReasonNotActive         StateReason = "not_active"
	ReasonExpired           StateReason = "expired"
	ReasonAlreadyFinalized  StateReason = "already_finalized"
	ReasonAlreadyEnded      StateReason = "already_ended"
	ReasonEndTimeNotReached StateReason = "end_time_not_reached"
	ReasonTargetNotReached  StateReason = "target_time_not_reached"
	ReasonStillActive       StateReason = "still_active"
	ReasonNoSubmissions     StateReason = "no_submissions"
	ReasonAlreadyRequested  StateReason = "decryption_already_requested"
)

// StateError is an ErrInvalidState carrying its reason tag. It matches
// ErrInvalidState under errors.Is.
type StateError struct {
	Reason StateReason
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: %s", e.Reason)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// NewStateError builds an invalid-state error tagged with reason.
func NewStateError(reason StateReason) error {
	return &StateError{Reason: reason}
}

// ReasonOf extracts the state reason from err, or "" when err is not a
// StateError.
func ReasonOf(err error) StateReason {
	var se *StateError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}
