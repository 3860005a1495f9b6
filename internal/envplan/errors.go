package envplan

import (
	"fmt"

	"go.trai.ch/zerr"
)

// PlanErrorKind classifies environment plan failures.
type PlanErrorKind int

const (
	// InvalidAssignment means a key or value cannot be stored in a process
	// environment, or a key was assigned twice.
	InvalidAssignment PlanErrorKind = iota + 1
)

func (k PlanErrorKind) String() string {
	switch k {
	case InvalidAssignment:
		return "invalid assignment"
	default:
		return "unknown plan error"
	}
}

// ErrInvalidAssignment matches any PlanError of kind InvalidAssignment.
var ErrInvalidAssignment = zerr.New("invalid assignment")

// PlanError is returned when an environment plan cannot be built or applied.
type PlanError struct {
	Kind   PlanErrorKind
	Key    string
	Reason string
	Err    error
}

func (e *PlanError) Error() string {
	msg := fmt.Sprintf("environment plan: %s for %q: %s", e.Kind, e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlanError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinel.
func (e *PlanError) Is(target error) bool {
	return e.Kind == InvalidAssignment && target == ErrInvalidAssignment
}

func invalid(key, reason string, err error) *PlanError {
	return &PlanError{Kind: InvalidAssignment, Key: key, Reason: reason, Err: err}
}
