package toolchain

import (
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

// ResolutionErrorKind classifies resolver failures.
type ResolutionErrorKind int

const (
	// Ambiguous means several candidates remain for a role after every
	// tie-break rule.
	Ambiguous ResolutionErrorKind = iota + 1
	// Missing means no usable candidate exists for a required role.
	Missing
)

func (k ResolutionErrorKind) String() string {
	switch k {
	case Ambiguous:
		return "ambiguous"
	case Missing:
		return "missing"
	default:
		return "unknown resolution error"
	}
}

var (
	ErrAmbiguous = zerr.New("ambiguous toolchain role")
	ErrMissing   = zerr.New("missing toolchain role")
)

// ResolutionError names the role that could not be resolved.
type ResolutionError struct {
	Kind       ResolutionErrorKind
	Role       Role
	Binary     string
	Candidates []string
	Detail     string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("toolchain: %s %s (%s)", e.Kind, e.Role, e.Binary)
	if len(e.Candidates) > 0 {
		msg += ": candidates " + strings.Join(e.Candidates, ", ")
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is lets errors.Is match the kind sentinels.
func (e *ResolutionError) Is(target error) bool {
	switch target {
	case ErrAmbiguous:
		return e.Kind == Ambiguous
	case ErrMissing:
		return e.Kind == Missing
	}
	return false
}
