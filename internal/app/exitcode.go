package app

import (
	"errors"
	"os/exec"

	"github.com/blackwell-systems/bootstrap-env/internal/envplan"
	"github.com/blackwell-systems/bootstrap-env/internal/installer"
	"github.com/blackwell-systems/bootstrap-env/internal/toolchain"
)

// Exit codes for scripting. A failed build command exits with its own code.
const (
	ExitOK                 = 0
	ExitError              = 1
	ExitManagerUnavailable = 10
	ExitInstallFailed      = 11
	ExitAmbiguous          = 20
	ExitMissing            = 21
	ExitInvalidAssignment  = 30
)

// ExitCode maps an error returned by Execute to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
		return ExitError
	}

	switch {
	case errors.Is(err, installer.ErrManagerUnavailable):
		return ExitManagerUnavailable
	case errors.Is(err, installer.ErrInstallFailed):
		return ExitInstallFailed
	case errors.Is(err, toolchain.ErrAmbiguous):
		return ExitAmbiguous
	case errors.Is(err, toolchain.ErrMissing):
		return ExitMissing
	case errors.Is(err, envplan.ErrInvalidAssignment):
		return ExitInvalidAssignment
	}
	return ExitError
}
