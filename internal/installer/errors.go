package installer

import (
	"fmt"

	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"go.trai.ch/zerr"
)

// InstallErrorKind classifies installer failures.
type InstallErrorKind int

const (
	// ManagerUnavailable means the designated package manager is not present.
	ManagerUnavailable InstallErrorKind = iota + 1
	// InstallFailed covers failed installs, failed conflict removals and
	// tools that do not verify after installation.
	InstallFailed
)

func (k InstallErrorKind) String() string {
	switch k {
	case ManagerUnavailable:
		return "manager unavailable"
	case InstallFailed:
		return "install failed"
	default:
		return "unknown install error"
	}
}

var (
	ErrManagerUnavailable = zerr.New("package manager unavailable")
	ErrInstallFailed      = zerr.New("install failed")
)

// InstallError reports which tool and manager an installer failure concerns.
type InstallError struct {
	Kind    InstallErrorKind
	Tool    string
	Manager pkgmgr.Kind
	Err     error
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("installer: %s via %s: %s", e.Tool, e.Manager, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InstallError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels.
func (e *InstallError) Is(target error) bool {
	switch target {
	case ErrManagerUnavailable:
		return e.Kind == ManagerUnavailable
	case ErrInstallFailed:
		return e.Kind == InstallFailed
	}
	return false
}

func failed(tool string, mgr pkgmgr.Kind, err error) *InstallError {
	return &InstallError{Kind: InstallFailed, Tool: tool, Manager: mgr, Err: err}
}

func unavailable(tool string, mgr pkgmgr.Kind, err error) *InstallError {
	return &InstallError{Kind: ManagerUnavailable, Tool: tool, Manager: mgr, Err: err}
}
