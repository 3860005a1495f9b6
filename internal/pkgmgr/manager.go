// Package pkgmgr drives the external package managers a bootstrap run
// installs tools through.
//
// Every manager is reached only through its command-line interface:
//   - Homebrew via `brew`
//   - MacPorts via `port`
//   - the host system, whose tools can be located but never installed
//
// Commands are executed through a Runner so tests never shell out.
package pkgmgr

import (
	"context"
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

// Kind names a package manager.
type Kind string

const (
	Homebrew Kind = "homebrew"
	MacPorts Kind = "macports"
	System   Kind = "system"
)

// Kinds lists every supported manager in the order conflicts are checked.
var Kinds = []Kind{Homebrew, MacPorts, System}

var (
	// ErrUnavailable is returned when the manager's own binary is not present.
	ErrUnavailable = zerr.New("package manager not available")

	// ErrUnsupported is returned for operations a manager cannot perform,
	// such as installing into the host system.
	ErrUnsupported = zerr.New("operation not supported by package manager")
)

// ParseKind converts a user-supplied manager name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "homebrew", "brew":
		return Homebrew, nil
	case "macports", "port", "ports":
		return MacPorts, nil
	case "system":
		return System, nil
	default:
		return "", fmt.Errorf("unknown package manager %q (want homebrew, macports or system)", s)
	}
}

// Manager is the contract every package manager satisfies.
type Manager interface {
	Kind() Kind
	// Available reports whether the manager itself is installed.
	Available() bool
	IsInstalled(ctx context.Context, name string) (bool, error)
	Install(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	// Prefix returns the manager's installation root.
	Prefix(ctx context.Context) (string, error)
	// BinDir returns the directory holding name's executables.
	BinDir(ctx context.Context, name string) (string, error)
}

// Registry holds the managers known to a run, keyed by Kind.
type Registry struct {
	managers map[Kind]Manager
	order    []Kind
}

// NewRegistry creates a registry from managers. A later manager of the
// same Kind replaces an earlier one.
func NewRegistry(managers ...Manager) *Registry {
	r := &Registry{managers: make(map[Kind]Manager)}
	for _, m := range managers {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a manager.
func (r *Registry) Register(m Manager) {
	if _, exists := r.managers[m.Kind()]; !exists {
		r.order = append(r.order, m.Kind())
	}
	r.managers[m.Kind()] = m
}

// Get returns the manager for kind.
func (r *Registry) Get(kind Kind) (Manager, bool) {
	m, ok := r.managers[kind]
	return m, ok
}

// All returns managers in registration order.
func (r *Registry) All() []Manager {
	out := make([]Manager, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.managers[k])
	}
	return out
}

// Default builds the standard registry: Homebrew, MacPorts and the host
// system rooted at systemPrefix.
func Default(runner Runner, systemPrefix string) *Registry {
	return NewRegistry(
		NewHomebrew(runner),
		NewMacPorts(runner),
		NewSystem(systemPrefix),
	)
}
