package pkgmgr

import (
	"context"
	"path/filepath"

	"go.trai.ch/zerr"
)

// DefaultSystemPrefix is the root host-provided tools live under.
const DefaultSystemPrefix = "/usr"

// SystemManager represents tools that ship with the host, such as the
// Xcode command line tools under /usr/bin. It can locate them but never
// installs or removes anything.
type SystemManager struct {
	prefix string
}

// NewSystem returns a system manager rooted at prefix. An empty prefix
// means DefaultSystemPrefix.
func NewSystem(prefix string) *SystemManager {
	if prefix == "" {
		prefix = DefaultSystemPrefix
	}
	return &SystemManager{prefix: filepath.Clean(prefix)}
}

// Kind implements Manager.
func (s *SystemManager) Kind() Kind { return System }

// Available always reports true.
func (s *SystemManager) Available() bool { return true }

// IsInstalled reports whether prefix/bin/name is an executable.
func (s *SystemManager) IsInstalled(_ context.Context, name string) (bool, error) {
	return IsExecutable(filepath.Join(s.prefix, "bin", name)), nil
}

// Install fails: host tools come with the operating system.
func (s *SystemManager) Install(_ context.Context, name string) error {
	return zerr.With(zerr.Wrap(ErrUnsupported, "system tools cannot be installed"), "tool", name)
}

// Remove fails: host tools are never removed.
func (s *SystemManager) Remove(_ context.Context, name string) error {
	return zerr.With(zerr.Wrap(ErrUnsupported, "system tools cannot be removed"), "tool", name)
}

// BinDir implements Manager.
func (s *SystemManager) BinDir(context.Context, string) (string, error) {
	return filepath.Join(s.prefix, "bin"), nil
}

// Prefix implements Manager.
func (s *SystemManager) Prefix(context.Context) (string, error) {
	return s.prefix, nil
}
