package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MacPortsManager drives the `port` command. MacPorts installs into a
// root-owned prefix, so mutating commands run through `sudo -n` unless
// UseSudo is off.
type MacPortsManager struct {
	runner  Runner
	bin     string
	UseSudo bool
}

// NewMacPorts returns a MacPorts manager that runs commands through runner.
func NewMacPorts(runner Runner) *MacPortsManager {
	return &MacPortsManager{runner: runner, bin: "port", UseSudo: true}
}

// Kind implements Manager.
func (m *MacPortsManager) Kind() Kind { return MacPorts }

// Available implements Manager.
func (m *MacPortsManager) Available() bool {
	_, err := m.runner.LookPath(m.bin)
	return err == nil
}

// IsInstalled reports whether an active version of port name exists.
func (m *MacPortsManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	if !m.Available() {
		return false, ErrUnavailable
	}

	// `port installed` exits non-zero when the port is unknown.
	output, err := m.runner.Output(ctx, m.bin, "-q", "installed", name)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return false, nil
		}
		return false, fmt.Errorf("port installed %s failed: %w", name, err)
	}

	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == name && strings.Contains(line, "(active)") {
			return true, nil
		}
	}
	return false, nil
}

// Install runs `port -N install name`.
func (m *MacPortsManager) Install(ctx context.Context, name string) error {
	if !m.Available() {
		return ErrUnavailable
	}
	name0, args := m.command("-N", "install", name)
	output, err := m.runner.CombinedOutput(ctx, name0, args...)
	if err != nil {
		return fmt.Errorf("port install %s failed: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Remove runs `port -N uninstall name`.
func (m *MacPortsManager) Remove(ctx context.Context, name string) error {
	if !m.Available() {
		return ErrUnavailable
	}
	name0, args := m.command("-N", "uninstall", name)
	output, err := m.runner.CombinedOutput(ctx, name0, args...)
	if err != nil {
		return fmt.Errorf("port uninstall %s failed: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Prefix derives the MacPorts root from the location of the port binary,
// normally /opt/local.
func (m *MacPortsManager) Prefix(ctx context.Context) (string, error) {
	path, err := m.runner.LookPath(m.bin)
	if err != nil {
		return "", ErrUnavailable
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return filepath.Dir(filepath.Dir(path)), nil
}

// BinDir returns prefix/bin, where every port links its executables.
func (m *MacPortsManager) BinDir(ctx context.Context, _ string) (string, error) {
	prefix, err := m.Prefix(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(prefix, "bin"), nil
}

func (m *MacPortsManager) command(args ...string) (string, []string) {
	if m.UseSudo {
		return "sudo", append([]string{"-n", m.bin}, args...)
	}
	return m.bin, args
}
