// Package installer makes sure each required tool is present under its
// designated package manager, removing or ignoring copies that other
// managers provide.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/blackwell-systems/bootstrap-env/internal/logger"
	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
)

// ConflictPolicy decides what happens to a tool installed by a manager other
// than the designated one.
type ConflictPolicy string

const (
	ConflictRemove ConflictPolicy = "remove"
	ConflictIgnore ConflictPolicy = "ignore"
)

// ParseConflictPolicy validates a user-supplied policy name.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case ConflictRemove, ConflictIgnore:
		return ConflictPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q (want remove or ignore)", s)
	}
}

// Journal actions recorded by the installer.
const (
	ActionInstall = "install"
	ActionRemove  = "remove"
	ActionIgnore  = "ignore"
)

// ToolSpec declares a tool a run needs.
type ToolSpec struct {
	Name string
	// Binary is the executable name; empty means Name.
	Binary string
	// RequiredVersion is a minimum version; empty accepts any.
	RequiredVersion string
	Manager         pkgmgr.Kind
}

// Executable returns the binary name to look for.
func (s ToolSpec) Executable() string {
	if s.Binary != "" {
		return s.Binary
	}
	return s.Name
}

// InstalledTool is a tool that has been verified on disk.
type InstalledTool struct {
	Spec ToolSpec
	// ResolvedPath is an existing executable under Prefix.
	ResolvedPath string
	// Version is empty when the tool does not report one.
	Version string
	Prefix  string
}

// Recorder receives installer decisions for the run journal.
type Recorder interface {
	RecordEvent(action, tool, manager, detail string) error
}

// Options configures an Installer.
type Options struct {
	Policy   ConflictPolicy
	Logger   *slog.Logger
	Recorder Recorder
	// Progress is called before a manager install starts; the returned
	// function is called when it ends.
	Progress func(msg string) (done func())
}

// Installer ensures tools through a registry of managers.
type Installer struct {
	registry *pkgmgr.Registry
	runner   pkgmgr.Runner
	policy   ConflictPolicy
	log      *slog.Logger
	recorder Recorder
	progress func(msg string) (done func())
}

// New creates an Installer. runner is used to query tool versions.
func New(registry *pkgmgr.Registry, runner pkgmgr.Runner, opts Options) *Installer {
	i := &Installer{
		registry: registry,
		runner:   runner,
		policy:   opts.Policy,
		log:      opts.Logger,
		recorder: opts.Recorder,
		progress: opts.Progress,
	}
	if i.policy == "" {
		i.policy = ConflictRemove
	}
	if i.log == nil {
		i.log = logger.Discard()
	}
	return i
}

// Ensure makes spec available under its designated manager and verifies it.
// Conflicting copies from other managers are handled according to the
// conflict policy first. Calling Ensure again for the same spec returns an
// equal InstalledTool without reinstalling.
func (i *Installer) Ensure(ctx context.Context, spec ToolSpec) (InstalledTool, error) {
	mgr, ok := i.registry.Get(spec.Manager)
	if !ok {
		return InstalledTool{}, unavailable(spec.Name, spec.Manager, fmt.Errorf("no %s manager registered", spec.Manager))
	}
	if !mgr.Available() {
		return InstalledTool{}, unavailable(spec.Name, spec.Manager, pkgmgr.ErrUnavailable)
	}

	if err := i.resolveConflicts(ctx, spec); err != nil {
		return InstalledTool{}, err
	}

	installed, err := mgr.IsInstalled(ctx, spec.Name)
	if err != nil {
		return InstalledTool{}, i.classify(spec, err)
	}

	if !installed {
		i.log.Info("installing tool", "tool", spec.Name, "manager", spec.Manager)
		done := i.startProgress(fmt.Sprintf("Installing %s via %s...", spec.Name, spec.Manager))
		err := mgr.Install(ctx, spec.Name)
		done()
		if err != nil {
			return InstalledTool{}, i.classify(spec, err)
		}
		i.record(ActionInstall, spec.Name, spec.Manager, "")
	} else {
		i.log.Debug("tool already installed", "tool", spec.Name, "manager", spec.Manager)
	}

	return i.verify(ctx, mgr, spec)
}

// resolveConflicts removes or ignores copies of spec held by every other
// available manager. The host system is never treated as a conflict.
func (i *Installer) resolveConflicts(ctx context.Context, spec ToolSpec) error {
	for _, other := range i.registry.All() {
		kind := other.Kind()
		if kind == spec.Manager || kind == pkgmgr.System || !other.Available() {
			continue
		}

		present, err := other.IsInstalled(ctx, spec.Name)
		if err != nil {
			i.log.Warn("could not check for conflicting installation",
				"tool", spec.Name, "manager", kind, "error", err)
			continue
		}
		if !present {
			continue
		}

		switch i.policy {
		case ConflictIgnore:
			i.log.Warn("conflicting installation", "action", ActionIgnore, "tool", spec.Name, "manager", kind)
			i.record(ActionIgnore, spec.Name, kind, "kept copy from "+string(kind))
		default:
			i.log.Info("conflicting installation", "action", ActionRemove, "tool", spec.Name, "manager", kind)
			done := i.startProgress(fmt.Sprintf("Removing %s from %s...", spec.Name, kind))
			err := other.Remove(ctx, spec.Name)
			done()
			if err != nil {
				return failed(spec.Name, kind, fmt.Errorf("removing conflicting copy: %w", err))
			}
			i.record(ActionRemove, spec.Name, kind, "designated manager is "+string(spec.Manager))
		}
	}
	return nil
}

func (i *Installer) verify(ctx context.Context, mgr pkgmgr.Manager, spec ToolSpec) (InstalledTool, error) {
	prefix, err := mgr.Prefix(ctx)
	if err != nil {
		return InstalledTool{}, i.classify(spec, err)
	}

	dir, err := mgr.BinDir(ctx, spec.Name)
	if err != nil {
		return InstalledTool{}, i.classify(spec, err)
	}

	path := filepath.Join(dir, spec.Executable())
	if !pkgmgr.IsExecutable(path) {
		return InstalledTool{}, failed(spec.Name, spec.Manager,
			fmt.Errorf("executable %s not found after install", path))
	}

	version, err := readVersion(ctx, i.runner, path)
	if err != nil {
		i.log.Debug("could not read tool version", "tool", spec.Name, "path", path, "error", err)
	}

	if spec.RequiredVersion != "" {
		if version == "" {
			return InstalledTool{}, failed(spec.Name, spec.Manager,
				fmt.Errorf("cannot determine version of %s (need >= %s)", path, spec.RequiredVersion))
		}
		if !satisfies(version, spec.RequiredVersion) {
			return InstalledTool{}, failed(spec.Name, spec.Manager,
				fmt.Errorf("version %s of %s does not satisfy >= %s", version, path, spec.RequiredVersion))
		}
	}

	return InstalledTool{
		Spec:         spec,
		ResolvedPath: path,
		Version:      version,
		Prefix:       prefix,
	}, nil
}

func (i *Installer) classify(spec ToolSpec, err error) error {
	if errors.Is(err, pkgmgr.ErrUnavailable) {
		return unavailable(spec.Name, spec.Manager, err)
	}
	return failed(spec.Name, spec.Manager, err)
}

func (i *Installer) record(action, tool string, mgr pkgmgr.Kind, detail string) {
	if i.recorder == nil {
		return
	}
	if err := i.recorder.RecordEvent(action, tool, string(mgr), detail); err != nil {
		i.log.Warn("failed to journal event", "action", action, "tool", tool, "error", err)
	}
}

func (i *Installer) startProgress(msg string) func() {
	if i.progress == nil {
		return func() {}
	}
	return i.progress(msg)
}
