package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeManager installs tools by writing executables under prefix/bin.
type fakeManager struct {
	t          *testing.T
	kind       pkgmgr.Kind
	available  bool
	prefix     string
	installErr error
	removeErr  error
	installs   []string
	removes    []string
	// kegOnly formulae live under prefix/opt/<name>/bin.
	kegOnly map[string]bool
}

func newFakeManager(t *testing.T, kind pkgmgr.Kind) *fakeManager {
	t.Helper()
	prefix := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "bin"), 0o755))
	return &fakeManager{t: t, kind: kind, available: true, prefix: prefix}
}

func (m *fakeManager) put(name string) {
	m.t.Helper()
	require.NoError(m.t, os.WriteFile(filepath.Join(m.prefix, "bin", name), []byte("#!/bin/sh\n"), 0o755))
}

func (m *fakeManager) Kind() pkgmgr.Kind { return m.kind }
func (m *fakeManager) Available() bool   { return m.available }

func (m *fakeManager) IsInstalled(_ context.Context, name string) (bool, error) {
	if !m.available {
		return false, pkgmgr.ErrUnavailable
	}
	path := filepath.Join(m.prefix, "bin", name)
	if m.kegOnly[name] {
		path = filepath.Join(m.prefix, "opt", name)
	}
	_, err := os.Stat(path)
	return err == nil, nil
}

func (m *fakeManager) Install(_ context.Context, name string) error {
	m.installs = append(m.installs, name)
	if m.installErr != nil {
		return m.installErr
	}
	m.put(name)
	return nil
}

func (m *fakeManager) Remove(_ context.Context, name string) error {
	m.removes = append(m.removes, name)
	if m.removeErr != nil {
		return m.removeErr
	}
	return os.Remove(filepath.Join(m.prefix, "bin", name))
}

func (m *fakeManager) Prefix(context.Context) (string, error) { return m.prefix, nil }

func (m *fakeManager) BinDir(_ context.Context, name string) (string, error) {
	if m.kegOnly[name] {
		return filepath.Join(m.prefix, "opt", name, "bin"), nil
	}
	return filepath.Join(m.prefix, "bin"), nil
}

// versionRunner answers `<path> --version` from a table.
type versionRunner map[string]string

func (r versionRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.CombinedOutput(ctx, name, args...)
}

func (r versionRunner) CombinedOutput(_ context.Context, name string, args ...string) ([]byte, error) {
	if out, ok := r[name]; ok {
		return []byte(out), nil
	}
	return nil, &pkgmgr.CommandError{Name: name, Args: args, ExitCode: 1, Stderr: "illegal option"}
}

func (r versionRunner) LookPath(file string) (string, error) {
	return "", errors.New("not found")
}

type event struct {
	Action, Tool, Manager, Detail string
}

type memRecorder struct {
	events []event
}

func (r *memRecorder) RecordEvent(action, tool, manager, detail string) error {
	r.events = append(r.events, event{action, tool, manager, detail})
	return nil
}

type fixture struct {
	brew     *fakeManager
	ports    *fakeManager
	system   *fakeManager
	runner   versionRunner
	recorder *memRecorder
	logs     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		brew:     newFakeManager(t, pkgmgr.Homebrew),
		ports:    newFakeManager(t, pkgmgr.MacPorts),
		system:   newFakeManager(t, pkgmgr.System),
		runner:   versionRunner{},
		recorder: &memRecorder{},
		logs:     &bytes.Buffer{},
	}
}

func (f *fixture) installer(policy ConflictPolicy) *Installer {
	reg := pkgmgr.NewRegistry(f.brew, f.ports, f.system)
	return New(reg, f.runner, Options{
		Policy:   policy,
		Logger:   slog.New(slog.NewJSONHandler(f.logs, nil)),
		Recorder: f.recorder,
	})
}

func (f *fixture) logRecords(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(f.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

var cmake = ToolSpec{Name: "cmake", Manager: pkgmgr.Homebrew}

func TestEnsure_InstallsUnderManagerPrefix(t *testing.T) {
	f := newFixture(t)
	f.runner[filepath.Join(f.brew.prefix, "bin", "cmake")] = "cmake version 3.28.1\n\nCMake suite maintained by Kitware"

	tool, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	require.NoError(t, err)

	assert.Equal(t, []string{"cmake"}, f.brew.installs)
	assert.Equal(t, filepath.Join(f.brew.prefix, "bin", "cmake"), tool.ResolvedPath)
	assert.True(t, strings.HasPrefix(tool.ResolvedPath, tool.Prefix))
	assert.Equal(t, "3.28.1", tool.Version)
	assert.Equal(t, cmake, tool.Spec)
	assert.Equal(t, []event{{ActionInstall, "cmake", "homebrew", ""}}, f.recorder.events)
}

func TestEnsure_KegOnlyFormula(t *testing.T) {
	f := newFixture(t)
	f.brew.kegOnly = map[string]bool{"llvm": true}
	kegBin := filepath.Join(f.brew.prefix, "opt", "llvm", "bin")
	require.NoError(t, os.MkdirAll(kegBin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(kegBin, "clang"), []byte("#!/bin/sh\n"), 0o755))
	llvm := ToolSpec{Name: "llvm", Binary: "clang", Manager: pkgmgr.Homebrew}

	tool, err := f.installer(ConflictRemove).Ensure(context.Background(), llvm)
	require.NoError(t, err)

	assert.Empty(t, f.brew.installs)
	assert.Equal(t, filepath.Join(kegBin, "clang"), tool.ResolvedPath)
	assert.Equal(t, f.brew.prefix, tool.Prefix)
}

func TestEnsure_Idempotent(t *testing.T) {
	f := newFixture(t)
	inst := f.installer(ConflictRemove)
	ctx := context.Background()

	first, err := inst.Ensure(ctx, cmake)
	require.NoError(t, err)
	second, err := inst.Ensure(ctx, cmake)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"cmake"}, f.brew.installs, "second call must not reinstall")
}

func TestEnsure_AlreadyPresentIsNotReinstalled(t *testing.T) {
	f := newFixture(t)
	f.brew.put("cmake")

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	require.NoError(t, err)
	assert.Empty(t, f.brew.installs)
	assert.Empty(t, f.recorder.events)
}

func TestEnsure_ManagerUnavailable(t *testing.T) {
	f := newFixture(t)
	f.brew.available = false

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	var instErr *InstallError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, ManagerUnavailable, instErr.Kind)
	assert.Equal(t, "cmake", instErr.Tool)
	assert.ErrorIs(t, err, ErrManagerUnavailable)
	assert.NotErrorIs(t, err, ErrInstallFailed)
}

func TestEnsure_UnregisteredManager(t *testing.T) {
	f := newFixture(t)
	inst := New(pkgmgr.NewRegistry(f.system), f.runner, Options{})

	_, err := inst.Ensure(context.Background(), cmake)
	assert.ErrorIs(t, err, ErrManagerUnavailable)
}

func TestEnsure_InstallFailed(t *testing.T) {
	f := newFixture(t)
	f.brew.installErr = errors.New("brew install cmake failed: exit status 1")

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	var instErr *InstallError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, InstallFailed, instErr.Kind)
	assert.Equal(t, pkgmgr.Homebrew, instErr.Manager)
	assert.Contains(t, err.Error(), "cmake")
	assert.ErrorIs(t, err, ErrInstallFailed)
}

func TestEnsure_ConflictRemovedAndLogged(t *testing.T) {
	f := newFixture(t)
	f.ports.put("cmake")

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	require.NoError(t, err)

	assert.Equal(t, []string{"cmake"}, f.ports.removes)
	assert.Equal(t, []string{"cmake"}, f.brew.installs)
	require.NotEmpty(t, f.recorder.events)
	assert.Equal(t, event{ActionRemove, "cmake", "macports", "designated manager is homebrew"}, f.recorder.events[0])

	var found bool
	for _, rec := range f.logRecords(t) {
		if rec["action"] == ActionRemove && rec["tool"] == "cmake" && rec["manager"] == "macports" {
			found = true
		}
	}
	assert.True(t, found, "removal must be logged as a structured event")
}

func TestEnsure_ConflictIgnored(t *testing.T) {
	f := newFixture(t)
	f.ports.put("cmake")

	_, err := f.installer(ConflictIgnore).Ensure(context.Background(), cmake)
	require.NoError(t, err)

	assert.Empty(t, f.ports.removes)
	assert.Equal(t, ActionIgnore, f.recorder.events[0].Action)
	assert.Equal(t, "macports", f.recorder.events[0].Manager)
}

func TestEnsure_ConflictRemovalFailure(t *testing.T) {
	f := newFixture(t)
	f.ports.put("cmake")
	f.ports.removeErr = errors.New("port uninstall cmake failed")

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	var instErr *InstallError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, InstallFailed, instErr.Kind)
	assert.Equal(t, pkgmgr.MacPorts, instErr.Manager)
	assert.Empty(t, f.brew.installs)
}

func TestEnsure_SystemCopyIsNotAConflict(t *testing.T) {
	f := newFixture(t)
	f.system.put("cmake")

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	require.NoError(t, err)
	assert.Empty(t, f.system.removes)
}

func TestEnsure_UnavailableOtherManagerSkipped(t *testing.T) {
	f := newFixture(t)
	f.ports.put("cmake")
	f.ports.available = false

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), cmake)
	require.NoError(t, err)
	assert.Empty(t, f.ports.removes)
}

func TestEnsure_RequiredVersion(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		required string
		wantErr  bool
	}{
		{"newer", "cmake version 3.28.1", "3.20", false},
		{"equal", "cmake version 3.20.0", "3.20.0", false},
		{"older", "cmake version 3.18.4", "3.20", true},
		{"no version output", "", "3.20", true},
		{"no requirement", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.brew.put("cmake")
			if tt.output != "" {
				f.runner[filepath.Join(f.brew.prefix, "bin", "cmake")] = tt.output
			}
			spec := cmake
			spec.RequiredVersion = tt.required

			_, err := f.installer(ConflictRemove).Ensure(context.Background(), spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInstallFailed)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEnsure_BinaryMissingAfterInstall(t *testing.T) {
	f := newFixture(t)
	spec := ToolSpec{Name: "llvm", Binary: "clang", Manager: pkgmgr.Homebrew}

	_, err := f.installer(ConflictRemove).Ensure(context.Background(), spec)
	var instErr *InstallError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, InstallFailed, instErr.Kind)
	assert.Contains(t, err.Error(), "clang")
}

func TestEnsure_ProgressHook(t *testing.T) {
	f := newFixture(t)
	var started, finished []string
	inst := New(pkgmgr.NewRegistry(f.brew), f.runner, Options{
		Progress: func(msg string) func() {
			started = append(started, msg)
			return func() { finished = append(finished, msg) }
		},
	})

	_, err := inst.Ensure(context.Background(), cmake)
	require.NoError(t, err)
	assert.Equal(t, []string{"Installing cmake via homebrew..."}, started)
	assert.Equal(t, started, finished)
}

func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy("ignore")
	require.NoError(t, err)
	assert.Equal(t, ConflictIgnore, p)

	_, err = ParseConflictPolicy("keep")
	assert.Error(t, err)
}

func TestToolSpec_Executable(t *testing.T) {
	assert.Equal(t, "cmake", ToolSpec{Name: "cmake"}.Executable())
	assert.Equal(t, "clang", ToolSpec{Name: "llvm", Binary: "clang"}.Executable())
}
