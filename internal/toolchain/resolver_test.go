package toolchain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/bootstrap-env/internal/envplan"
	"github.com/blackwell-systems/bootstrap-env/internal/installer"
	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExec(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

// host lays out a system prefix with clang, clang++ and ar and a Homebrew
// prefix with cmake.
type host struct {
	system string
	brew   string
	tools  []installer.InstalledTool
}

func newHost(t *testing.T) *host {
	t.Helper()
	root := t.TempDir()
	h := &host{
		system: filepath.Join(root, "usr"),
		brew:   filepath.Join(root, "homebrew"),
	}
	clang := writeExec(t, filepath.Join(h.system, "bin", "clang"))
	writeExec(t, filepath.Join(h.system, "bin", "clang++"))
	ar := writeExec(t, filepath.Join(h.system, "bin", "ar"))
	cmake := writeExec(t, filepath.Join(h.brew, "bin", "cmake"))

	h.tools = []installer.InstalledTool{
		{Spec: installer.ToolSpec{Name: "clang", Manager: pkgmgr.System}, ResolvedPath: clang, Prefix: h.system, Version: "15.0.0"},
		{Spec: installer.ToolSpec{Name: "ar", Manager: pkgmgr.System}, ResolvedPath: ar, Prefix: h.system},
		{Spec: installer.ToolSpec{Name: "cmake", Manager: pkgmgr.Homebrew}, ResolvedPath: cmake, Prefix: h.brew, Version: "3.28.1"},
	}
	return h
}

func defaultRoles() []RoleSpec {
	return []RoleSpec{
		{Role: RoleCompiler, Tool: "clang"},
		{Role: RoleCXXCompiler, Tool: "clang", Binary: "clang++"},
		{Role: RoleArchiver, Tool: "ar"},
		{Role: RoleBuildTool, Tool: "cmake"},
	}
}

func TestResolve_FullPlan(t *testing.T) {
	h := newHost(t)
	basePath := strings.Join([]string{"/usr/local/bin", "/bin"}, string(os.PathListSeparator))
	r := NewResolver(Options{
		Roles:            defaultRoles(),
		DeploymentTarget: "11.0",
		ExtraEnv:         []envplan.Assignment{{Key: "CMAKE_GENERATOR", Value: "Ninja"}},
		BasePath:         basePath,
	})

	plan, err := r.Resolve(h.tools)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(h.system, "bin", "clang"), plan.CompilerPath)
	assert.Equal(t, filepath.Join(h.system, "bin", "clang++"), plan.CXXCompilerPath)
	assert.Equal(t, filepath.Join(h.system, "bin", "ar"), plan.ArchiverPath)
	assert.Equal(t, filepath.Join(h.brew, "bin", "cmake"), plan.BuildToolPath)
	assert.Len(t, plan.Tools, 3)

	assert.Equal(t, []string{"MACOSX_DEPLOYMENT_TARGET", "CC", "CXX", "AR", "CMAKE_GENERATOR", "PATH"}, plan.Env.Keys())
	target, _ := plan.Env.Get("MACOSX_DEPLOYMENT_TARGET")
	assert.Equal(t, "11.0", target)
	path, _ := plan.Env.Get("PATH")
	assert.Equal(t, strings.Join([]string{
		filepath.Join(h.system, "bin"),
		filepath.Join(h.brew, "bin"),
		"/usr/local/bin",
		"/bin",
	}, string(os.PathListSeparator)), path)

	for _, role := range Roles {
		assert.True(t, pkgmgr.IsExecutable(plan.Path(role)), "role %s", role)
	}
}

func TestResolve_OptionalRolesAndTarget(t *testing.T) {
	h := newHost(t)
	r := NewResolver(Options{
		Roles:               []RoleSpec{{Role: RoleCompiler, Tool: "clang"}},
		DeploymentTarget:    "12.3",
		DeploymentTargetVar: "IPHONEOS_DEPLOYMENT_TARGET",
	})

	plan, err := r.Resolve(h.tools)
	require.NoError(t, err)
	assert.Equal(t, []string{"IPHONEOS_DEPLOYMENT_TARGET", "CC", "PATH"}, plan.Env.Keys())
	assert.Empty(t, plan.ArchiverPath)

	r = NewResolver(Options{Roles: []RoleSpec{{Role: RoleCompiler, Tool: "clang"}}})
	plan, err = r.Resolve(h.tools)
	require.NoError(t, err)
	assert.Equal(t, []string{"CC", "PATH"}, plan.Env.Keys())
}

func TestResolve_MissingCompiler(t *testing.T) {
	h := newHost(t)
	require.NoError(t, os.Remove(filepath.Join(h.system, "bin", "clang")))

	_, err := NewResolver(Options{Roles: defaultRoles()}).Resolve(h.tools)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, Missing, resErr.Kind)
	assert.Equal(t, RoleCompiler, resErr.Role)
	assert.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "compiler")
}

func TestResolve_MissingProvidingTool(t *testing.T) {
	h := newHost(t)
	roles := []RoleSpec{{Role: RoleCompiler, Tool: "gcc"}}

	_, err := NewResolver(Options{Roles: roles}).Resolve(h.tools)
	assert.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), `"gcc"`)
}

func TestResolve_CandidateOutsidePrefixIsMissing(t *testing.T) {
	h := newHost(t)
	other := t.TempDir()
	writeExec(t, filepath.Join(other, "clang++"))
	require.NoError(t, os.Remove(filepath.Join(h.system, "bin", "clang++")))

	_, err := NewResolver(Options{Roles: defaultRoles(), BasePath: other}).Resolve(h.tools)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, Missing, resErr.Kind)
	assert.Equal(t, RoleCXXCompiler, resErr.Role)
	assert.Equal(t, []string{filepath.Join(other, "clang++")}, resErr.Candidates)
}

func TestResolve_NestedManagerPrefixIsNotOwned(t *testing.T) {
	h := newHost(t)
	// Homebrew rooted inside the system prefix, as on Intel macOS.
	brew := filepath.Join(h.system, "local")
	writeExec(t, filepath.Join(brew, "bin", "clang++"))
	require.NoError(t, os.Remove(filepath.Join(h.system, "bin", "clang++")))

	_, err := NewResolver(Options{
		Roles:           defaultRoles(),
		BasePath:        filepath.Join(brew, "bin"),
		ManagerPrefixes: []string{h.system, brew, h.brew},
	}).Resolve(h.tools)
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, Missing, resErr.Kind)
	assert.Equal(t, RoleCXXCompiler, resErr.Role)
	assert.Equal(t, []string{filepath.Join(brew, "bin", "clang++")}, resErr.Candidates)
}

func TestResolve_NestedManagerPrefixDoesNotShadowSystem(t *testing.T) {
	h := newHost(t)
	brew := filepath.Join(h.system, "local")
	writeExec(t, filepath.Join(brew, "bin", "clang++"))

	plan, err := NewResolver(Options{
		Roles:           defaultRoles(),
		BasePath:        filepath.Join(brew, "bin"),
		ManagerPrefixes: []string{h.system, brew, h.brew},
	}).Resolve(h.tools)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.system, "bin", "clang++"), plan.CXXCompilerPath)
}

func TestResolve_PrefersDesignatedManager(t *testing.T) {
	h := newHost(t)
	// A stray cmake from another manager sits earlier on PATH.
	ports := t.TempDir()
	writeExec(t, filepath.Join(ports, "bin", "cmake"))
	r := NewResolver(Options{
		Roles:    []RoleSpec{{Role: RoleBuildTool, Tool: "cmake"}},
		BasePath: filepath.Join(ports, "bin"),
	})

	for i := 0; i < 3; i++ {
		plan, err := r.Resolve(h.tools)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(h.brew, "bin", "cmake"), plan.BuildToolPath)
	}
}

func TestResolve_PrefersToolSibling(t *testing.T) {
	h := newHost(t)
	// A second cmake under the same prefix, e.g. an unlinked keg.
	keg := filepath.Join(h.brew, "opt", "cmake", "bin")
	writeExec(t, filepath.Join(keg, "cmake"))

	plan, err := NewResolver(Options{
		Roles:    []RoleSpec{{Role: RoleBuildTool, Tool: "cmake"}},
		BasePath: keg,
	}).Resolve(h.tools)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.brew, "bin", "cmake"), plan.BuildToolPath)
}

func TestResolve_SymlinkedCandidatesAreOneFile(t *testing.T) {
	h := newHost(t)
	cellar := filepath.Join(h.brew, "Cellar", "llvm", "bin")
	actual := writeExec(t, filepath.Join(cellar, "clang-format"))
	link := filepath.Join(h.brew, "sbin", "clang-format")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	require.NoError(t, os.Symlink(actual, link))

	roles := []RoleSpec{{Role: RoleBuildTool, Tool: "cmake", Binary: "clang-format"}}
	plan, err := NewResolver(Options{
		Roles:    roles,
		BasePath: strings.Join([]string{filepath.Dir(link), cellar}, string(os.PathListSeparator)),
	}).Resolve(h.tools)
	require.NoError(t, err)
	assert.Equal(t, link, plan.BuildToolPath)
}

func TestResolve_Ambiguous(t *testing.T) {
	h := newHost(t)
	a := writeExec(t, filepath.Join(h.brew, "opt", "a", "bin", "ninja"))
	b := writeExec(t, filepath.Join(h.brew, "opt", "b", "bin", "ninja"))

	roles := []RoleSpec{{Role: RoleBuildTool, Tool: "cmake", Binary: "ninja"}}
	_, err := NewResolver(Options{
		Roles:    roles,
		BasePath: strings.Join([]string{filepath.Dir(a), filepath.Dir(b)}, string(os.PathListSeparator)),
	}).Resolve(h.tools)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, Ambiguous, resErr.Kind)
	assert.Equal(t, []string{a, b}, resErr.Candidates)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestResolve_ExtraEnvCannotOverride(t *testing.T) {
	h := newHost(t)
	_, err := NewResolver(Options{
		Roles:    defaultRoles(),
		ExtraEnv: []envplan.Assignment{{Key: "CC", Value: "/usr/bin/gcc"}},
	}).Resolve(h.tools)
	assert.ErrorIs(t, err, envplan.ErrInvalidAssignment)
}

func TestPlan_Materialize(t *testing.T) {
	h := newHost(t)
	plan, err := NewResolver(Options{Roles: defaultRoles(), BasePath: "/bin"}).Resolve(h.tools)
	require.NoError(t, err)

	for _, key := range plan.Env.Keys() {
		t.Setenv(key, os.Getenv(key))
	}
	applied, err := plan.Materialize(envplan.ProcessEnv{})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, plan.CompilerPath, os.Getenv("CC"))
}

func TestPathLocator_FindAll(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeExec(t, filepath.Join(a, "ar"))
	require.NoError(t, os.WriteFile(filepath.Join(b, "ar"), []byte("data"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(b, "cmake"), 0o755))

	got := PathLocator{}.FindAll("ar", []string{a, "", b, a + string(filepath.Separator)})
	assert.Equal(t, []string{filepath.Join(a, "ar")}, got)
	assert.Empty(t, PathLocator{}.FindAll("cmake", []string{b}))
}

func TestCXXFor(t *testing.T) {
	tests := map[string]string{
		"clang":                "clang++",
		"clang-15":             "clang++-15",
		"gcc":                  "g++",
		"gcc-14":               "g++-14",
		"x86_64-linux-gnu-gcc": "x86_64-linux-gnu-g++",
		"cc":                   "c++",
		"icc":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CXXFor(in), in)
	}
}

func TestUnderPrefix(t *testing.T) {
	assert.True(t, underPrefix("/opt/homebrew/bin/cmake", "/opt/homebrew"))
	assert.True(t, underPrefix("/opt/homebrew/bin/cmake", "/opt/homebrew/"))
	assert.False(t, underPrefix("/opt/homebrew-old/bin/cmake", "/opt/homebrew"))
	assert.False(t, underPrefix("/usr/bin/cmake", "/opt/homebrew"))
}

func TestOwnedBy(t *testing.T) {
	others := []string{"/usr", "/usr/local", "/opt/local"}
	assert.True(t, ownedBy("/usr/bin/clang", "/usr", others))
	assert.False(t, ownedBy("/usr/local/bin/clang", "/usr", others))
	assert.True(t, ownedBy("/usr/local/bin/clang", "/usr/local", others))
	assert.False(t, ownedBy("/opt/local/bin/clang", "/usr", others))
	assert.True(t, ownedBy("/usr/local/bin/clang", "/usr", nil))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("build-tool")
	require.NoError(t, err)
	assert.Equal(t, RoleBuildTool, r)

	_, err = ParseRole("linker")
	assert.Error(t, err)
}
