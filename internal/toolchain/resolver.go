// Package toolchain turns verified tools into a toolchain plan: which
// executable fills each build role and which environment variables point
// at them.
package toolchain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/blackwell-systems/bootstrap-env/internal/envplan"
	"github.com/blackwell-systems/bootstrap-env/internal/installer"
)

// Role is a slot in the toolchain.
type Role string

const (
	RoleCompiler    Role = "compiler"
	RoleCXXCompiler Role = "cxx-compiler"
	RoleArchiver    Role = "archiver"
	RoleBuildTool   Role = "build-tool"
)

// Roles lists every role in plan order.
var Roles = []Role{RoleCompiler, RoleCXXCompiler, RoleArchiver, RoleBuildTool}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown toolchain role %q", s)
}

// DefaultDeploymentTargetVar is the variable the deployment target is
// exported as.
const DefaultDeploymentTargetVar = "MACOSX_DEPLOYMENT_TARGET"

// RoleSpec binds a role to the tool that provides it.
type RoleSpec struct {
	Role Role
	// Tool is the ToolSpec name of the providing tool.
	Tool string
	// Binary is the executable to find; empty means the tool's own.
	Binary string
}

// Plan is the resolved toolchain. Every path is the executable of a tool
// that passed verification.
type Plan struct {
	CompilerPath    string
	CXXCompilerPath string
	ArchiverPath    string
	BuildToolPath   string
	Env             envplan.Vars
	Tools           []installer.InstalledTool
}

// Path returns the executable chosen for role.
func (p Plan) Path(role Role) string {
	switch role {
	case RoleCompiler:
		return p.CompilerPath
	case RoleCXXCompiler:
		return p.CXXCompilerPath
	case RoleArchiver:
		return p.ArchiverPath
	case RoleBuildTool:
		return p.BuildToolPath
	}
	return ""
}

// Materialize applies the plan's environment to env.
func (p Plan) Materialize(env envplan.Environment) (bool, error) {
	return envplan.Materialize(env, p.Env)
}

// Options configures a Resolver.
type Options struct {
	Roles []RoleSpec
	// DeploymentTarget is the minimum OS version to build for; empty skips it.
	DeploymentTarget    string
	DeploymentTargetVar string
	// ExtraEnv is appended after the toolchain variables, in order.
	ExtraEnv []envplan.Assignment
	// BasePath is the inherited PATH.
	BasePath string
	Locator  Locator
	// ManagerPrefixes are the roots of every known package manager. A
	// candidate belongs to the manager with the longest prefix holding it.
	ManagerPrefixes []string
}

// Resolver builds toolchain plans.
type Resolver struct {
	opts Options
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.DeploymentTargetVar == "" {
		opts.DeploymentTargetVar = DefaultDeploymentTargetVar
	}
	if opts.Locator == nil {
		opts.Locator = PathLocator{}
	}
	return &Resolver{opts: opts}
}

// Resolve picks an executable for every configured role and derives the
// environment. The result depends only on tools, the options and the
// filesystem.
func (r *Resolver) Resolve(tools []installer.InstalledTool) (Plan, error) {
	byName := make(map[string]installer.InstalledTool, len(tools))
	var toolDirs []string
	for _, t := range tools {
		byName[t.Spec.Name] = t
		toolDirs = append(toolDirs, filepath.Dir(t.ResolvedPath))
	}
	searchPath := append(append([]string{}, toolDirs...), filepath.SplitList(r.opts.BasePath)...)

	plan := Plan{Tools: append([]installer.InstalledTool(nil), tools...)}
	for _, rs := range r.opts.Roles {
		tool, ok := byName[rs.Tool]
		if !ok {
			return Plan{}, &ResolutionError{
				Kind:   Missing,
				Role:   rs.Role,
				Binary: rs.Binary,
				Detail: fmt.Sprintf("no installed tool %q provides it", rs.Tool),
			}
		}
		path, err := r.pick(rs, tool, searchPath)
		if err != nil {
			return Plan{}, err
		}
		switch rs.Role {
		case RoleCompiler:
			plan.CompilerPath = path
		case RoleCXXCompiler:
			plan.CXXCompilerPath = path
		case RoleArchiver:
			plan.ArchiverPath = path
		case RoleBuildTool:
			plan.BuildToolPath = path
		}
	}

	env, err := r.environment(plan, toolDirs)
	if err != nil {
		return Plan{}, err
	}
	plan.Env = env
	return plan, nil
}

// pick applies the tie-break rules: candidates owned by the tool's
// manager, then the sibling of the tool's verified executable, then candidates that
// are one file through symlinks.
func (r *Resolver) pick(rs RoleSpec, tool installer.InstalledTool, searchPath []string) (string, error) {
	binary := rs.Binary
	if binary == "" {
		binary = tool.Spec.Executable()
	}

	all := r.opts.Locator.FindAll(binary, searchPath)
	if len(all) == 0 {
		return "", &ResolutionError{Kind: Missing, Role: rs.Role, Binary: binary, Detail: "not found on search path"}
	}

	var owned []string
	for _, c := range all {
		if ownedBy(c, tool.Prefix, r.opts.ManagerPrefixes) {
			owned = append(owned, c)
		}
	}

	switch len(owned) {
	case 0:
		return "", &ResolutionError{
			Kind:       Missing,
			Role:       rs.Role,
			Binary:     binary,
			Candidates: all,
			Detail:     fmt.Sprintf("none under %s prefix %s", tool.Spec.Manager, tool.Prefix),
		}
	case 1:
		return owned[0], nil
	}

	sibling := filepath.Join(filepath.Dir(tool.ResolvedPath), binary)
	for _, c := range owned {
		if c == sibling {
			return c, nil
		}
	}
	if sameFile(owned) {
		return owned[0], nil
	}
	return "", &ResolutionError{Kind: Ambiguous, Role: rs.Role, Binary: binary, Candidates: owned}
}

func (r *Resolver) environment(plan Plan, toolDirs []string) (envplan.Vars, error) {
	var env envplan.Vars
	builtins := []envplan.Assignment{
		{Key: r.opts.DeploymentTargetVar, Value: r.opts.DeploymentTarget},
		{Key: "CC", Value: plan.CompilerPath},
		{Key: "CXX", Value: plan.CXXCompilerPath},
		{Key: "AR", Value: plan.ArchiverPath},
	}
	for _, a := range builtins {
		if a.Value == "" {
			continue
		}
		if err := env.Set(a.Key, a.Value); err != nil {
			return envplan.Vars{}, err
		}
	}
	// Extras may not override a variable set above.
	for _, a := range r.opts.ExtraEnv {
		if err := env.Set(a.Key, a.Value); err != nil {
			return envplan.Vars{}, err
		}
	}

	path := envplan.AugmentPath(toolDirs, r.opts.BasePath)
	if err := env.Set("PATH", path); err != nil {
		return envplan.Vars{}, err
	}
	return env, nil
}

var versionSuffix = regexp.MustCompile(`^(.*?)(-[0-9][0-9.]*)?$`)

// CXXFor returns the C++ driver that pairs with a C compiler: clang gives
// clang++, gcc-14 gives g++-14, cc gives c++. Unknown compilers give "".
func CXXFor(compiler string) string {
	m := versionSuffix.FindStringSubmatch(compiler)
	base, suffix := m[1], m[2]
	switch {
	case base == "clang" || strings.HasSuffix(base, "-clang"):
		return base + "++" + suffix
	case base == "gcc" || strings.HasSuffix(base, "-gcc"):
		return strings.TrimSuffix(base, "gcc") + "g++" + suffix
	case base == "cc":
		return "c++" + suffix
	}
	return ""
}
