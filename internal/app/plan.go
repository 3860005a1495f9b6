package app

import (
	"github.com/blackwell-systems/bootstrap-env/internal/config"
	"github.com/blackwell-systems/bootstrap-env/internal/installer"
	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"github.com/blackwell-systems/bootstrap-env/internal/toolchain"
)

// defaultBuildTool is provisioned through the designated manager when the
// config declares no tools.
const defaultBuildTool = "cmake"

// toolPlan turns the configuration into the tools to ensure and the roles
// to resolve. Without configured tools the host compiler and archiver are
// used with cmake from the designated manager. A compiler role is always
// present; the C++ compiler is derived from it unless declared.
func toolPlan(cfg *config.Config) ([]installer.ToolSpec, []toolchain.RoleSpec, error) {
	manager, err := pkgmgr.ParseKind(cfg.Manager)
	if err != nil {
		return nil, nil, err
	}

	tools := cfg.Tools
	if len(tools) == 0 {
		tools = []config.Tool{
			{Name: "ar", Manager: string(pkgmgr.System), Role: string(toolchain.RoleArchiver)},
			{Name: defaultBuildTool, Role: string(toolchain.RoleBuildTool)},
		}
	}

	var specs []installer.ToolSpec
	var roles []toolchain.RoleSpec
	declared := make(map[toolchain.Role]bool)

	for _, t := range tools {
		kind := manager
		if t.Manager != "" {
			if kind, err = pkgmgr.ParseKind(t.Manager); err != nil {
				return nil, nil, err
			}
		}
		spec := installer.ToolSpec{
			Name:            t.Name,
			Binary:          t.Binary,
			RequiredVersion: t.Version,
			Manager:         kind,
		}
		specs = append(specs, spec)

		if t.Role == "" {
			continue
		}
		role, err := toolchain.ParseRole(t.Role)
		if err != nil {
			return nil, nil, err
		}
		declared[role] = true
		roles = append(roles, toolchain.RoleSpec{Role: role, Tool: spec.Name, Binary: spec.Executable()})
	}

	if !declared[toolchain.RoleCompiler] {
		spec := installer.ToolSpec{Name: cfg.Compiler, Manager: pkgmgr.System}
		specs = append([]installer.ToolSpec{spec}, specs...)
		roles = append([]toolchain.RoleSpec{{Role: toolchain.RoleCompiler, Tool: spec.Name, Binary: spec.Executable()}}, roles...)
	}

	if !declared[toolchain.RoleCXXCompiler] {
		compiler := roles[indexOfRole(roles, toolchain.RoleCompiler)]
		if cxx := toolchain.CXXFor(compiler.Binary); cxx != "" {
			roles = append(roles, toolchain.RoleSpec{Role: toolchain.RoleCXXCompiler, Tool: compiler.Tool, Binary: cxx})
		}
	}

	return specs, roles, nil
}

func indexOfRole(roles []toolchain.RoleSpec, role toolchain.Role) int {
	for i, rs := range roles {
		if rs.Role == role {
			return i
		}
	}
	return -1
}
