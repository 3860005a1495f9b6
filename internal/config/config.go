// Package config loads the bootstrap-env configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/bootstrap-env/internal/installer"
	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"github.com/blackwell-systems/bootstrap-env/internal/toolchain"
)

// ManagerEnvVar overrides the default package manager.
const ManagerEnvVar = "BOOTSTRAP_ENV_MANAGER"

// FileName is the configuration file looked up in Dir.
const FileName = "config.yaml"

// Dir returns the bootstrap-env config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/bootstrap-env if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "bootstrap-env"), nil
}

// Tool declares one tool to provision.
type Tool struct {
	Name    string `yaml:"name"`
	Binary  string `yaml:"binary,omitempty"`
	Version string `yaml:"version,omitempty"`
	// Manager defaults to Config.Manager.
	Manager string `yaml:"manager,omitempty"`
	// Role is the toolchain role the tool fills, if any.
	Role string `yaml:"role,omitempty"`
}

// Config is the top-level configuration file.
type Config struct {
	DeploymentTarget    string `yaml:"deployment_target,omitempty"`
	DeploymentTargetVar string `yaml:"deployment_target_var,omitempty"`
	// Compiler names the C compiler used when no tool declares the
	// compiler role.
	Compiler     string `yaml:"compiler,omitempty"`
	Manager      string `yaml:"manager,omitempty"`
	Conflicts    string `yaml:"conflicts,omitempty"`
	SystemPrefix string `yaml:"system_prefix,omitempty"`
	Tools        []Tool `yaml:"tools,omitempty"`
	Env          Env    `yaml:"env,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DeploymentTargetVar: toolchain.DefaultDeploymentTargetVar,
		Compiler:            "clang",
		Manager:             string(pkgmgr.Homebrew),
		Conflicts:           string(installer.ConflictRemove),
		SystemPrefix:        pkgmgr.DefaultSystemPrefix,
	}
}

// DefaultPath returns the config file location under Dir.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads path over the defaults. An empty path loads the default
// location, where a missing file is not an error; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, nil
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read config"), "path", path)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse config"), "path", path)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(ManagerEnvVar); ok && strings.TrimSpace(v) != "" {
		c.Manager = strings.TrimSpace(v)
	}
}

// Validate rejects unknown managers, roles and conflict policies, and
// tools without a name.
func (c *Config) Validate() error {
	if _, err := pkgmgr.ParseKind(c.Manager); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	if _, err := installer.ParseConflictPolicy(c.Conflicts); err != nil {
		return fmt.Errorf("conflicts: %w", err)
	}
	if c.Compiler == "" {
		return errors.New("compiler: must not be empty")
	}

	seenRole := make(map[string]string)
	seenName := make(map[string]bool)
	for i, t := range c.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tools[%d]: name is required", i)
		}
		if seenName[t.Name] {
			return fmt.Errorf("tools[%d]: duplicate tool %q", i, t.Name)
		}
		seenName[t.Name] = true
		if t.Manager != "" {
			if _, err := pkgmgr.ParseKind(t.Manager); err != nil {
				return fmt.Errorf("tools[%d] %s: %w", i, t.Name, err)
			}
		}
		if t.Role != "" {
			if _, err := toolchain.ParseRole(t.Role); err != nil {
				return fmt.Errorf("tools[%d] %s: %w", i, t.Name, err)
			}
			if prev, ok := seenRole[t.Role]; ok {
				return fmt.Errorf("tools[%d] %s: role %s already provided by %s", i, t.Name, t.Role, prev)
			}
			seenRole[t.Role] = t.Name
		}
	}
	return nil
}
