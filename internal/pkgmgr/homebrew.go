package pkgmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
)

// brewInfoOutput represents the structure of `brew info --json=v2` output.
type brewInfoOutput struct {
	Formulae []brewFormulaInfo `json:"formulae"`
}

type brewFormulaInfo struct {
	Name      string                 `json:"name"`
	FullName  string                 `json:"full_name"`
	Installed []brewInstalledVersion `json:"installed"`
	KegOnly   bool                   `json:"keg_only"`
}

type brewInstalledVersion struct {
	Version string `json:"version"`
}

// HomebrewManager drives the `brew` command.
type HomebrewManager struct {
	runner Runner
	bin    string
}

// NewHomebrew returns a Homebrew manager that runs commands through runner.
func NewHomebrew(runner Runner) *HomebrewManager {
	return &HomebrewManager{runner: runner, bin: "brew"}
}

// Kind implements Manager.
func (h *HomebrewManager) Kind() Kind { return Homebrew }

// Available implements Manager.
func (h *HomebrewManager) Available() bool {
	_, err := h.runner.LookPath(h.bin)
	return err == nil
}

// IsInstalled reports whether formula name has at least one installed keg.
// A formula Homebrew does not know about counts as not installed. name may
// be an alias; brew answers for the formula it points at.
func (h *HomebrewManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	f, err := h.info(ctx, name)
	if err != nil || f == nil {
		return false, err
	}
	return len(f.Installed) > 0, nil
}

// BinDir returns where formula name's executables live. Keg-only formulae
// are not linked into the prefix, so their opt directory is used instead.
func (h *HomebrewManager) BinDir(ctx context.Context, name string) (string, error) {
	prefix, err := h.Prefix(ctx)
	if err != nil {
		return "", err
	}
	f, err := h.info(ctx, name)
	if err != nil {
		return "", err
	}
	if f != nil && f.KegOnly {
		return filepath.Join(prefix, "opt", f.Name, "bin"), nil
	}
	return filepath.Join(prefix, "bin"), nil
}

// info returns the formula brew resolves name to, or nil when brew does
// not know it.
func (h *HomebrewManager) info(ctx context.Context, name string) (*brewFormulaInfo, error) {
	if !h.Available() {
		return nil, ErrUnavailable
	}

	output, err := h.runner.Output(ctx, h.bin, "info", "--json=v2", "--formula", name)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && isUnknownFormula(cmdErr.Stderr) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "brew info failed"), "formula", name)
	}

	var info brewInfoOutput
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse brew info output: %w", err)
	}
	if len(info.Formulae) == 0 {
		return nil, nil
	}
	return &info.Formulae[0], nil
}

// Install runs `brew install name`.
func (h *HomebrewManager) Install(ctx context.Context, name string) error {
	if !h.Available() {
		return ErrUnavailable
	}
	output, err := h.runner.CombinedOutput(ctx, h.bin, "install", name)
	if err != nil {
		return fmt.Errorf("brew install %s failed: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Remove runs `brew uninstall --ignore-dependencies name` so a conflicting
// copy can be removed even when other formulae depend on it.
func (h *HomebrewManager) Remove(ctx context.Context, name string) error {
	if !h.Available() {
		return ErrUnavailable
	}
	output, err := h.runner.CombinedOutput(ctx, h.bin, "uninstall", "--ignore-dependencies", name)
	if err != nil {
		return fmt.Errorf("brew uninstall %s failed: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Prefix returns the output of `brew --prefix`.
func (h *HomebrewManager) Prefix(ctx context.Context) (string, error) {
	if !h.Available() {
		return "", ErrUnavailable
	}
	output, err := h.runner.Output(ctx, h.bin, "--prefix")
	if err != nil {
		return "", fmt.Errorf("brew --prefix failed: %w", err)
	}
	prefix := strings.TrimSpace(string(output))
	if prefix == "" {
		return "", errors.New("brew --prefix returned empty output")
	}
	return prefix, nil
}

func isUnknownFormula(stderr string) bool {
	return strings.Contains(stderr, "No available formula") ||
		strings.Contains(stderr, "No formulae or casks found")
}
