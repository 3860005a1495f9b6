// Package shell writes an environment plan in forms a parent shell or CI
// runner can load: POSIX sh, fish, or a GitHub Actions environment file.
package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/bootstrap-env/internal/envplan"
	"github.com/google/uuid"
)

// Format is an export file syntax.
type Format string

const (
	FormatSh     Format = "sh"
	FormatFish   Format = "fish"
	FormatGitHub Format = "github"
)

const header = "# bootstrap-env environment"

// ParseFormat validates a format name. "auto" and "" pick a format with
// DetectFormat.
func ParseFormat(s, target string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return DetectFormat(target), nil
	case "sh", "bash", "zsh":
		return FormatSh, nil
	case "fish":
		return FormatFish, nil
	case "github", "gha":
		return FormatGitHub, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want sh, fish or github)", s)
	}
}

// DetectFormat guesses the format for target: the GitHub format when target
// is the runner's $GITHUB_ENV file, fish when the user's shell is fish,
// otherwise sh.
func DetectFormat(target string) Format {
	if gh := os.Getenv("GITHUB_ENV"); gh != "" && target != "" && filepath.Clean(gh) == filepath.Clean(target) {
		return FormatGitHub
	}
	if filepath.Base(os.Getenv("SHELL")) == "fish" {
		return FormatFish
	}
	return FormatSh
}

// Render formats vars in the given syntax. Every assignment is validated
// first.
func Render(format Format, vars envplan.Vars) (string, error) {
	assignments := vars.Assignments()
	for _, a := range assignments {
		if err := envplan.Validate(a); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	switch format {
	case FormatSh:
		b.WriteString(header + "\n")
		for _, a := range assignments {
			fmt.Fprintf(&b, "export %s=%s\n", a.Key, shQuote(a.Value))
		}
	case FormatFish:
		b.WriteString(header + "\n")
		for _, a := range assignments {
			fmt.Fprintf(&b, "set -gx %s %s\n", a.Key, fishValue(a.Key, a.Value))
		}
	case FormatGitHub:
		for _, a := range assignments {
			if strings.ContainsAny(a.Value, "\r\n") {
				delim := "ghadelimiter_" + uuid.NewString()
				fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", a.Key, delim, a.Value, delim)
				continue
			}
			fmt.Fprintf(&b, "%s=%s\n", a.Key, a.Value)
		}
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
	return b.String(), nil
}

// WriteExports writes vars to path. sh and fish files are replaced; the
// GitHub environment file is appended to, as the runner expects.
func WriteExports(path string, format Format, vars envplan.Vars) error {
	content, err := Render(format, vars)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create export directory %s: %w", filepath.Dir(path), err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if format == FormatGitHub {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open export file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("cannot write export file %s: %w", path, err)
	}
	return f.Close()
}

// shQuote wraps s in single quotes, escaping embedded single quotes.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func fishQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// fishValue renders PATH-like variables as fish lists.
func fishValue(key, value string) string {
	if !strings.HasSuffix(key, "PATH") {
		return fishQuote(value)
	}
	parts := filepath.SplitList(value)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = fishQuote(p)
	}
	return strings.Join(quoted, " ")
}
