package installer

import (
	"context"
	"regexp"
	"strings"

	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"golang.org/x/mod/semver"
)

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// readVersion runs `<path> --version` and extracts the first version number
// from the first line that contains one.
func readVersion(ctx context.Context, runner pkgmgr.Runner, path string) (string, error) {
	out, err := runner.CombinedOutput(ctx, path, "--version")
	if err != nil {
		return "", err
	}
	return extractVersion(string(out)), nil
}

func extractVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if m := versionPattern.FindString(line); m != "" {
			return m
		}
	}
	return ""
}

// satisfies reports whether version is at least minimum. Both are dotted
// numeric versions such as "3.28.1" or "15.0".
func satisfies(version, minimum string) bool {
	v, m := canonical(version), canonical(minimum)
	if v == "" || m == "" {
		return false
	}
	return semver.Compare(v, m) >= 0
}

func canonical(version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if m := versionPattern.FindString(version); m != "" {
		version = m
	} else if version != "" && strings.Trim(version, "0123456789") == "" {
		version += ".0"
	}
	v := "v" + version
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
