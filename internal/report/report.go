// Package report renders the human-readable diagnostics printed at the end
// of a bootstrap run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/bootstrap-env/internal/probe"
	"github.com/blackwell-systems/bootstrap-env/internal/toolchain"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// Unavailable is printed for data that could not be gathered.
const Unavailable = "unavailable"

// Options controls report formatting.
type Options struct {
	// Color styles section headings.
	Color bool
	// MaxLibraries caps the library listing; zero means no cap.
	MaxLibraries int
}

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8B5CF6"))

// Report formats the capability record and toolchain plan. It never fails:
// anything that cannot be read is shown as unavailable.
func Report(c probe.Capability, plan toolchain.Plan, opts Options) string {
	var b strings.Builder
	heading := func(title string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if opts.Color {
			title = headingStyle.Render(title)
		}
		b.WriteString(title + "\n")
	}
	field := func(label, value string) {
		fmt.Fprintf(&b, "  %-16s %s\n", label+":", orUnavailable(value))
	}

	heading("Host")
	field("OS", strings.TrimSpace(c.OS+" "+c.OSVersion))
	field("Kernel", c.KernelVersion)
	field("Arch", c.Arch)
	field("CPU", c.CPUBrand)
	field("CPU features", strings.Join(c.CPUFeatures, " "))

	heading("Toolchain")
	for _, role := range toolchain.Roles {
		field(string(role), plan.Path(role))
	}

	heading("Tools")
	if len(plan.Tools) == 0 {
		b.WriteString("  " + Unavailable + "\n")
	}
	for _, t := range plan.Tools {
		fmt.Fprintf(&b, "  %-16s %-12s %-10s %s\n",
			t.Spec.Name, orUnavailable(t.Version), t.Spec.Manager, t.ResolvedPath)
	}

	heading("Environment")
	if plan.Env.Len() == 0 {
		b.WriteString("  " + Unavailable + "\n")
	}
	for _, a := range plan.Env.Assignments() {
		fmt.Fprintf(&b, "  %s=%s\n", a.Key, a.Value)
	}

	libDir, err := LibraryDir(plan.BuildToolPath)
	if err != nil {
		heading("Build tool libraries")
		b.WriteString("  " + Unavailable + " (" + err.Error() + ")\n")
		return b.String()
	}
	heading("Build tool libraries (" + libDir + ")")
	writeLibraries(&b, libDir, opts.MaxLibraries)
	return b.String()
}

// LibraryDir returns the lib directory next to the real location of the
// build tool: <dir of resolved executable>/../lib.
func LibraryDir(buildToolPath string) (string, error) {
	if buildToolPath == "" {
		return "", fmt.Errorf("no build tool resolved")
	}
	resolved, err := filepath.EvalSymlinks(buildToolPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(filepath.Dir(resolved)), "lib"), nil
}

func writeLibraries(b *strings.Builder, dir string, limit int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.WriteString("  " + Unavailable + " (" + err.Error() + ")\n")
		return
	}
	if len(entries) == 0 {
		b.WriteString("  (empty)\n")
		return
	}

	for i, e := range entries {
		if limit > 0 && i == limit {
			fmt.Fprintf(b, "  ... %d more\n", len(entries)-limit)
			break
		}
		size := "-"
		if info, err := e.Info(); err == nil && info.Mode().IsRegular() {
			size = humanize.Bytes(uint64(info.Size()))
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(b, "  %-40s %s\n", name, size)
	}
}

func orUnavailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unavailable
	}
	return s
}
