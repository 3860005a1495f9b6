package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bootstrap-env/internal/probe"
)

var (
	probeJSON    bool
	probeRequire []string
)

// probeHost is replaced in tests.
var probeHost = probe.Probe

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print the host capability record",
	Long: `Print what bootstrap-env detects about the host: operating system and
version, kernel, architecture, CPU brand and CPU feature flags.

With --require the command fails when the CPU lacks any of the named
features, so scripts can gate builds that need them.`,
	Example: `  bootstrap-env probe
  bootstrap-env probe --json
  bootstrap-env probe --require avx2,fma`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "print as JSON")
	probeCmd.Flags().StringSliceVar(&probeRequire, "require", nil, "fail unless the CPU has these features (comma-separated)")
	RootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	c := probeHost()
	out := cmd.OutOrStdout()

	if probeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "OS:           %s %s\n", c.OS, c.OSVersion)
		fmt.Fprintf(out, "Kernel:       %s\n", c.KernelVersion)
		fmt.Fprintf(out, "Arch:         %s\n", c.Arch)
		fmt.Fprintf(out, "CPU:          %s\n", c.CPUBrand)
		fmt.Fprintf(out, "CPU features: %s\n", strings.Join(c.CPUFeatures, " "))
	}

	if missing := missingFeatures(c, probeRequire); len(missing) > 0 {
		return fmt.Errorf("host CPU lacks required features: %s", strings.Join(missing, ", "))
	}
	return nil
}

// missingFeatures returns the names in want the CPU does not advertise.
// Feature names are matched case-insensitively.
func missingFeatures(c probe.Capability, want []string) []string {
	var missing []string
	for _, name := range want {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name != "" && !c.HasFeature(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
