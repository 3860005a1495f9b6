package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bootstrap-env/internal/output"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id | latest]",
	Short: "List journaled bootstrap runs",
	Long: `List bootstrap runs recorded in the run journal, newest first.

With a run ID (or any unique prefix of one, or 'latest') the run's
installer decisions are shown: tools installed, conflicting copies
removed or ignored, and removals restored since.`,
	Example: `  bootstrap-env history
  bootstrap-env history --limit 5
  bootstrap-env history latest`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openExistingJournal()
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := st.FindRun(args[0])
		if err != nil {
			return err
		}
		events, err := st.GetEvents(run.ID, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Run %s\n", run.ID)
		fmt.Fprintf(out, "  Started:    %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Fprintf(out, "  Finished:   %s\n", run.FinishedAt.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(out, "  Status:     %s (exit %d)\n", run.Status, run.ExitCode)
		if run.Error != "" {
			fmt.Fprintf(out, "  Error:      %s\n", run.Error)
		}
		if run.CompilerPath != "" {
			fmt.Fprintf(out, "  Compiler:   %s\n", run.CompilerPath)
		}
		if run.BuildToolPath != "" {
			fmt.Fprintf(out, "  Build tool: %s\n", run.BuildToolPath)
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, output.RenderEventTable(events))
		return nil
	}

	runs, err := st.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprint(out, output.RenderRunTable(runs, output.IsColorEnabled(out)))
	if len(runs) > 0 {
		fmt.Fprintf(out, "\nDetails with: bootstrap-env history <run-id>\n")
	}
	return nil
}
