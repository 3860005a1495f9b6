package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bootstrap-env/internal/config"
	"github.com/blackwell-systems/bootstrap-env/internal/output"
	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"github.com/blackwell-systems/bootstrap-env/internal/rollback"
	"github.com/blackwell-systems/bootstrap-env/internal/store"
)

var restoreYes bool

// newRegistry builds the package managers the restore command drives.
var newRegistry = func(cfg *config.Config) *pkgmgr.Registry {
	return pkgmgr.Default(pkgmgr.ExecRunner{}, cfg.SystemPrefix)
}

var restoreCmd = &cobra.Command{
	Use:   "restore <run-id | latest>",
	Short: "Reinstall tools removed during a run",
	Long: `Reinstall every conflicting copy a bootstrap run removed, through the
package manager it was removed from.

'latest' picks the newest run that still has removals to restore, so a
later run that changed nothing does not hide an earlier removal. Removals
already restored are skipped, so restore can be rerun after a partial
failure.`,
	Example: `  bootstrap-env restore latest
  bootstrap-env restore 3f2a9c1e --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "skip confirmation prompt")
	RootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	log := newLogger()
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := openExistingJournal()
	if err != nil {
		return err
	}
	defer st.Close()

	r := rollback.New(st, newRegistry(cfg), log)
	run, err := r.FindRun(args[0])
	if errors.Is(err, store.ErrNotFound) && isLatest(args[0]) {
		fmt.Fprintln(out, "No journaled run has removals left to restore.")
		return nil
	}
	if err != nil {
		return err
	}

	pending, err := r.Pending(run.ID)
	if err != nil {
		return err
	}

	var todo []rollback.Removal
	for _, p := range pending {
		if !p.Restored {
			todo = append(todo, p)
		}
	}
	if len(todo) == 0 {
		fmt.Fprintf(out, "Run %s removed nothing that still needs restoring.\n", run.ID)
		return nil
	}

	fmt.Fprintf(out, "Tools removed by run %s:\n", run.ID)
	for _, p := range todo {
		fmt.Fprintf(out, "  - %s (%s)\n", p.Tool, p.Manager)
	}
	fmt.Fprintln(out)

	if !restoreYes && !confirmRestore(cmd.InOrStdin(), out, len(todo)) {
		fmt.Fprintln(out, "Restore cancelled.")
		return nil
	}

	spinner := output.NewSpinner(fmt.Sprintf("Restoring %d tools...", len(todo)))
	spinner.SetWriter(out)
	spinner.Start()
	result, err := r.Restore(cmd.Context(), run.ID)

	restored := 0
	if result != nil {
		restored = len(result.Restored)
	}
	spinner.StopWithMessage(fmt.Sprintf("Restored %d of %d tools.", restored, len(todo)))
	if result != nil {
		for _, rm := range result.Restored {
			fmt.Fprintf(out, "✓ restored %s via %s\n", rm.Tool, rm.Manager)
		}
	}
	return err
}

func isLatest(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || ref == "latest"
}

// confirmRestore prompts the user to confirm restoration.
func confirmRestore(in io.Reader, out io.Writer, count int) bool {
	fmt.Fprintf(out, "Restore %d tools? [y/N]: ", count)

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
