package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/blackwell-systems/bootstrap-env/internal/config"
	"github.com/blackwell-systems/bootstrap-env/internal/logger"
	"github.com/blackwell-systems/bootstrap-env/internal/output"
	"github.com/blackwell-systems/bootstrap-env/internal/store"
)

// DefaultTimeout bounds provisioning when --timeout is not given.
const DefaultTimeout = 30 * time.Minute

var (
	configPath   string
	journalPath  string
	noJournal    bool
	debug        bool
	logJSON      bool
	targetOS     string
	compiler     string
	managerFlag  string
	conflicts    string
	exportPath   string
	exportFormat string
	noReport     bool
	timeout      time.Duration

	// RootCmd is the root command for bootstrap-env
	RootCmd = &cobra.Command{
		Use:   "bootstrap-env [flags] [-- BUILD-COMMAND ARGS...]",
		Short: "Provision a native build toolchain and its environment",
		Long: `bootstrap-env provisions a native toolchain (compiler, archiver, build
tool) through Homebrew or MacPorts, verifies it, derives the build
environment (deployment target, CC, CXX, AR, PATH), applies it and prints
a diagnostics report.

Copies of a tool installed by another package manager are removed by
default so the designated manager's copy is the one found on PATH. Every
removal is journaled and can be undone with 'bootstrap-env restore'.

Exit codes:
  0   success
  1   usage or other error
  10  package manager unavailable
  11  install failed
  20  ambiguous toolchain role
  21  missing toolchain role
  30  invalid environment assignment
  N   exit code of the build command`,
		Example: `  # Provision with defaults and print the report
  bootstrap-env

  # Target macOS 11 with gcc-14 and export for a CI step
  bootstrap-env --target-os-version 11.0 --compiler gcc-14 --export "$GITHUB_ENV"

  # Provision through MacPorts, then run the build
  bootstrap-env --manager macports -- cmake --build build`,
		Args:          buildCommandArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBootstrap,
	}
)

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/bootstrap-env/config.yaml)")
	pf.StringVar(&journalPath, "journal", "", "run journal path (default: ~/.bootstrap-env/journal.db)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.BoolVar(&logJSON, "log-json", false, "log as JSON")

	f := RootCmd.Flags()
	f.StringVar(&targetOS, "target-os-version", "", "minimum OS version to build for")
	f.StringVar(&compiler, "compiler", "", "C compiler name (default: clang)")
	f.StringVar(&managerFlag, "manager", "", "designated package manager: homebrew or macports")
	f.StringVar(&conflicts, "conflicts", "", "copies from other managers: remove or ignore (default: remove)")
	f.StringVar(&exportPath, "export", "", "write the environment to this file")
	f.StringVar(&exportFormat, "export-format", "auto", "export format: sh, fish, github or auto")
	f.BoolVar(&noJournal, "no-journal", false, "do not journal this run")
	f.BoolVar(&noReport, "no-report", false, "skip the diagnostics report")
	f.DurationVar(&timeout, "timeout", DefaultTimeout, "provisioning timeout")

	RootCmd.MarkFlagsMutuallyExclusive("journal", "no-journal")
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// buildCommandArgs accepts positional arguments only after "--".
func buildCommandArgs(cmd *cobra.Command, args []string) error {
	dash := cmd.ArgsLenAtDash()
	if (dash == -1 && len(args) > 0) || dash > 0 {
		return fmt.Errorf("unexpected argument %q: put the build command after --", args[0])
	}
	return nil
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	b := &Bootstrapper{
		Log: log,
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
	}
	if output.IsStdoutTTY() {
		b.Progress = output.SpinnerProgress(os.Stdout)
	}

	if !noJournal {
		st, err := openJournal()
		if err != nil {
			log.Warn("run journal disabled", "error", err)
		} else {
			defer st.Close()
			b.Journal = st
		}
	}

	err = b.Run(cmd.Context(), Request{
		Config:       cfg,
		Export:       exportPath,
		ExportFormat: exportFormat,
		NoReport:     noReport,
		ReportColor:  output.IsColorEnabled(cmd.OutOrStdout()),
		Timeout:      timeout,
		Command:      args,
	})
	if err != nil {
		logFailure(cmd, log, err)
	}
	return err
}

// loadConfig reads the config file, then applies environment and flag
// overrides in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("target-os-version") {
		cfg.DeploymentTarget = targetOS
	}
	if flags.Changed("compiler") {
		cfg.Compiler = compiler
	}
	if flags.Changed("manager") {
		cfg.Manager = managerFlag
	}
	if flags.Changed("conflicts") {
		cfg.Conflicts = conflicts
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	return logger.New(os.Stderr, logger.Options{Debug: debug, JSON: logJSON})
}

// logFailure logs err with its metadata when structured or debug logging
// is on. main prints the plain message either way. A failing build
// command has already reported on its own stderr.
func logFailure(cmd *cobra.Command, log *slog.Logger, err error) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || !(debug || logJSON) {
		return
	}
	zerr.Log(cmd.Context(), log, err)
}

func openJournal() (*store.Store, error) {
	path, err := getJournalPath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

// getJournalPath returns the journal path, using the flag value or default
func getJournalPath() (string, error) {
	if journalPath != "" {
		return journalPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".bootstrap-env", "journal.db"), nil
}

// openExistingJournal opens the journal for the read-side commands. A
// journal that was never written reports store.ErrNotInitialized.
func openExistingJournal() (*store.Store, error) {
	path, err := getJournalPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotInitialized)
	}
	return store.Open(path)
}
