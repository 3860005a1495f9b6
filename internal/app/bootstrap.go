package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"go.trai.ch/zerr"

	"github.com/blackwell-systems/bootstrap-env/internal/config"
	"github.com/blackwell-systems/bootstrap-env/internal/envplan"
	"github.com/blackwell-systems/bootstrap-env/internal/installer"
	"github.com/blackwell-systems/bootstrap-env/internal/logger"
	"github.com/blackwell-systems/bootstrap-env/internal/pkgmgr"
	"github.com/blackwell-systems/bootstrap-env/internal/probe"
	"github.com/blackwell-systems/bootstrap-env/internal/report"
	"github.com/blackwell-systems/bootstrap-env/internal/shell"
	"github.com/blackwell-systems/bootstrap-env/internal/store"
	"github.com/blackwell-systems/bootstrap-env/internal/toolchain"
)

// Request is one bootstrap invocation.
type Request struct {
	Config *config.Config
	// Export is a file the environment is written to; empty skips it.
	Export       string
	ExportFormat string
	NoReport     bool
	ReportColor  bool
	// Timeout bounds provisioning; zero means no limit.
	Timeout time.Duration
	// Command runs after the environment is applied; empty skips it.
	Command []string
}

// Bootstrapper runs the provisioning pipeline: probe, install, resolve,
// materialize, report and hand-off. Every collaborator can be replaced.
type Bootstrapper struct {
	Registry *pkgmgr.Registry
	Runner   pkgmgr.Runner
	Env      envplan.Environment
	// Journal records the run; nil disables journaling.
	Journal  *store.Store
	Log      *slog.Logger
	Out      io.Writer
	Err      io.Writer
	Progress func(msg string) func()
	Probe    func() probe.Capability
	Locator  toolchain.Locator
	// BasePath is the inherited PATH; empty reads PATH from Env.
	BasePath string
	// Exec runs the build command with env, the plan's KEY=VALUE pairs,
	// layered over the process environment.
	Exec func(ctx context.Context, argv, env []string) error
}

func (b *Bootstrapper) defaults() {
	if b.Runner == nil {
		b.Runner = pkgmgr.ExecRunner{}
	}
	if b.Env == nil {
		b.Env = envplan.ProcessEnv{}
	}
	if b.Log == nil {
		b.Log = logger.Discard()
	}
	if b.Out == nil {
		b.Out = os.Stdout
	}
	if b.Err == nil {
		b.Err = os.Stderr
	}
	if b.Probe == nil {
		b.Probe = probe.Probe
	}
	if b.Exec == nil {
		b.Exec = runCommand
	}
	if b.BasePath == "" {
		b.BasePath, _ = b.Env.LookupEnv("PATH")
	}
}

// Run provisions the toolchain described by req.Config, applies the
// environment and, if requested, runs the build command. The build
// command is not bound by req.Timeout.
func (b *Bootstrapper) Run(parent context.Context, req Request) (err error) {
	b.defaults()
	cfg := req.Config

	ctx := parent
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, req.Timeout)
		defer cancel()
	}

	c := b.Probe()
	b.Log.Debug("probed host", "os", c.OS, "os_version", c.OSVersion, "arch", c.Arch)

	run := &store.Run{OSVersion: c.OSVersion}
	journal := b.startRun(run)

	var plan toolchain.Plan
	defer func() {
		if journal {
			b.finishRun(run, plan, err)
		}
	}()

	specs, roles, err := toolPlan(cfg)
	if err != nil {
		return err
	}
	policy, err := installer.ParseConflictPolicy(cfg.Conflicts)
	if err != nil {
		return err
	}
	if b.Registry == nil {
		b.Registry = pkgmgr.Default(b.Runner, cfg.SystemPrefix)
	}

	opts := installer.Options{Policy: policy, Logger: b.Log, Progress: b.Progress}
	if journal {
		opts.Recorder = b.Journal.Recorder(run.ID)
	}
	inst := installer.New(b.Registry, b.Runner, opts)

	tools, err := b.ensureAll(ctx, inst, specs)
	plan.Tools = tools
	if err != nil {
		b.failureReport(c, plan, req)
		return err
	}

	resolver := toolchain.NewResolver(toolchain.Options{
		Roles:               roles,
		DeploymentTarget:    cfg.DeploymentTarget,
		DeploymentTargetVar: cfg.DeploymentTargetVar,
		ExtraEnv:            cfg.Env,
		BasePath:            b.BasePath,
		Locator:             b.Locator,
		ManagerPrefixes:     b.managerPrefixes(ctx),
	})
	resolved, err := resolver.Resolve(tools)
	if err != nil {
		b.failureReport(c, plan, req)
		return err
	}
	plan = resolved

	if _, err := plan.Materialize(b.Env); err != nil {
		return err
	}
	b.Log.Debug("environment applied", "vars", plan.Env.Len())

	if req.Export != "" {
		format, err := shell.ParseFormat(req.ExportFormat, req.Export)
		if err != nil {
			return err
		}
		if err := shell.WriteExports(req.Export, format, plan.Env); err != nil {
			return err
		}
		b.Log.Info("wrote environment", "path", req.Export, "format", format)
	}

	if !req.NoReport {
		fmt.Fprint(b.Out, report.Report(c, plan, report.Options{Color: req.ReportColor}))
	}

	if len(req.Command) > 0 {
		b.Log.Info("running build command", "command", req.Command[0])
		if err := b.Exec(parent, req.Command, plan.Env.Environ()); err != nil {
			return zerr.With(zerr.Wrap(err, "build command failed"), "command", req.Command[0])
		}
	}
	return nil
}

// ensureAll ensures every tool in order. A host tool that is absent is
// left out so the resolver reports the role it should fill as missing.
func (b *Bootstrapper) ensureAll(ctx context.Context, inst *installer.Installer, specs []installer.ToolSpec) ([]installer.InstalledTool, error) {
	var tools []installer.InstalledTool
	for _, spec := range specs {
		if spec.Manager == pkgmgr.System {
			present, err := b.hostHas(ctx, spec)
			if err != nil {
				return tools, err
			}
			if !present {
				b.Log.Warn("host tool not found", "tool", spec.Name, "manager", spec.Manager)
				continue
			}
		}
		tool, err := inst.Ensure(ctx, spec)
		if err != nil {
			return tools, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// managerPrefixes returns the roots of every available manager so the
// resolver can tell a nested prefix such as /usr/local from /usr.
func (b *Bootstrapper) managerPrefixes(ctx context.Context) []string {
	var prefixes []string
	for _, m := range b.Registry.All() {
		if !m.Available() {
			continue
		}
		prefix, err := m.Prefix(ctx)
		if err != nil {
			b.Log.Debug("could not read manager prefix", "manager", m.Kind(), "error", err)
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}

func (b *Bootstrapper) hostHas(ctx context.Context, spec installer.ToolSpec) (bool, error) {
	mgr, ok := b.Registry.Get(pkgmgr.System)
	if !ok {
		return false, nil
	}
	return mgr.IsInstalled(ctx, spec.Name)
}

func (b *Bootstrapper) failureReport(c probe.Capability, plan toolchain.Plan, req Request) {
	if req.NoReport {
		return
	}
	fmt.Fprint(b.Err, report.Report(c, plan, report.Options{Color: req.ReportColor}))
}

// startRun journals the start of run. Journal failures never fail the
// bootstrap.
func (b *Bootstrapper) startRun(run *store.Run) bool {
	if b.Journal == nil {
		return false
	}
	if err := b.Journal.StartRun(run); err != nil {
		b.Log.Warn("failed to journal run", "error", err)
		return false
	}
	b.Log.Debug("journaling run", "run", run.ID)
	return true
}

func (b *Bootstrapper) finishRun(run *store.Run, plan toolchain.Plan, runErr error) {
	run.Status = store.StatusSucceeded
	run.ExitCode = ExitCode(runErr)
	if runErr != nil {
		run.Status = store.StatusFailed
		run.Error = runErr.Error()
	}
	run.CompilerPath = plan.CompilerPath
	run.BuildToolPath = plan.BuildToolPath
	if err := b.Journal.FinishRun(run); err != nil {
		b.Log.Warn("failed to journal run result", "run", run.ID, "error", err)
	}
}

func runCommand(ctx context.Context, argv, env []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
