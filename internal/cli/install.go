package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polypack/polypack/pkg/manager"
	"github.com/polypack/polypack/pkg/pm"
)

// newInstallCmd creates the install command.
//
// With no arguments the whole manifest is installed; with package names only
// those packages (and their resolution closure) are.
func newInstallCmd(opts *globalOptions) *cobra.Command {
	var (
		dev    bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "install [packages...]",
		Short: "Resolve and install dependencies",
		Long: `Install resolves the project's dependencies against its registry, fetches
artifacts into the shared cache, installs them into the format's layout, and
writes a lock file pinning the resolved versions.

Named packages are added under the production scope (or development with
--dev); the rest of the manifest is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			m, cfg, err := newManager(ctx, logger, opts)
			if err != nil {
				return err
			}
			req := manager.Request{
				Dir:      opts.dir,
				Format:   opts.format,
				Packages: args,
				Dev:      dev,
				DryRun:   dryRun,
				Verbose:  opts.verbose,
				Config:   cfg,
			}

			prog := newProgress(logger)
			sp := startSpinner(ctx, opts.verbose, "resolving dependencies")
			out, err := m.Install(ctx, req)
			if err != nil {
				sp.StopWithError(fmt.Sprintf("install failed: %v", err))
			} else {
				sp.Stop()
			}

			if out != nil {
				printDiagnostics(out.Diags)
			}
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Resolved %d packages", out.Graph.Len()))

			return reportOutcome(out, dryRun)
		},
	}

	cmd.Flags().BoolVarP(&dev, "dev", "D", false, "add named packages to the development scope")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and fetch without installing or writing the lock file")
	return cmd
}

// reportOutcome prints the result of an install-shaped operation and returns
// an error when any per-package failures were recorded, so the exit code
// reflects them while the successes stay reported.
func reportOutcome(out *manager.Outcome, dryRun bool) error {
	if dryRun {
		printInfo("Would install %d packages (%s)", len(out.Planned), out.Format)
		for _, p := range out.Planned {
			printDetail("%s@%s", p.Name, p.Version)
		}
		printStats(len(out.Planned), 0, 0, 0, true)
		return nil
	}

	res := out.Result
	if res == nil {
		res = &pm.InstallResult{}
	}
	printSuccess("Install complete (%s)", out.Format)
	printStats(len(res.Installed), len(res.Updated), len(res.Skipped), len(res.Removed), false)

	if out.Lock != nil {
		d := out.LockDiff
		if len(d.Added)+len(d.Changed)+len(d.Removed) > 0 {
			printDetail("lock: +%d ~%d -%d", len(d.Added), len(d.Changed), len(d.Removed))
		}
		printFile(pm.LockPath(".", out.Lock.Format))
	}
	if out.LockErr != nil {
		printWarning("lock file not written: %v", out.LockErr)
	}

	for _, e := range res.Errors {
		printError("%s: %s", e.Package, e.Message)
	}
	if res.Failed() {
		return fmt.Errorf("%d packages failed", len(res.Errors))
	}
	return nil
}

// printDiagnostics surfaces the non-fatal conditions an operation recorded
// (deprecations, truncated cycles, unresolvable transitive edges).
func printDiagnostics(diags []pm.Diagnostic) {
	for _, d := range diags {
		switch d.Level {
		case "error":
			printError("%s: %s", d.Package, d.Message)
		default:
			printWarning("%s: %s", d.Package, d.Message)
		}
	}
}
