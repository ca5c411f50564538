package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polypack/polypack/pkg/manager"
)

// newUpdateCmd creates the update command. Update re-evaluates every
// constraint against the registry, so newer satisfying versions replace the
// previously pinned ones.
func newUpdateCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "update [packages...]",
		Aliases: []string{"upgrade"},
		Short:   "Re-resolve constraints and refresh installed versions",
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
				DryRun:   dryRun,
				Verbose:  opts.verbose,
				Config:   cfg,
			}

			prog := newProgress(logger)
			sp := startSpinner(ctx, opts.verbose, "re-resolving dependencies")
			out, err := m.Update(ctx, req)
			if err != nil {
				sp.StopWithError(fmt.Sprintf("update failed: %v", err))
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

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and fetch without installing or writing the lock file")
	return cmd
}
