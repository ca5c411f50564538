package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polypack/polypack/pkg/manager"
)

// newRemoveCmd creates the remove command.
func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <packages...>",
		Aliases: []string{"uninstall", "rm"},
		Short:   "Uninstall packages and drop them from the lock file",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			m, cfg, err := newManager(ctx, logger, opts)
			if err != nil {
				return err
			}
			out, err := m.Remove(ctx, manager.Request{
				Dir:      opts.dir,
				Format:   opts.format,
				Packages: args,
				Verbose:  opts.verbose,
				Config:   cfg,
			})
			if out != nil {
				printDiagnostics(out.Diags)
			}
			if err != nil {
				printError("remove failed: %v", err)
				return err
			}

			res := out.Result
			printSuccess("Removed %d packages (%s)", len(res.Removed), out.Format)
			for _, name := range res.Removed {
				printDetail("%s", name)
			}
			if out.LockErr != nil {
				printWarning("lock file not updated: %v", out.LockErr)
			}
			for _, e := range res.Errors {
				printWarning("%s: %s", e.Package, e.Message)
			}
			if len(res.Removed) == 0 && res.Failed() {
				return fmt.Errorf("nothing removed")
			}
			return nil
		},
	}
}
