package cli

import (
	"github.com/spf13/cobra"

	"github.com/polypack/polypack/pkg/manager"
)

// newSearchCmd creates the search command. Every registered format's registry
// is queried; a registry without a search API contributes nothing.
func newSearchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Query package registries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			m, cfg, err := newManager(ctx, logger, opts)
			if err != nil {
				return err
			}
			hits, err := m.Search(ctx, manager.Request{
				Dir:     opts.dir,
				Format:  opts.format,
				Verbose: opts.verbose,
				Config:  cfg,
			}, args[0])
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				printInfo("No packages matched %q", args[0])
				return nil
			}

			printNewline()
			for _, h := range hits {
				printSuccess("%s %s", StyleTitle.Render(h.Name), StyleDim.Render(h.Version+" · "+h.Format))
				if h.Description != "" {
					printDetail("%s", h.Description)
				}
			}
			printNewline()
			printNextStep("Install one", "polypack install "+hits[0].Name)
			return nil
		},
	}
}
