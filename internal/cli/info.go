package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/polypack/polypack/pkg/manager"
)

// newInfoCmd creates the info command.
func newInfoCmd(opts *globalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "info <package>",
		Short: "Show registry metadata for a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			m, cfg, err := newManager(ctx, logger, opts)
			if err != nil {
				return err
			}
			info, format, err := m.Info(ctx, manager.Request{
				Dir:     opts.dir,
				Format:  opts.format,
				Verbose: opts.verbose,
				Config:  cfg,
			}, args[0])
			if err != nil {
				return err
			}

			printNewline()
			printKeyValue("name", StyleTitle.Render(info.Name))
			printKeyValue("version", info.Version)
			printKeyValue("format", format)
			if info.Description != "" {
				printKeyValue("about", info.Description)
			}
			if info.License != "" {
				printKeyValue("license", info.License)
			}
			if info.Author != "" {
				printKeyValue("author", info.Author)
			}
			if info.HomePage != "" {
				printKeyValue("homepage", StyleLink.Render(info.HomePage))
			}
			if info.Repository != "" {
				printKeyValue("repository", StyleLink.Render(info.Repository))
			}
			if info.Deprecated != "" {
				printWarning("deprecated: %s", info.Deprecated)
			}

			versions := info.Versions
			if !all && len(versions) > 10 {
				versions = versions[len(versions)-10:]
			}
			printKeyValue("versions", strings.Join(versions, ", "))
			if !all && len(info.Versions) > 10 {
				printDetail("%d older versions hidden; use --all", len(info.Versions)-10)
			}
			printNewline()
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list every available version")
	return cmd
}
