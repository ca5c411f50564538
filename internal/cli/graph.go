package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polypack/polypack/pkg/export"
	"github.com/polypack/polypack/pkg/manager"
)

// newGraphCmd creates the graph command: resolve the current manifest and
// emit the dependency graph as DOT or rendered SVG.
func newGraphCmd(opts *globalOptions) *cobra.Command {
	var (
		output   string
		svg      bool
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the resolved dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			m, cfg, err := newManager(ctx, logger, opts)
			if err != nil {
				return err
			}

			sp := startSpinner(ctx, opts.verbose, "resolving dependencies")
			graph, format, err := m.Resolve(ctx, manager.Request{
				Dir:     opts.dir,
				Format:  opts.format,
				Verbose: opts.verbose,
				Config:  cfg,
			})
			sp.Stop()
			if err != nil {
				return err
			}
			logger.Debugf("resolved %d packages (%s)", graph.Len(), format)

			dot := export.ToDOT(graph, export.Options{Detailed: detailed})
			data := []byte(dot)
			if svg {
				if data, err = export.RenderSVG(dot); err != nil {
					return fmt.Errorf("render svg: %w", err)
				}
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			printSuccess("Exported %d packages", graph.Len())
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&svg, "svg", false, "render SVG instead of DOT")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include registry and integrity metadata in labels")
	return cmd
}
