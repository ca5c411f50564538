package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package during initialization with
// values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the polypack CLI and returns an error if any command fails.
//
// The function sets up the root command with all subcommands (install,
// remove, update, info, search, graph, cache), configures logging based on
// the --verbose flag, and executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "polypack",
		Short:        "Polypack installs dependencies across package ecosystems",
		Long:         `Polypack is a package manager engine that detects a project's ecosystem, resolves its dependencies against the matching registry, fetches artifacts into a shared cache, and installs them with a reproducible lock file per format.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if opts.verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("polypack %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	pf := root.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	pf.StringVarP(&opts.dir, "dir", "C", ".", "project directory")
	pf.StringVarP(&opts.format, "format", "f", "", "force a package format (npm, pip)")
	pf.StringVar(&opts.registry, "registry", "", "registry base URL override")
	pf.StringVar(&opts.cacheDir, "cache-dir", "", "cache root directory")
	pf.StringVar(&opts.redis, "redis", "", "redis address for shared metadata caching")

	root.AddCommand(newInstallCmd(opts))
	root.AddCommand(newRemoveCmd(opts))
	root.AddCommand(newUpdateCmd(opts))
	root.AddCommand(newInfoCmd(opts))
	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newGraphCmd(opts))
	root.AddCommand(newCacheCmd(opts))

	return root.ExecuteContext(ctx)
}
