package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/polypack/polypack/pkg/cache"
)

// newCacheCmd creates the cache management command.
func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
	}
	cmd.AddCommand(newCacheClearCmd(opts))
	cmd.AddCommand(newCachePathCmd(opts))
	return cmd
}

// newCacheClearCmd creates the "cache clear" subcommand. Clearing is the only
// way artifacts leave the store; fetches never evict.
func newCacheClearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.fromEnv()
			root, err := opts.cacheRoot()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			store, err := cache.NewStore(filepath.Join(root, "artifacts"))
			if err != nil {
				return err
			}

			count, err := store.Clear()
			if err != nil {
				return err
			}
			if count == 0 {
				printInfo("Cache is empty")
				return nil
			}
			printSuccess("Cleared %d cached artifacts", count)
			printDetail("Directory: %s", store.Dir())
			return nil
		},
	}
}

// newCachePathCmd creates the "cache path" subcommand.
func newCachePathCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.fromEnv()
			root, err := opts.cacheRoot()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(root)
			return nil
		},
	}
}
