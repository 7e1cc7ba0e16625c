package cli

import (
	"github.com/spf13/cobra"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/config"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/signal"
	"github.com/CardSorting/MarieCoder-sub006/internal/workspace"
)

// AddWorkspaceCommand registers the workspace command group.
func AddWorkspaceCommand(root *cobra.Command, _ *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Inspect and watch workspace roots",
	}

	cmd.AddCommand(newWorkspaceRootsCmd())
	cmd.AddCommand(newWorkspaceWatchCmd())

	root.AddCommand(cmd)
}

// newWorkspaceRootsCmd resolves and prints the configured workspace roots.
func newWorkspaceRootsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roots",
		Short: "Resolve and print the workspace roots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := GetLogger()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			resolver := newResolverFromConfig(cfg)
			if err := resolver.Initialize(ctx); err != nil {
				return err
			}

			roots := resolver.GetRoots()
			if len(roots) == 0 {
				cmd.Printf("No workspace roots resolved; falling back to %s\n", resolver.GetCwd())
				return nil
			}

			for _, root := range roots {
				marker := " "
				if root.Index == 0 {
					marker = "*"
				}
				cmd.Printf("%s %s\n", marker, root.Path)
			}

			logger.Debug().Int("root_count", len(roots)).Msg("workspace roots resolved")
			return nil
		},
	}
}

// newWorkspaceWatchCmd watches the workspace roots until interrupted.
func newWorkspaceWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch workspace roots for changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := GetLogger()

			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			if len(cfg.Workspace.Roots) == 0 {
				return mcerrors.Wrap(mcerrors.ErrEmptyValue, "workspace.roots must be configured to watch")
			}

			h := signal.NewHandler(cmd.Context())
			defer h.Stop()
			ctx := h.Context()

			resolver := newResolverFromConfig(cfg)
			if err := resolver.Initialize(ctx); err != nil {
				return err
			}

			watcher, err := workspace.NewWatcher(resolver, logger, cfg.Workspace.Roots)
			if err != nil {
				return err
			}

			cmd.Printf("Watching %d workspace root(s), press Ctrl+C to stop\n", len(cfg.Workspace.Roots))

			err = watcher.Run(ctx)
			select {
			case <-h.Interrupted():
				// A user interrupt is a clean shutdown.
				return nil
			default:
				return err
			}
		},
	}
}

// newResolverFromConfig builds a resolver over the configured roots.
func newResolverFromConfig(cfg *config.Config) *workspace.Resolver {
	logger := GetLogger()

	fallback := cfg.Workspace.FallbackCwd
	if fallback == "" {
		fallback = workspace.DefaultCwd()
	}

	detector := workspace.NewConfigDetector(cfg.Workspace.Roots, logger)
	return workspace.NewResolver(detector, bus.New(logger), logger, fallback)
}
