package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/CardSorting/MarieCoder-sub006/internal/bus"
	"github.com/CardSorting/MarieCoder-sub006/internal/catalog"
	"github.com/CardSorting/MarieCoder-sub006/internal/config"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
	"github.com/CardSorting/MarieCoder-sub006/internal/notify"
	"github.com/CardSorting/MarieCoder-sub006/internal/state"
)

// AddMarketplaceCommand registers the marketplace command group.
func AddMarketplaceCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "marketplace",
		Short: "Manage the MCP marketplace catalog",
	}

	cmd.AddCommand(newMarketplaceRefreshCmd(flags))
	cmd.AddCommand(newMarketplaceShowCmd())

	root.AddCommand(cmd)
}

// newMarketplaceRefreshCmd fetches a fresh catalog from the marketplace.
func newMarketplaceRefreshCmd(flags *GlobalFlags) *cobra.Command {
	var silent bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the latest marketplace catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := GetLogger()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			store, err := newStore()
			if err != nil {
				return err
			}

			sink := notify.NewTerminalSink(notify.Config{
				BellEnabled: cfg.Notifications.Bell,
				Quiet:       cfg.Notifications.Quiet || flags.Quiet,
			}, logger)

			refresher := catalog.NewRefresher(
				cfg.Marketplace.Endpoint,
				cfg.Marketplace.RequestTimeout,
				store,
				bus.New(logger),
				sink,
				logger,
				nil,
				nil,
			)

			result, err := refresher.FetchCatalogRPC(ctx, silent)
			if err != nil {
				return err
			}
			if result == nil {
				return nil
			}

			cmd.Printf("Fetched %d marketplace items\n", len(result.Items))
			return nil
		},
	}

	cmd.Flags().BoolVar(&silent, "silent", false, "swallow refresh failures")
	return cmd
}

// newMarketplaceShowCmd prints the cached catalog as JSON.
func newMarketplaceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cached marketplace catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := GetLogger()

			store, err := newStore()
			if err != nil {
				return err
			}

			refresher := catalog.NewRefresher("", 0, store, bus.New(logger), nil, logger, nil, nil)
			cached, err := refresher.CachedCatalog(ctx)
			if err != nil {
				return mcerrors.Wrap(err, "no cached catalog, run 'marketplace refresh' first")
			}

			out, err := json.MarshalIndent(cached, "", "  ")
			if err != nil {
				return mcerrors.Wrap(err, "failed to encode catalog")
			}

			cmd.Println(string(out))
			return nil
		},
	}
}

// newStore opens the file store under the application home directory.
func newStore() (state.Store, error) {
	home, err := AppHome()
	if err != nil {
		return nil, err
	}
	return state.NewFileStore(home)
}
