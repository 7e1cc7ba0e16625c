package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/CardSorting/MarieCoder-sub006/internal/constants"
	"github.com/CardSorting/MarieCoder-sub006/internal/domain"
	mcerrors "github.com/CardSorting/MarieCoder-sub006/internal/errors"
)

// AddHistoryCommand registers the history command group.
func AddHistoryCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the task history",
	}

	cmd.AddCommand(newHistoryListCmd())

	root.AddCommand(cmd)
}

// newHistoryListCmd prints the persisted task history.
func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List past and resumable tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := newStore()
			if err != nil {
				return err
			}

			var history []domain.HistoryItem
			if err := store.GetGlobal(cmd.Context(), constants.KeyTaskHistory, &history); err != nil {
				if errors.Is(err, mcerrors.ErrKeyNotFound) {
					cmd.Println("No tasks yet")
					return nil
				}
				return err
			}

			for _, item := range history {
				desc := item.Description
				if desc == "" {
					desc = "(no description)"
				}
				cmd.Printf("%s  %s  %s\n", item.ID, item.CreatedAt.Format("2006-01-02 15:04"), desc)
			}
			return nil
		},
	}
}
