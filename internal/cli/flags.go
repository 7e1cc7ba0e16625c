package cli

import "github.com/spf13/cobra"

// GlobalFlags holds flag values shared by every command.
type GlobalFlags struct {
	// Verbose enables debug-level logging.
	Verbose bool

	// Quiet restricts logging to warnings and errors and silences the
	// notification bell.
	Quiet bool
}

// AddGlobalFlags registers the shared persistent flags on the root command.
func AddGlobalFlags(cmd *cobra.Command, flags *GlobalFlags) {
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "only log warnings and errors")
}
