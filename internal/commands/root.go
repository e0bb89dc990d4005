package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/edubill-dev/edubill/internal/buildinfo"
)

type globalFlags struct {
	dir     string
	envFile string
	verbose bool

	// invocation is the command line recorded in the workspace history.
	invocation string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:     "edubill",
		Short:   "Billing cycles and payment settlement for education accounts",
		Version: buildinfo.Get().String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.invocation = strings.TrimSpace(cmd.CommandPath() + " " + strings.Join(args, " "))
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.dir, "dir", ".", "workspace directory")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file with EDUBILL_* overrides")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newInitCommand(),
		newPolicyCommand(),
		newObligationsCommand(&g),
		newPayCommand(&g),
		newTopUpCommand(&g),
		newChargeCommand(&g),
		newExecuteCommand(&g),
		newCancelCommand(&g),
		newRunScheduledCommand(&g),
		newBatchTopUpCommand(&g),
		newImportChargesCommand(&g),
		newLedgerCommand(&g),
		newServeCommand(&g),
		newDBCommand(&g),
	)

	return rootCmd
}
