package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/buildinfo"
	"github.com/cleared-dev/ledgercore/internal/model"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	workspace  string
	configPath string
	envFile    string
	verbose    bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "ledgercore",
		Short:   "Double-entry ledger and bank reconciliation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.workspace, "workspace", "w", ".", "workspace directory")
	pf.StringVar(&opts.configPath, "config", "", "config file (default <workspace>/ledgercore.yaml)")
	pf.StringVar(&opts.envFile, "env-file", "", "env file with LEDGERCORE_* overrides (default .env)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newBankCommand(opts),
		newImportCommand(opts),
		newRollbackCommand(opts),
		newRecordCommand(opts, model.KindInvoice),
		newRecordCommand(opts, model.KindExpense),
		newMatchCommand(opts),
		newReviewCommand(opts),
		newConfirmCommand(opts),
		newPostCommand(opts),
		newReverseCommand(opts),
		newDraftCommand(opts),
		newExportCommand(opts),
		newBalanceCommand(opts),
		newTrialBalanceCommand(opts),
		newCashflowCommand(opts),
		newRebuildCommand(opts),
		newServeCommand(opts),
		newSnapshotCommand(opts),
	)

	return rootCmd
}
