package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/importer"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <bank-account-id> [file...]",
		Short: "Import bank transactions; without files, imports every CSV in import/",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rd := importer.DefaultRegistry().Get(format)
			if rd == nil {
				return fmt.Errorf("unknown format %q", format)
			}
			return withApp(opts, func(a *app) error {
				bankID := args[0]
				files := args[1:]
				fromInbox := len(files) == 0
				if fromInbox {
					pending, err := importer.Scan(a.root)
					if err != nil {
						return err
					}
					for _, f := range pending {
						files = append(files, f.Path)
					}
				}
				if len(files) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to import")
					return nil
				}

				out := cmd.OutOrStdout()
				for _, path := range files {
					res, err := a.importer.ImportFile(cmd.Context(), bankID, path, rd)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: batch %s, %d inserted, %d duplicates, %d rejected\n",
						filepath.Base(path), res.BatchID, res.Inserted, res.Duplicates, len(res.Errors))
					for _, re := range res.Errors {
						fmt.Fprintf(out, "  %v\n", re)
					}
					_ = a.audit.Record(auditlog.ActionImport,
						fmt.Sprintf("%s into %s: %d inserted, %d duplicates", filepath.Base(path), bankID, res.Inserted, res.Duplicates),
						"", res.BatchID)
					if fromInbox {
						if err := importer.MarkProcessed(a.root, filepath.Base(path)); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "normalized", "input format")
	return cmd
}

func newRollbackCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <batch-id>",
		Short: "Delete an import batch that has no matched transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				n, err := a.importer.RollbackBatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionRollback, fmt.Sprintf("%d transactions deleted", n), "", args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back batch %s (%d transactions)\n", args[0], n)
				return nil
			})
		},
	}
}
