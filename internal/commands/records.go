package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// newRecordCommand builds the invoice or expense command group.
func newRecordCommand(opts *globalOptions, kind model.RecordKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Manage %ss", kind),
	}
	cmd.AddCommand(newRecordAddCommand(opts, kind), newRecordListCommand(opts, kind))
	return cmd
}

func newRecordAddCommand(opts *globalOptions, kind model.RecordKind) *cobra.Command {
	var (
		rec    model.Record
		amount string
		due    string
		accrue bool
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: fmt.Sprintf("Add a pending %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.ID = args[0]
			rec.Kind = kind
			rec.Status = model.SettlementPending
			var err error
			if rec.Amount, err = parseAmount("amount", amount); err != nil {
				return err
			}
			if !rec.Amount.IsPositive() {
				return fmt.Errorf("--amount must be positive")
			}
			if rec.DueDate, err = parseDate("due", due); err != nil {
				return err
			}
			if rec.DueDate.IsZero() {
				return fmt.Errorf("--due is required")
			}
			if rec.Competence == "" {
				rec.Competence = rec.DueDate.Format("2006-01")
			}
			competence, err := time.Parse("2006-01", rec.Competence)
			if err != nil {
				return fmt.Errorf("--competence: want YYYY-MM, got %q", rec.Competence)
			}

			return withApp(opts, func(a *app) error {
				if kind == model.KindExpense && rec.AccountCode != "" {
					if _, err := a.chart.ResolveAnalytical(rec.AccountCode); err != nil {
						return err
					}
				}
				if err := a.store.InsertRecord(cmd.Context(), rec); err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionAddRecord, fmt.Sprintf("%s %s %s", kind, rec.ID, rec.Amount.StringFixed(2)), "", "")
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s for %s due %s\n", kind, rec.ID, rec.Amount.StringFixed(2), rec.DueDate.Format(time.DateOnly))
				if !accrue {
					return nil
				}

				var tmpl journal.Template = journal.AccrueReceivable{
					InvoiceID: rec.ID, Amount: rec.Amount, Competence: competence, Description: rec.Description,
				}
				if kind == model.KindExpense {
					tmpl = journal.RecordExpenseAccrual{
						ExpenseID: rec.ID, Amount: rec.Amount, Competence: competence,
						ExpenseCode: rec.AccountCode, Description: rec.Description,
					}
				}
				entry, err := a.journal.PostTemplate(cmd.Context(), tmpl)
				if err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionPost, "accrual of "+rec.ID, entry.ID, "")
				fmt.Fprintf(cmd.OutOrStdout(), "Posted accrual %s\n", entry.Number)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&amount, "amount", "", "amount (required)")
	f.StringVar(&due, "due", "", "due date YYYY-MM-DD (required)")
	f.StringVar(&rec.CounterpartyName, "counterparty", "", "client or supplier name")
	f.StringVar(&rec.Description, "description", "", "description")
	f.StringVar(&rec.Competence, "competence", "", "competence month YYYY-MM (default due month)")
	f.BoolVar(&accrue, "accrue", false, "also post the accrual entry")
	if kind == model.KindExpense {
		f.StringVar(&rec.AccountCode, "account", "", "expense account (default from config)")
	}
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func newRecordListCommand(opts *globalOptions, kind model.RecordKind) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if _, err := a.store.MarkOverdue(cmd.Context(), kind, today()); err != nil {
					return err
				}
				recs, err := a.store.ListRecords(cmd.Context(), kind, store.RecordQuery{OpenOnly: !all})
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDUE\tAMOUNT\tSTATUS\tCOUNTERPARTY")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.DueDate.Format(time.DateOnly), r.Amount.StringFixed(2), r.Status, r.CounterpartyName)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include paid and canceled")
	return cmd
}
