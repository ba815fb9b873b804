package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/accounts"
	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/model"
)

func newBankCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Manage bank accounts",
	}
	cmd.AddCommand(
		newBankAddCommand(opts),
		newBankListCommand(opts),
		newBankStatementCommand(opts),
		newBankRefreshCommand(opts),
	)
	return cmd
}

func newBankAddCommand(opts *globalOptions) *cobra.Command {
	var (
		acct        model.BankAccount
		opening     string
		openingDate string
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register a bank account, optionally with its opening balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct.ID = args[0]
			acct.IsActive = true
			return withApp(opts, func(a *app) error {
				if _, err := a.chart.ResolveAnalytical(acct.LedgerCode); err != nil {
					return err
				}
				if err := a.store.InsertBankAccount(cmd.Context(), acct); err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionAddBank, acct.Name+" -> "+acct.LedgerCode, "", "")
				fmt.Fprintf(cmd.OutOrStdout(), "Added bank account %s (%s)\n", acct.ID, acct.LedgerCode)

				if opening == "" {
					return nil
				}
				amount, err := parseAmount("opening", opening)
				if err != nil {
					return err
				}
				date, err := parseDate("opening-date", openingDate)
				if err != nil {
					return err
				}
				if date.IsZero() {
					date = today()
				}
				entry, err := a.journal.PostTemplate(cmd.Context(), journal.OpeningBalance{
					BankCode: acct.LedgerCode, Amount: amount, Date: date,
				})
				if err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionOpening, acct.ID+" "+amount.StringFixed(2), entry.ID, "")
				fmt.Fprintf(cmd.OutOrStdout(), "Posted opening balance %s as %s\n", amount.StringFixed(2), entry.Number)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&acct.Name, "name", "", "display name (required)")
	f.StringVar(&acct.BankName, "bank", "", "bank name")
	f.StringVar(&acct.AccountType, "type", "checking", "account type")
	f.StringVar(&acct.LedgerCode, "ledger-code", accounts.CodeBankChecking, "analytical asset account")
	f.StringVar(&opening, "opening", "", "opening balance (negative for an overdraft)")
	f.StringVar(&openingDate, "opening-date", "", "opening balance date (default today)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newBankListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bank accounts with their cached balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				banks, err := a.store.ListBankAccounts(cmd.Context(), false)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tLEDGER\tCACHED BALANCE\tACTIVE")
				for _, b := range banks {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", b.ID, b.Name, b.LedgerCode, b.CurrentBalance.StringFixed(2), b.IsActive)
				}
				return tw.Flush()
			})
		},
	}
}

func newBankStatementCommand(opts *globalOptions) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "statement <id>",
		Short: "Show a bank account's ledger statement and any divergence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate("from", from)
			if err != nil {
				return err
			}
			end, err := parseDate("to", to)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				view, err := a.ledger.BankView(cmd.Context(), args[0], start, end)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if err := printStatement(out, view.Statement); err != nil {
					return err
				}
				fmt.Fprintf(out, "Ledger balance: %s  cached: %s  imported net: %s\n",
					view.LedgerBalance.StringFixed(2), view.BankAccount.CurrentBalance.StringFixed(2), view.ImportedNet.StringFixed(2))
				for _, d := range view.Divergences {
					fmt.Fprintf(out, "DIVERGENCE %s: ledger %s vs %s (%s) %s\n",
						d.Kind, d.Expected.StringFixed(2), d.Actual.StringFixed(2), d.Difference.StringFixed(2), d.Detail)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD")
	return cmd
}

func newBankRefreshCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id>",
		Short: "Recompute a bank account's cached balance from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				bal, err := a.ledger.RefreshCache(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionRefreshCache, args[0]+" "+bal.StringFixed(2), "", "")
				fmt.Fprintf(cmd.OutOrStdout(), "Cached balance of %s set to %s\n", args[0], bal.StringFixed(2))
				return nil
			})
		},
	}
}
