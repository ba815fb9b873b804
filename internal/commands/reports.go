package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/cashflow"
	"github.com/cleared-dev/ledgercore/internal/ledger"
	"github.com/cleared-dev/ledgercore/internal/server"
)

func printStatement(w io.Writer, st ledger.Statement) error {
	fmt.Fprintf(w, "%s %s (%s basis)\n", st.Account.Code, st.Account.Name, st.Basis)
	fmt.Fprintf(w, "Opening balance: %s\n", st.OpeningBalance.StringFixed(2))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DATE\tNUMBER\tDEBIT\tCREDIT\tBALANCE\tDESCRIPTION\t")
	for _, e := range st.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", e.Date.Format(time.DateOnly), e.Number,
			e.Debit.StringFixed(2), e.Credit.StringFixed(2), e.RunningBalance.StringFixed(2), e.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Totals: debit %s credit %s\n", st.TotalDebit.StringFixed(2), st.TotalCredit.StringFixed(2))
	fmt.Fprintf(w, "Closing balance: %s\n", st.ClosingBalance.StringFixed(2))
	return nil
}

func newBalanceCommand(opts *globalOptions) *cobra.Command {
	var (
		from, to, basis string
		periods         int
	)

	cmd := &cobra.Command{
		Use:   "balance <account-code>",
		Short: "Show an account's running balance",
		Long: `Show the running balance of an account between two dates. A summary
account aggregates every analytical account beneath it. With --periods,
print one monthly statement per month starting at --from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate("from", from)
			if err != nil {
				return err
			}
			end, err := parseDate("to", to)
			if err != nil {
				return err
			}
			b, err := parseBasis(basis)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				out := cmd.OutOrStdout()
				if periods > 0 {
					if start.IsZero() {
						return fmt.Errorf("--periods needs --from")
					}
					stmts, err := a.ledger.Periods(cmd.Context(), args[0], start, periods, b)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
					fmt.Fprintln(tw, "MONTH\tOPENING\tDEBIT\tCREDIT\tCLOSING\t")
					for _, s := range stmts {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", s.Start.Format("2006-01"),
							s.OpeningBalance.StringFixed(2), s.TotalDebit.StringFixed(2),
							s.TotalCredit.StringFixed(2), s.ClosingBalance.StringFixed(2))
					}
					return tw.Flush()
				}
				st, err := a.ledger.RunningBalance(cmd.Context(), args[0], start, end, b)
				if err != nil {
					return err
				}
				return printStatement(out, st)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&basis, "basis", "cash", "cash or accrual")
	cmd.Flags().IntVar(&periods, "periods", 0, "number of monthly periods")
	return cmd
}

func newTrialBalanceCommand(opts *globalOptions) *cobra.Command {
	var asOf, basis string

	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Show debit and credit totals per account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate("as-of", asOf)
			if err != nil {
				return err
			}
			b, err := parseBasis(basis)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				tb, err := a.ledger.TrialBalance(cmd.Context(), day, b)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tNAME\tDEBIT\tCREDIT\tBALANCE")
				for _, r := range tb.Rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Account.Code, r.Account.Name,
						r.Debit.StringFixed(2), r.Credit.StringFixed(2), r.Balance.StringFixed(2))
				}
				fmt.Fprintf(tw, "\tTOTAL\t%s\t%s\t\n", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
				if err := tw.Flush(); err != nil {
					return err
				}
				if !tb.Balanced() {
					return fmt.Errorf("trial balance does not balance: debit %s, credit %s",
						tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "cutoff date YYYY-MM-DD (default all)")
	cmd.Flags().StringVar(&basis, "basis", "cash", "cash or accrual")
	return cmd
}

// parseManual reads DATE:AMOUNT[:DESCRIPTION]; a negative amount is an outflow.
func parseManual(v string) (cashflow.Item, error) {
	parts := strings.SplitN(v, ":", 3)
	if len(parts) < 2 {
		return cashflow.Item{}, fmt.Errorf("--manual: want DATE:AMOUNT[:DESCRIPTION], got %q", v)
	}
	d, err := parseDate("manual", parts[0])
	if err != nil {
		return cashflow.Item{}, err
	}
	amount, err := parseAmount("manual", parts[1])
	if err != nil {
		return cashflow.Item{}, err
	}
	it := cashflow.Item{Date: d, Amount: amount, Source: "manual", Description: "manual adjustment"}
	if len(parts) == 3 {
		it.Description = parts[2]
	}
	return it, nil
}

func newCashflowCommand(opts *globalOptions) *cobra.Command {
	var (
		start   string
		horizon int
		manual  []string
	)

	cmd := &cobra.Command{
		Use:   "cashflow",
		Short: "Project daily cash balances and flag shortfalls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate("start", start)
			if err != nil {
				return err
			}
			if day.IsZero() {
				day = today()
			}
			var items []cashflow.Item
			for _, m := range manual {
				it, err := parseManual(m)
				if err != nil {
					return err
				}
				items = append(items, it)
			}
			return withApp(opts, func(a *app) error {
				h := horizon
				if h == 0 {
					h = a.cfg.CashFlow.HorizonDays
				}
				params, err := cashflow.Build(cmd.Context(), cashflow.Sources{Balances: a.ledger, Records: a.store}, day, h, items)
				if err != nil {
					return err
				}
				proj, err := cashflow.Project(params, cashflow.OptionsFromConfig(a.cfg.CashFlow))
				if err != nil {
					return err
				}
				return cashflow.Render(cmd.OutOrStdout(), proj)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "projection start YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "days to project (default from config)")
	cmd.Flags().StringArrayVar(&manual, "manual", nil, "extra movement DATE:AMOUNT[:DESCRIPTION], repeatable")
	return cmd
}

func newRebuildCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every balance from the full posted history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				rep, err := a.ledger.Rebuild(cmd.Context(), func(lines int) {
					slog.Debug("rebuild progress", "lines", lines)
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %d lines in %d entries\n", rep.Lines, rep.Entries)
				codes := make([]string, 0, len(rep.Balances))
				for c := range rep.Balances {
					codes = append(codes, c)
				}
				sort.Strings(codes)
				for _, c := range codes {
					fmt.Fprintf(out, "  %-12s %14s\n", c, rep.Balances[c].StringFixed(2))
				}
				if len(rep.Unbalanced) > 0 {
					return fmt.Errorf("unbalanced entries: %s", strings.Join(rep.Unbalanced, ", "))
				}
				return nil
			})
		},
	}
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read and review HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(opts, func(a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Addr
				}
				srv := server.New(server.Deps{
					Store:    a.store,
					Chart:    a.chart,
					Ledger:   a.ledger,
					Matcher:  a.matcher,
					CashFlow: a.cfg.CashFlow,
					Audit:    auditlog.NewRecorder(a.root, "api"),
				})
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
