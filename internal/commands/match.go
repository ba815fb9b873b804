package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/reconcile"
)

type scanFlags struct {
	bank string
	from string
	to   string
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bank, "bank", "", "only this bank account")
	cmd.Flags().StringVar(&f.from, "from", "", "transactions on or after YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "transactions on or before YYYY-MM-DD")
}

func (f *scanFlags) params() (reconcile.ScanParams, error) {
	from, err := parseDate("from", f.from)
	if err != nil {
		return reconcile.ScanParams{}, err
	}
	to, err := parseDate("to", f.to)
	if err != nil {
		return reconcile.ScanParams{}, err
	}
	return reconcile.ScanParams{BankAccountID: f.bank, From: from, To: to}, nil
}

func newMatchCommand(opts *globalOptions) *cobra.Command {
	var (
		sf    scanFlags
		apply bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Propose matches for unmatched transactions",
		Long: `Scan unmatched bank transactions against open invoices and expenses.
With --apply, proposals above the auto-apply threshold are settled and
posted; everything else stays in the review queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := sf.params()
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				proposals, err := a.matcher.Scan(cmd.Context(), sp, func(done, total int) {
					slog.Debug("scanning", "done", done, "total", total)
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				counts := map[reconcile.Decision]int{}
				for _, p := range proposals {
					counts[p.Decision]++
					printProposal(out, p)
				}
				fmt.Fprintf(out, "%d transactions: %d auto, %d review, %d aggregate, %d unmatched\n",
					len(proposals), counts[reconcile.DecisionAuto], counts[reconcile.DecisionReview],
					counts[reconcile.DecisionAggregate], counts[reconcile.DecisionUnmatched])
				if !apply {
					return nil
				}

				applied, skipped, err := a.matcher.AutoApply(cmd.Context(), proposals)
				if err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionAutoApply, fmt.Sprintf("%d applied, %d skipped", applied, skipped), "", "")
				fmt.Fprintf(out, "Applied %d, skipped %d\n", applied, skipped)
				return nil
			})
		},
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&apply, "apply", false, "settle auto proposals")
	return cmd
}

func newReviewCommand(opts *globalOptions) *cobra.Command {
	var sf scanFlags

	cmd := &cobra.Command{
		Use:   "review",
		Short: "List transactions that need an operator decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := sf.params()
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				queue, err := a.matcher.ReviewQueue(cmd.Context(), sp)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(queue) == 0 {
					fmt.Fprintln(out, "Review queue is empty")
					return nil
				}
				for _, p := range queue {
					printProposal(out, p)
					if d := p.Diagnostic; d != nil {
						fmt.Fprintf(out, "    diagnosis (%s, %s): %s\n", d.Category, d.Severity, strings.Join(d.PossibleCauses, "; "))
						for _, s := range d.Suggestions {
							fmt.Fprintf(out, "    - %s\n", s)
						}
					}
					for _, n := range p.Notes {
						fmt.Fprintf(out, "    note: %s\n", n)
					}
				}
				return nil
			})
		},
	}
	sf.register(cmd)
	return cmd
}

func printProposal(w io.Writer, p reconcile.Proposal) {
	t := p.Transaction
	fmt.Fprintf(w, "%s  %s  %12s %-7s  %-8s  %s\n",
		t.ID, t.Date.Format(time.DateOnly), t.Amount.StringFixed(2), t.Direction, p.Decision, t.Description)
	for _, c := range p.Candidates {
		fmt.Fprintf(w, "    %-12s %12s  confidence %s  %s\n",
			c.Record.ID, c.Record.Amount.StringFixed(2), c.Confidence.StringFixed(2), c.Record.CounterpartyName)
	}
	if p.Reason != nil {
		fmt.Fprintf(w, "    reason: %v\n", p.Reason)
	}
}

func newConfirmCommand(opts *globalOptions) *cobra.Command {
	var (
		direction string
		override  bool
	)

	cmd := &cobra.Command{
		Use:   "confirm <transaction-id> <record-id>...",
		Short: "Settle records against a bank transaction",
		Long: `Confirm an operator match. Several record IDs form an aggregate
settlement whose sum must equal the transaction amount within tolerance
unless --override is given.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := model.ParseDirection(direction)
			if direction != "" && dir == model.DirectionUnknown {
				return fmt.Errorf("--direction: want credit or debit, got %q", direction)
			}
			return withApp(opts, func(a *app) error {
				res, err := a.matcher.Confirm(cmd.Context(), reconcile.ConfirmParams{
					TransactionID: args[0],
					Direction:     dir,
					RecordIDs:     args[1:],
					Override:      override,
					Confidence:    decimal.NewFromInt(1),
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, e := range res.Entries {
					_ = a.audit.Record(auditlog.ActionConfirm, strings.Join(args[1:], ","), e.ID, res.Transaction.ID)
					fmt.Fprintf(out, "Posted %s %s\n", e.Number, e.Description)
				}
				if !res.Deviation.IsZero() {
					fmt.Fprintf(out, "Deviation from transaction amount: %s\n", res.Deviation.StringFixed(2))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "", "credit or debit (default classified)")
	cmd.Flags().BoolVar(&override, "override", false, "accept an aggregate outside tolerance")
	return cmd
}
