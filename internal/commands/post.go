package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// parseLine reads CODE:D:AMOUNT or CODE:C:AMOUNT.
func parseLine(v string) (journal.LineParams, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return journal.LineParams{}, fmt.Errorf("--line: want CODE:D|C:AMOUNT, got %q", v)
	}
	amount, err := decimal.NewFromString(parts[2])
	if err != nil {
		return journal.LineParams{}, fmt.Errorf("--line %q: invalid amount", v)
	}
	lp := journal.LineParams{AccountCode: parts[0], Debit: decimal.Zero, Credit: decimal.Zero}
	switch strings.ToUpper(parts[1]) {
	case "D":
		lp.Debit = amount
	case "C":
		lp.Credit = amount
	default:
		return journal.LineParams{}, fmt.Errorf("--line %q: side must be D or C", v)
	}
	return lp, nil
}

func newPostCommand(opts *globalOptions) *cobra.Command {
	var (
		date, competence string
		description      string
		reference        string
		lines            []string
		draft            bool
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a manual journal entry",
		Example: `  ledgercore post --date 2025-03-10 --description "Owner loan" \
    --line 1.1.1.05:D:5000 --line 2.1.1.01:C:5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := journal.PostParams{Description: description, Reference: reference, Type: model.EntryManual}
			var err error
			if p.EntryDate, err = parseDate("date", date); err != nil {
				return err
			}
			if p.EntryDate.IsZero() {
				p.EntryDate = today()
			}
			if p.CompetenceDate, err = parseDate("competence", competence); err != nil {
				return err
			}
			for _, l := range lines {
				lp, err := parseLine(l)
				if err != nil {
					return err
				}
				p.Lines = append(p.Lines, lp)
			}

			return withApp(opts, func(a *app) error {
				post, action, verb := a.journal.Post, auditlog.ActionPost, "Posted"
				if draft {
					post, action, verb = a.journal.SaveDraft, auditlog.ActionDraft, "Saved draft"
				}
				entry, err := post(cmd.Context(), p)
				if err != nil {
					return err
				}
				_ = a.audit.Record(action, entry.Description, entry.ID, "")
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, entry.Number)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&date, "date", "", "entry date YYYY-MM-DD (default today)")
	f.StringVar(&competence, "competence", "", "competence date YYYY-MM-DD (default entry date)")
	f.StringVar(&description, "description", "", "entry description (required)")
	f.StringVar(&reference, "reference", "", "external reference")
	f.StringArrayVar(&lines, "line", nil, "line as CODE:D|C:AMOUNT, repeatable")
	f.BoolVar(&draft, "draft", false, "save as a draft without the balance check")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

// resolveEntry accepts an entry number (YYYY-MM-NNN) or an entry ID.
func resolveEntry(ctx context.Context, st *store.Store, ref string) (string, error) {
	id, err := st.EntryIDByNumber(ctx, ref)
	if err == nil {
		return id, nil
	}
	if _, gerr := st.GetEntry(ctx, ref); gerr == nil {
		return ref, nil
	}
	return "", err
}

func newReverseCommand(opts *globalOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "reverse <entry>",
		Short: "Post the reversal of a posted entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate("date", date)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				id, err := resolveEntry(cmd.Context(), a.store, args[0])
				if err != nil {
					return err
				}
				rev, err := a.journal.Reverse(cmd.Context(), id, day)
				if err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionReverse, rev.Description, rev.ID, "")
				fmt.Fprintf(cmd.OutOrStdout(), "Posted reversal %s\n", rev.Number)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reversal date YYYY-MM-DD (default today)")
	return cmd
}

func newDraftCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Post or cancel draft entries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "post <entry>",
		Short: "Validate a draft and post it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				id, err := resolveEntry(cmd.Context(), a.store, args[0])
				if err != nil {
					return err
				}
				entry, err := a.journal.PostDraft(cmd.Context(), id)
				if err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionPost, "draft "+entry.Description, entry.ID, "")
				fmt.Fprintf(cmd.OutOrStdout(), "Posted %s\n", entry.Number)
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "cancel <entry>",
		Short: "Discard a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				id, err := resolveEntry(cmd.Context(), a.store, args[0])
				if err != nil {
					return err
				}
				if err := a.journal.Cancel(cmd.Context(), id); err != nil {
					return err
				}
				_ = a.audit.Record(auditlog.ActionCancelDraft, args[0], id, "")
				fmt.Fprintf(cmd.OutOrStdout(), "Canceled %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	var from, to, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export journal entries as CSV",
		Args:  cobra.NoArgs,
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
				path := out
				if path == "" {
					path = filepath.Join(a.root, "exports", "journal-"+time.Now().UTC().Format("20060102-150405")+".csv")
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("creating export dir: %w", err)
				}
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating export: %w", err)
				}
				n, err := a.journal.Export(cmd.Context(), f, start, end)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d lines to %s\n", n, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "entries on or after YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "entries on or before YYYY-MM-DD")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default exports/journal-<timestamp>.csv)")
	return cmd
}
