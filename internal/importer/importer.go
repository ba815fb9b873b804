package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cleared-dev/ledgercore/internal/id"
	"github.com/cleared-dev/ledgercore/internal/model"
	"github.com/cleared-dev/ledgercore/internal/store"
)

// ErrBatchHasMatches is returned when rolling back a batch whose
// transactions were already reconciled.
var ErrBatchHasMatches = errors.New("batch has matched transactions")

// RecordError reports a record that failed validation. Index is the
// zero-based position in the submitted batch.
type RecordError struct {
	Index      int
	ExternalID string
	Err        error
}

func (e RecordError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index+1, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index+1, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Result summarizes one import batch.
type Result struct {
	BatchID    string
	Inserted   int
	Duplicates int
	Errors     []RecordError
}

// Importer ingests normalized bank records idempotently.
type Importer struct {
	store *store.Store
	now   func() time.Time
}

// New creates an Importer.
func New(st *store.Store) *Importer {
	return &Importer{store: st, now: time.Now}
}

// ImportBatch stores records for a bank account. Records already seen for
// the account (same external ID) are counted as duplicates; records
// without an external ID are always inserted. Invalid records are reported
// in Result.Errors and skipped. A storage failure rolls back the batch.
func (im *Importer) ImportBatch(ctx context.Context, bankAccountID string, records []Record) (Result, error) {
	res := Result{BatchID: id.New()}
	importedAt := im.now().UTC()

	err := im.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetBankAccount(ctx, bankAccountID); err != nil {
			return err
		}

		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}

			txn, err := normalize(rec)
			if err != nil {
				res.Errors = append(res.Errors, RecordError{Index: i, ExternalID: rec.ExternalID, Err: err})
				continue
			}
			txn.ID = id.New()
			txn.BankAccountID = bankAccountID
			txn.BatchID = res.BatchID
			txn.ImportedAt = importedAt

			inserted, err := tx.InsertTransaction(ctx, txn)
			if err != nil {
				return err
			}
			if inserted {
				res.Inserted++
			} else {
				res.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("importing batch: %w", err)
	}

	slog.Info("batch imported",
		"batch", res.BatchID,
		"bank_account", bankAccountID,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"errors", len(res.Errors),
	)
	return res, nil
}

// ImportFile reads path with the named reader and imports the records.
func (im *Importer) ImportFile(ctx context.Context, bankAccountID, path string, rd Reader) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := rd.Read(f)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return im.ImportBatch(ctx, bankAccountID, records)
}

// RollbackBatch deletes every transaction of a batch. It refuses when any
// of them is matched.
func (im *Importer) RollbackBatch(ctx context.Context, batchID string) (int64, error) {
	var deleted int64
	err := im.store.WithTx(ctx, func(tx *store.Tx) error {
		matched, err := tx.CountMatchedInBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if matched > 0 {
			return fmt.Errorf("batch %s: %d matched: %w", batchID, matched, ErrBatchHasMatches)
		}
		deleted, err = tx.DeleteBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("batch %s: %w", batchID, store.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("batch rolled back", "batch", batchID, "deleted", deleted)
	return deleted, nil
}

// normalize validates a record and turns it into a transaction with a
// non-negative amount. An explicit direction wins; otherwise a negative
// amount means debit and anything else is unknown.
func normalize(rec Record) (model.BankTransaction, error) {
	if rec.Date.IsZero() {
		return model.BankTransaction{}, errors.New("missing date")
	}
	if rec.Amount.IsZero() {
		return model.BankTransaction{}, errors.New("amount is zero")
	}

	dir := model.DirectionUnknown
	if rec.Direction != "" {
		dir = model.ParseDirection(rec.Direction)
	}
	if dir == model.DirectionUnknown && rec.Amount.IsNegative() {
		dir = model.DirectionDebit
	}

	y, m, d := rec.Date.Date()
	return model.BankTransaction{
		Date:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Amount:      rec.Amount.Abs(),
		Direction:   dir,
		Description: rec.Description,
		ExternalID:  rec.ExternalID,
	}, nil
}
