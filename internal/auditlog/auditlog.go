// Package auditlog keeps an append-only CSV trail of operator actions in
// the workspace.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Action names a recorded operation.
type Action string

const (
	ActionInit         Action = "init_workspace"
	ActionImport       Action = "import_batch"
	ActionRollback     Action = "rollback_batch"
	ActionAutoApply    Action = "auto_apply"
	ActionConfirm      Action = "confirm_match"
	ActionPost         Action = "post_entry"
	ActionReverse      Action = "reverse_entry"
	ActionDraft        Action = "save_draft"
	ActionCancelDraft  Action = "cancel_draft"
	ActionRefreshCache Action = "refresh_cache"
	ActionAddBank      Action = "add_bank_account"
	ActionAddRecord    Action = "add_record"
	ActionOpening      Action = "opening_balance"
)

// Entry is one row of the audit log.
type Entry struct {
	Timestamp     time.Time
	Actor         string
	Action        Action
	Details       string
	EntryID       string
	TransactionID string
}

// Header is the CSV header of audit-log.csv.
const Header = "timestamp,actor,action,details,entry_id,transaction_id"

// File is the log location relative to a workspace root.
const File = "logs/audit-log.csv"

const (
	numFields  = 6
	colTime    = 0
	colActor   = 1
	colAction  = 2
	colDetails = 3
	colEntry   = 4
	colTxn     = 5
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTime] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colActor] = e.Actor
	row[colAction] = string(e.Action)
	row[colDetails] = e.Details
	row[colEntry] = e.EntryID
	row[colTxn] = e.TransactionID
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}
	ts, err := time.Parse(time.RFC3339, record[colTime])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTime], err)
	}
	return Entry{
		Timestamp:     ts,
		Actor:         record[colActor],
		Action:        Action(record[colAction]),
		Details:       record[colDetails],
		EntryID:       record[colEntry],
		TransactionID: record[colTxn],
	}, nil
}

// Append writes entries to <root>/logs/audit-log.csv, creating the file
// and its header on first use.
func Append(root string, entries []Entry) error {
	path := filepath.Join(root, File)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns every entry of <root>/logs/audit-log.csv, or nil when the
// log does not exist yet.
func Read(root string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(root, File))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()
	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Filter returns the entries for which keep is true.
func Filter(entries []Entry, keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Recorder appends entries for one actor. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	root  string
	actor string
	now   func() time.Time
}

// NewRecorder returns a Recorder writing under root. An empty root makes
// Record a no-op.
func NewRecorder(root, actor string) *Recorder {
	return &Recorder{root: root, actor: actor, now: time.Now}
}

// Record appends one entry. A write failure is logged and returned; the
// action it describes has already happened.
func (r *Recorder) Record(action Action, details, entryID, txnID string) error {
	if r == nil || r.root == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err := Append(r.root, []Entry{{
		Timestamp:     r.now(),
		Actor:         r.actor,
		Action:        action,
		Details:       details,
		EntryID:       entryID,
		TransactionID: txnID,
	}})
	if err != nil {
		slog.Warn("audit log write failed", "action", action, "error", err)
	}
	return err
}
