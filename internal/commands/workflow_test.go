package commands_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgercore/internal/auditlog"
	"github.com/cleared-dev/ledgercore/internal/journal"
	"github.com/cleared-dev/ledgercore/internal/reconcile"
)

const statementCSV = `date,amount,direction,description,external_id
2025-03-12,500.00,credit,received transfer JOAO,X1
2025-03-15,777.00,credit,DEPOSITO,X2
`

// seeded returns a workspace with a bank account opened at 1000, an
// accrued invoice of 500 and a two-line statement waiting in import/.
func seeded(t *testing.T) string {
	t.Helper()
	dir := initWorkspace(t)

	out, err := run(t, "-w", dir, "bank", "add", "ba1", "--name", "Main", "--bank", "SICOOB",
		"--opening", "1000", "--opening-date", "2025-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Posted opening balance 1000.00 as 2025-03-001")

	out, err = run(t, "-w", dir, "invoice", "add", "inv1", "--amount", "500", "--due", "2025-03-20",
		"--counterparty", "Joao Silva", "--accrue")
	require.NoError(t, err)
	assert.Contains(t, out, "Added invoice inv1 for 500.00 due 2025-03-20")
	assert.Contains(t, out, "Posted accrual 2025-03-002")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "stmt.csv"), []byte(statementCSV), 0o644))
	return dir
}

func TestWorkflow_ImportMatchAndReport(t *testing.T) {
	dir := seeded(t)

	out, err := run(t, "-w", dir, "import", "ba1")
	require.NoError(t, err)
	assert.Contains(t, out, "stmt.csv: batch")
	assert.Contains(t, out, "2 inserted, 0 duplicates")
	processed := filepath.Join(dir, "import", "processed", "stmt.csv")
	assert.FileExists(t, processed)
	assert.NoFileExists(t, filepath.Join(dir, "import", "stmt.csv"))

	out, err = run(t, "-w", dir, "import", "ba1", processed)
	require.NoError(t, err)
	assert.Contains(t, out, "0 inserted, 2 duplicates")

	out, err = run(t, "-w", dir, "match", "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "2 transactions: 1 auto, 0 review, 0 aggregate, 1 unmatched")
	assert.Contains(t, out, "Applied 1, skipped 0")

	out, err = run(t, "-w", dir, "review")
	require.NoError(t, err)
	assert.Contains(t, out, "DEPOSITO")
	assert.Contains(t, out, "unmatched")
	assert.NotContains(t, out, "JOAO")

	out, err = run(t, "-w", dir, "invoice", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "paid")

	out, err = run(t, "-w", dir, "balance", "1.1.1.05")
	require.NoError(t, err)
	assert.Contains(t, out, "Closing balance: 1500.00")

	out, err = run(t, "-w", dir, "balance", "1.1.2.01", "--basis", "accrual")
	require.NoError(t, err)
	assert.Contains(t, out, "Closing balance: 0.00")

	out, err = run(t, "-w", dir, "balance", "1.1.1.05", "--from", "2025-03-01", "--periods", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03")
	assert.Contains(t, out, "2025-04")

	out, err = run(t, "-w", dir, "trial-balance", "--basis", "accrual")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")

	out, err = run(t, "-w", dir, "bank", "statement", "ba1")
	require.NoError(t, err)
	assert.Contains(t, out, "DIVERGENCE cache")
	assert.Contains(t, out, "DIVERGENCE imported")

	out, err = run(t, "-w", dir, "bank", "refresh", "ba1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cached balance of ba1 set to 1500.00")

	out, err = run(t, "-w", dir, "bank", "statement", "ba1")
	require.NoError(t, err)
	assert.NotContains(t, out, "DIVERGENCE cache")

	out, err = run(t, "-w", dir, "cashflow", "--start", "2025-03-31", "--horizon", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Closing balance: 1500.00")
	assert.Contains(t, out, "No shortfalls.")

	out, err = run(t, "-w", dir, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanned 6 lines in 3 entries")

	entries, err := auditlog.Read(dir)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, string(e.Action))
	}
	joined := strings.Join(actions, ",")
	for _, a := range []auditlog.Action{auditlog.ActionImport, auditlog.ActionAutoApply, auditlog.ActionRefreshCache} {
		assert.Contains(t, joined, string(a))
	}
}

func TestWorkflow_ConfirmManually(t *testing.T) {
	dir := seeded(t)
	_, err := run(t, "-w", dir, "import", "ba1")
	require.NoError(t, err)

	// Transaction IDs are generated; find X2's through the review queue.
	out, err := run(t, "-w", dir, "review")
	require.NoError(t, err)
	var txnID string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "DEPOSITO") {
			txnID = strings.Fields(line)[0]
			break
		}
	}
	require.NotEmpty(t, txnID)

	_, err = run(t, "-w", dir, "confirm", txnID, "inv1")
	require.ErrorIs(t, err, reconcile.ErrAggregateMismatch)

	_, err = run(t, "-w", dir, "confirm", txnID, "inv1", "--override")
	require.NoError(t, err)

	_, err = run(t, "-w", dir, "confirm", txnID, "inv1", "--override")
	require.ErrorIs(t, err, reconcile.ErrAlreadySettled)
}

func TestWorkflow_PostReverseExport(t *testing.T) {
	dir := seeded(t)

	out, err := run(t, "-w", dir, "post", "--date", "2025-03-20", "--description", "Owner loan",
		"--line", "1.1.1.05:D:200", "--line", "2.1.1.01:C:200")
	require.NoError(t, err)
	assert.Contains(t, out, "Posted 2025-03-003")

	_, err = run(t, "-w", dir, "post", "--date", "2025-03-20", "--description", "Lopsided",
		"--line", "1.1.1.05:D:200", "--line", "2.1.1.01:C:150")
	require.ErrorIs(t, err, journal.ErrUnbalancedEntry)

	_, err = run(t, "-w", dir, "post", "--description", "Bad", "--line", "1.1.1.05:X:200")
	require.Error(t, err)

	out, err = run(t, "-w", dir, "reverse", "2025-03-003", "--date", "2025-03-21")
	require.NoError(t, err)
	assert.Contains(t, out, "Posted reversal 2025-03-004")

	_, err = run(t, "-w", dir, "reverse", "2025-03-003")
	require.ErrorIs(t, err, journal.ErrAlreadyReversed)

	out, err = run(t, "-w", dir, "post", "--date", "2025-03-22", "--description", "Draft fee",
		"--line", "4.1.3.02:D:5", "--line", "1.1.1.05:C:4", "--draft")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved draft 2025-03-005")

	_, err = run(t, "-w", dir, "draft", "post", "2025-03-005")
	require.ErrorIs(t, err, journal.ErrUnbalancedEntry)

	out, err = run(t, "-w", dir, "draft", "cancel", "2025-03-005")
	require.NoError(t, err)
	assert.Contains(t, out, "Canceled 2025-03-005")

	out, err = run(t, "-w", dir, "balance", "1.1.1.05")
	require.NoError(t, err)
	assert.Contains(t, out, "Closing balance: 1000.00")

	path := filepath.Join(t.TempDir(), "journal.csv")
	out, err = run(t, "-w", dir, "export", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 10 lines")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "number,date,competence_date,account_code"))
}

func TestWorkflow_Rollback(t *testing.T) {
	dir := seeded(t)
	out, err := run(t, "-w", dir, "import", "ba1")
	require.NoError(t, err)

	var batchID string
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "batch" && i+1 < len(fields) {
			batchID = strings.TrimSuffix(fields[i+1], ",")
		}
	}
	require.NotEmpty(t, batchID)

	out, err = run(t, "-w", dir, "rollback", batchID)
	require.NoError(t, err)
	assert.Contains(t, out, "(2 transactions)")
}

func TestBankAdd_RejectsSummaryAccount(t *testing.T) {
	dir := initWorkspace(t)
	_, err := run(t, "-w", dir, "bank", "add", "ba2", "--name", "Other", "--ledger-code", "1.1")
	assert.Error(t, err)
}
