package cashflow

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

const rowFormat = "%-10s %12s %12s %12s\n"

// Render writes p as a fixed-width text table followed by its alerts.
func Render(w io.Writer, p Projection) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Cash flow from %s, %d days\n", p.Start.Format(time.DateOnly), len(p.Days)-1)
	fmt.Fprintf(bw, "Starting balance: %s\n", p.StartingBalance.StringFixed(2))
	if p.Overdue > 0 {
		fmt.Fprintf(bw, "Overdue items carried to day 1: %d\n", p.Overdue)
	}
	if p.Dropped > 0 {
		fmt.Fprintf(bw, "Items beyond horizon: %d\n", p.Dropped)
	}
	fmt.Fprintln(bw)

	fmt.Fprintf(bw, rowFormat, "DATE", "INFLOW", "OUTFLOW", "BALANCE")
	for _, d := range p.Days {
		fmt.Fprintf(bw, rowFormat, d.Date.Format(time.DateOnly),
			d.Inflow.StringFixed(2), d.Outflow.StringFixed(2), d.Balance.StringFixed(2))
	}
	fmt.Fprintf(bw, "\nClosing balance: %s\n", p.Closing().StringFixed(2))

	if len(p.Alerts) == 0 {
		fmt.Fprintln(bw, "No shortfalls.")
		return bw.Flush()
	}
	fmt.Fprintln(bw, "\nShortfalls:")
	for _, a := range p.Alerts {
		fmt.Fprintf(bw, "  %s  %-8s  deficit %s\n", a.Date.Format(time.DateOnly), a.Severity, a.Deficit.StringFixed(2))
	}
	return bw.Flush()
}
