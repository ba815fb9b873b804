// Package cashflow walks a bank balance forward day by day over scheduled
// receipts and payments and flags the days it goes negative.
package cashflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgercore/internal/config"
)

// ErrInvalidParams is returned for a non-positive horizon or a negative
// scheduled amount.
var ErrInvalidParams = errors.New("invalid projection parameters")

// Item is a scheduled movement. Inflow and outflow amounts are magnitudes;
// manual items are signed, positive meaning money in.
type Item struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Source      string // "invoice", "expense" or "manual"
	Reference   string
}

// Params are the inputs of one projection run.
type Params struct {
	Start           time.Time
	HorizonDays     int
	StartingBalance decimal.Decimal
	Inflows         []Item
	Outflows        []Item
	Manual          []Item
}

// Options tune alerting.
type Options struct {
	MaxAlerts     int
	CriticalAbove decimal.Decimal
	HighAbove     decimal.Decimal
}

// OptionsFromConfig converts the cash_flow config section.
func OptionsFromConfig(c config.CashFlowConfig) Options {
	return Options{
		MaxAlerts:     c.MaxAlerts,
		CriticalAbove: decimal.NewFromFloat(c.CriticalAbove),
		HighAbove:     decimal.NewFromFloat(c.HighAbove),
	}
}

// DefaultOptions returns the alerting defaults.
func DefaultOptions() Options {
	return Options{MaxAlerts: 5, CriticalAbove: decimal.NewFromInt(10000), HighAbove: decimal.NewFromInt(5000)}
}

// Day is one step of the walk.
type Day struct {
	Date    time.Time
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
	Balance decimal.Decimal
}

// Severity buckets a shortfall by deficit size.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert marks a day that ends with a negative balance.
type Alert struct {
	Date     time.Time
	Balance  decimal.Decimal
	Deficit  decimal.Decimal
	Severity Severity
}

// Projection is the result of Project. Days[0] is the start date.
type Projection struct {
	Start           time.Time
	StartingBalance decimal.Decimal
	Days            []Day
	Alerts          []Alert
	Overdue         int // items dated on or before Start, carried to day 1
	Dropped         int // items dated past the horizon
}

// Closing returns the balance on the last projected day.
func (p Projection) Closing() decimal.Decimal {
	if len(p.Days) == 0 {
		return p.StartingBalance
	}
	return p.Days[len(p.Days)-1].Balance
}

// Project walks HorizonDays days past Start. Day 0 holds the starting
// balance; day d adds the inflow minus outflow of items dated Start+d.
// Items dated on or before Start are overdue and land on day 1.
func Project(p Params, opts Options) (Projection, error) {
	if p.HorizonDays <= 0 {
		return Projection{}, fmt.Errorf("%w: horizon %d days", ErrInvalidParams, p.HorizonDays)
	}
	start := day(p.Start)
	proj := Projection{
		Start:           start,
		StartingBalance: p.StartingBalance,
		Days:            make([]Day, p.HorizonDays+1),
	}
	for d := range proj.Days {
		proj.Days[d] = Day{Date: start.AddDate(0, 0, d), Inflow: decimal.Zero, Outflow: decimal.Zero}
	}

	place := func(it Item) (int, bool) {
		offset := int(day(it.Date).Sub(start).Hours() / 24)
		if offset <= 0 {
			proj.Overdue++
			return 1, true
		}
		if offset > p.HorizonDays {
			proj.Dropped++
			return 0, false
		}
		return offset, true
	}

	for _, it := range p.Inflows {
		if it.Amount.IsNegative() {
			return Projection{}, fmt.Errorf("%w: negative inflow %s", ErrInvalidParams, it.Amount)
		}
		if d, ok := place(it); ok {
			proj.Days[d].Inflow = proj.Days[d].Inflow.Add(it.Amount)
		}
	}
	for _, it := range p.Outflows {
		if it.Amount.IsNegative() {
			return Projection{}, fmt.Errorf("%w: negative outflow %s", ErrInvalidParams, it.Amount)
		}
		if d, ok := place(it); ok {
			proj.Days[d].Outflow = proj.Days[d].Outflow.Add(it.Amount)
		}
	}
	for _, it := range p.Manual {
		d, ok := place(it)
		if !ok {
			continue
		}
		if it.Amount.IsNegative() {
			proj.Days[d].Outflow = proj.Days[d].Outflow.Add(it.Amount.Neg())
		} else {
			proj.Days[d].Inflow = proj.Days[d].Inflow.Add(it.Amount)
		}
	}

	balance := p.StartingBalance
	for d := range proj.Days {
		balance = balance.Add(proj.Days[d].Inflow).Sub(proj.Days[d].Outflow)
		proj.Days[d].Balance = balance
		if balance.IsNegative() && len(proj.Alerts) < opts.MaxAlerts {
			proj.Alerts = append(proj.Alerts, alertFor(proj.Days[d], opts))
		}
	}
	return proj, nil
}

func alertFor(d Day, opts Options) Alert {
	deficit := d.Balance.Neg()
	sev := SeverityMedium
	switch {
	case deficit.GreaterThan(opts.CriticalAbove):
		sev = SeverityCritical
	case deficit.GreaterThan(opts.HighAbove):
		sev = SeverityHigh
	}
	return Alert{Date: d.Date, Balance: d.Balance, Deficit: deficit, Severity: sev}
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
