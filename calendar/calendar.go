/*
Package calendar resolves which days in a date range count against a
leave balance.

PURPOSE:
  For any [from, to] range, the WorkingDayCalendar answers two questions:
  1. Which calendar days are excluded (weekend, public holiday, company
     closure), and why?
  2. How many chargeable days does a request for that range consume,
     once exclusions and half-day flags are applied?

EXCLUSION PRECEDENCE:
  A single date can match several rules (a holiday falling inside a
  closure week, on a Saturday). Each date is reported once, with
  precedence: holiday > closure > weekend.

HOLIDAY SCOPE:
  Holidays are national or local. National holidays always apply; local
  ones only when the calendar's configured location matches.

PURITY:
  ExcludedDays is a pure function of (range, configuration): same inputs,
  same ordered output. ChargeableDays is shared by request submission,
  draft derivation, and recall's sub-range release - it is the single
  place day counting happens.

SEE ALSO:
  - ledger: consumes the day counts produced here
  - store/sqlite: HolidaySource/ClosureSource implementations
*/
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EXCLUDED DAYS
// =============================================================================

type Reason string

const (
	ReasonWeekend Reason = "weekend"
	ReasonHoliday Reason = "holiday"
	ReasonClosure Reason = "closure"
)

type Scope string

const (
	ScopeNational Scope = "national"
	ScopeLocal    Scope = "local"
)

// ExcludedDay is a single day in a range that does not count against the
// requester's balance.
type ExcludedDay struct {
	Date   time.Time
	Reason Reason
	Name   string
	Scope  Scope // set only for holidays
}

// Holiday is a public holiday, national or local.
type Holiday struct {
	ID        string
	Name      string
	Date      time.Time
	Scope     Scope
	Location  string // required when Scope == ScopeLocal
	Recurring bool   // same month/day every year
}

// Closure is a company closure period (inclusive bounds).
type Closure struct {
	ID   string
	Name string
	From time.Time
	To   time.Time
}

// HolidaySource supplies holidays overlapping a range. Recurring holidays
// are expanded to concrete dates by the source.
type HolidaySource interface {
	HolidaysInRange(ctx context.Context, from, to time.Time) ([]Holiday, error)
}

// ClosureSource supplies company closures overlapping a range.
type ClosureSource interface {
	ClosuresInRange(ctx context.Context, from, to time.Time) ([]Closure, error)
}

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar resolves excluded days from external holiday/closure
// configuration. Location selects which local holidays apply.
type Calendar struct {
	Holidays HolidaySource
	Closures ClosureSource
	Location string
}

// ExcludedDays returns every excluded day in [from, to], ordered by date,
// one entry per date. Idempotent: the holiday/closure tables are read-only
// configuration from the calendar's point of view.
func (c *Calendar) ExcludedDays(ctx context.Context, from, to time.Time) ([]ExcludedDay, error) {
	from, to = Midnight(from), Midnight(to)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s before %s", to.Format(DateLayout), from.Format(DateLayout))
	}

	byDate := make(map[time.Time]ExcludedDay)

	// Weekends first: lowest precedence, overwritten by closures/holidays.
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			byDate[d] = ExcludedDay{Date: d, Reason: ReasonWeekend, Name: wd.String()}
		}
	}

	if c.Closures != nil {
		closures, err := c.Closures.ClosuresInRange(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("load closures: %w", err)
		}
		for _, cl := range closures {
			for d := Midnight(cl.From); !d.After(Midnight(cl.To)); d = d.AddDate(0, 0, 1) {
				if d.Before(from) || d.After(to) {
					continue
				}
				byDate[d] = ExcludedDay{Date: d, Reason: ReasonClosure, Name: cl.Name}
			}
		}
	}

	if c.Holidays != nil {
		holidays, err := c.Holidays.HolidaysInRange(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("load holidays: %w", err)
		}
		for _, h := range holidays {
			if h.Scope == ScopeLocal && h.Location != c.Location {
				continue
			}
			d := Midnight(h.Date)
			if d.Before(from) || d.After(to) {
				continue
			}
			byDate[d] = ExcludedDay{Date: d, Reason: ReasonHoliday, Name: h.Name, Scope: h.Scope}
		}
	}

	out := make([]ExcludedDay, 0, len(byDate))
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if ex, ok := byDate[d]; ok {
			out = append(out, ex)
		}
	}
	return out, nil
}

// =============================================================================
// DAY COUNTING
// =============================================================================

var half = decimal.NewFromFloat(0.5)

// ChargeableDays derives the day count charged against the balance for a
// request over [start, end]: calendar days minus excluded days, minus 0.5
// per half-day flag, floored at zero. This value is always derived, never
// hand-entered.
func ChargeableDays(start, end time.Time, startHalf, endHalf bool, excluded []ExcludedDay) decimal.Decimal {
	start, end = Midnight(start), Midnight(end)
	if end.Before(start) {
		return decimal.Zero
	}

	skip := make(map[time.Time]bool, len(excluded))
	for _, ex := range excluded {
		skip[Midnight(ex.Date)] = true
	}

	count := decimal.Zero
	one := decimal.NewFromInt(1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !skip[d] {
			count = count.Add(one)
		}
	}

	if startHalf {
		count = count.Sub(half)
	}
	if endHalf {
		count = count.Sub(half)
	}
	if count.IsNegative() {
		return decimal.Zero
	}
	return count
}
