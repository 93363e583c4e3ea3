package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type staticHolidays []calendar.Holiday

func (s staticHolidays) HolidaysInRange(_ context.Context, from, to time.Time) ([]calendar.Holiday, error) {
	var out []calendar.Holiday
	for _, h := range s {
		if !h.Date.Before(from) && !h.Date.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

type staticClosures []calendar.Closure

func (s staticClosures) ClosuresInRange(_ context.Context, from, to time.Time) ([]calendar.Closure, error) {
	var out []calendar.Closure
	for _, c := range s {
		if !c.From.After(to) && !c.To.Before(from) {
			out = append(out, c)
		}
	}
	return out, nil
}

func newTestCalendar(holidays []calendar.Holiday, closures []calendar.Closure) *calendar.Calendar {
	return &calendar.Calendar{
		Holidays: staticHolidays(holidays),
		Closures: staticClosures(closures),
		Location: "MIL",
	}
}

// =============================================================================
// EXCLUDED DAYS
// =============================================================================

func TestExcludedDays_WeekendsOnly(t *testing.T) {
	// GIVEN: a week with no holidays or closures
	// WHEN: resolving excluded days Mon Jun 2 - Sun Jun 8 2025
	// THEN: exactly Saturday and Sunday are excluded, in date order

	cal := newTestCalendar(nil, nil)
	days, err := cal.ExcludedDays(context.Background(),
		calendar.Date(2025, time.June, 2), calendar.Date(2025, time.June, 8))
	require.NoError(t, err)

	require.Len(t, days, 2)
	assert.Equal(t, calendar.Date(2025, time.June, 7), days[0].Date)
	assert.Equal(t, calendar.ReasonWeekend, days[0].Reason)
	assert.Equal(t, calendar.Date(2025, time.June, 8), days[1].Date)
	assert.Equal(t, calendar.ReasonWeekend, days[1].Reason)
}

func TestExcludedDays_HolidayWinsOverWeekendAndClosure(t *testing.T) {
	// GIVEN: a holiday on a Saturday that also falls inside a closure week
	// WHEN: resolving excluded days over that week
	// THEN: the date appears once, reported as a holiday

	holiday := calendar.Holiday{
		ID: "h1", Name: "Assumption", Scope: calendar.ScopeNational,
		Date: calendar.Date(2025, time.August, 16), // a Saturday
	}
	closure := calendar.Closure{
		ID: "c1", Name: "Summer closure",
		From: calendar.Date(2025, time.August, 11),
		To:   calendar.Date(2025, time.August, 17),
	}

	cal := newTestCalendar([]calendar.Holiday{holiday}, []calendar.Closure{closure})
	days, err := cal.ExcludedDays(context.Background(),
		calendar.Date(2025, time.August, 11), calendar.Date(2025, time.August, 17))
	require.NoError(t, err)

	// Every day of the closure week is excluded exactly once.
	require.Len(t, days, 7)
	byDate := map[string]calendar.Reason{}
	for _, d := range days {
		byDate[d.Date.Format(calendar.DateLayout)] = d.Reason
	}
	assert.Equal(t, calendar.ReasonHoliday, byDate["2025-08-16"])
	assert.Equal(t, calendar.ReasonClosure, byDate["2025-08-13"])
}

func TestExcludedDays_LocalHolidayOnlyAppliesToMatchingLocation(t *testing.T) {
	// GIVEN: a local holiday for a different site
	// WHEN: resolving excluded days for the MIL calendar
	// THEN: the foreign local holiday is ignored; the own one applies

	milan := calendar.Holiday{
		ID: "h1", Name: "Sant'Ambrogio", Scope: calendar.ScopeLocal, Location: "MIL",
		Date: calendar.Date(2025, time.December, 9), // Tuesday
	}
	rome := calendar.Holiday{
		ID: "h2", Name: "SS. Pietro e Paolo", Scope: calendar.ScopeLocal, Location: "ROM",
		Date: calendar.Date(2025, time.December, 10),
	}

	cal := newTestCalendar([]calendar.Holiday{milan, rome}, nil)
	days, err := cal.ExcludedDays(context.Background(),
		calendar.Date(2025, time.December, 9), calendar.Date(2025, time.December, 10))
	require.NoError(t, err)

	require.Len(t, days, 1)
	assert.Equal(t, "Sant'Ambrogio", days[0].Name)
	assert.Equal(t, calendar.ScopeLocal, days[0].Scope)
}

func TestExcludedDays_Idempotent(t *testing.T) {
	// GIVEN: fixed holiday/closure configuration
	// WHEN: resolving the same range twice
	// THEN: both calls return identical results

	holiday := calendar.Holiday{
		ID: "h1", Name: "Republic Day", Scope: calendar.ScopeNational,
		Date: calendar.Date(2025, time.June, 2),
	}
	cal := newTestCalendar([]calendar.Holiday{holiday}, nil)

	from, to := calendar.Date(2025, time.June, 1), calendar.Date(2025, time.June, 15)
	first, err := cal.ExcludedDays(context.Background(), from, to)
	require.NoError(t, err)
	second, err := cal.ExcludedDays(context.Background(), from, to)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExcludedDays_InvalidRange(t *testing.T) {
	cal := newTestCalendar(nil, nil)
	_, err := cal.ExcludedDays(context.Background(),
		calendar.Date(2025, time.June, 10), calendar.Date(2025, time.June, 1))
	assert.Error(t, err)
}

// =============================================================================
// DAY COUNTING
// =============================================================================

func TestChargeableDays_SingleDay(t *testing.T) {
	// GIVEN: a one-day request on a working day
	// THEN: it charges exactly 1 day

	day := calendar.Date(2025, time.June, 4) // Wednesday
	got := calendar.ChargeableDays(day, day, false, false, nil)
	assert.True(t, got.Equal(decimal.NewFromInt(1)), "got %s", got)
}

func TestChargeableDays_HalfDayFlags(t *testing.T) {
	// GIVEN: a one-day request flagged as a half day at the start
	// THEN: it charges 0.5

	day := calendar.Date(2025, time.June, 4)
	got := calendar.ChargeableDays(day, day, true, false, nil)
	assert.True(t, got.Equal(decimal.NewFromFloat(0.5)), "got %s", got)

	// Both flags on a two-day request: 2 - 0.5 - 0.5 = 1
	got = calendar.ChargeableDays(day, day.AddDate(0, 0, 1), true, true, nil)
	assert.True(t, got.Equal(decimal.NewFromInt(1)), "got %s", got)
}

func TestChargeableDays_ExclusionsAndWeekend(t *testing.T) {
	// GIVEN: Tue Jul 1 - Sat Jul 5 2025 with Jul 4 a holiday
	// WHEN: counting chargeable days
	// THEN: 5 calendar days minus Sat Jul 5 minus the holiday = 3

	cal := newTestCalendar([]calendar.Holiday{{
		ID: "h1", Name: "Company Day", Scope: calendar.ScopeNational,
		Date: calendar.Date(2025, time.July, 4),
	}}, nil)

	from, to := calendar.Date(2025, time.July, 1), calendar.Date(2025, time.July, 5)
	excluded, err := cal.ExcludedDays(context.Background(), from, to)
	require.NoError(t, err)

	got := calendar.ChargeableDays(from, to, false, false, excluded)
	assert.True(t, got.Equal(decimal.NewFromInt(3)), "got %s", got)

	// Half-day start: 2.5
	got = calendar.ChargeableDays(from, to, true, false, excluded)
	assert.True(t, got.Equal(decimal.NewFromFloat(2.5)), "got %s", got)
}

func TestChargeableDays_FiveDaySpanOverWeekendAndHoliday(t *testing.T) {
	// GIVEN: Thu Jul 3 - Mon Jul 7 2025 with Jul 4 a national holiday
	// WHEN: counting chargeable days
	// THEN: 5 calendar days minus the weekend minus the holiday = 2

	cal := newTestCalendar([]calendar.Holiday{{
		ID: "h1", Name: "Company Day", Scope: calendar.ScopeNational,
		Date: calendar.Date(2025, time.July, 4),
	}}, nil)

	from, to := calendar.Date(2025, time.July, 3), calendar.Date(2025, time.July, 7)
	excluded, err := cal.ExcludedDays(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, excluded, 3)

	got := calendar.ChargeableDays(from, to, false, false, excluded)
	assert.True(t, got.Equal(decimal.NewFromInt(2)), "got %s", got)
}

func TestChargeableDays_FlooredAtZero(t *testing.T) {
	// GIVEN: a weekend-only range with both half flags set
	// THEN: the count floors at zero, never negative

	from, to := calendar.Date(2025, time.June, 7), calendar.Date(2025, time.June, 8)
	excluded := []calendar.ExcludedDay{
		{Date: from, Reason: calendar.ReasonWeekend},
		{Date: to, Reason: calendar.ReasonWeekend},
	}
	got := calendar.ChargeableDays(from, to, true, true, excluded)
	assert.True(t, got.IsZero(), "got %s", got)
}

func TestChargeableDays_EndBeforeStart(t *testing.T) {
	got := calendar.ChargeableDays(
		calendar.Date(2025, time.June, 10), calendar.Date(2025, time.June, 1),
		false, false, nil)
	assert.True(t, got.IsZero())
}
