package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRequest() *leave.Request {
	now := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	return &leave.Request{
		ID:            uuid.NewString(),
		EmployeeID:    "emp-1",
		LeaveType:     policy.TypeVacation,
		StartDate:     calendar.Date(2025, time.June, 9),
		EndDate:       calendar.Date(2025, time.June, 13),
		DaysRequested: decimal.NewFromInt(5),
		Status:        leave.StatusDraft,
		EmployeeNotes: "family trip",
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestRequest_InsertAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newRequest()
	r.StartHalfDay = true
	accepted := true
	r.HasConditions = true
	r.ConditionType = leave.ConditionOnCall
	r.ConditionDetails = "keep the phone on"
	r.ConditionAccepted = &accepted

	require.NoError(t, s.InsertRequest(ctx, r))

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.EmployeeID, got.EmployeeID)
	assert.Equal(t, r.LeaveType, got.LeaveType)
	assert.Equal(t, r.StartDate, got.StartDate)
	assert.Equal(t, r.EndDate, got.EndDate)
	assert.True(t, got.StartHalfDay)
	assert.False(t, got.EndHalfDay)
	assert.True(t, got.DaysRequested.Equal(r.DaysRequested))
	assert.Equal(t, leave.StatusDraft, got.Status)
	assert.Equal(t, "family trip", got.EmployeeNotes)
	require.NotNil(t, got.ConditionAccepted)
	assert.True(t, *got.ConditionAccepted)
	assert.Equal(t, int64(1), got.Version)
}

func TestRequest_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRequest(context.Background(), "nope")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestRequest_UpdateBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newRequest()
	require.NoError(t, s.InsertRequest(ctx, r))

	r.Status = leave.StatusPending
	require.NoError(t, s.UpdateRequest(ctx, r))
	assert.Equal(t, int64(2), r.Version)

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestRequest_StaleVersionConflicts(t *testing.T) {
	// GIVEN: two copies of the same row
	// WHEN: both write
	// THEN: the second writer carries a stale version and gets a conflict

	s := newTestStore(t)
	ctx := context.Background()

	r := newRequest()
	require.NoError(t, s.InsertRequest(ctx, r))

	stale, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)

	r.Status = leave.StatusPending
	require.NoError(t, s.UpdateRequest(ctx, r))

	stale.Status = leave.StatusCancelled
	err = s.UpdateRequest(ctx, stale)
	assert.ErrorIs(t, err, leave.ErrConflict)

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status, "the stale write must not land")
}

func TestRequest_DeleteChecksVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newRequest()
	require.NoError(t, s.InsertRequest(ctx, r))

	err := s.DeleteRequest(ctx, r.ID, 99)
	assert.ErrorIs(t, err, leave.ErrConflict)

	require.NoError(t, s.DeleteRequest(ctx, r.ID, r.Version))
	_, err = s.GetRequest(ctx, r.ID)
	assert.ErrorIs(t, err, leave.ErrNotFound)

	err = s.DeleteRequest(ctx, r.ID, r.Version)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestRequest_ListByEmployee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, b, other := newRequest(), newRequest(), newRequest()
	b.StartDate = calendar.Date(2025, time.July, 7)
	b.EndDate = calendar.Date(2025, time.July, 11)
	other.EmployeeID = "emp-2"
	for _, r := range []*leave.Request{a, b, other} {
		require.NoError(t, s.InsertRequest(ctx, r))
	}

	got, err := s.ListRequestsByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "emp-1", r.EmployeeID)
	}
}

// =============================================================================
// BALANCES AND ENTRIES
// =============================================================================

func TestBalance_MissingRowIsZeroBalance(t *testing.T) {
	s := newTestStore(t)
	key := ledger.Key{EmployeeID: "emp-1", LeaveType: policy.TypeVacation, Year: 2025}

	b, err := s.GetBalance(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, key, b.Key)
	assert.True(t, b.Available.IsZero())
	assert.Equal(t, int64(0), b.Version, "never persisted")
}

func TestBalance_InsertThenUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := ledger.Key{EmployeeID: "emp-1", LeaveType: policy.TypeVacation, Year: 2025}

	b, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	_, err = b.Grant(decimal.NewFromInt(20), "yearly allocation", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, s.SaveBalance(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	expiry := calendar.Date(2025, time.June, 30)
	b.CarryoverAvailable = decimal.NewFromInt(3)
	b.CarryoverExpiry = &expiry
	require.NoError(t, s.SaveBalance(ctx, b))
	assert.Equal(t, int64(2), b.Version)

	got, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(decimal.NewFromInt(20)))
	assert.True(t, got.CarryoverAvailable.Equal(decimal.NewFromInt(3)))
	require.NotNil(t, got.CarryoverExpiry)
	assert.Equal(t, expiry, *got.CarryoverExpiry)
	assert.Equal(t, int64(2), got.Version)
}

func TestBalance_StaleVersionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := ledger.Key{EmployeeID: "emp-1", LeaveType: policy.TypeVacation, Year: 2025}

	b, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	_, err = b.Grant(decimal.NewFromInt(20), "yearly allocation", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.SaveBalance(ctx, b))

	stale, err := s.GetBalance(ctx, key)
	require.NoError(t, err)

	require.NoError(t, s.SaveBalance(ctx, b))

	err = s.SaveBalance(ctx, stale)
	assert.ErrorIs(t, err, leave.ErrConflict)
}

func TestEntries_AppendAndReadByRequest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := ledger.Key{EmployeeID: "emp-1", LeaveType: policy.TypeVacation, Year: 2025}
	now := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

	entries := []ledger.Entry{
		{ID: uuid.NewString(), Key: key, RequestID: "req-1", Kind: ledger.EntryReserve,
			Days: decimal.NewFromInt(5), CarryoverDays: decimal.NewFromInt(2),
			Reason: "submitted", CreatedAt: now},
		{ID: uuid.NewString(), Key: key, RequestID: "req-1", Kind: ledger.EntryConsume,
			Days: decimal.NewFromInt(5), CarryoverDays: decimal.NewFromInt(2),
			Reason: "approved", CreatedAt: now.Add(time.Hour)},
		{ID: uuid.NewString(), Key: key, RequestID: "req-2", Kind: ledger.EntryReserve,
			Days: decimal.NewFromInt(1), CreatedAt: now},
	}
	require.NoError(t, s.AppendEntries(ctx, entries))

	got, err := s.EntriesByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger.EntryReserve, got[0].Kind)
	assert.Equal(t, ledger.EntryConsume, got[1].Kind)
	assert.True(t, got[0].CarryoverDays.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, key, got[0].Key)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestTransitions_AppendOnlyOrderedHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

	recs := []leave.TransitionRecord{
		{ID: uuid.NewString(), RequestID: "req-1", Action: leave.ActionCreate,
			From: "", To: leave.StatusDraft, ActorID: "emp-1", At: now},
		{ID: uuid.NewString(), RequestID: "req-1", Action: leave.ActionSubmit,
			From: leave.StatusDraft, To: leave.StatusPending, ActorID: "emp-1", At: now.Add(time.Minute)},
		{ID: uuid.NewString(), RequestID: "req-1", Action: leave.ActionReject,
			From: leave.StatusPending, To: leave.StatusRejected, ActorID: "mgr-1",
			Reason: "bad week", At: now.Add(2 * time.Minute)},
	}
	for _, rec := range recs {
		require.NoError(t, s.AppendTransition(ctx, rec))
	}

	got, err := s.TransitionsByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, leave.ActionCreate, got[0].Action)
	assert.Equal(t, leave.ActionReject, got[2].Action)
	assert.Equal(t, "bad week", got[2].Reason)
	assert.Equal(t, leave.StatusPending, got[2].From)
}

func TestRequest_DeleteRemovesItsTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newRequest()
	require.NoError(t, s.InsertRequest(ctx, r))
	require.NoError(t, s.AppendTransition(ctx, leave.TransitionRecord{
		ID: uuid.NewString(), RequestID: r.ID, Action: leave.ActionCreate,
		To: leave.StatusDraft, ActorID: "emp-1", At: r.CreatedAt,
	}))

	require.NoError(t, s.DeleteRequest(ctx, r.ID, r.Version))

	got, err := s.TransitionsByRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a transaction inserting a request
	// WHEN: the function returns an error afterwards
	// THEN: nothing is visible outside

	s := newTestStore(t)
	ctx := context.Background()
	r := newRequest()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(st leave.Store) error {
		if err := st.InsertRequest(ctx, r); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetRequest(ctx, r.ID)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestWithTx_CommitsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := newRequest()
	key := ledger.Key{EmployeeID: "emp-1", LeaveType: policy.TypeVacation, Year: 2025}

	err := s.WithTx(ctx, func(st leave.Store) error {
		if err := st.InsertRequest(ctx, r); err != nil {
			return err
		}
		b, err := st.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		if _, err := b.Grant(decimal.NewFromInt(20), "yearly allocation", time.Now().UTC()); err != nil {
			return err
		}
		return st.SaveBalance(ctx, b)
	})
	require.NoError(t, err)

	_, err = s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	b, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(decimal.NewFromInt(20)))
}

// =============================================================================
// CALENDAR SOURCES
// =============================================================================

func TestHolidays_RecurringExpandPerYear(t *testing.T) {
	// GIVEN: a recurring national holiday stored once
	// WHEN: querying two different years
	// THEN: each year gets its own concrete date

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHoliday(ctx, calendar.Holiday{
		ID: uuid.NewString(), Name: "New Year", Scope: calendar.ScopeNational,
		Date: calendar.Date(2020, time.January, 1), Recurring: true,
	}))

	for _, year := range []int{2025, 2026} {
		got, err := s.HolidaysInRange(ctx,
			calendar.Date(year, time.January, 1), calendar.Date(year, time.December, 31))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, calendar.Date(year, time.January, 1), got[0].Date)
	}
}

func TestHolidays_NonRecurringStaysInItsYear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHoliday(ctx, calendar.Holiday{
		ID: uuid.NewString(), Name: "One-off bridge day", Scope: calendar.ScopeLocal,
		Location: "MIL", Date: calendar.Date(2025, time.August, 14),
	}))

	got, err := s.HolidaysInRange(ctx,
		calendar.Date(2026, time.January, 1), calendar.Date(2026, time.December, 31))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.HolidaysInRange(ctx,
		calendar.Date(2025, time.August, 1), calendar.Date(2025, time.August, 31))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "MIL", got[0].Location)
}

func TestClosures_OverlapQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveClosure(ctx, calendar.Closure{
		ID: uuid.NewString(), Name: "Summer closure",
		From: calendar.Date(2025, time.August, 11), To: calendar.Date(2025, time.August, 17),
	}))

	got, err := s.ClosuresInRange(ctx,
		calendar.Date(2025, time.August, 15), calendar.Date(2025, time.August, 20))
	require.NoError(t, err)
	require.Len(t, got, 1, "partial overlap counts")

	got, err = s.ClosuresInRange(ctx,
		calendar.Date(2025, time.September, 1), calendar.Date(2025, time.September, 30))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// POLICIES
// =============================================================================

func TestPolicies_SeedGetSave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedDefaultPolicies(ctx))

	p, err := s.Get(ctx, policy.TypeVacation)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.MaxSingleRequestDays)
	assert.Equal(t, 20, *p.MaxSingleRequestDays)

	// Seeding is idempotent: a tuned policy survives a re-seed.
	limit := 25
	p.MaxSingleRequestDays = &limit
	require.NoError(t, s.Save(ctx, *p))
	require.NoError(t, s.SeedDefaultPolicies(ctx))

	p, err = s.Get(ctx, policy.TypeVacation)
	require.NoError(t, err)
	assert.Equal(t, 25, *p.MaxSingleRequestDays)

	missing, err := s.Get(ctx, policy.LeaveType("XXX"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(policy.KnownTypes))
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

func TestDirectory_IsApprover(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEmployee(ctx, sqlite.Employee{ID: "mgr-1", Name: "Dana"}))
	require.NoError(t, s.SaveEmployee(ctx, sqlite.Employee{
		ID: "emp-1", Name: "Sam", ApproverID: "mgr-1",
	}))

	ok, err := s.IsApprover(ctx, "mgr-1", "emp-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsApprover(ctx, "emp-1", "mgr-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsApprover(ctx, "mgr-1", "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectory_GetEmployee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEmployee(ctx, sqlite.Employee{
		ID: "emp-1", Name: "Sam", Email: "sam@example.com", Location: "MIL", ApproverID: "mgr-1",
	}))

	e, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Sam", e.Name)
	assert.Equal(t, "MIL", e.Location)
	assert.Equal(t, "mgr-1", e.ApproverID)

	_, err = s.GetEmployee(ctx, "ghost")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}
