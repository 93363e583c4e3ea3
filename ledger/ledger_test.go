package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testKey = ledger.Key{EmployeeID: "emp-1", LeaveType: policy.TypeVacation, Year: 2025}

func days(n float64) decimal.Decimal { return decimal.NewFromFloat(n) }

func grantedBalance(t *testing.T, n float64) *ledger.Balance {
	t.Helper()
	b := ledger.NewBalance(testKey)
	_, err := b.Grant(days(n), "yearly allocation", time.Now().UTC())
	require.NoError(t, err)
	return b
}

// =============================================================================
// GRANT AND RESERVE
// =============================================================================

func TestBalance_GrantThenReserve(t *testing.T) {
	// GIVEN: a balance with 20 granted days
	// WHEN: reserving 5 for a pending request
	// THEN: available drops, reserved rises, the entry records the move

	b := grantedBalance(t, 20)
	now := time.Now().UTC()

	entry, err := b.Reserve("req-1", days(5), now)
	require.NoError(t, err)

	assert.True(t, b.Available.Equal(days(15)))
	assert.True(t, b.Reserved.Equal(days(5)))
	assert.Equal(t, ledger.EntryReserve, entry.Kind)
	assert.True(t, entry.Days.Equal(days(5)))
	assert.True(t, entry.CarryoverDays.IsZero())
}

func TestBalance_Reserve_InsufficientFailsWithoutMutating(t *testing.T) {
	// GIVEN: a balance with 3 available days
	// WHEN: reserving 5
	// THEN: the reservation fails and no bucket moved

	b := grantedBalance(t, 3)
	now := time.Now().UTC()

	_, err := b.Reserve("req-1", days(5), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var ib *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Spendable.Equal(days(3)))
	assert.True(t, ib.Requested.Equal(days(5)))

	assert.True(t, b.Available.Equal(days(3)), "available must be untouched")
	assert.True(t, b.Reserved.IsZero(), "reserved must be untouched")
}

func TestBalance_Reserve_HalfDays(t *testing.T) {
	b := grantedBalance(t, 1)
	_, err := b.Reserve("req-1", days(0.5), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(days(0.5)))
	assert.True(t, b.Reserved.Equal(days(0.5)))
}

// =============================================================================
// CARRYOVER
// =============================================================================

func TestBalance_Reserve_DrawsCarryoverFirst(t *testing.T) {
	// GIVEN: 10 current days plus 4 unexpired carryover days
	// WHEN: reserving 6
	// THEN: all 4 carryover days are consumed before the current balance

	b := grantedBalance(t, 10)
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	_, err := b.GrantCarryover(days(4), expiry, now)
	require.NoError(t, err)

	entry, err := b.Reserve("req-1", days(6), now)
	require.NoError(t, err)

	assert.True(t, entry.CarryoverDays.Equal(days(4)))
	assert.True(t, b.CarryoverAvailable.IsZero())
	assert.True(t, b.Available.Equal(days(8)), "only 2 current days drawn")
	assert.True(t, b.Reserved.Equal(days(6)))
}

func TestBalance_Reserve_ExpiredCarryoverNotSpendable(t *testing.T) {
	// GIVEN: 4 carryover days that expired yesterday
	// WHEN: reserving 5 against 3 current days
	// THEN: the reservation fails; expired carryover does not count

	b := grantedBalance(t, 3)
	now := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	_, err := b.GrantCarryover(days(4), expiry, expiry.AddDate(0, -1, 0))
	require.NoError(t, err)

	_, err = b.Reserve("req-1", days(5), now)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestBalance_Release_RestoresCarryoverBeforeExpiry(t *testing.T) {
	// GIVEN: a reservation that drew 4 carryover days
	// WHEN: releasing it before the carryover expires
	// THEN: the carryover portion returns to the carryover bucket

	b := grantedBalance(t, 10)
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	_, err := b.GrantCarryover(days(4), expiry, now)
	require.NoError(t, err)
	_, err = b.Reserve("req-1", days(6), now)
	require.NoError(t, err)

	entries, err := b.Release("req-1", days(6), days(4), ledger.BucketReserved,
		ledger.EntryRelease, "rejected", now)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.True(t, b.CarryoverAvailable.Equal(days(4)))
	assert.True(t, b.Available.Equal(days(10)))
	assert.True(t, b.Reserved.IsZero())
}

func TestBalance_Release_ForfeitsExpiredCarryover(t *testing.T) {
	// GIVEN: a consumed request holding 4 carryover days
	// WHEN: releasing it after the carryover expiry
	// THEN: the carryover portion is forfeited with an explicit entry

	b := grantedBalance(t, 10)
	reserveAt := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	_, err := b.GrantCarryover(days(4), expiry, reserveAt)
	require.NoError(t, err)
	_, err = b.Reserve("req-1", days(6), reserveAt)
	require.NoError(t, err)
	_, err = b.Consume("req-1", days(6), days(4), reserveAt)
	require.NoError(t, err)

	releaseAt := time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC)
	entries, err := b.Release("req-1", days(6), days(4), ledger.BucketConsumed,
		ledger.EntryRelease, "revoked", releaseAt)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EntryForfeit, entries[1].Kind)
	assert.True(t, entries[1].Days.Equal(days(4)))

	assert.True(t, b.CarryoverAvailable.IsZero(), "expired carryover is gone")
	assert.True(t, b.Available.Equal(days(8)), "only the current portion returns")
	assert.True(t, b.Consumed.IsZero())
}

func TestCarryoverOutstanding(t *testing.T) {
	// GIVEN: a reserve of 4 carryover days and a partial release of 1
	// THEN: 3 carryover days remain attributed to the request

	entries := []ledger.Entry{
		{Kind: ledger.EntryReserve, Days: days(6), CarryoverDays: days(4)},
		{Kind: ledger.EntryConsume, Days: days(6), CarryoverDays: days(4)},
		{Kind: ledger.EntryPartialRelease, Days: days(1), CarryoverDays: days(1)},
	}
	got := ledger.CarryoverOutstanding(entries)
	assert.True(t, got.Equal(days(3)), "got %s", got)
}

// =============================================================================
// CONSUME AND RELEASE
// =============================================================================

func TestBalance_ConsumeMovesReservedToConsumed(t *testing.T) {
	b := grantedBalance(t, 20)
	now := time.Now().UTC()
	_, err := b.Reserve("req-1", days(5), now)
	require.NoError(t, err)

	entry, err := b.Consume("req-1", days(5), decimal.Zero, now)
	require.NoError(t, err)

	assert.Equal(t, ledger.EntryConsume, entry.Kind)
	assert.True(t, b.Reserved.IsZero())
	assert.True(t, b.Consumed.Equal(days(5)))
	assert.True(t, b.Available.Equal(days(15)))
}

func TestBalance_Consume_UnderflowRejected(t *testing.T) {
	b := grantedBalance(t, 20)
	_, err := b.Consume("req-1", days(5), decimal.Zero, time.Now().UTC())
	assert.ErrorIs(t, err, ledger.ErrBucketUnderflow)
}

func TestBalance_Release_UnderflowRejected(t *testing.T) {
	b := grantedBalance(t, 20)
	_, err := b.Release("req-1", days(5), decimal.Zero, ledger.BucketReserved,
		ledger.EntryRelease, "", time.Now().UTC())
	assert.ErrorIs(t, err, ledger.ErrBucketUnderflow)
}

func TestBalance_Conservation(t *testing.T) {
	// GIVEN: a sequence of reserve/consume/release operations
	// THEN: available + reserved + consumed always equals the granted total

	b := grantedBalance(t, 20)
	now := time.Now().UTC()
	total := days(20)

	sum := func() decimal.Decimal {
		return b.Available.Add(b.Reserved).Add(b.Consumed)
	}

	_, err := b.Reserve("req-1", days(5), now)
	require.NoError(t, err)
	assert.True(t, sum().Equal(total))

	_, err = b.Consume("req-1", days(5), decimal.Zero, now)
	require.NoError(t, err)
	assert.True(t, sum().Equal(total))

	_, err = b.Release("req-1", days(2), decimal.Zero, ledger.BucketConsumed,
		ledger.EntryPartialRelease, "recall", now)
	require.NoError(t, err)
	assert.True(t, sum().Equal(total))

	_, err = b.Release("req-1", days(3), decimal.Zero, ledger.BucketConsumed,
		ledger.EntryRelease, "revoked", now)
	require.NoError(t, err)
	assert.True(t, sum().Equal(total))
	assert.True(t, b.Available.Equal(total))
}
