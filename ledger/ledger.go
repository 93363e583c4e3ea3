/*
Package ledger tracks paid-leave balances per employee, leave type and
accrual year.

PURPOSE:
  A Balance splits an employee's entitlement into buckets:
    available  - grantable, not yet claimed by any request
    reserved   - held by a pending request
    consumed   - charged by an approved request
  plus prior-year carryover, usable until its expiry date and consumed
  before the current-year balance.

BUCKET FLOW:
  submit              approve                revoke/recall
  available ───────▶ reserved ───────▶ consumed ───────▶ available
              reserve          consume           release

  reject/cancel release reserved back to available; reopen reserves again.

CONSERVATION:
  At any instant reserved+consumed equals the sum of chargeable days of
  the non-terminal requests that hold them. Every operation here moves
  days between buckets; nothing is created or destroyed except by Grant
  and carryover forfeiture.

AUDIT ENTRIES:
  Each operation returns append-only Entry values recording what moved
  and how much of it was carryover. Entries are never updated or deleted;
  the carryover split of a request's reservation is recovered by summing
  its entries.

CARRYOVER:
  Reserve draws carryover first while it is unexpired. Carryover released
  after its expiry date is forfeited (an explicit forfeit entry), not
  returned to the carryover bucket. The year-end forfeiture sweep over
  untouched balances is external to this package.

SEE ALSO:
  - leave: drives these operations from transition guards
  - store/sqlite: persists Balance rows (versioned) and entries
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// KEYS AND BALANCES
// =============================================================================

// Key identifies one balance row.
type Key struct {
	EmployeeID string
	LeaveType  policy.LeaveType
	Year       int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.EmployeeID, k.LeaveType, k.Year)
}

// Balance is the bucketed state for one employee/leave-type/year.
type Balance struct {
	Key                Key
	Available          decimal.Decimal
	Reserved           decimal.Decimal
	Consumed           decimal.Decimal
	CarryoverAvailable decimal.Decimal
	CarryoverExpiry    *time.Time

	// Version is the optimistic-concurrency token, checked and
	// incremented by the store on every write.
	Version int64
}

// NewBalance returns an empty balance for a key.
func NewBalance(key Key) *Balance {
	return &Balance{
		Key:                key,
		Available:          decimal.Zero,
		Reserved:           decimal.Zero,
		Consumed:           decimal.Zero,
		CarryoverAvailable: decimal.Zero,
	}
}

// carryoverUsable reports whether carryover can still be drawn or
// replenished at the given instant.
func (b *Balance) carryoverUsable(asOf time.Time) bool {
	return b.CarryoverExpiry == nil || !asOf.After(*b.CarryoverExpiry)
}

// Spendable is what a new reservation can draw as of a date: available
// plus unexpired carryover.
func (b *Balance) Spendable(asOf time.Time) decimal.Decimal {
	if b.carryoverUsable(asOf) {
		return b.Available.Add(b.CarryoverAvailable)
	}
	return b.Available
}

// =============================================================================
// ENTRIES - append-only audit trail
// =============================================================================

type EntryKind string

const (
	EntryGrant          EntryKind = "grant"
	EntryReserve        EntryKind = "reserve"
	EntryConsume        EntryKind = "consume"
	EntryRelease        EntryKind = "release"
	EntryPartialRelease EntryKind = "partial_release"
	EntryForfeit        EntryKind = "forfeit"
)

// Entry records one bucket movement. CarryoverDays is the portion of Days
// attributable to prior-year carryover.
type Entry struct {
	ID            string
	Key           Key
	RequestID     string
	Kind          EntryKind
	Days          decimal.Decimal
	CarryoverDays decimal.Decimal
	Reason        string
	CreatedAt     time.Time
}

// CarryoverOutstanding sums how much of a request's held balance is still
// attributable to carryover: reserved carryover minus carryover already
// released. Forfeit entries are excluded - they always accompany a
// release entry that already accounts for the split.
func CarryoverOutstanding(entries []Entry) decimal.Decimal {
	out := decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case EntryReserve:
			out = out.Add(e.CarryoverDays)
		case EntryRelease, EntryPartialRelease:
			out = out.Sub(e.CarryoverDays)
		}
	}
	return out
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a reservation exceeds the
	// spendable balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBucketUnderflow indicates an internal inconsistency: a release
	// or consume larger than the bucket holds.
	ErrBucketUnderflow = errors.New("bucket underflow")
)

// InsufficientBalanceError details a balance shortage.
type InsufficientBalanceError struct {
	Key       Key
	Spendable decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: spendable %s, requested %s",
		e.Key, e.Spendable, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// OPERATIONS
// =============================================================================

// Bucket names the source of a release.
type Bucket string

const (
	BucketReserved Bucket = "reserved"
	BucketConsumed Bucket = "consumed"
)

// Grant adds days to the available bucket (entitlement load, admin
// adjustment).
func (b *Balance) Grant(days decimal.Decimal, reason string, at time.Time) (Entry, error) {
	if !days.IsPositive() {
		return Entry{}, fmt.Errorf("grant must be positive, got %s", days)
	}
	b.Available = b.Available.Add(days)
	return Entry{Key: b.Key, Kind: EntryGrant, Days: days, Reason: reason, CreatedAt: at}, nil
}

// GrantCarryover loads prior-year carryover with its expiry date.
func (b *Balance) GrantCarryover(days decimal.Decimal, expiry time.Time, at time.Time) (Entry, error) {
	if !days.IsPositive() {
		return Entry{}, fmt.Errorf("carryover grant must be positive, got %s", days)
	}
	b.CarryoverAvailable = b.CarryoverAvailable.Add(days)
	b.CarryoverExpiry = &expiry
	return Entry{Key: b.Key, Kind: EntryGrant, Days: days, CarryoverDays: days, Reason: "carryover", CreatedAt: at}, nil
}

// Reserve holds days for a pending request, drawing unexpired carryover
// before the current-year balance. Fails with InsufficientBalanceError
// without mutating anything.
func (b *Balance) Reserve(requestID string, days decimal.Decimal, at time.Time) (Entry, error) {
	if !days.IsPositive() {
		return Entry{}, fmt.Errorf("reserve must be positive, got %s", days)
	}
	if days.GreaterThan(b.Spendable(at)) {
		return Entry{}, &InsufficientBalanceError{Key: b.Key, Spendable: b.Spendable(at), Requested: days}
	}

	carry := decimal.Zero
	if b.carryoverUsable(at) {
		carry = decimal.Min(b.CarryoverAvailable, days)
	}
	b.CarryoverAvailable = b.CarryoverAvailable.Sub(carry)
	b.Available = b.Available.Sub(days.Sub(carry))
	b.Reserved = b.Reserved.Add(days)

	return Entry{
		Key: b.Key, RequestID: requestID, Kind: EntryReserve,
		Days: days, CarryoverDays: carry, CreatedAt: at,
	}, nil
}

// Consume moves a request's hold from reserved to consumed on approval.
// The carryover split rides along for audit continuity.
func (b *Balance) Consume(requestID string, days, carryoverDays decimal.Decimal, at time.Time) (Entry, error) {
	if days.GreaterThan(b.Reserved) {
		return Entry{}, fmt.Errorf("%w: consume %s exceeds reserved %s for %s",
			ErrBucketUnderflow, days, b.Reserved, b.Key)
	}
	b.Reserved = b.Reserved.Sub(days)
	b.Consumed = b.Consumed.Add(days)
	return Entry{
		Key: b.Key, RequestID: requestID, Kind: EntryConsume,
		Days: days, CarryoverDays: carryoverDays, CreatedAt: at,
	}, nil
}

// Release returns days from a bucket to where they came from: the
// carryover portion back to carryover (unless expired, in which case it
// is forfeited with an explicit entry), the rest to available.
func (b *Balance) Release(requestID string, days, carryoverDays decimal.Decimal, from Bucket, kind EntryKind, reason string, at time.Time) ([]Entry, error) {
	if carryoverDays.GreaterThan(days) {
		return nil, fmt.Errorf("carryover portion %s exceeds release %s", carryoverDays, days)
	}

	switch from {
	case BucketReserved:
		if days.GreaterThan(b.Reserved) {
			return nil, fmt.Errorf("%w: release %s exceeds reserved %s for %s",
				ErrBucketUnderflow, days, b.Reserved, b.Key)
		}
		b.Reserved = b.Reserved.Sub(days)
	case BucketConsumed:
		if days.GreaterThan(b.Consumed) {
			return nil, fmt.Errorf("%w: release %s exceeds consumed %s for %s",
				ErrBucketUnderflow, days, b.Consumed, b.Key)
		}
		b.Consumed = b.Consumed.Sub(days)
	default:
		return nil, fmt.Errorf("unknown bucket %q", from)
	}

	current := days.Sub(carryoverDays)
	b.Available = b.Available.Add(current)

	entries := []Entry{{
		Key: b.Key, RequestID: requestID, Kind: kind,
		Days: days, CarryoverDays: carryoverDays, Reason: reason, CreatedAt: at,
	}}

	if carryoverDays.IsPositive() {
		if b.carryoverUsable(at) {
			b.CarryoverAvailable = b.CarryoverAvailable.Add(carryoverDays)
		} else {
			// Expired carryover is forfeited, not replenished.
			entries = append(entries, Entry{
				Key: b.Key, RequestID: requestID, Kind: EntryForfeit,
				Days: carryoverDays, CarryoverDays: carryoverDays,
				Reason: "carryover expired", CreatedAt: at,
			})
		}
	}

	return entries, nil
}
