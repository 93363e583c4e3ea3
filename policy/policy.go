/*
Package policy supplies per-leave-type constraints.

PURPOSE:
  Each leave type (vacation, reduced-hours, sick, study, ...) carries its
  own caps: maximum days in a single request, maximum consecutive days,
  maximum requests per month, and minimum advance notice. The submit guard
  evaluates every non-nil constraint against the candidate request and the
  requester's existing requests in the relevant window.

NULLABILITY:
  A nil constraint means unconstrained. Sick leave, for example, has no
  minimum notice.

STORAGE:
  Policies are admin-editable configuration. The Store interface is
  implemented by store/sqlite; Defaults() seeds the known leave types.

SEE ALSO:
  - leave: evaluates policies inside the submit/reopen guards
  - store/sqlite: persistent policy store
*/
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// LeaveType is an absence category code.
type LeaveType string

const (
	TypeVacation       LeaveType = "FER"  // paid vacation
	TypeHourBank       LeaveType = "ROL"  // reduced working hours bank
	TypePaidPersonal   LeaveType = "PAR"  // paid personal leave
	TypeSick           LeaveType = "MAL"  // sick leave
	TypeMaternity      LeaveType = "MAT"  // maternity/paternity
	TypeBereavement    LeaveType = "LUT"  // bereavement
	TypeStudy          LeaveType = "STU"  // study leave
	TypeBloodDonation  LeaveType = "DON"  // blood donation
	TypeDisabilityCare LeaveType = "L104" // disability care permits
	TypeRemoteWork     LeaveType = "SW"   // smart working
	TypeUnpaid         LeaveType = "NRT"  // unpaid leave
)

// KnownTypes lists every leave type the engine ships policies for.
var KnownTypes = []LeaveType{
	TypeVacation, TypeHourBank, TypePaidPersonal, TypeSick, TypeMaternity,
	TypeBereavement, TypeStudy, TypeBloodDonation, TypeDisabilityCare,
	TypeRemoteWork, TypeUnpaid,
}

func (t LeaveType) Valid() bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// =============================================================================
// POLICY
// =============================================================================

// Policy holds the constraints for one leave type. Nil fields are
// unconstrained.
type Policy struct {
	LeaveType            LeaveType
	MaxSingleRequestDays *int // cap on days_requested of one request
	MaxConsecutiveDays   *int // cap on the calendar-day span of one request
	MaxPerMonth          *int // cap on requests starting in the same month
	MinNoticeDays        *int // minimum days between submission and start
}

// Store is the admin-editable policy table.
type Store interface {
	Get(ctx context.Context, t LeaveType) (*Policy, error)
	List(ctx context.Context) ([]Policy, error)
	Save(ctx context.Context, p Policy) error
}

// Defaults returns the seed policies for the known leave types.
func Defaults() []Policy {
	return []Policy{
		{LeaveType: TypeVacation, MaxSingleRequestDays: intp(20), MaxConsecutiveDays: intp(30), MinNoticeDays: intp(3)},
		{LeaveType: TypeHourBank, MaxSingleRequestDays: intp(2), MaxPerMonth: intp(4), MinNoticeDays: intp(1)},
		{LeaveType: TypePaidPersonal, MaxSingleRequestDays: intp(3), MaxPerMonth: intp(2), MinNoticeDays: intp(2)},
		{LeaveType: TypeSick},
		{LeaveType: TypeMaternity, MinNoticeDays: intp(30)},
		{LeaveType: TypeBereavement, MaxSingleRequestDays: intp(3)},
		{LeaveType: TypeStudy, MaxSingleRequestDays: intp(8), MaxPerMonth: intp(2), MinNoticeDays: intp(5)},
		{LeaveType: TypeBloodDonation, MaxSingleRequestDays: intp(1), MaxPerMonth: intp(1), MinNoticeDays: intp(2)},
		{LeaveType: TypeDisabilityCare, MaxSingleRequestDays: intp(3), MaxPerMonth: intp(3)},
		{LeaveType: TypeRemoteWork, MaxPerMonth: intp(10)},
		{LeaveType: TypeUnpaid, MinNoticeDays: intp(5)},
	}
}

func intp(n int) *int { return &n }

// =============================================================================
// EVALUATION
// =============================================================================

// Candidate is the request shape the policy guard evaluates.
type Candidate struct {
	LeaveType     LeaveType
	StartDate     time.Time
	EndDate       time.Time
	DaysRequested decimal.Decimal
	SubmittedAt   time.Time
	// Requests of the same type already holding balance, for the
	// per-month cap. start dates only.
	ExistingStartDates []time.Time
}

// ErrViolation is the sentinel for any policy constraint failure.
var ErrViolation = errors.New("policy violation")

// ViolationError names the unmet constraint.
type ViolationError struct {
	Code    string // e.g. "notice_too_short", "max_days_exceeded"
	Message string
}

func (e *ViolationError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func (e *ViolationError) Unwrap() error { return ErrViolation }

// Evaluate checks every non-nil constraint of p against the candidate.
// The first unmet constraint is returned as a ViolationError.
func (p *Policy) Evaluate(c Candidate) error {
	if p.MinNoticeDays != nil {
		notice := int(c.StartDate.Sub(c.SubmittedAt).Hours() / 24)
		if notice < *p.MinNoticeDays {
			return &ViolationError{
				Code:    "notice_too_short",
				Message: fmt.Sprintf("%s requires %d days notice, got %d", p.LeaveType, *p.MinNoticeDays, notice),
			}
		}
	}

	if p.MaxSingleRequestDays != nil {
		if c.DaysRequested.GreaterThan(decimal.NewFromInt(int64(*p.MaxSingleRequestDays))) {
			return &ViolationError{
				Code:    "max_days_exceeded",
				Message: fmt.Sprintf("%s allows at most %d days per request, got %s", p.LeaveType, *p.MaxSingleRequestDays, c.DaysRequested),
			}
		}
	}

	if p.MaxConsecutiveDays != nil {
		span := int(c.EndDate.Sub(c.StartDate).Hours()/24) + 1
		if span > *p.MaxConsecutiveDays {
			return &ViolationError{
				Code:    "max_consecutive_exceeded",
				Message: fmt.Sprintf("%s allows at most %d consecutive days, got %d", p.LeaveType, *p.MaxConsecutiveDays, span),
			}
		}
	}

	if p.MaxPerMonth != nil {
		inMonth := 0
		for _, d := range c.ExistingStartDates {
			if d.Year() == c.StartDate.Year() && d.Month() == c.StartDate.Month() {
				inMonth++
			}
		}
		if inMonth+1 > *p.MaxPerMonth {
			return &ViolationError{
				Code:    "max_per_month_exceeded",
				Message: fmt.Sprintf("%s allows at most %d requests in %s", p.LeaveType, *p.MaxPerMonth, c.StartDate.Format("2006-01")),
			}
		}
	}

	return nil
}
