package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// Request is one employee leave request. It is created in draft by the
// requester, mutated only through the transitions in machine.go, and never
// physically deleted once it leaves draft.
type Request struct {
	ID         string
	EmployeeID string
	LeaveType  policy.LeaveType

	StartDate    time.Time
	EndDate      time.Time
	StartHalfDay bool
	EndHalfDay   bool

	// DaysRequested is always derived: calendar days in the range minus
	// excluded days, minus 0.5 per half-day flag, floored at zero.
	DaysRequested decimal.Decimal

	Status Status

	EmployeeNotes string
	ApproverNotes string
	ApproverID    string // empty until a decision is taken

	// Conditional approval sub-protocol.
	HasConditions     bool
	ConditionType     ConditionType
	ConditionDetails  string
	ConditionAccepted *bool // nil = undecided

	RejectionReason    string
	CancellationReason string
	RevocationReason   string

	// Recall to service.
	RecalledAt         *time.Time
	RecallDate         *time.Time
	RecallReason       string
	RecallReleasedDays decimal.Decimal

	// Version is the optimistic-concurrency token, checked and
	// incremented by the store on every mutating transition.
	Version int64

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ApprovedAt *time.Time
}

// AccrualYear is the balance year a request charges: the year its leave
// starts in.
func (r *Request) AccrualYear() int { return r.StartDate.Year() }

// BalanceKey is the ledger row this request reserves and consumes from.
func (r *Request) BalanceKey() ledger.Key {
	return ledger.Key{EmployeeID: r.EmployeeID, LeaveType: r.LeaveType, Year: r.AccrualYear()}
}

// ChargedDays is what the request currently holds against the balance:
// the derived day count minus anything released back by a recall.
func (r *Request) ChargedDays() decimal.Decimal {
	return r.DaysRequested.Sub(r.RecallReleasedDays)
}

// clearConditions resets the conditional-approval fields. Invariant:
// condition_accepted is non-nil only while the request is in
// approved_conditional or its immediate successor; re-entering pending
// always clears it.
func (r *Request) clearConditions() {
	r.HasConditions = false
	r.ConditionType = ""
	r.ConditionDetails = ""
	r.ConditionAccepted = nil
}

// clearRecall resets the recall fields when a request re-enters pending
// and re-reserves its full derived day count.
func (r *Request) clearRecall() {
	r.RecalledAt = nil
	r.RecallDate = nil
	r.RecallReason = ""
	r.RecallReleasedDays = decimal.Zero
}
