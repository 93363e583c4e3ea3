/*
machine.go - The leave-request state machine

PURPOSE:
  Implements every lifecycle transition: submit, approve (plain and
  conditional), the condition accept/reject sub-protocol, reject, cancel,
  revoke, reopen, recall to service, and draft deletion.

TRANSITION SHAPE:
  Every mutating operation runs inside one store transaction:
    1. re-read the request and evaluate the guard table
    2. authorize the actor (requester by id, approver via Directory)
    3. validate the payload and policy constraints
    4. move balance buckets through the ledger operations
    5. persist request (version check), balance (version check),
       ledger entries, and a history record
  Either all of it commits or none of it does. Concurrent conflicting
  transitions lose with ErrConflict and must re-read before retrying.

NOTIFICATIONS:
  Dispatched after commit, keyed by transition type, fire-and-forget.
  A dispatch failure is logged and never fails the transition.

SEE ALSO:
  - types.go: the transition guard table
  - calendar: day derivation shared by submit and recall
  - ledger: balance bucket operations
*/
package leave

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/policy"
)

// Machine drives the lifecycle of leave requests.
type Machine struct {
	Store     Store
	Calendar  *calendar.Calendar
	Policies  policy.Store
	Directory Directory
	Notifier  notify.Dispatcher
	Logger    *slog.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Machine) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// =============================================================================
// DRAFT CREATION AND EDITING
// =============================================================================

// CreateInput carries the requester-supplied fields of a draft.
type CreateInput struct {
	EmployeeID    string
	LeaveType     policy.LeaveType
	StartDate     time.Time
	EndDate       time.Time
	StartHalfDay  bool
	EndHalfDay    bool
	EmployeeNotes string
}

func (in *CreateInput) validate() error {
	if in.EmployeeID == "" {
		return &ValidationError{Field: "employee_id", Message: "required"}
	}
	if !in.LeaveType.Valid() {
		return &ValidationError{Field: "leave_type", Message: "unknown leave type " + string(in.LeaveType)}
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return &ValidationError{Field: "dates", Message: "start_date and end_date are required"}
	}
	if calendar.Midnight(in.EndDate).Before(calendar.Midnight(in.StartDate)) {
		return &ValidationError{Field: "end_date", Message: "end_date before start_date"}
	}
	return nil
}

// Create opens a new draft for the requester. Only the employee
// themselves creates their drafts.
func (m *Machine) Create(ctx context.Context, actor Actor, in CreateInput) (*Request, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if actor.ID != in.EmployeeID {
		return nil, &AuthorizationError{ActorID: actor.ID, Action: ActionCreate}
	}

	days, err := m.deriveDays(ctx, in.StartDate, in.EndDate, in.StartHalfDay, in.EndHalfDay)
	if err != nil {
		return nil, err
	}

	now := m.now()
	r := &Request{
		ID:            uuid.NewString(),
		EmployeeID:    in.EmployeeID,
		LeaveType:     in.LeaveType,
		StartDate:     calendar.Midnight(in.StartDate),
		EndDate:       calendar.Midnight(in.EndDate),
		StartHalfDay:  in.StartHalfDay,
		EndHalfDay:    in.EndHalfDay,
		DaysRequested: days,
		Status:        StatusDraft,
		EmployeeNotes: in.EmployeeNotes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = m.Store.WithTx(ctx, func(st Store) error {
		if err := st.InsertRequest(ctx, r); err != nil {
			return err
		}
		return st.AppendTransition(ctx, record(r, ActionCreate, StatusDraft, actor, "", now))
	})
	if err != nil {
		return nil, err
	}

	m.dispatch(ctx, m.event(notify.EventCreated, r, actor))
	return r, nil
}

// UpdateDraft edits the dates and notes of a draft and re-derives its day
// count. Anything past draft is immutable except through transitions.
func (m *Machine) UpdateDraft(ctx context.Context, actor Actor, id string, in CreateInput) (*Request, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	days, err := m.deriveDays(ctx, in.StartDate, in.EndDate, in.StartHalfDay, in.EndHalfDay)
	if err != nil {
		return nil, err
	}

	var out *Request
	err = m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionUpdateDraft, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionUpdateDraft); err != nil {
			return err
		}
		if in.EmployeeID != r.EmployeeID || in.LeaveType != r.LeaveType {
			return &ValidationError{Field: "leave_type", Message: "employee and leave type are fixed at creation"}
		}

		now := m.now()
		r.StartDate = calendar.Midnight(in.StartDate)
		r.EndDate = calendar.Midnight(in.EndDate)
		r.StartHalfDay = in.StartHalfDay
		r.EndHalfDay = in.EndHalfDay
		r.DaysRequested = days
		r.EmployeeNotes = in.EmployeeNotes
		r.UpdatedAt = now

		if err := st.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, ActionUpdateDraft, StatusDraft, actor, "", now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete permanently removes a draft. Once a request has left draft it is
// never physically deleted.
func (m *Machine) Delete(ctx context.Context, actor Actor, id string) error {
	var deleted *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionDelete, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionDelete); err != nil {
			return err
		}
		deleted = r
		return st.DeleteRequest(ctx, r.ID, r.Version)
	})
	if err != nil {
		return err
	}
	m.dispatch(ctx, m.event(notify.EventDeleted, deleted, actor))
	return nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit moves a draft to pending: validates the day count against the
// leave type's policy and reserves the derived days on the requester's
// balance, all in one commit.
func (m *Machine) Submit(ctx context.Context, actor Actor, id string) (*Request, error) {
	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionSubmit, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionSubmit); err != nil {
			return err
		}

		now := m.now()

		// Day count is re-derived at submission: the holiday/closure
		// configuration may have changed since the draft was written.
		days, err := m.deriveDays(ctx, r.StartDate, r.EndDate, r.StartHalfDay, r.EndHalfDay)
		if err != nil {
			return err
		}
		if !days.IsPositive() {
			return &ValidationError{Field: "days_requested", Message: "range contains no chargeable days"}
		}
		r.DaysRequested = days

		if err := m.evaluatePolicy(ctx, st, r, now); err != nil {
			return err
		}

		bal, err := st.GetBalance(ctx, r.BalanceKey())
		if err != nil {
			return err
		}
		entry, err := bal.Reserve(r.ID, days, now)
		if err != nil {
			return asPolicyViolation(err)
		}

		r.Status = StatusPending
		r.UpdatedAt = now
		if err := persist(ctx, st, r, bal, []ledger.Entry{entry}); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, ActionSubmit, StatusDraft, actor, "", now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.dispatch(ctx, m.event(notify.EventSubmitted, out, actor))
	return out, nil
}

// =============================================================================
// APPROVAL
// =============================================================================

// Approve turns a pending request into an approved one, moving its hold
// from reserved to consumed.
func (m *Machine) Approve(ctx context.Context, actor Actor, id, notes string) (*Request, error) {
	out, err := m.decide(ctx, actor, id, ActionApprove, func(r *Request, now time.Time) error {
		r.Status = StatusApproved
		r.ApproverID = actor.ID
		r.ApproverNotes = notes
		r.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventApproved, out, actor))
	return out, nil
}

// ApproveConditional approves subject to a condition the requester must
// explicitly accept. The consumption is provisional until they do.
func (m *Machine) ApproveConditional(ctx context.Context, actor Actor, id string, condType ConditionType, details, notes string) (*Request, error) {
	if !condType.Valid() {
		return nil, &ValidationError{Field: "condition_type", Message: "unknown condition type " + string(condType)}
	}
	if strings.TrimSpace(details) == "" {
		return nil, &ValidationError{Field: "condition_details", Message: "required for conditional approval"}
	}

	out, err := m.decide(ctx, actor, id, ActionApproveWithCond, func(r *Request, now time.Time) error {
		r.Status = StatusApprovedConditional
		r.ApproverID = actor.ID
		r.ApproverNotes = notes
		r.ApprovedAt = &now
		r.HasConditions = true
		r.ConditionType = condType
		r.ConditionDetails = details
		r.ConditionAccepted = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventApprovedWithCond, out, actor))
	return out, nil
}

// decide is the shared pending -> approved/approved_conditional path:
// guard, authorize, consume the reservation, apply the mutation.
func (m *Machine) decide(ctx context.Context, actor Actor, id string, action Action, apply func(*Request, time.Time) error) (*Request, error) {
	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(action, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, action); err != nil {
			return err
		}

		now := m.now()
		from := r.Status

		bal, err := st.GetBalance(ctx, r.BalanceKey())
		if err != nil {
			return err
		}
		entries, err := st.EntriesByRequest(ctx, r.ID)
		if err != nil {
			return err
		}
		carry := ledger.CarryoverOutstanding(entries)
		entry, err := bal.Consume(r.ID, r.DaysRequested, carry, now)
		if err != nil {
			return err
		}

		if err := apply(r, now); err != nil {
			return err
		}
		r.UpdatedAt = now

		if err := persist(ctx, st, r, bal, []ledger.Entry{entry}); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, action, from, actor, r.ApproverNotes, now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// CONDITION SUB-PROTOCOL
// =============================================================================

// AcceptCondition records the requester's acceptance. The approval is now
// final; no balance moves.
func (m *Machine) AcceptCondition(ctx context.Context, actor Actor, id string) (*Request, error) {
	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionAcceptCondition, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionAcceptCondition); err != nil {
			return err
		}

		now := m.now()
		accepted := true
		r.ConditionAccepted = &accepted
		r.UpdatedAt = now

		if err := st.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, ActionAcceptCondition, StatusApprovedConditional, actor, "", now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventConditionAccepted, out, actor))
	return out, nil
}

// RejectCondition records the requester's refusal: the provisional
// consumption is released back to available and the request lands in
// rejected, reopenable like any other rejection.
func (m *Machine) RejectCondition(ctx context.Context, actor Actor, id, reason string) (*Request, error) {
	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionRejectCondition, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionRejectCondition); err != nil {
			return err
		}

		now := m.now()
		refused := false
		r.ConditionAccepted = &refused
		if reason == "" {
			reason = "condition refused by requester"
		}
		r.RejectionReason = reason

		if err := m.release(ctx, st, r, ledger.BucketConsumed, ledger.EntryRelease, reason, now); err != nil {
			return err
		}

		r.Status = StatusRejected
		r.UpdatedAt = now
		if err := st.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, ActionRejectCondition, StatusApprovedConditional, actor, reason, now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventConditionRejected, out, actor))
	return out, nil
}

// =============================================================================
// REJECTION, CANCELLATION, REVOCATION
// =============================================================================

// Reject refuses a pending request and releases its reservation.
func (m *Machine) Reject(ctx context.Context, actor Actor, id, reason string) (*Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "rejection reason is required"}
	}
	out, err := m.terminate(ctx, actor, id, ActionReject, ledger.BucketReserved, reason, func(r *Request) {
		r.Status = StatusRejected
		r.RejectionReason = reason
		r.ApproverID = actor.ID
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventRejected, out, actor))
	return out, nil
}

// Cancel withdraws the requester's own pending request.
func (m *Machine) Cancel(ctx context.Context, actor Actor, id, reason string) (*Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "cancellation reason is required"}
	}
	out, err := m.terminate(ctx, actor, id, ActionCancel, ledger.BucketReserved, reason, func(r *Request) {
		r.Status = StatusCancelled
		r.CancellationReason = reason
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventCancelled, out, actor))
	return out, nil
}

// Revoke withdraws an already-granted approval before the leave starts,
// releasing the consumed days.
func (m *Machine) Revoke(ctx context.Context, actor Actor, id, reason string) (*Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "revocation reason is required"}
	}
	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionRevoke, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionRevoke); err != nil {
			return err
		}

		now := m.now()
		if !calendar.Midnight(now).Before(r.StartDate) {
			return &ValidationError{Field: "start_date", Message: "leave already started; revocation must precede it (use recall instead)"}
		}

		from := r.Status
		if err := m.release(ctx, st, r, ledger.BucketConsumed, ledger.EntryRelease, reason, now); err != nil {
			return err
		}

		r.Status = StatusRejected
		r.RevocationReason = reason
		r.UpdatedAt = now
		if err := st.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, ActionRevoke, from, actor, reason, now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventRevoked, out, actor))
	return out, nil
}

// terminate is the shared pending -> rejected/cancelled path.
func (m *Machine) terminate(ctx context.Context, actor Actor, id string, action Action, from ledger.Bucket, reason string, apply func(*Request)) (*Request, error) {
	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(action, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, action); err != nil {
			return err
		}

		now := m.now()
		prev := r.Status
		if err := m.release(ctx, st, r, from, ledger.EntryRelease, reason, now); err != nil {
			return err
		}

		apply(r)
		r.UpdatedAt = now
		if err := st.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, action, prev, actor, reason, now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// REOPEN
// =============================================================================

// Reopen returns a rejected or cancelled request to pending, re-reserving
// its derived day count under the same validation as a fresh submission.
// If the balance has since fallen below the amount, the whole transition
// fails - no partial reservation.
func (m *Machine) Reopen(ctx context.Context, actor Actor, id string) (*Request, error) {
	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionReopen, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionReopen); err != nil {
			return err
		}

		now := m.now()
		if !r.StartDate.After(calendar.Midnight(now)) {
			return &ValidationError{Field: "start_date", Message: "cannot reopen a request whose start date has passed"}
		}

		if err := m.evaluatePolicy(ctx, st, r, now); err != nil {
			return err
		}

		bal, err := st.GetBalance(ctx, r.BalanceKey())
		if err != nil {
			return err
		}
		entry, err := bal.Reserve(r.ID, r.DaysRequested, now)
		if err != nil {
			return asPolicyViolation(err)
		}

		from := r.Status
		r.Status = StatusPending
		r.clearConditions()
		r.clearRecall()
		r.ApproverID = ""
		r.ApproverNotes = ""
		r.ApprovedAt = nil
		r.RejectionReason = ""
		r.CancellationReason = ""
		r.RevocationReason = ""
		r.UpdatedAt = now

		if err := persist(ctx, st, r, bal, []ledger.Entry{entry}); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, ActionReopen, from, actor, "", now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventReopened, out, actor))
	return out, nil
}

// =============================================================================
// RECALL TO SERVICE
// =============================================================================

// Recall interrupts approved leave for operational necessity. Status is
// unchanged; the days after recall_date are computed by the same calendar
// function used at submission and released back to the balance.
func (m *Machine) Recall(ctx context.Context, actor Actor, id string, recallDate time.Time, reason string) (*Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "recall reason is required"}
	}

	var out *Request
	err := m.Store.WithTx(ctx, func(st Store) error {
		r, err := st.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ActionRecall, r.Status); err != nil {
			return err
		}
		if err := m.authorize(ctx, actor, r, ActionRecall); err != nil {
			return err
		}

		day := calendar.Midnight(recallDate)
		if day.Before(r.StartDate) || day.After(r.EndDate) {
			return &ValidationError{Field: "recall_date", Message: "recall_date outside the leave period"}
		}
		if r.RecalledAt != nil {
			return &ValidationError{Field: "recall_date", Message: "request already recalled"}
		}

		now := m.now()

		// Days after the recall date are un-consumed via the same pure
		// counting function submission used.
		released := decimal.Zero
		if day.Before(r.EndDate) {
			subFrom := day.AddDate(0, 0, 1)
			excluded, err := m.Calendar.ExcludedDays(ctx, subFrom, r.EndDate)
			if err != nil {
				return err
			}
			released = calendar.ChargeableDays(subFrom, r.EndDate, false, r.EndHalfDay, excluded)
			if released.GreaterThan(r.ChargedDays()) {
				released = r.ChargedDays()
			}
		}

		if released.IsPositive() {
			if err := m.releaseDays(ctx, st, r, released, ledger.BucketConsumed, ledger.EntryPartialRelease, reason, now); err != nil {
				return err
			}
			r.RecallReleasedDays = r.RecallReleasedDays.Add(released)
		}

		r.RecalledAt = &now
		r.RecallDate = &day
		r.RecallReason = reason
		r.UpdatedAt = now

		if err := st.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if err := st.AppendTransition(ctx, record(r, ActionRecall, r.Status, actor, reason, now)); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.event(notify.EventRecalled, out, actor))
	return out, nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Machine) Get(ctx context.Context, id string) (*Request, error) {
	return m.Store.GetRequest(ctx, id)
}

func (m *Machine) ListByEmployee(ctx context.Context, employeeID string) ([]*Request, error) {
	return m.Store.ListRequestsByEmployee(ctx, employeeID)
}

// History returns the transition projection for a request, for audit
// display.
func (m *Machine) History(ctx context.Context, id string) ([]TransitionRecord, error) {
	if _, err := m.Store.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	return m.Store.TransitionsByRequest(ctx, id)
}

// Balance returns the current snapshot for one employee/leave-type/year.
func (m *Machine) Balance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	return m.Store.GetBalance(ctx, key)
}

// =============================================================================
// BALANCE ADMINISTRATION
// =============================================================================

// Grant loads entitlement onto a balance (yearly allocation, manual
// adjustment).
func (m *Machine) Grant(ctx context.Context, key ledger.Key, days decimal.Decimal, reason string) (*ledger.Balance, error) {
	var out *ledger.Balance
	err := m.Store.WithTx(ctx, func(st Store) error {
		bal, err := st.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		entry, err := bal.Grant(days, reason, m.now())
		if err != nil {
			return &ValidationError{Field: "days", Message: err.Error()}
		}
		entry.ID = uuid.NewString()
		if err := st.SaveBalance(ctx, bal); err != nil {
			return err
		}
		if err := st.AppendEntries(ctx, []ledger.Entry{entry}); err != nil {
			return err
		}
		out = bal
		return nil
	})
	return out, err
}

// GrantCarryover loads prior-year carryover with its expiry date.
func (m *Machine) GrantCarryover(ctx context.Context, key ledger.Key, days decimal.Decimal, expiry time.Time) (*ledger.Balance, error) {
	var out *ledger.Balance
	err := m.Store.WithTx(ctx, func(st Store) error {
		bal, err := st.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		entry, err := bal.GrantCarryover(days, calendar.Midnight(expiry), m.now())
		if err != nil {
			return &ValidationError{Field: "days", Message: err.Error()}
		}
		entry.ID = uuid.NewString()
		if err := st.SaveBalance(ctx, bal); err != nil {
			return err
		}
		if err := st.AppendEntries(ctx, []ledger.Entry{entry}); err != nil {
			return err
		}
		out = bal
		return nil
	})
	return out, err
}

// =============================================================================
// SHARED INTERNALS
// =============================================================================

// deriveDays resolves exclusions and counts chargeable days for a range.
func (m *Machine) deriveDays(ctx context.Context, start, end time.Time, startHalf, endHalf bool) (decimal.Decimal, error) {
	excluded, err := m.Calendar.ExcludedDays(ctx, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	return calendar.ChargeableDays(start, end, startHalf, endHalf, excluded), nil
}

// authorize enforces the actor rule of the transition table.
func (m *Machine) authorize(ctx context.Context, actor Actor, r *Request, action Action) error {
	if actor.ID == "" {
		return &AuthorizationError{ActorID: actor.ID, Action: action}
	}
	switch transitions[action].actor {
	case byRequester:
		if actor.ID != r.EmployeeID {
			return &AuthorizationError{ActorID: actor.ID, Action: action}
		}
	case byApprover:
		ok, err := m.Directory.IsApprover(ctx, actor.ID, r.EmployeeID)
		if err != nil {
			return err
		}
		if !ok {
			return &AuthorizationError{ActorID: actor.ID, Action: action}
		}
	}
	return nil
}

// evaluatePolicy runs the leave type's constraints against the request,
// counting the requester's other balance-holding requests of the same
// type for the per-month cap.
func (m *Machine) evaluatePolicy(ctx context.Context, st Store, r *Request, now time.Time) error {
	pol, err := m.Policies.Get(ctx, r.LeaveType)
	if err != nil {
		return err
	}
	if pol == nil {
		return nil
	}

	siblings, err := st.ListRequestsByEmployee(ctx, r.EmployeeID)
	if err != nil {
		return err
	}
	var starts []time.Time
	for _, s := range siblings {
		if s.ID != r.ID && s.LeaveType == r.LeaveType && s.Status.HoldsBalance() {
			starts = append(starts, s.StartDate)
		}
	}

	err = pol.Evaluate(policy.Candidate{
		LeaveType:          r.LeaveType,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		DaysRequested:      r.DaysRequested,
		SubmittedAt:        calendar.Midnight(now),
		ExistingStartDates: starts,
	})
	return asPolicyViolation(err)
}

// release returns the request's full current hold from a bucket.
func (m *Machine) release(ctx context.Context, st Store, r *Request, from ledger.Bucket, kind ledger.EntryKind, reason string, now time.Time) error {
	return m.releaseDays(ctx, st, r, r.ChargedDays(), from, kind, reason, now)
}

// releaseDays returns part of the request's hold, restoring the carryover
// portion first (or forfeiting it when expired).
func (m *Machine) releaseDays(ctx context.Context, st Store, r *Request, days decimal.Decimal, from ledger.Bucket, kind ledger.EntryKind, reason string, now time.Time) error {
	if !days.IsPositive() {
		return nil
	}

	bal, err := st.GetBalance(ctx, r.BalanceKey())
	if err != nil {
		return err
	}
	entries, err := st.EntriesByRequest(ctx, r.ID)
	if err != nil {
		return err
	}
	carry := decimal.Min(ledger.CarryoverOutstanding(entries), days)

	moved, err := bal.Release(r.ID, days, carry, from, kind, reason, now)
	if err != nil {
		return err
	}
	return persistBalance(ctx, st, bal, moved)
}

// persist writes the request, its balance and the ledger entries of one
// transition.
func persist(ctx context.Context, st Store, r *Request, bal *ledger.Balance, entries []ledger.Entry) error {
	if err := st.UpdateRequest(ctx, r); err != nil {
		return err
	}
	return persistBalance(ctx, st, bal, entries)
}

func persistBalance(ctx context.Context, st Store, bal *ledger.Balance, entries []ledger.Entry) error {
	if err := st.SaveBalance(ctx, bal); err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
	}
	return st.AppendEntries(ctx, entries)
}

// record builds the history row for a committed transition.
func record(r *Request, action Action, from Status, actor Actor, reason string, at time.Time) TransitionRecord {
	return TransitionRecord{
		ID:        uuid.NewString(),
		RequestID: r.ID,
		Action:    action,
		From:      from,
		To:        r.Status,
		ActorID:   actor.ID,
		Reason:    reason,
		At:        at,
	}
}

// asPolicyViolation maps ledger and policy failures into the engine's
// error taxonomy.
func asPolicyViolation(err error) error {
	if err == nil {
		return nil
	}
	var pv *policy.ViolationError
	if errors.As(err, &pv) {
		return &PolicyViolationError{Code: pv.Code, Message: pv.Message}
	}
	var ib *ledger.InsufficientBalanceError
	if errors.As(err, &ib) {
		return &PolicyViolationError{Code: "insufficient_balance", Message: ib.Error()}
	}
	return err
}

// event builds the notification payload for a committed transition.
func (m *Machine) event(t notify.EventType, r *Request, actor Actor) notify.Event {
	return notify.Event{
		Type:       t,
		RequestID:  r.ID,
		EmployeeID: r.EmployeeID,
		ActorID:    actor.ID,
		LeaveType:  string(r.LeaveType),
		OccurredAt: m.now(),
	}
}

// dispatch fires the transition notification. Failures are logged, never
// surfaced: the transition has already committed.
func (m *Machine) dispatch(ctx context.Context, e notify.Event) {
	if m.Notifier == nil {
		return
	}
	if err := m.Notifier.Dispatch(ctx, e); err != nil {
		m.logger().Warn("notification dispatch failed",
			"event", string(e.Type), "request_id", e.RequestID, "error", err)
	}
}
