/*
Package leave owns the lifecycle of a single leave request.

PURPOSE:
  A request moves through a closed set of states - draft, pending,
  approved, approved_conditional, rejected, cancelled - under an
  exhaustive transition-guard table. rejected and cancelled are
  reopenable, so this is a controlled re-entry machine, not a DAG.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: closed tagged variant; illegal transitions are rejected
    centrally against the transition table, never via scattered
    string comparisons.
  - Action: the transition vocabulary (submit, approve, recall, ...).
  - ConditionType: the conditional-approval sub-protocol codes.
  - Actor: who is performing a transition, resolved against the
    requester/approver authorization rules.

SEE ALSO:
  - machine.go: transition implementations
  - request.go: the LeaveRequest entity
  - errors.go: error taxonomy
*/
package leave

import "fmt"

// =============================================================================
// STATUS - closed tagged variant
// =============================================================================

type Status string

const (
	StatusDraft               Status = "draft"
	StatusPending             Status = "pending"
	StatusApproved            Status = "approved"
	StatusApprovedConditional Status = "approved_conditional"
	StatusRejected            Status = "rejected"
	StatusCancelled           Status = "cancelled"
)

// HoldsBalance reports whether a request in this status holds reserved or
// consumed days. Used by the balance-conservation invariant.
func (s Status) HoldsBalance() bool {
	switch s {
	case StatusPending, StatusApproved, StatusApprovedConditional:
		return true
	}
	return false
}

// Reopenable reports whether an approver may return the request to
// pending. The rule is uniform across rejection causes: direct rejection,
// condition rejection and revocation all land in rejected and reopen the
// same way.
func (s Status) Reopenable() bool {
	return s == StatusRejected || s == StatusCancelled
}

// =============================================================================
// ACTIONS AND THE TRANSITION TABLE
// =============================================================================

type Action string

const (
	ActionCreate           Action = "create"
	ActionUpdateDraft      Action = "update_draft"
	ActionSubmit           Action = "submit"
	ActionApprove          Action = "approve"
	ActionApproveWithCond  Action = "approve_conditional"
	ActionAcceptCondition  Action = "accept_condition"
	ActionRejectCondition  Action = "reject_condition"
	ActionReject           Action = "reject"
	ActionCancel           Action = "cancel"
	ActionRevoke           Action = "revoke"
	ActionReopen           Action = "reopen"
	ActionRecall           Action = "recall"
	ActionDelete           Action = "delete"
)

// actorKind says which side of the desk may perform an action.
type actorKind int

const (
	byRequester actorKind = iota
	byApprover
)

type transitionRule struct {
	from  map[Status]bool
	actor actorKind
}

// transitions is the exhaustive guard table. Every transition an actor can
// attempt is checked here first; anything not in the table for the
// request's current status is illegal.
var transitions = map[Action]transitionRule{
	ActionUpdateDraft:     {from: set(StatusDraft), actor: byRequester},
	ActionSubmit:          {from: set(StatusDraft), actor: byRequester},
	ActionApprove:         {from: set(StatusPending), actor: byApprover},
	ActionApproveWithCond: {from: set(StatusPending), actor: byApprover},
	ActionAcceptCondition: {from: set(StatusApprovedConditional), actor: byRequester},
	ActionRejectCondition: {from: set(StatusApprovedConditional), actor: byRequester},
	ActionReject:          {from: set(StatusPending), actor: byApprover},
	ActionCancel:          {from: set(StatusPending), actor: byRequester},
	ActionRevoke:          {from: set(StatusApproved, StatusApprovedConditional), actor: byApprover},
	ActionReopen:          {from: set(StatusRejected, StatusCancelled), actor: byApprover},
	ActionRecall:          {from: set(StatusApproved, StatusApprovedConditional), actor: byApprover},
	ActionDelete:          {from: set(StatusDraft), actor: byRequester},
}

func set(statuses ...Status) map[Status]bool {
	m := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

// checkTransition rejects an action not permitted from the current status.
func checkTransition(action Action, from Status) error {
	rule, ok := transitions[action]
	if !ok || !rule.from[from] {
		return &TransitionError{Action: action, From: from}
	}
	return nil
}

// =============================================================================
// CONDITIONS - conditional-approval sub-protocol
// =============================================================================

// ConditionType classifies what the approver is asking the requester to
// accept before the approval becomes final.
type ConditionType string

const (
	ConditionRecallable  ConditionType = "ric" // must stay recallable to service
	ConditionOnCall      ConditionType = "rep" // must remain reachable
	ConditionPartial     ConditionType = "par" // only part of the period granted
	ConditionModified    ConditionType = "mod" // dates adjusted by approver
	ConditionAlternative ConditionType = "alt" // alternative arrangement proposed
)

func (c ConditionType) Valid() bool {
	switch c {
	case ConditionRecallable, ConditionOnCall, ConditionPartial, ConditionModified, ConditionAlternative:
		return true
	}
	return false
}

// =============================================================================
// ACTORS
// =============================================================================

// Actor identifies who is performing a transition.
type Actor struct {
	ID string
}

func (a Actor) String() string { return fmt.Sprintf("actor %s", a.ID) }
