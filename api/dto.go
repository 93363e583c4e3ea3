/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator struct tags and are
  validated centrally in decodeAndValidate before any handler logic runs.
  Domain validation (transition guards, policy, balance) stays in the
  leave package; the tags here only reject malformed payloads early.

SEE ALSO:
  - handlers.go: uses these types
  - leave/request.go: the domain entity these project
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

// CreateRequestBody opens or edits a draft.
type CreateRequestBody struct {
	EmployeeID    string `json:"employee_id" validate:"required"`
	LeaveType     string `json:"leave_type" validate:"required"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartHalfDay  bool   `json:"start_half_day"`
	EndHalfDay    bool   `json:"end_half_day"`
	EmployeeNotes string `json:"employee_notes"`
}

// DecisionBody carries the optional approver notes of a plain approval.
type DecisionBody struct {
	Notes string `json:"notes"`
}

// ConditionalApprovalBody carries the condition of a conditional approval.
type ConditionalApprovalBody struct {
	ConditionType    string `json:"condition_type" validate:"required"`
	ConditionDetails string `json:"condition_details" validate:"required"`
	Notes            string `json:"notes"`
}

// ReasonBody carries the mandatory reason of reject/cancel/revoke.
type ReasonBody struct {
	Reason string `json:"reason" validate:"required"`
}

// RecallBody carries the recall date and its mandatory reason.
type RecallBody struct {
	RecallDate string `json:"recall_date" validate:"required,datetime=2006-01-02"`
	Reason     string `json:"reason" validate:"required"`
}

// GrantBody loads entitlement onto a balance.
type GrantBody struct {
	EmployeeID string  `json:"employee_id" validate:"required"`
	LeaveType  string  `json:"leave_type" validate:"required"`
	Year       int     `json:"year" validate:"required"`
	Days       float64 `json:"days" validate:"required,gt=0"`
	Reason     string  `json:"reason"`
	// Carryover grants carry their expiry date.
	Carryover       bool   `json:"carryover"`
	CarryoverExpiry string `json:"carryover_expiry" validate:"omitempty,datetime=2006-01-02"`
}

// HolidayBody creates or updates a holiday.
type HolidayBody struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Scope     string `json:"scope" validate:"omitempty,oneof=national local"`
	Location  string `json:"location"`
	Recurring bool   `json:"recurring"`
}

// ClosureBody creates or updates a company closure period.
type ClosureBody struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required"`
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// PolicyBody updates one leave type's constraints. Nil means
// unconstrained.
type PolicyBody struct {
	MaxSingleRequestDays *int `json:"max_single_request_days" validate:"omitempty,gt=0"`
	MaxConsecutiveDays   *int `json:"max_consecutive_days" validate:"omitempty,gt=0"`
	MaxPerMonth          *int `json:"max_per_month" validate:"omitempty,gt=0"`
	MinNoticeDays        *int `json:"min_notice_days" validate:"omitempty,gte=0"`
}

// EmployeeBody creates or updates a directory row.
type EmployeeBody struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Location   string `json:"location"`
	ApproverID string `json:"approver_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RequestDTO projects a leave request for API responses.
type RequestDTO struct {
	ID            string  `json:"id"`
	EmployeeID    string  `json:"employee_id"`
	LeaveType     string  `json:"leave_type"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	StartHalfDay  bool    `json:"start_half_day"`
	EndHalfDay    bool    `json:"end_half_day"`
	DaysRequested float64 `json:"days_requested"`
	Status        string  `json:"status"`

	EmployeeNotes string `json:"employee_notes,omitempty"`
	ApproverNotes string `json:"approver_notes,omitempty"`
	ApproverID    string `json:"approver_id,omitempty"`

	HasConditions     bool   `json:"has_conditions"`
	ConditionType     string `json:"condition_type,omitempty"`
	ConditionDetails  string `json:"condition_details,omitempty"`
	ConditionAccepted *bool  `json:"condition_accepted,omitempty"`

	RejectionReason    string `json:"rejection_reason,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	RevocationReason   string `json:"revocation_reason,omitempty"`

	RecalledAt         string  `json:"recalled_at,omitempty"`
	RecallDate         string  `json:"recall_date,omitempty"`
	RecallReason       string  `json:"recall_reason,omitempty"`
	RecallReleasedDays float64 `json:"recall_released_days,omitempty"`

	Version    int64  `json:"version"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	ApprovedAt string `json:"approved_at,omitempty"`
}

// TransitionDTO is one history row.
type TransitionDTO struct {
	Action  string `json:"action"`
	From    string `json:"from"`
	To      string `json:"to"`
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
	At      string `json:"at"`
}

// BalanceDTO projects one balance row.
type BalanceDTO struct {
	EmployeeID         string  `json:"employee_id"`
	LeaveType          string  `json:"leave_type"`
	Year               int     `json:"year"`
	Available          float64 `json:"available"`
	Reserved           float64 `json:"reserved"`
	Consumed           float64 `json:"consumed"`
	CarryoverAvailable float64 `json:"carryover_available"`
	CarryoverExpiry    string  `json:"carryover_expiry,omitempty"`
	Spendable          float64 `json:"spendable"`
}

// ExcludedDayDTO is one non-chargeable day in a range.
type ExcludedDayDTO struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
	Name   string `json:"name,omitempty"`
	Scope  string `json:"scope,omitempty"`
}

// PolicyDTO projects one leave type's constraints.
type PolicyDTO struct {
	LeaveType            string `json:"leave_type"`
	MaxSingleRequestDays *int   `json:"max_single_request_days,omitempty"`
	MaxConsecutiveDays   *int   `json:"max_consecutive_days,omitempty"`
	MaxPerMonth          *int   `json:"max_per_month,omitempty"`
	MinNoticeDays        *int   `json:"min_notice_days,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRequestDTO(r *leave.Request) RequestDTO {
	days, _ := r.DaysRequested.Float64()
	released, _ := r.RecallReleasedDays.Float64()
	dto := RequestDTO{
		ID:                 r.ID,
		EmployeeID:         r.EmployeeID,
		LeaveType:          string(r.LeaveType),
		StartDate:          r.StartDate.Format(calendar.DateLayout),
		EndDate:            r.EndDate.Format(calendar.DateLayout),
		StartHalfDay:       r.StartHalfDay,
		EndHalfDay:         r.EndHalfDay,
		DaysRequested:      days,
		Status:             string(r.Status),
		EmployeeNotes:      r.EmployeeNotes,
		ApproverNotes:      r.ApproverNotes,
		ApproverID:         r.ApproverID,
		HasConditions:      r.HasConditions,
		ConditionType:      string(r.ConditionType),
		ConditionDetails:   r.ConditionDetails,
		ConditionAccepted:  r.ConditionAccepted,
		RejectionReason:    r.RejectionReason,
		CancellationReason: r.CancellationReason,
		RevocationReason:   r.RevocationReason,
		RecallReason:       r.RecallReason,
		RecallReleasedDays: released,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          r.UpdatedAt.Format(time.RFC3339),
	}
	if r.RecalledAt != nil {
		dto.RecalledAt = r.RecalledAt.Format(time.RFC3339)
	}
	if r.RecallDate != nil {
		dto.RecallDate = r.RecallDate.Format(calendar.DateLayout)
	}
	if r.ApprovedAt != nil {
		dto.ApprovedAt = r.ApprovedAt.Format(time.RFC3339)
	}
	return dto
}

func toRequestDTOs(rs []*leave.Request) []RequestDTO {
	dtos := make([]RequestDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toRequestDTO(r)
	}
	return dtos
}

func toTransitionDTOs(recs []leave.TransitionRecord) []TransitionDTO {
	dtos := make([]TransitionDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = TransitionDTO{
			Action:  string(rec.Action),
			From:    string(rec.From),
			To:      string(rec.To),
			ActorID: rec.ActorID,
			Reason:  rec.Reason,
			At:      rec.At.Format(time.RFC3339),
		}
	}
	return dtos
}

func toBalanceDTO(b *ledger.Balance, asOf time.Time) BalanceDTO {
	available, _ := b.Available.Float64()
	reserved, _ := b.Reserved.Float64()
	consumed, _ := b.Consumed.Float64()
	carryover, _ := b.CarryoverAvailable.Float64()
	spendable, _ := b.Spendable(asOf).Float64()
	dto := BalanceDTO{
		EmployeeID:         b.Key.EmployeeID,
		LeaveType:          string(b.Key.LeaveType),
		Year:               b.Key.Year,
		Available:          available,
		Reserved:           reserved,
		Consumed:           consumed,
		CarryoverAvailable: carryover,
		Spendable:          spendable,
	}
	if b.CarryoverExpiry != nil {
		dto.CarryoverExpiry = b.CarryoverExpiry.Format(calendar.DateLayout)
	}
	return dto
}

func toPolicyDTO(p policy.Policy) PolicyDTO {
	return PolicyDTO{
		LeaveType:            string(p.LeaveType),
		MaxSingleRequestDays: p.MaxSingleRequestDays,
		MaxConsecutiveDays:   p.MaxConsecutiveDays,
		MaxPerMonth:          p.MaxPerMonth,
		MinNoticeDays:        p.MinNoticeDays,
	}
}
