/*
handlers.go - HTTP API handlers for the leave lifecycle engine

PURPOSE:
  Exposes the leave-request state machine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Requests:
    POST   /api/requests                         Create draft
    PUT    /api/requests/{id}                    Edit draft
    DELETE /api/requests/{id}                    Delete draft
    GET    /api/requests/{id}                    Get request
    GET    /api/requests?employee_id=...         List by employee
    GET    /api/requests/{id}/history            Transition history
    POST   /api/requests/{id}/submit             Submit for approval
    POST   /api/requests/{id}/approve            Approve
    POST   /api/requests/{id}/approve-conditional Conditional approval
    POST   /api/requests/{id}/condition/accept   Accept the condition
    POST   /api/requests/{id}/condition/reject   Refuse the condition
    POST   /api/requests/{id}/reject             Reject
    POST   /api/requests/{id}/cancel             Cancel own request
    POST   /api/requests/{id}/revoke             Revoke before start
    POST   /api/requests/{id}/reopen             Reopen rejected/cancelled
    POST   /api/requests/{id}/recall             Recall to service

  Calendar:
    GET    /api/calendar/excluded-days?from&to   Non-chargeable days

  Balances:
    GET    /api/employees/{id}/balance           Balance snapshot

  Admin:
    POST   /api/admin/grants                     Load entitlement/carryover
    GET/POST /api/holidays, /api/closures        Calendar configuration
    GET/PUT  /api/policies                       Leave type constraints
    POST   /api/employees                        Directory rows

AUTHENTICATION:
  The acting employee is taken from the X-Employee-ID header. There is no
  session layer here; an API gateway in front owns credentials and sets
  the header. Requests without it get 401.

ERROR HANDLING:
  Domain errors map to HTTP status via the leave error taxonomy:
  - 400: validation errors, illegal transitions
  - 403: actor lacks the capability
  - 404: unknown request/entity
  - 409: concurrent transition conflict (retry after re-read)
  - 422: policy violation, insufficient balance
  - 500: everything else

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
  - leave/machine.go: the transitions these delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Machine  *leave.Machine
	Store    *sqlite.Store
	validate *validator.Validate
}

// NewHandler creates a new handler around the state machine and its store.
func NewHandler(machine *leave.Machine, store *sqlite.Store) *Handler {
	return &Handler{
		Machine:  machine,
		Store:    store,
		validate: validator.New(),
	}
}

// actor resolves the acting employee from the X-Employee-ID header.
func actor(r *http.Request) (leave.Actor, bool) {
	id := r.Header.Get("X-Employee-ID")
	return leave.Actor{ID: id}, id != ""
}

// decodeAndValidate parses the JSON body into v and runs its validation
// tags. Returns false after writing the error response.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// =============================================================================
// REQUEST LIFECYCLE HANDLERS
// =============================================================================

// CreateRequest opens a new draft.
// POST /api/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-Employee-ID header", nil)
		return
	}

	var body CreateRequestBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	in, err := toCreateInput(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req, err := h.Machine.Create(r.Context(), act, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// UpdateRequest edits a draft.
// PUT /api/requests/{id}
func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-Employee-ID header", nil)
		return
	}

	var body CreateRequestBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	in, err := toCreateInput(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req, err := h.Machine.UpdateDraft(r.Context(), act, chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// DeleteRequest permanently removes a draft.
// DELETE /api/requests/{id}
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-Employee-ID header", nil)
		return
	}
	if err := h.Machine.Delete(r.Context(), act, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRequest returns one request.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Machine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListRequests returns an employee's requests.
// GET /api/requests?employee_id=...
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id query parameter is required", nil)
		return
	}
	reqs, err := h.Machine.ListByEmployee(r.Context(), employeeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// GetHistory returns the transition history of a request.
// GET /api/requests/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Machine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransitionDTOs(recs))
}

// SubmitRequest moves a draft to pending.
// POST /api/requests/{id}/submit
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.Submit(r.Context(), act, id)
	})
}

// ApproveRequest approves a pending request.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body DecisionBody
	if !decodeOptional(w, r, &body) {
		return
	}
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.Approve(r.Context(), act, id, body.Notes)
	})
}

// ApproveConditional approves subject to a condition.
// POST /api/requests/{id}/approve-conditional
func (h *Handler) ApproveConditional(w http.ResponseWriter, r *http.Request) {
	var body ConditionalApprovalBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.ApproveConditional(r.Context(), act, id,
			leave.ConditionType(body.ConditionType), body.ConditionDetails, body.Notes)
	})
}

// AcceptCondition records the requester's acceptance.
// POST /api/requests/{id}/condition/accept
func (h *Handler) AcceptCondition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.AcceptCondition(r.Context(), act, id)
	})
}

// RejectCondition records the requester's refusal.
// POST /api/requests/{id}/condition/reject
func (h *Handler) RejectCondition(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !decodeOptional(w, r, &body) {
		return
	}
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.RejectCondition(r.Context(), act, id, body.Reason)
	})
}

// RejectRequest refuses a pending request.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.Reject(r.Context(), act, id, body.Reason)
	})
}

// CancelRequest withdraws the requester's own pending request.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.Cancel(r.Context(), act, id, body.Reason)
	})
}

// RevokeRequest withdraws an approval before the leave starts.
// POST /api/requests/{id}/revoke
func (h *Handler) RevokeRequest(w http.ResponseWriter, r *http.Request) {
	var body ReasonBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.Revoke(r.Context(), act, id, body.Reason)
	})
}

// ReopenRequest returns a rejected/cancelled request to pending.
// POST /api/requests/{id}/reopen
func (h *Handler) ReopenRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.Reopen(r.Context(), act, id)
	})
}

// RecallRequest interrupts approved leave for operational necessity.
// POST /api/requests/{id}/recall
func (h *Handler) RecallRequest(w http.ResponseWriter, r *http.Request) {
	var body RecallBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	recallDate, err := calendar.ParseDate(body.RecallDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recall_date (use YYYY-MM-DD)", err)
		return
	}
	h.transition(w, r, func(act leave.Actor, id string) (*leave.Request, error) {
		return h.Machine.Recall(r.Context(), act, id, recallDate, body.Reason)
	})
}

// transition is the shared shape of every lifecycle endpoint: resolve the
// actor, run the machine operation, map the error.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(leave.Actor, string) (*leave.Request, error)) {
	act, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing X-Employee-ID header", nil)
		return
	}
	req, err := fn(act, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// CALENDAR ENDPOINTS
// =============================================================================

// ExcludedDays returns the non-chargeable days in a range.
// GET /api/calendar/excluded-days?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ExcludedDays(w http.ResponseWriter, r *http.Request) {
	from, err := calendar.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := calendar.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	days, err := h.Machine.Calendar.ExcludedDays(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to resolve excluded days", err)
		return
	}

	dtos := make([]ExcludedDayDTO, len(days))
	for i, d := range days {
		dtos[i] = ExcludedDayDTO{
			Date:   d.Date.Format(calendar.DateLayout),
			Reason: string(d.Reason),
			Name:   d.Name,
			Scope:  string(d.Scope),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListHolidays returns holidays in a range (defaults to the current year).
// GET /api/holidays?from&to
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeOrYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	holidays, err := h.Store.HolidaysInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	type holidayDTO struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Date      string `json:"date"`
		Scope     string `json:"scope"`
		Location  string `json:"location,omitempty"`
		Recurring bool   `json:"recurring"`
	}
	dtos := make([]holidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = holidayDTO{
			ID:        hol.ID,
			Name:      hol.Name,
			Date:      hol.Date.Format(calendar.DateLayout),
			Scope:     string(hol.Scope),
			Location:  hol.Location,
			Recurring: hol.Recurring,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday inserts or updates a holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var body HolidayBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	date, err := calendar.ParseDate(body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	scope := calendar.Scope(body.Scope)
	if scope == "" {
		scope = calendar.ScopeNational
	}
	if scope == calendar.ScopeLocal && body.Location == "" {
		writeError(w, http.StatusBadRequest, "location is required for local holidays", nil)
		return
	}

	hol := calendar.Holiday{
		ID:        body.ID,
		Name:      body.Name,
		Date:      date,
		Scope:     scope,
		Location:  body.Location,
		Recurring: body.Recurring,
	}
	if hol.ID == "" {
		hol.ID = newID()
	}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": hol.ID})
}

// ListClosures returns closures overlapping a range.
// GET /api/closures?from&to
func (h *Handler) ListClosures(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeOrYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range (use YYYY-MM-DD)", err)
		return
	}

	closures, err := h.Store.ClosuresInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list closures", err)
		return
	}

	type closureDTO struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		From string `json:"from"`
		To   string `json:"to"`
	}
	dtos := make([]closureDTO, len(closures))
	for i, c := range closures {
		dtos[i] = closureDTO{
			ID:   c.ID,
			Name: c.Name,
			From: c.From.Format(calendar.DateLayout),
			To:   c.To.Format(calendar.DateLayout),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClosure inserts or updates a closure period.
// POST /api/closures
func (h *Handler) CreateClosure(w http.ResponseWriter, r *http.Request) {
	var body ClosureBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	from, err := calendar.ParseDate(body.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := calendar.ParseDate(body.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to before from", nil)
		return
	}

	c := calendar.Closure{ID: body.ID, Name: body.Name, From: from, To: to}
	if c.ID == "" {
		c.ID = newID()
	}
	if err := h.Store.SaveClosure(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save closure", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": c.ID})
}

// =============================================================================
// BALANCE ENDPOINTS
// =============================================================================

// GetBalance returns the balance snapshot for one employee/leave-type/year.
// GET /api/employees/{id}/balance?leave_type=FER&year=2025
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	leaveType := policy.LeaveType(r.URL.Query().Get("leave_type"))
	if !leaveType.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown or missing leave_type", nil)
		return
	}

	year := time.Now().UTC().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed
	}

	bal, err := h.Machine.Balance(r.Context(), ledger.Key{
		EmployeeID: employeeID, LeaveType: leaveType, Year: year,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal, time.Now().UTC()))
}

// CreateGrant loads entitlement or carryover onto a balance.
// POST /api/admin/grants
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var body GrantBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	leaveType := policy.LeaveType(body.LeaveType)
	if !leaveType.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown leave_type", nil)
		return
	}

	key := ledger.Key{EmployeeID: body.EmployeeID, LeaveType: leaveType, Year: body.Year}
	days := decimal.NewFromFloat(body.Days)

	var (
		bal *ledger.Balance
		err error
	)
	if body.Carryover {
		if body.CarryoverExpiry == "" {
			writeError(w, http.StatusBadRequest, "carryover_expiry is required for carryover grants", nil)
			return
		}
		expiry, perr := calendar.ParseDate(body.CarryoverExpiry)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid carryover_expiry (use YYYY-MM-DD)", perr)
			return
		}
		bal, err = h.Machine.GrantCarryover(r.Context(), key, days, expiry)
	} else {
		bal, err = h.Machine.Grant(r.Context(), key, days, body.Reason)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(bal, time.Now().UTC()))
}

// =============================================================================
// POLICY ENDPOINTS
// =============================================================================

// ListPolicies returns every leave type's constraints.
// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}
	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SavePolicy updates one leave type's constraints.
// PUT /api/policies/{leave_type}
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	leaveType := policy.LeaveType(chi.URLParam(r, "leave_type"))
	if !leaveType.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown leave_type", nil)
		return
	}

	var body PolicyBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}

	p := policy.Policy{
		LeaveType:            leaveType,
		MaxSingleRequestDays: body.MaxSingleRequestDays,
		MaxConsecutiveDays:   body.MaxConsecutiveDays,
		MaxPerMonth:          body.MaxPerMonth,
		MinNoticeDays:        body.MinNoticeDays,
	}
	if err := h.Store.Save(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

// CreateEmployee inserts or updates a directory row.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var body EmployeeBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	emp := sqlite.Employee{
		ID:         body.ID,
		Name:       body.Name,
		Email:      body.Email,
		Location:   body.Location,
		ApproverID: body.ApproverID,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": emp.ID})
}

// GetEmployee returns one directory row.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":          emp.ID,
		"name":        emp.Name,
		"email":       emp.Email,
		"location":    emp.Location,
		"approver_id": emp.ApproverID,
	})
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func toCreateInput(body CreateRequestBody) (leave.CreateInput, error) {
	start, err := calendar.ParseDate(body.StartDate)
	if err != nil {
		return leave.CreateInput{}, err
	}
	end, err := calendar.ParseDate(body.EndDate)
	if err != nil {
		return leave.CreateInput{}, err
	}
	return leave.CreateInput{
		EmployeeID:    body.EmployeeID,
		LeaveType:     policy.LeaveType(body.LeaveType),
		StartDate:     start,
		EndDate:       end,
		StartHalfDay:  body.StartHalfDay,
		EndHalfDay:    body.EndHalfDay,
		EmployeeNotes: body.EmployeeNotes,
	}, nil
}

// rangeOrYear reads from/to query dates, defaulting to the current year.
func rangeOrYear(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := calendar.Date(now.Year(), time.January, 1)
	to := calendar.Date(now.Year(), time.December, 31)

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := calendar.ParseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := calendar.ParseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

// decodeOptional parses a JSON body when one is present; an empty body is
// fine for endpoints whose payload is entirely optional.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func newID() string { return uuid.NewString() }

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the leave error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leave.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, leave.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, leave.ErrConflict):
		writeError(w, http.StatusConflict, "Concurrent transition conflict, re-read and retry", err)
	case errors.Is(err, leave.ErrPolicyViolation):
		resp := ErrorResponse{Error: "Policy violation", Details: err.Error()}
		var pv *leave.PolicyViolationError
		if errors.As(err, &pv) {
			resp.Code = pv.Code
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, leave.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation error", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
