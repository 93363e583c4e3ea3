/*
Package notify dispatches notifications on leave-request transitions.

CONTRACT:
  Dispatch is fire-and-forget and best-effort: it is invoked after a
  transition has committed, must never block the caller meaningfully, and
  its failures are logged, never propagated - a lost notification never
  rolls back a committed transition. Delivery transports (email, in-app,
  push) live behind this interface and are outside the core.
*/
package notify

import (
	"context"
	"log/slog"
	"time"
)

// EventType keys the notification template, one per transition.
type EventType string

const (
	EventCreated           EventType = "leave_request_created"
	EventSubmitted         EventType = "leave_request_submitted"
	EventApproved          EventType = "leave_request_approved"
	EventApprovedWithCond  EventType = "leave_request_approved_conditional"
	EventConditionAccepted EventType = "leave_request_condition_accepted"
	EventConditionRejected EventType = "leave_request_condition_rejected"
	EventRejected          EventType = "leave_request_rejected"
	EventCancelled         EventType = "leave_request_cancelled"
	EventRevoked           EventType = "leave_request_revoked"
	EventReopened          EventType = "leave_request_reopened"
	EventRecalled          EventType = "leave_request_recalled"
	EventDeleted           EventType = "leave_request_deleted"
)

// Event is the payload handed to the dispatcher.
type Event struct {
	Type       EventType
	RequestID  string
	EmployeeID string
	ActorID    string
	LeaveType  string
	OccurredAt time.Time
	Detail     string
}

// Dispatcher delivers one event, at least once, best effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

// LogDispatcher records events on the application log. The default when no
// delivery transport is wired.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) Dispatch(_ context.Context, e Event) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification dispatched",
		"event", string(e.Type),
		"request_id", e.RequestID,
		"employee_id", e.EmployeeID,
		"actor_id", e.ActorID,
		"leave_type", e.LeaveType,
	)
	return nil
}

// Async wraps a dispatcher so Dispatch returns immediately; the wrapped
// dispatcher runs in its own goroutine with panics recovered and failures
// logged. Context deadlines from the HTTP request do not apply.
type Async struct {
	Next   Dispatcher
	Logger *slog.Logger
}

func (a *Async) Dispatch(_ context.Context, e Event) error {
	go func() {
		logger := a.Logger
		if logger == nil {
			logger = slog.Default()
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("notification dispatcher panicked", "event", string(e.Type), "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Next.Dispatch(ctx, e); err != nil {
			logger.Warn("notification dispatch failed",
				"event", string(e.Type), "request_id", e.RequestID, "error", err)
		}
	}()
	return nil
}
