package leave

import "time"

// TransitionRecord is one row of the request history projection: who moved
// the request from where to where, when, and why. Written atomically with
// the transition it records; read-only afterwards.
type TransitionRecord struct {
	ID        string
	RequestID string
	Action    Action
	From      Status
	To        Status
	ActorID   string
	Reason    string
	At        time.Time
}
