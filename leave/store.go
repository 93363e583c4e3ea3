/*
store.go - Persistence interface for the leave lifecycle engine

ATOMICITY CONTRACT:
  Every transition commits guard evaluation, balance mutation, status
  change, ledger entries and the history record as one unit via WithTx.
  No transition applies partially.

OPTIMISTIC VERSIONING:
  UpdateRequest and SaveBalance check the row's stored version against
  the loaded one and increment it. A mismatch returns ErrConflict: the
  loser of a concurrent transition must re-read current state before
  retrying.

LEDGER ENTRIES:
  AppendEntries is append-only. Entries are never updated or deleted;
  corrections happen through further entries.

IMPLEMENTATIONS:
  - store/sqlite: production store (WAL mode, in-code migration)
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/ledger"
)

// Store persists requests, balances, ledger entries and transition
// history.
type Store interface {
	// Requests
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequestsByEmployee(ctx context.Context, employeeID string) ([]*Request, error)
	InsertRequest(ctx context.Context, r *Request) error
	// UpdateRequest persists r where the stored version matches
	// r.Version, then increments r.Version. ErrConflict on mismatch.
	UpdateRequest(ctx context.Context, r *Request) error
	// DeleteRequest permanently removes a request and its history.
	// The machine only calls this for drafts.
	DeleteRequest(ctx context.Context, id string, version int64) error

	// Balances
	// GetBalance returns the row for key, or a fresh zero balance when
	// none exists yet.
	GetBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error)
	// SaveBalance persists b where the stored version matches
	// b.Version, then increments b.Version. ErrConflict on mismatch.
	SaveBalance(ctx context.Context, b *ledger.Balance) error
	AppendEntries(ctx context.Context, entries []ledger.Entry) error
	EntriesByRequest(ctx context.Context, requestID string) ([]ledger.Entry, error)

	// History
	AppendTransition(ctx context.Context, rec TransitionRecord) error
	TransitionsByRequest(ctx context.Context, requestID string) ([]TransitionRecord, error)

	// WithTx executes fn within one serializable transaction. If fn
	// returns an error the whole unit rolls back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Directory answers the two authorization questions the machine asks: is
// this actor the requester (trivially, by id), and is this actor an
// approver for the requester.
type Directory interface {
	IsApprover(ctx context.Context, actorID, employeeID string) (bool, error)
}
