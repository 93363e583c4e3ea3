/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements all persistence interfaces (leave.Store, policy.Store,
  calendar.HolidaySource, calendar.ClosureSource, leave.Directory) using
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

OPTIMISTIC VERSIONING:
  leave_requests and balances carry a version column. Updates run as
  UPDATE ... WHERE id = ? AND version = ?; zero rows affected means a
  concurrent transition won and the caller gets leave.ErrConflict.

APPEND-ONLY ENFORCEMENT:
  The entries and transitions tables are insert-only: no UPDATE or
  DELETE statements exist for them. Corrections happen through further
  entries.

KEY TABLES:
  leave_requests:  Request rows (versioned)
  balances:        One row per employee/leave-type/year (versioned)
  entries:         Immutable balance-movement audit trail
  transitions:     Immutable request history projection
  holidays:        Public holidays (national/local, optionally recurring)
  closures:        Company closure periods
  leave_policies:  Per-leave-type constraint configuration
  employees:       Directory rows with their approver link

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. With
  PostgreSQL, database-level concurrency control handles this instead.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: interface definitions and the atomicity contract
  - leave/machine.go: the transitions driving WithTx
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx so every data method
// can run inside or outside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a SQLite store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; serializing access through one
	// connection avoids SQLITE_BUSY under concurrent transitions.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Requests (versioned)
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_half_day INTEGER NOT NULL DEFAULT 0,
		end_half_day INTEGER NOT NULL DEFAULT 0,
		days_requested TEXT NOT NULL,
		status TEXT NOT NULL,
		employee_notes TEXT NOT NULL DEFAULT '',
		approver_notes TEXT NOT NULL DEFAULT '',
		approver_id TEXT NOT NULL DEFAULT '',
		has_conditions INTEGER NOT NULL DEFAULT 0,
		condition_type TEXT NOT NULL DEFAULT '',
		condition_details TEXT NOT NULL DEFAULT '',
		condition_accepted INTEGER,
		rejection_reason TEXT NOT NULL DEFAULT '',
		cancellation_reason TEXT NOT NULL DEFAULT '',
		revocation_reason TEXT NOT NULL DEFAULT '',
		recalled_at TEXT,
		recall_date TEXT,
		recall_reason TEXT NOT NULL DEFAULT '',
		recall_released_days TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		approved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_employee_type_start
		ON leave_requests(employee_id, leave_type, start_date);

	-- Balances (versioned; one row per employee/leave-type/year)
	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		available TEXT NOT NULL,
		reserved TEXT NOT NULL,
		consumed TEXT NOT NULL,
		carryover_available TEXT NOT NULL,
		carryover_expiry TEXT,
		version INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (employee_id, leave_type, year)
	);

	-- Entries (append-only balance audit trail)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		days TEXT NOT NULL,
		carryover_days TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_request
		ON entries(request_id) WHERE request_id != '';
	CREATE INDEX IF NOT EXISTS idx_entries_balance
		ON entries(employee_id, leave_type, year);

	-- Transitions (append-only request history)
	CREATE TABLE IF NOT EXISTS transitions (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		action TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_request
		ON transitions(request_id);

	-- Holidays (national and local, optionally recurring)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		date TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT 'national',
		location TEXT NOT NULL DEFAULT '',
		recurring INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name, location);

	-- Closures (inclusive company closure periods)
	CREATE TABLE IF NOT EXISTS closures (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_closures_range
		ON closures(from_date, to_date);

	-- Leave policies (admin-editable constraint configuration)
	CREATE TABLE IF NOT EXISTS leave_policies (
		leave_type TEXT PRIMARY KEY,
		max_single_request_days INTEGER,
		max_consecutive_days INTEGER,
		max_per_month INTEGER,
		min_notice_days INTEGER
	);

	-- Employees (directory rows with their approver link)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		approver_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_approver
		ON employees(approver_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUESTS (leave.Store interface)
// =============================================================================

const requestColumns = `id, employee_id, leave_type, start_date, end_date,
	start_half_day, end_half_day, days_requested, status,
	employee_notes, approver_notes, approver_id,
	has_conditions, condition_type, condition_details, condition_accepted,
	rejection_reason, cancellation_reason, revocation_reason,
	recalled_at, recall_date, recall_reason, recall_released_days,
	version, created_at, updated_at, approved_at`

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, q querier, id string) (*leave.Request, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request %s: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	return r, nil
}

func (s *Store) ListRequestsByEmployee(ctx context.Context, employeeID string) ([]*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequestsByEmployee(ctx, s.db, employeeID)
}

func listRequestsByEmployee(ctx context.Context, q querier, employeeID string) ([]*leave.Request, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM leave_requests WHERE employee_id = ? ORDER BY start_date ASC, created_at ASC",
		employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []*leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertRequest(ctx context.Context, r *leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRequest(ctx, s.db, r)
}

func insertRequest(ctx context.Context, q querier, r *leave.Request) error {
	query := `
		INSERT INTO leave_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query, requestArgs(r)...)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRequest(ctx, s.db, r)
}

func updateRequest(ctx context.Context, q querier, r *leave.Request) error {
	query := `
		UPDATE leave_requests SET
			start_date = ?, end_date = ?, start_half_day = ?, end_half_day = ?,
			days_requested = ?, status = ?,
			employee_notes = ?, approver_notes = ?, approver_id = ?,
			has_conditions = ?, condition_type = ?, condition_details = ?, condition_accepted = ?,
			rejection_reason = ?, cancellation_reason = ?, revocation_reason = ?,
			recalled_at = ?, recall_date = ?, recall_reason = ?, recall_released_days = ?,
			version = version + 1, updated_at = ?, approved_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := q.ExecContext(ctx, query,
		r.StartDate.Format(calendar.DateLayout), r.EndDate.Format(calendar.DateLayout),
		boolInt(r.StartHalfDay), boolInt(r.EndHalfDay),
		r.DaysRequested.String(), string(r.Status),
		r.EmployeeNotes, r.ApproverNotes, r.ApproverID,
		boolInt(r.HasConditions), string(r.ConditionType), r.ConditionDetails, nullBool(r.ConditionAccepted),
		r.RejectionReason, r.CancellationReason, r.RevocationReason,
		nullTime(r.RecalledAt, time.RFC3339), nullTime(r.RecallDate, calendar.DateLayout),
		r.RecallReason, r.RecallReleasedDays.String(),
		r.UpdatedAt.UTC().Format(time.RFC3339), nullTime(r.ApprovedAt, time.RFC3339),
		r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getRequest(ctx, q, r.ID); err != nil {
			return err
		}
		return fmt.Errorf("request %s version %d: %w", r.ID, r.Version, leave.ErrConflict)
	}
	r.Version++
	return nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRequest(ctx, s.db, id, version)
}

func deleteRequest(ctx context.Context, q querier, id string, version int64) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM leave_requests WHERE id = ? AND version = ?", id, version)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getRequest(ctx, q, id); err != nil {
			return err
		}
		return fmt.Errorf("request %s version %d: %w", id, version, leave.ErrConflict)
	}
	// Draft deletion takes its history with it.
	_, err = q.ExecContext(ctx, "DELETE FROM transitions WHERE request_id = ?", id)
	return err
}

func requestArgs(r *leave.Request) []any {
	return []any{
		r.ID, r.EmployeeID, string(r.LeaveType),
		r.StartDate.Format(calendar.DateLayout), r.EndDate.Format(calendar.DateLayout),
		boolInt(r.StartHalfDay), boolInt(r.EndHalfDay),
		r.DaysRequested.String(), string(r.Status),
		r.EmployeeNotes, r.ApproverNotes, r.ApproverID,
		boolInt(r.HasConditions), string(r.ConditionType), r.ConditionDetails, nullBool(r.ConditionAccepted),
		r.RejectionReason, r.CancellationReason, r.RevocationReason,
		nullTime(r.RecalledAt, time.RFC3339), nullTime(r.RecallDate, calendar.DateLayout),
		r.RecallReason, r.RecallReleasedDays.String(),
		r.Version,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
		nullTime(r.ApprovedAt, time.RFC3339),
	}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*leave.Request, error) {
	var (
		r                      leave.Request
		leaveType              string
		startDate, endDate     string
		startHalf, endHalf     int
		days                   string
		status                 string
		hasConditions          int
		conditionType          string
		conditionAccepted      sql.NullInt64
		recalledAt, recallDate sql.NullString
		recallReleased         string
		createdAt, updatedAt   string
		approvedAt             sql.NullString
	)

	err := row.Scan(
		&r.ID, &r.EmployeeID, &leaveType, &startDate, &endDate,
		&startHalf, &endHalf, &days, &status,
		&r.EmployeeNotes, &r.ApproverNotes, &r.ApproverID,
		&hasConditions, &conditionType, &r.ConditionDetails, &conditionAccepted,
		&r.RejectionReason, &r.CancellationReason, &r.RevocationReason,
		&recalledAt, &recallDate, &r.RecallReason, &recallReleased,
		&r.Version, &createdAt, &updatedAt, &approvedAt,
	)
	if err != nil {
		return nil, err
	}

	r.LeaveType = policy.LeaveType(leaveType)
	r.Status = leave.Status(status)
	r.StartHalfDay = startHalf != 0
	r.EndHalfDay = endHalf != 0
	r.HasConditions = hasConditions != 0
	r.ConditionType = leave.ConditionType(conditionType)
	if conditionAccepted.Valid {
		v := conditionAccepted.Int64 != 0
		r.ConditionAccepted = &v
	}

	if r.StartDate, err = time.Parse(calendar.DateLayout, startDate); err != nil {
		return nil, fmt.Errorf("bad start_date %q: %w", startDate, err)
	}
	if r.EndDate, err = time.Parse(calendar.DateLayout, endDate); err != nil {
		return nil, fmt.Errorf("bad end_date %q: %w", endDate, err)
	}
	if r.DaysRequested, err = decimal.NewFromString(days); err != nil {
		return nil, fmt.Errorf("bad days_requested %q: %w", days, err)
	}
	if r.RecallReleasedDays, err = decimal.NewFromString(recallReleased); err != nil {
		return nil, fmt.Errorf("bad recall_released_days %q: %w", recallReleased, err)
	}
	r.RecalledAt = parseNullTime(recalledAt, time.RFC3339)
	r.RecallDate = parseNullTime(recallDate, calendar.DateLayout)
	r.ApprovedAt = parseNullTime(approvedAt, time.RFC3339)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &r, nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalance(ctx, s.db, key)
}

func getBalance(ctx context.Context, q querier, key ledger.Key) (*ledger.Balance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT available, reserved, consumed, carryover_available, carryover_expiry, version
		FROM balances WHERE employee_id = ? AND leave_type = ? AND year = ?`,
		key.EmployeeID, string(key.LeaveType), key.Year)

	var (
		available, reserved, consumed, carryover string
		expiry                                   sql.NullString
		version                                  int64
	)
	err := row.Scan(&available, &reserved, &consumed, &carryover, &expiry, &version)
	if err == sql.ErrNoRows {
		return ledger.NewBalance(key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance %s: %w", key, err)
	}

	b := &ledger.Balance{Key: key, Version: version}
	if b.Available, err = decimal.NewFromString(available); err != nil {
		return nil, fmt.Errorf("bad available %q: %w", available, err)
	}
	if b.Reserved, err = decimal.NewFromString(reserved); err != nil {
		return nil, fmt.Errorf("bad reserved %q: %w", reserved, err)
	}
	if b.Consumed, err = decimal.NewFromString(consumed); err != nil {
		return nil, fmt.Errorf("bad consumed %q: %w", consumed, err)
	}
	if b.CarryoverAvailable, err = decimal.NewFromString(carryover); err != nil {
		return nil, fmt.Errorf("bad carryover_available %q: %w", carryover, err)
	}
	b.CarryoverExpiry = parseNullTime(expiry, calendar.DateLayout)
	return b, nil
}

func (s *Store) SaveBalance(ctx context.Context, b *ledger.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBalance(ctx, s.db, b)
}

func saveBalance(ctx context.Context, q querier, b *ledger.Balance) error {
	// Version 0 means the balance has never been persisted: insert it.
	// A unique-constraint failure means a concurrent writer got there
	// first, which is the same conflict as a stale version.
	if b.Version == 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO balances (employee_id, leave_type, year,
				available, reserved, consumed, carryover_available, carryover_expiry, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			b.Key.EmployeeID, string(b.Key.LeaveType), b.Key.Year,
			b.Available.String(), b.Reserved.String(), b.Consumed.String(),
			b.CarryoverAvailable.String(), nullTime(b.CarryoverExpiry, calendar.DateLayout),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("balance %s: %w", b.Key, leave.ErrConflict)
			}
			return fmt.Errorf("failed to insert balance: %w", err)
		}
		b.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE balances SET
			available = ?, reserved = ?, consumed = ?,
			carryover_available = ?, carryover_expiry = ?, version = version + 1
		WHERE employee_id = ? AND leave_type = ? AND year = ? AND version = ?`,
		b.Available.String(), b.Reserved.String(), b.Consumed.String(),
		b.CarryoverAvailable.String(), nullTime(b.CarryoverExpiry, calendar.DateLayout),
		b.Key.EmployeeID, string(b.Key.LeaveType), b.Key.Year, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("balance %s version %d: %w", b.Key, b.Version, leave.ErrConflict)
	}
	b.Version++
	return nil
}

func (s *Store) AppendEntries(ctx context.Context, entries []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntries(ctx, s.db, entries)
}

func appendEntries(ctx context.Context, q querier, entries []ledger.Entry) error {
	for _, e := range entries {
		_, err := q.ExecContext(ctx, `
			INSERT INTO entries (id, employee_id, leave_type, year, request_id,
				kind, days, carryover_days, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Key.EmployeeID, string(e.Key.LeaveType), e.Key.Year, e.RequestID,
			string(e.Kind), e.Days.String(), e.CarryoverDays.String(), e.Reason,
			e.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to append entry: %w", err)
		}
	}
	return nil
}

func (s *Store) EntriesByRequest(ctx context.Context, requestID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesByRequest(ctx, s.db, requestID)
}

func entriesByRequest(ctx context.Context, q querier, requestID string) ([]ledger.Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, employee_id, leave_type, year, request_id,
			kind, days, carryover_days, reason, created_at
		FROM entries WHERE request_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e               ledger.Entry
			leaveType, kind string
			days, carryover string
			createdAt       string
		)
		if err := rows.Scan(&e.ID, &e.Key.EmployeeID, &leaveType, &e.Key.Year,
			&e.RequestID, &kind, &days, &carryover, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Key.LeaveType = policy.LeaveType(leaveType)
		e.Kind = ledger.EntryKind(kind)
		if e.Days, err = decimal.NewFromString(days); err != nil {
			return nil, fmt.Errorf("bad days %q: %w", days, err)
		}
		if e.CarryoverDays, err = decimal.NewFromString(carryover); err != nil {
			return nil, fmt.Errorf("bad carryover_days %q: %w", carryover, err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func (s *Store) AppendTransition(ctx context.Context, rec leave.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransition(ctx, s.db, rec)
}

func appendTransition(ctx context.Context, q querier, rec leave.TransitionRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transitions (id, request_id, action, from_status, to_status, actor_id, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, string(rec.Action), string(rec.From), string(rec.To),
		rec.ActorID, rec.Reason, rec.At.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

func (s *Store) TransitionsByRequest(ctx context.Context, requestID string) ([]leave.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transitionsByRequest(ctx, s.db, requestID)
}

func transitionsByRequest(ctx context.Context, q querier, requestID string) ([]leave.TransitionRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, request_id, action, from_status, to_status, actor_id, reason, at
		FROM transitions WHERE request_id = ?
		ORDER BY at ASC, rowid ASC`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []leave.TransitionRecord
	for rows.Next() {
		var (
			rec              leave.TransitionRecord
			action, from, to string
			at               string
		)
		if err := rows.Scan(&rec.ID, &rec.RequestID, &action, &from, &to,
			&rec.ActorID, &rec.Reason, &at); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		rec.Action = leave.Action(action)
		rec.From = leave.Status(from)
		rec.To = leave.Status(to)
		rec.At, _ = time.Parse(time.RFC3339, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS (leave.Store WithTx)
// =============================================================================

// WithTx executes fn within one database transaction. The write lock is
// held for the whole unit; SQLite allows one writer at a time anyway.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every data method against an open transaction. Locking is
// the outer Store's job.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	return getRequest(ctx, ts.tx, id)
}

func (ts *txStore) ListRequestsByEmployee(ctx context.Context, employeeID string) ([]*leave.Request, error) {
	return listRequestsByEmployee(ctx, ts.tx, employeeID)
}

func (ts *txStore) InsertRequest(ctx context.Context, r *leave.Request) error {
	return insertRequest(ctx, ts.tx, r)
}

func (ts *txStore) UpdateRequest(ctx context.Context, r *leave.Request) error {
	return updateRequest(ctx, ts.tx, r)
}

func (ts *txStore) DeleteRequest(ctx context.Context, id string, version int64) error {
	return deleteRequest(ctx, ts.tx, id, version)
}

func (ts *txStore) GetBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	return getBalance(ctx, ts.tx, key)
}

func (ts *txStore) SaveBalance(ctx context.Context, b *ledger.Balance) error {
	return saveBalance(ctx, ts.tx, b)
}

func (ts *txStore) AppendEntries(ctx context.Context, entries []ledger.Entry) error {
	return appendEntries(ctx, ts.tx, entries)
}

func (ts *txStore) EntriesByRequest(ctx context.Context, requestID string) ([]ledger.Entry, error) {
	return entriesByRequest(ctx, ts.tx, requestID)
}

func (ts *txStore) AppendTransition(ctx context.Context, rec leave.TransitionRecord) error {
	return appendTransition(ctx, ts.tx, rec)
}

func (ts *txStore) TransitionsByRequest(ctx context.Context, requestID string) ([]leave.TransitionRecord, error) {
	return transitionsByRequest(ctx, ts.tx, requestID)
}

// WithTx on an open transaction just runs fn in the same unit.
func (ts *txStore) WithTx(_ context.Context, fn func(leave.Store) error) error {
	return fn(ts)
}

// =============================================================================
// CALENDAR SOURCES (calendar.HolidaySource / calendar.ClosureSource)
// =============================================================================

// HolidaysInRange returns holidays falling in [from, to], expanding
// recurring ones to one concrete date per year in the range.
func (s *Store) HolidaysInRange(ctx context.Context, from, to time.Time) ([]calendar.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = calendar.Midnight(from), calendar.Midnight(to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, date, scope, location, recurring
		FROM holidays
		WHERE recurring = 1 OR (date >= ? AND date <= ?)
		ORDER BY date ASC`,
		from.Format(calendar.DateLayout), to.Format(calendar.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []calendar.Holiday
	for rows.Next() {
		var (
			h         calendar.Holiday
			date      string
			scope     string
			recurring int
		)
		if err := rows.Scan(&h.ID, &h.Name, &date, &scope, &h.Location, &recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		h.Scope = calendar.Scope(scope)
		h.Recurring = recurring != 0
		if h.Date, err = time.Parse(calendar.DateLayout, date); err != nil {
			return nil, fmt.Errorf("bad holiday date %q: %w", date, err)
		}

		if !h.Recurring {
			out = append(out, h)
			continue
		}
		for year := from.Year(); year <= to.Year(); year++ {
			d := calendar.Date(year, h.Date.Month(), h.Date.Day())
			if d.Before(from) || d.After(to) {
				continue
			}
			occ := h
			occ.Date = d
			out = append(out, occ)
		}
	}
	return out, rows.Err()
}

// SaveHoliday inserts or replaces a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h calendar.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, name, date, scope, location, recurring)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			date = excluded.date,
			scope = excluded.scope,
			location = excluded.location,
			recurring = excluded.recurring`,
		h.ID, h.Name, calendar.Midnight(h.Date).Format(calendar.DateLayout),
		string(h.Scope), h.Location, boolInt(h.Recurring),
	)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// ClosuresInRange returns closures overlapping [from, to].
func (s *Store) ClosuresInRange(ctx context.Context, from, to time.Time) ([]calendar.Closure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = calendar.Midnight(from), calendar.Midnight(to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, from_date, to_date
		FROM closures
		WHERE from_date <= ? AND to_date >= ?
		ORDER BY from_date ASC`,
		to.Format(calendar.DateLayout), from.Format(calendar.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query closures: %w", err)
	}
	defer rows.Close()

	var out []calendar.Closure
	for rows.Next() {
		var c calendar.Closure
		var fromDate, toDate string
		if err := rows.Scan(&c.ID, &c.Name, &fromDate, &toDate); err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		if c.From, err = time.Parse(calendar.DateLayout, fromDate); err != nil {
			return nil, fmt.Errorf("bad closure from_date %q: %w", fromDate, err)
		}
		if c.To, err = time.Parse(calendar.DateLayout, toDate); err != nil {
			return nil, fmt.Errorf("bad closure to_date %q: %w", toDate, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveClosure inserts or replaces a closure period.
func (s *Store) SaveClosure(ctx context.Context, c calendar.Closure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closures (id, name, from_date, to_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			from_date = excluded.from_date,
			to_date = excluded.to_date`,
		c.ID, c.Name,
		calendar.Midnight(c.From).Format(calendar.DateLayout),
		calendar.Midnight(c.To).Format(calendar.DateLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save closure: %w", err)
	}
	return nil
}

// =============================================================================
// POLICIES (policy.Store interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, t policy.LeaveType) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT leave_type, max_single_request_days, max_consecutive_days, max_per_month, min_notice_days
		FROM leave_policies WHERE leave_type = ?`,
		string(t))

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT leave_type, max_single_request_days, max_consecutive_days, max_per_month, min_notice_days
		FROM leave_policies ORDER BY leave_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) Save(ctx context.Context, p policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_policies (leave_type, max_single_request_days, max_consecutive_days, max_per_month, min_notice_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(leave_type) DO UPDATE SET
			max_single_request_days = excluded.max_single_request_days,
			max_consecutive_days = excluded.max_consecutive_days,
			max_per_month = excluded.max_per_month,
			min_notice_days = excluded.min_notice_days`,
		string(p.LeaveType), nullInt(p.MaxSingleRequestDays), nullInt(p.MaxConsecutiveDays),
		nullInt(p.MaxPerMonth), nullInt(p.MinNoticeDays),
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// SeedDefaultPolicies inserts the shipped policies for any leave type that
// has no row yet. Existing admin edits are left alone.
func (s *Store) SeedDefaultPolicies(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range policy.Defaults() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO leave_policies (leave_type, max_single_request_days, max_consecutive_days, max_per_month, min_notice_days)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(leave_type) DO NOTHING`,
			string(p.LeaveType), nullInt(p.MaxSingleRequestDays), nullInt(p.MaxConsecutiveDays),
			nullInt(p.MaxPerMonth), nullInt(p.MinNoticeDays),
		)
		if err != nil {
			return fmt.Errorf("failed to seed policy %s: %w", p.LeaveType, err)
		}
	}
	return nil
}

func scanPolicy(row scanner) (*policy.Policy, error) {
	var (
		p                                      policy.Policy
		leaveType                              string
		maxSingle, maxConsec, perMonth, notice sql.NullInt64
	)
	if err := row.Scan(&leaveType, &maxSingle, &maxConsec, &perMonth, &notice); err != nil {
		return nil, err
	}
	p.LeaveType = policy.LeaveType(leaveType)
	p.MaxSingleRequestDays = intPtr(maxSingle)
	p.MaxConsecutiveDays = intPtr(maxConsec)
	p.MaxPerMonth = intPtr(perMonth)
	p.MinNoticeDays = intPtr(notice)
	return &p, nil
}

// =============================================================================
// EMPLOYEES (leave.Directory interface)
// =============================================================================

// Employee is a directory row.
type Employee struct {
	ID         string
	Name       string
	Email      string
	Location   string
	ApproverID string
	CreatedAt  time.Time
}

// SaveEmployee inserts or replaces a directory row.
func (s *Store) SaveEmployee(ctx context.Context, e Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, location, approver_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			location = excluded.location,
			approver_id = excluded.approver_id`,
		e.ID, e.Name, e.Email, e.Location, e.ApproverID,
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// GetEmployee loads one directory row.
func (s *Store) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e Employee
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, location, approver_id, created_at
		FROM employees WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.Name, &e.Email, &e.Location, &e.ApproverID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("employee %s: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// IsApprover reports whether actorID is the registered approver of
// employeeID.
func (s *Store) IsApprover(ctx context.Context, actorID, employeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM employees WHERE id = ? AND approver_id = ?",
		employeeID, actorID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check approver: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolInt(*b)
}

func nullTime(t *time.Time, layout string) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(layout)
}

func parseNullTime(s sql.NullString, layout string) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(layout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsSubstring(msg, "UNIQUE constraint failed") ||
		containsSubstring(msg, "duplicate key")
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
