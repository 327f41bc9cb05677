// Package audit provides the append-only per-space action log.
//
// Entries may reference a platform account and/or an item by plain
// identifier. Those references are deliberately soft: nothing enforces or
// cascades them, so history stays readable after the referent is deleted.
// Callers must treat an unresolvable reference as "referent deleted", not
// as corruption.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is a numeric action code recorded with each entry.
type Action int64

// Action codes written by the space registry.
const (
	ActionSpaceCreated    Action = 1
	ActionSpaceRenamed    Action = 2
	ActionAccountLinked   Action = 10
	ActionAccountUpdated  Action = 11
	ActionAccountUnlinked Action = 12
	ActionItemCreated     Action = 20
	ActionItemUpdated     Action = 21
	ActionItemReassigned  Action = 22
	ActionItemDeleted     Action = 23
)

// ReportedActionBase is the lowest action code accepted from space-scoped
// reporter services; codes below it are reserved for registry mutations.
const ReportedActionBase Action = 100

// Entry is a single immutable log record.
type Entry struct {
	ID         string  `json:"id"`
	SpaceID    string  `json:"space_id"`
	CreatedAt  int64   `json:"created_at"` // unix milliseconds
	Action     Action  `json:"act"`
	AccountRef *string `json:"sp_acc_id,omitempty"`
	ItemRef    *string `json:"sp_item_id,omitempty"`
}

// Filter controls which entries List returns. Zero-valued fields are not
// applied.
type Filter struct {
	SpaceID    string
	AccountRef string
	ItemRef    string
	After      int64 // unix ms, inclusive lower bound
	Before     int64 // unix ms, exclusive upper bound
	Limit      int   // default 50, max 200
	Offset     int
}

// ListResult contains paginated log entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Querier is the subset of database operations Append needs, satisfied by
// both *sql.DB and *sql.Tx. Mutating callers pass their transaction so the
// entry commits or rolls back together with the mutation it records.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Append inserts a log entry. The ID and timestamp are generated if empty.
// There is no update or delete: entries only disappear when their space
// cascades away.
func Append(ctx context.Context, q Querier, e *Entry) error {
	if e.ID == "" {
		e.ID = "log-" + uuid.NewString()[:8]
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO spaces_logs (id, space_id, created_at, act, sp_acc_id, sp_item_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SpaceID, e.CreatedAt, int64(e.Action),
		nullablePtr(e.AccountRef), nullablePtr(e.ItemRef),
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// nullablePtr maps a nil pointer to SQL NULL.
func nullablePtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Log reads entries from the spaces_logs table.
type Log struct {
	db *sql.DB
}

// NewLog creates a log reader.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append inserts an entry outside any caller transaction.
func (l *Log) Append(ctx context.Context, e *Entry) error {
	return Append(ctx, l.db, e)
}

// List returns entries matching the filter, most recent first.
func (l *Log) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.SpaceID != "" {
		conditions = append(conditions, "space_id = ?")
		args = append(args, filter.SpaceID)
	}
	if filter.AccountRef != "" {
		conditions = append(conditions, "sp_acc_id = ?")
		args = append(args, filter.AccountRef)
	}
	if filter.ItemRef != "" {
		conditions = append(conditions, "sp_item_id = ?")
		args = append(args, filter.ItemRef)
	}
	if filter.After > 0 {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.After)
	}
	if filter.Before > 0 {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.Before)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM spaces_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := l.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting log entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, space_id, created_at, act, sp_acc_id, sp_item_id FROM spaces_logs %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var act int64
		var accRef, itemRef sql.NullString

		if err := rows.Scan(&e.ID, &e.SpaceID, &e.CreatedAt, &act, &accRef, &itemRef); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}

		e.Action = Action(act)
		if accRef.Valid {
			e.AccountRef = &accRef.String
		}
		if itemRef.Valid {
			e.ItemRef = &itemRef.String
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
