package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"solar_dashboard/internal/models"

	"github.com/google/uuid"
)

// EventSQLite is the journal backed by the plug_events table.
type EventSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db, now: time.Now} }

const (
	insertEventSQL = `
		INSERT INTO plug_events (id, occurred_at, plug, type, message, meta)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	selectEventsSQL = `SELECT id, occurred_at, plug, type, message, meta FROM plug_events`
	orderEventsSQL  = ` ORDER BY occurred_at ASC`

	// SQLite TIMESTAMP text format.
	sqliteTimeLayout = "2006-01-02 15:04:05"
)

// Append stores one journal entry. A missing id or timestamp is generated;
// the type is stored upper-case.
func (r *EventSQLite) Append(ctx context.Context, e models.PlugEvent) error {
	id := e.EventID
	if id == "" {
		id = uuid.NewString()
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = r.now()
	}
	meta, err := encodeMeta(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode %s metadata: %w", e.Type, err)
	}

	if _, err := r.db.ExecContext(ctx, insertEventSQL,
		id,
		at.UTC().Format(sqliteTimeLayout),
		e.Plug,
		normalizeType(e.Type),
		e.Description,
		meta,
	); err != nil {
		return fmt.Errorf("insert plug event: %w", err)
	}
	return nil
}

// List returns entries matching f, oldest first.
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]models.PlugEvent, error) {
	q, args := listQuery(f)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query plug events: %w", err)
	}
	defer rows.Close()

	out := make([]models.PlugEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plug events: %w", err)
	}
	return out, nil
}

// listQuery builds the SELECT for f. Zero fields add no condition.
func listQuery(f EventFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}

	if !f.From.IsZero() {
		add("occurred_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("occurred_at <= ?", f.To.UTC())
	}
	if typ := normalizeType(f.Type); typ != "" {
		add("type = ?", typ)
	}
	if plug := strings.TrimSpace(f.Plug); plug != "" {
		add("plug = ?", plug)
	}

	q := selectEventsSQL
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + orderEventsSQL, args
}

func scanEvent(rows *sql.Rows) (models.PlugEvent, error) {
	var (
		ev   models.PlugEvent
		meta sql.NullString
	)
	if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Plug, &ev.Type, &ev.Description, &meta); err != nil {
		return ev, fmt.Errorf("scan plug event: %w", err)
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	ev.Metadata = decodeMeta(meta)
	return ev, nil
}

func normalizeType(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func encodeMeta(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// decodeMeta parses stored JSON; text that is not JSON is returned as is.
func decodeMeta(ns sql.NullString) any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return ns.String
	}
	return v
}
