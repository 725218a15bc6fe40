package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Postgres writes events to the audit_events table.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgres returns a Recorder backed by db. Run Migrate first.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Record inserts ev. A missing ID or timestamp is filled in.
func (p *Postgres) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = p.now()
	}

	var details []byte
	if len(ev.Details) > 0 {
		var err error
		details, err = json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, occurred_at, action, code, kind, size_bytes,
			client_ip, success, error_msg, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID,
		ev.At.UTC(),
		string(ev.Action),
		ev.Code,
		nullString(ev.Kind),
		ev.SizeBytes,
		nullString(ev.ClientIP),
		ev.Success,
		nullString(ev.ErrorMsg),
		details,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Action Action
	Code   string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// List returns matching events, newest first.
func (p *Postgres) List(ctx context.Context, f Filter) ([]Event, error) {
	query, args := buildListQuery(f)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                     Event
			action                 string
			kind, clientIP, errMsg sql.NullString
			details                []byte
		)
		if err := rows.Scan(&ev.ID, &ev.At, &action, &ev.Code, &kind, &ev.SizeBytes,
			&clientIP, &ev.Success, &errMsg, &details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Action = Action(action)
		ev.Kind = kind.String
		ev.ClientIP = clientIP.String
		ev.ErrorMsg = errMsg.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

const defaultListLimit = 100

func buildListQuery(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.Code != "" {
		add("code = $%d", f.Code)
	}
	if !f.Since.IsZero() {
		add("occurred_at >= $%d", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		add("occurred_at <= $%d", f.Until.UTC())
	}

	var b strings.Builder
	b.WriteString(`SELECT id, occurred_at, action, code, kind, size_bytes, client_ip, success, error_msg, details FROM audit_events`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " ORDER BY occurred_at DESC LIMIT $%d", len(args))
	return b.String(), args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
