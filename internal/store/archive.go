package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/fbexec/internal/canonical"
	"github.com/roach88/fbexec/internal/trace"
)

// TraceInfo describes one imported trace.
type TraceInfo struct {
	ID           int64  `json:"id"`
	Resource     string `json:"resource"`
	SourceFile   string `json:"source_file"`
	MessageCount int    `json:"message_count"`
}

// ImportTrace stores msgs as the trace of resource read from source. An
// earlier import of the same resource and source is replaced. The whole
// import runs in one transaction.
func (s *Store) ImportTrace(ctx context.Context, resource, source string, msgs []trace.EventMessage) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("import trace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM traces WHERE resource = ? AND source_file = ?`, resource, source); err != nil {
		return 0, fmt.Errorf("import trace: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO traces (resource, source_file, message_count)
		VALUES (?, ?, ?)
	`, resource, source, len(msgs))
	if err != nil {
		return 0, fmt.Errorf("import trace: %w", err)
	}
	traceID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("import trace: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages
		(trace_id, seq, event_type, timestamp, type_name, instance_name, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("import trace: %w", err)
	}
	defer stmt.Close()

	for seq, m := range msgs {
		rec := trace.ToRecord(m)
		payload, err := canonical.Marshal(rec.Fields())
		if err != nil {
			return 0, fmt.Errorf("import trace: record %d: %w", seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			traceID, seq, rec.Type, rec.Timestamp, rec.TypeName, rec.InstanceName, string(payload),
		); err != nil {
			return 0, fmt.Errorf("import trace: record %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import trace: %w", err)
	}
	return traceID, nil
}

// Traces lists the imported traces.
func (s *Store) Traces(ctx context.Context) ([]TraceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource, source_file, message_count
		FROM traces
		ORDER BY resource ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []TraceInfo
	for rows.Next() {
		var ti TraceInfo
		if err := rows.Scan(&ti.ID, &ti.Resource, &ti.SourceFile, &ti.MessageCount); err != nil {
			return nil, fmt.Errorf("list traces: %w", err)
		}
		out = append(out, ti)
	}
	return out, rows.Err()
}

// ReadMessages returns the messages of a trace in record order.
func (s *Store) ReadMessages(ctx context.Context, traceID int64) ([]trace.EventMessage, error) {
	return s.readMessages(ctx, `
		SELECT payload FROM messages
		WHERE trace_id = ?
		ORDER BY seq ASC
	`, traceID)
}

// ReadExternalEvents returns only the externalEventInput messages of a
// trace, the input a replay needs.
func (s *Store) ReadExternalEvents(ctx context.Context, traceID int64) ([]trace.EventMessage, error) {
	return s.readMessages(ctx, `
		SELECT payload FROM messages
		WHERE trace_id = ? AND event_type = ?
		ORDER BY seq ASC
	`, traceID, trace.ExternalEventInput.String())
}

// LatestTrace returns the most recent import for resource.
func (s *Store) LatestTrace(ctx context.Context, resource string) (TraceInfo, error) {
	ti := TraceInfo{Resource: resource}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_file, message_count
		FROM traces
		WHERE resource = ?
		ORDER BY id DESC
		LIMIT 1
	`, resource).Scan(&ti.ID, &ti.SourceFile, &ti.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return TraceInfo{}, fmt.Errorf("no trace imported for resource %q", resource)
	}
	if err != nil {
		return TraceInfo{}, fmt.Errorf("latest trace: %w", err)
	}
	return ti, nil
}

func (s *Store) readMessages(ctx context.Context, query string, args ...any) ([]trace.EventMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	var out []trace.EventMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("read messages: %w", err)
		}
		var rec trace.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("read messages: corrupt payload: %w", err)
		}
		m, err := rec.Message()
		if err != nil {
			return nil, fmt.Errorf("read messages: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
