// Package events is the SQLite transition audit log.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"phasegate/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// RecordTransition appends one audit row for an executed evaluation.
func (w Writer) RecordTransition(ctx context.Context, ev domain.TransitionEvent) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := ev.TS
	if ts == "" {
		ts = w.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(ev.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	pass := 0
	if ev.Trace.Pass {
		pass = 1
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO transition_events(ts,type,project_id,work_package_id,actor_id,from_phase,to_phase,pass,trace_json) VALUES (?,?,?,?,?,?,?,?,?)`,
		ts, ev.Type, nullable(ev.ProjectID), ev.WorkPackageID, ev.ActorID, string(ev.Trace.From), string(ev.Trace.To), pass, string(data))
	return err
}

// Filters narrow List; zero values match everything.
type Filters struct {
	WorkPackageID string
	ProjectID     string
	Type          string
	// Before returns only events with a smaller id, for paging backwards.
	Before int64
	Limit  int
}

// List returns matching events newest first.
func (w Writer) List(ctx context.Context, f Filters) ([]domain.TransitionEvent, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query := `SELECT id,ts,type,COALESCE(project_id,''),work_package_id,actor_id,trace_json FROM transition_events WHERE 1=1`
	var args []any
	if f.WorkPackageID != "" {
		query += ` AND work_package_id=?`
		args = append(args, f.WorkPackageID)
	}
	if f.ProjectID != "" {
		query += ` AND project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		query += ` AND type=?`
		args = append(args, f.Type)
	}
	if f.Before > 0 {
		query += ` AND id<?`
		args = append(args, f.Before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.TransitionEvent{}
	for rows.Next() {
		var ev domain.TransitionEvent
		var trace string
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &ev.ProjectID, &ev.WorkPackageID, &ev.ActorID, &trace); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(trace), &ev.Trace); err != nil {
			return nil, fmt.Errorf("decode trace %d: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// ListTransitions returns the newest events for one work package.
func (w Writer) ListTransitions(ctx context.Context, workPackageID string, limit int) ([]domain.TransitionEvent, error) {
	return w.List(ctx, Filters{WorkPackageID: workPackageID, Limit: limit})
}
