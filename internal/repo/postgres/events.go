package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"phasegate/internal/domain"
)

// RecordTransition appends one audit row.
func (s *Store) RecordTransition(ctx context.Context, ev domain.TransitionEvent) error {
	trace, err := json.Marshal(ev.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	ts := s.now()
	if ev.TS != "" {
		if parsed, err := time.Parse(time.RFC3339, ev.TS); err == nil {
			ts = parsed
		}
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO transition_events(ts, type, project_id, work_package_id, actor_id, from_phase, to_phase, pass, trace)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		ts, ev.Type, ev.ProjectID, ev.WorkPackageID, ev.ActorID, string(ev.Trace.From), string(ev.Trace.To), ev.Trace.Pass, trace)
	return err
}

// ListTransitions returns the newest events for a work package first.
func (s *Store) ListTransitions(ctx context.Context, workPackageID string, limit int) ([]domain.TransitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
SELECT id, ts, type, COALESCE(project_id, ''), work_package_id, actor_id, trace
FROM transition_events WHERE work_package_id=$1 ORDER BY id DESC LIMIT $2`, workPackageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.TransitionEvent{}
	for rows.Next() {
		var ev domain.TransitionEvent
		var ts time.Time
		var trace []byte
		if err := rows.Scan(&ev.ID, &ts, &ev.Type, &ev.ProjectID, &ev.WorkPackageID, &ev.ActorID, &trace); err != nil {
			return nil, err
		}
		ev.TS = ts.UTC().Format(time.RFC3339)
		if err := json.Unmarshal(trace, &ev.Trace); err != nil {
			return nil, fmt.Errorf("decode trace %d: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
