// Package repo stores phase-gate records as JSON documents in SQLite.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"phasegate/internal/store"
)

// Repo implements store.Store over the records table. Fields that the gates
// filter on most (id, project_id, work_package_id) are indexed columns; every
// other predicate is matched after decoding.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var _ store.Store = Repo{}

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// indexed are the columns Filter pushes equality predicates down to.
var indexed = []string{"id", "project_id", "work_package_id"}

func (r Repo) Filter(ctx context.Context, c store.Collection, crit store.Criteria) ([]store.Record, error) {
	clauses := []string{"collection=?"}
	args := []any{string(c)}
	for _, col := range indexed {
		if v, ok := crit.Equals(col); ok {
			clauses = append(clauses, col+"=?")
			args = append(args, v)
		}
	}
	query := fmt.Sprintf(`SELECT id,version,data FROM records WHERE %s ORDER BY id`, strings.Join(clauses, " AND "))
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", c, err)
	}
	defer rows.Close()
	out := []store.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if crit.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (r Repo) Get(ctx context.Context, c store.Collection, id string) (store.Record, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,version,data FROM records WHERE collection=? AND id=?`, string(c), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, fmt.Errorf("%s %s: %w", c, id, store.ErrNotFound)
	}
	return rec, err
}

func (r Repo) Create(ctx context.Context, c store.Collection, rec store.Record) (store.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Version = 1
	rec.Fields = store.Clone(rec.Fields)
	if rec.Fields == nil {
		rec.Fields = store.Fields{}
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshal %s %s: %w", c, rec.ID, err)
	}
	now := r.now()
	_, err = r.DB.ExecContext(ctx, `INSERT INTO records(collection,id,project_id,work_package_id,version,data,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		string(c), rec.ID, nullable(rec.Fields, "project_id"), nullable(rec.Fields, "work_package_id"), rec.Version, string(data), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Record{}, fmt.Errorf("%s %s exists: %w", c, rec.ID, store.ErrConflict)
		}
		return store.Record{}, err
	}
	return r.Get(ctx, c, rec.ID)
}

// Update merges fields into the stored document. The write is conditioned on
// the version that was read, so a concurrent writer makes it fail with
// store.ErrConflict rather than being overwritten.
func (r Repo) Update(ctx context.Context, c store.Collection, id string, fields store.Fields, expectedVersion int64) (store.Record, error) {
	cur, err := r.Get(ctx, c, id)
	if err != nil {
		return store.Record{}, err
	}
	if expectedVersion > 0 && cur.Version != expectedVersion {
		return store.Record{}, fmt.Errorf("%s %s at version %d, expected %d: %w", c, id, cur.Version, expectedVersion, store.ErrConflict)
	}
	update := store.Clone(fields)
	delete(update, "id")
	delete(update, "version")
	merged := store.Merge(cur.Fields, update)
	data, err := json.Marshal(merged)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshal %s %s: %w", c, id, err)
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE records SET data=?,project_id=?,work_package_id=?,version=version+1,updated_at=? WHERE collection=? AND id=? AND version=?`,
		string(data), nullable(merged, "project_id"), nullable(merged, "work_package_id"), r.now(), string(c), id, cur.Version)
	if err != nil {
		return store.Record{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return store.Record{}, err
	} else if n == 0 {
		return store.Record{}, fmt.Errorf("%s %s changed during update: %w", c, id, store.ErrConflict)
	}
	out := store.Record{ID: id, Version: cur.Version + 1}
	if err := json.Unmarshal(data, &out.Fields); err != nil {
		return store.Record{}, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (store.Record, error) {
	var rec store.Record
	var data string
	if err := s.Scan(&rec.ID, &rec.Version, &data); err != nil {
		return store.Record{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Fields); err != nil {
		return store.Record{}, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	return rec, nil
}

func nullable(f store.Fields, key string) any {
	if v, ok := f[key].(string); ok && v != "" {
		return v
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
