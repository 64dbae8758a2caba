package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"phasegate/internal/store"
)

var _ store.Store = (*Store)(nil)

var indexed = []string{"id", "project_id", "work_package_id"}

func (s *Store) Filter(ctx context.Context, c store.Collection, crit store.Criteria) ([]store.Record, error) {
	clauses := []string{"collection=$1"}
	args := []any{string(c)}
	for _, col := range indexed {
		if v, ok := crit.Equals(col); ok {
			args = append(args, v)
			clauses = append(clauses, fmt.Sprintf("%s=$%d", col, len(args)))
		}
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, version, data FROM records WHERE `+strings.Join(clauses, " AND ")+` ORDER BY id`, args...)
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

func (s *Store) Get(ctx context.Context, c store.Collection, id string) (store.Record, error) {
	rec, err := scanRecord(s.Pool.QueryRow(ctx, `SELECT id, version, data FROM records WHERE collection=$1 AND id=$2`, string(c), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, fmt.Errorf("%s %s: %w", c, id, store.ErrNotFound)
	}
	return rec, err
}

func (s *Store) Create(ctx context.Context, c store.Collection, rec store.Record) (store.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	fields := store.Clone(rec.Fields)
	if fields == nil {
		fields = store.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("marshal %s %s: %w", c, rec.ID, err)
	}
	now := s.now()
	_, err = s.Pool.Exec(ctx, `
INSERT INTO records(collection, id, project_id, work_package_id, version, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, 1, $5, $6, $6)`,
		string(c), rec.ID, nullable(fields, "project_id"), nullable(fields, "work_package_id"), data, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.Record{}, fmt.Errorf("%s %s exists: %w", c, rec.ID, store.ErrConflict)
		}
		return store.Record{}, err
	}
	return s.Get(ctx, c, rec.ID)
}

func (s *Store) Update(ctx context.Context, c store.Collection, id string, fields store.Fields, expectedVersion int64) (store.Record, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return store.Record{}, err
	}
	defer tx.Rollback(ctx)

	cur, err := scanRecord(tx.QueryRow(ctx, `SELECT id, version, data FROM records WHERE collection=$1 AND id=$2 FOR UPDATE`, string(c), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, fmt.Errorf("%s %s: %w", c, id, store.ErrNotFound)
	}
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
	rec, err := scanRecord(tx.QueryRow(ctx, `
UPDATE records SET data=$1, project_id=$2, work_package_id=$3, version=version+1, updated_at=$4
WHERE collection=$5 AND id=$6
RETURNING id, version, data`,
		data, nullable(merged, "project_id"), nullable(merged, "work_package_id"), s.now(), string(c), id))
	if err != nil {
		return store.Record{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (store.Record, error) {
	var rec store.Record
	var data []byte
	if err := row.Scan(&rec.ID, &rec.Version, &data); err != nil {
		return store.Record{}, err
	}
	if err := json.Unmarshal(data, &rec.Fields); err != nil {
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
