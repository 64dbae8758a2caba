// Package memstore is an in-process record store. It backs tests and the
// `--store memory` mode of the CLI.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"phasegate/internal/store"
)

// Store keeps records per collection behind a single mutex.
type Store struct {
	mu   sync.RWMutex
	data map[store.Collection]map[string]store.Record
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: map[store.Collection]map[string]store.Record{}}
}

func (s *Store) Filter(ctx context.Context, c store.Collection, crit store.Criteria) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []store.Record{}
	for _, rec := range s.data[c] {
		if crit.Match(rec) {
			res = append(res, copyRecord(rec))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) Get(ctx context.Context, c store.Collection, id string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[c][id]
	if !ok {
		return store.Record{}, fmt.Errorf("%s %s: %w", c, id, store.ErrNotFound)
	}
	return copyRecord(rec), nil
}

func (s *Store) Create(ctx context.Context, c store.Collection, rec store.Record) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.data[c]
	if !ok {
		coll = map[string]store.Record{}
		s.data[c] = coll
	}
	if _, exists := coll[rec.ID]; exists {
		return store.Record{}, fmt.Errorf("%s %s already exists: %w", c, rec.ID, store.ErrConflict)
	}
	rec.Version = 1
	rec.Fields = store.Clone(rec.Fields)
	if rec.Fields == nil {
		rec.Fields = store.Fields{}
	}
	coll[rec.ID] = rec
	return copyRecord(rec), nil
}

func (s *Store) Update(ctx context.Context, c store.Collection, id string, fields store.Fields, expectedVersion int64) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[c][id]
	if !ok {
		return store.Record{}, fmt.Errorf("%s %s: %w", c, id, store.ErrNotFound)
	}
	if expectedVersion > 0 && rec.Version != expectedVersion {
		return store.Record{}, fmt.Errorf("%s %s at version %d, expected %d: %w", c, id, rec.Version, expectedVersion, store.ErrConflict)
	}
	update := store.Clone(fields)
	delete(update, "id")
	delete(update, "version")
	rec.Fields = store.Merge(rec.Fields, update)
	rec.Version++
	s.data[c][id] = rec
	return copyRecord(rec), nil
}

func copyRecord(rec store.Record) store.Record {
	return store.Record{ID: rec.ID, Version: rec.Version, Fields: store.Clone(rec.Fields)}
}
