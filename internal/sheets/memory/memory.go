// Package memory is an in-process sheet mirror for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	ports "ledger/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows map[int64]ports.Row
}

var _ ports.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[int64]ports.Row)}
}

func (s *Store) Upsert(_ context.Context, row ports.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = row
	return nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

// Rows returns the mirrored rows ordered by id.
func (s *Store) Rows() []ports.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the row mirrored for id, if any.
func (s *Store) Get(id int64) (ports.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	return r, ok
}
