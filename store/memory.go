package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It backs --dry-run and tests.
type Memory struct {
	mu      sync.Mutex
	records []Record
	// FailSave, when set, is returned by every Save.
	FailSave error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Find(_ context.Context, q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, r := range m.records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context, q Query) (int, error) {
	recs, err := m.Find(ctx, q)
	return len(recs), err
}

func (m *Memory) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}
	m.records = append(m.records, r)
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) Close() error { return nil }
