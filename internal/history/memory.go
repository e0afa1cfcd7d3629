package history

import (
	"sort"
	"sync"
)

// MemoryHistory is an in-memory history backend.
type MemoryHistory struct {
	records []*Record
	index   map[string]int // ID -> position in records
	mu      sync.RWMutex
}

// NewMemoryHistory creates a new in-memory history backend.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{index: make(map[string]int)}
}

// Store saves a copy of r, replacing any record with the same ID.
func (m *MemoryHistory) Store(r *Record) error {
	prepare(r)
	cp := *r

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[cp.ID]; ok {
		m.records[i] = &cp
		return nil
	}
	m.index[cp.ID] = len(m.records)
	m.records = append(m.records, &cp)
	return nil
}

// List returns copies of the matching records, newest first.
func (m *MemoryHistory) List(q Query) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	// walk backwards so equal timestamps keep newest-stored first
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if q.RunID != "" && r.RunID != q.RunID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConvertedAt.After(out[j].ConvertedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Clear removes all records.
func (m *MemoryHistory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.index = make(map[string]int)
	return nil
}

// Close is a no-op for memory history.
func (m *MemoryHistory) Close() error {
	return nil
}
