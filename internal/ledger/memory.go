package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payrail/payrail/internal/domain/model"
)

// Memory is the map-backed ledger used in tests and when no database is
// configured. It honors the same exactly-once contract as the Postgres
// implementation.
type Memory struct {
	mu      sync.RWMutex
	byReqID map[string]model.LedgerEntry
	entries []model.LedgerEntry
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{byReqID: make(map[string]model.LedgerEntry)}
}

func (m *Memory) RecordIfAbsent(_ context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error) {
	if err := ValidateEntry(entry); err != nil {
		return model.LedgerEntry{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byReqID[entry.RequestID]; ok {
		return existing, false, nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now()
	}
	m.byReqID[entry.RequestID] = entry
	m.entries = append(m.entries, entry)
	return entry, true, nil
}

func (m *Memory) Get(_ context.Context, requestID string) (model.LedgerEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.byReqID[requestID]
	return entry, ok, nil
}

func (m *Memory) History(_ context.Context, q HistoryQuery) ([]model.LedgerEntry, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	matched := make([]model.LedgerEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		if q.Kind != "" && entry.Kind != q.Kind {
			continue
		}
		matched = append(matched, entry)
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CompletedAt.After(matched[j].CompletedAt)
	})

	if q.Offset >= len(matched) {
		return []model.LedgerEntry{}, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Len reports the number of recorded entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
