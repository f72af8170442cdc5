package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/payrail/payrail/internal/cache"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/metrics"
)

const (
	cacheCapacity = 4096
	cacheTTL      = 10 * time.Minute
)

// Cached wraps a ledger with an LRU fast path for the idempotency lookup.
// Entries are immutable once written, so a positive hit can never be stale.
type Cached struct {
	inner Ledger
	cache *cache.LRU[string, model.LedgerEntry]
}

var _ Ledger = (*Cached)(nil)

func NewCached(inner Ledger) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.NewLRU[string, model.LedgerEntry](cacheCapacity, cacheTTL),
	}
}

func (c *Cached) RecordIfAbsent(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error) {
	stored, inserted, err := c.inner.RecordIfAbsent(ctx, entry)
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	if inserted {
		metrics.LedgerInsertsTotal.WithLabelValues(strings.ToLower(string(stored.Status))).Inc()
	} else {
		metrics.LedgerConflictsTotal.Inc()
	}
	c.cache.Put(stored.RequestID, stored)
	return stored, inserted, nil
}

func (c *Cached) Get(ctx context.Context, requestID string) (model.LedgerEntry, bool, error) {
	if entry, ok := c.cache.Get(requestID); ok {
		return entry, true, nil
	}
	entry, ok, err := c.inner.Get(ctx, requestID)
	if err != nil || !ok {
		return model.LedgerEntry{}, false, err
	}
	c.cache.Put(requestID, entry)
	return entry, true, nil
}

func (c *Cached) History(ctx context.Context, q HistoryQuery) ([]model.LedgerEntry, error) {
	return c.inner.History(ctx, q)
}
