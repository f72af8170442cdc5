package ledger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payrail/payrail/internal/domain/model"
)

// countingLedger counts inner Get calls to observe the cache fast path.
type countingLedger struct {
	Ledger
	gets atomic.Int32
}

func (c *countingLedger) Get(ctx context.Context, requestID string) (model.LedgerEntry, bool, error) {
	c.gets.Add(1)
	return c.Ledger.Get(ctx, requestID)
}

func TestCached_GetReadsThroughOnce(t *testing.T) {
	inner := &countingLedger{Ledger: NewMemory()}
	cached := NewCached(inner)
	ctx := context.Background()

	_, _, err := inner.RecordIfAbsent(ctx, succeededEntry("req-1", "tx-a", time.Now()))
	require.NoError(t, err)

	got, ok, err := cached.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tx-a", got.TxHash)
	assert.Equal(t, int32(1), inner.gets.Load())

	_, ok, err = cached.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), inner.gets.Load(), "second read must hit the cache")
}

func TestCached_RecordPopulatesCache(t *testing.T) {
	inner := &countingLedger{Ledger: NewMemory()}
	cached := NewCached(inner)
	ctx := context.Background()

	stored, inserted, err := cached.RecordIfAbsent(ctx, succeededEntry("req-1", "tx-a", time.Now()))
	require.NoError(t, err)
	assert.True(t, inserted)

	got, ok, err := cached.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, stored, got)
	assert.Equal(t, int32(0), inner.gets.Load(), "read after write must not touch the store")
}

func TestCached_MissFallsThrough(t *testing.T) {
	inner := &countingLedger{Ledger: NewMemory()}
	cached := NewCached(inner)

	_, ok, err := cached.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), inner.gets.Load())
}

func TestCached_DuplicateRecordReturnsWinner(t *testing.T) {
	inner := &countingLedger{Ledger: NewMemory()}
	cached := NewCached(inner)
	ctx := context.Background()

	first, inserted, err := cached.RecordIfAbsent(ctx, succeededEntry("req-1", "tx-a", time.Now()))
	require.NoError(t, err)
	assert.True(t, inserted)

	second, inserted, err := cached.RecordIfAbsent(ctx, succeededEntry("req-1", "tx-b", time.Now()))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first, second)
}
