//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/ledger"
	"github.com/payrail/payrail/internal/store/postgres"
)

func testDB(t *testing.T) *postgres.DB {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url != "" {
		// Use provided external DB.
		db, err := postgres.New(postgres.Config{
			URL:             url,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Minute,
		})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, db.RunMigrations())
		return db
	}
	// Use testcontainers (Docker-based ephemeral PostgreSQL).
	return setupTestContainer(t)
}

func succeededEntry(requestID string) model.LedgerEntry {
	return model.LedgerEntry{
		RequestID:   requestID,
		Kind:        model.KindPayment,
		Token:       "SOL",
		Amount:      decimal.RequireFromString("0.0393"),
		USDAmount:   decimal.RequireFromString("5.50"),
		Recipient:   "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Description: "coffee",
		Status:      model.StatusSucceeded,
		TxHash:      "sig-" + requestID,
		CompletedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// ---------- Migrations ----------

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// The helper already ran them once; a second pass must be a no-op.
	require.NoError(t, db.RunMigrations())
}

// ---------- LedgerRepo ----------

func TestLedgerRepo_RecordIfAbsent(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewLedgerRepo(db)
	ctx := context.Background()
	requestID := "req-" + uuid.NewString()

	entry := succeededEntry(requestID)
	stored, inserted, err := repo.RecordIfAbsent(ctx, entry)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, stored.ID)

	got, found, err := repo.Get(ctx, requestID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, model.KindPayment, got.Kind)
	assert.Equal(t, "SOL", got.Token)
	assert.True(t, got.Amount.Equal(entry.Amount), "amount %s", got.Amount)
	assert.True(t, got.USDAmount.Equal(entry.USDAmount), "usd amount %s", got.USDAmount)
	assert.Equal(t, model.StatusSucceeded, got.Status)
	assert.Equal(t, "sig-"+requestID, got.TxHash)
	assert.WithinDuration(t, entry.CompletedAt, got.CompletedAt, time.Millisecond)
}

func TestLedgerRepo_ReplayReturnsWinner(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewLedgerRepo(db)
	ctx := context.Background()
	requestID := "req-" + uuid.NewString()

	first := succeededEntry(requestID)
	_, inserted, err := repo.RecordIfAbsent(ctx, first)
	require.NoError(t, err)
	require.True(t, inserted)

	// Same request ID with a different payload must not overwrite.
	second := succeededEntry(requestID)
	second.Token = "ETH"
	second.TxHash = "other-signature"
	stored, inserted, err := repo.RecordIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "SOL", stored.Token)
	assert.Equal(t, "sig-"+requestID, stored.TxHash)
}

func TestLedgerRepo_RejectsNonRecordableStatus(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewLedgerRepo(db)

	entry := succeededEntry("req-" + uuid.NewString())
	entry.Status = model.StatusInsufficientFunds
	_, _, err := repo.RecordIfAbsent(context.Background(), entry)
	require.ErrorIs(t, err, ledger.ErrNotRecordable)
}

func TestLedgerRepo_ConcurrentRecordInsertsOnce(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewLedgerRepo(db)
	ctx := context.Background()
	requestID := "req-" + uuid.NewString()

	const writers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserts  int
		txHashes = map[string]struct{}{}
		errs     []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := succeededEntry(requestID)
			entry.TxHash = fmt.Sprintf("sig-%d", i)
			stored, inserted, err := repo.RecordIfAbsent(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if inserted {
				inserts++
			}
			txHashes[stored.TxHash] = struct{}{}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, inserts)
	// Every writer observed the same winning entry.
	assert.Len(t, txHashes, 1)
}

func TestLedgerRepo_GetMissing(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewLedgerRepo(db)

	_, found, err := repo.Get(context.Background(), "req-"+uuid.NewString())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedgerRepo_History(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewLedgerRepo(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	ids := make([]string, 5)
	for i := 0; i < 5; i++ {
		ids[i] = fmt.Sprintf("req-%d-%s", i, uuid.NewString()[:8])
		entry := succeededEntry(ids[i])
		entry.CompletedAt = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 1 {
			entry.Kind = model.KindOrder
		}
		_, inserted, err := repo.RecordIfAbsent(ctx, entry)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	// Newest first.
	entries, err := repo.History(ctx, ledger.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, ids[4], entries[0].RequestID)
	assert.Equal(t, ids[0], entries[4].RequestID)

	// Kind filter.
	orders, err := repo.History(ctx, ledger.HistoryQuery{Kind: model.KindOrder})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, ids[3], orders[0].RequestID)
	assert.Equal(t, ids[1], orders[1].RequestID)

	// Pagination.
	page, err := repo.History(ctx, ledger.HistoryQuery{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].RequestID)
	assert.Equal(t, ids[2], page[1].RequestID)

	// Invalid kind filter.
	_, err = repo.History(ctx, ledger.HistoryQuery{Kind: "refund"})
	require.Error(t, err)
}

// ---------- ContactRepo ----------

func TestContactRepo_UpsertAndFind(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewContactRepo(db)
	ctx := context.Background()
	alias := "alice-" + uuid.NewString()[:8]

	added := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Upsert(ctx, model.Contact{
		Alias:   alias,
		Name:    "Alice",
		Address: "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		Token:   "ETH",
		AddedAt: added,
	}))

	c, found, err := repo.Find(ctx, alias)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Alice", c.Name)
	assert.Equal(t, "ETH", c.Token)
	assert.WithinDuration(t, added, c.AddedAt, time.Millisecond)

	// Re-adding the alias replaces the record.
	require.NoError(t, repo.Upsert(ctx, model.Contact{
		Alias:   alias,
		Name:    "Alice B",
		Address: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Token:   "SOL",
		AddedAt: added.Add(time.Minute),
	}))
	c, found, err = repo.Find(ctx, alias)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Alice B", c.Name)
	assert.Equal(t, "SOL", c.Token)
}

func TestContactRepo_ListSortsByAlias(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewContactRepo(db)
	ctx := context.Background()

	suffix := uuid.NewString()[:8]
	for _, alias := range []string{"zoe-" + suffix, "bob-" + suffix, "amy-" + suffix} {
		require.NoError(t, repo.Upsert(ctx, model.Contact{
			Alias:   alias,
			Address: "addr-" + alias,
			Token:   "SOL",
			AddedAt: time.Now().UTC(),
		}))
	}

	contacts, err := repo.List(ctx)
	require.NoError(t, err)

	var mine []string
	for _, c := range contacts {
		if len(c.Alias) > 4 && c.Alias[len(c.Alias)-8:] == suffix {
			mine = append(mine, c.Alias)
		}
	}
	require.Equal(t, []string{"amy-" + suffix, "bob-" + suffix, "zoe-" + suffix}, mine)
}

func TestContactRepo_Delete(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewContactRepo(db)
	ctx := context.Background()
	alias := "carol-" + uuid.NewString()[:8]

	require.NoError(t, repo.Upsert(ctx, model.Contact{
		Alias:   alias,
		Address: "addr",
		Token:   "USDC",
		AddedAt: time.Now().UTC(),
	}))

	removed, err := repo.Delete(ctx, alias)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, alias)
	require.NoError(t, err)
	assert.False(t, removed)

	_, found, err := repo.Find(ctx, alias)
	require.NoError(t, err)
	assert.False(t, found)
}

// ---------- AttemptRepo ----------

func TestAttemptRepo_AppendAndList(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewAttemptRepo(db)
	ctx := context.Background()
	requestID := "req-" + uuid.NewString()

	base := time.Now().UTC().Truncate(time.Microsecond)
	outcomes := []model.AttemptOutcome{model.AttemptTransient, model.AttemptTransient, model.AttemptOK}
	for i, outcome := range outcomes {
		attemptErr := ""
		if outcome == model.AttemptTransient {
			attemptErr = "connection refused"
		}
		require.NoError(t, repo.Append(ctx, model.PaymentAttempt{
			RequestID: requestID,
			Attempt:   i + 1,
			Stage:     "transfer.submit",
			Outcome:   outcome,
			Error:     attemptErr,
			At:        base.Add(time.Duration(i) * time.Second),
		}))
	}

	attempts, err := repo.ListByRequest(ctx, requestID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Attempt)
		assert.NotEmpty(t, a.ID)
	}
	assert.Equal(t, model.AttemptOK, attempts[2].Outcome)
	assert.Empty(t, attempts[2].Error)

	none, err := repo.ListByRequest(ctx, "req-"+uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, none)
}
