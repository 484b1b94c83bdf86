package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/internal/infrastructure/persistence/memory"
	"github.com/music-school/student-fees/pkg/circuitbreaker"
	"github.com/music-school/student-fees/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeRecordCache struct {
	mu          sync.Mutex
	records     map[string]fees.AccountRecord
	err         error
	gets        int
	sets        int
	invalidates int
}

func newFakeRecordCache() *fakeRecordCache {
	return &fakeRecordCache{records: make(map[string]fees.AccountRecord)}
}

func (c *fakeRecordCache) Get(_ context.Context, studentID string) (*fees.AccountRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return nil, false, c.err
	}
	record, ok := c.records[studentID]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

func (c *fakeRecordCache) Set(_ context.Context, record fees.AccountRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.err != nil {
		return c.err
	}
	c.records[record.ID] = record
	return nil
}

func (c *fakeRecordCache) Invalidate(_ context.Context, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidates++
	if c.err != nil {
		return c.err
	}
	delete(c.records, studentID)
	return nil
}

func seedAccount(t *testing.T, repo fees.Repository, studentID string) string {
	t.Helper()
	account, err := fees.NewAccount(studentID)
	require.NoError(t, err)
	feeID, err := account.AddFee(decimal.NewFromInt(300), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), account))
	return feeID
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHED REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

func TestCachedRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountRepository()
	seedAccount(t, inner, "s-1")

	cache := newFakeRecordCache()
	reader := NewCachedRepository(inner, cache, nil, logger.Nop()).Reader()

	first, err := reader.GetByID(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, cache.sets)
	assert.Contains(t, cache.records, "s-1")

	second, err := reader.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, first.Balance().String(), second.Balance().String())
	assert.Equal(t, 1, cache.sets, "hit must not refill the cache")
}

func TestCachedRepository_MissingAccount(t *testing.T) {
	cache := newFakeRecordCache()
	repo := NewCachedRepository(memory.NewAccountRepository(), cache, nil, logger.Nop())

	account, err := repo.Reader().GetByID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, account)
	assert.Zero(t, cache.sets)

	_, err = repo.GetByIDOrFail(context.Background(), "nobody")
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestCachedRepository_LoadsForWriteSkipCache(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountRepository()
	seedAccount(t, inner, "s-1")

	cache := newFakeRecordCache()
	repo := NewCachedRepository(inner, cache, nil, logger.Nop())

	_, err := repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	_, err = repo.GetByIDOrFail(ctx, "s-1")
	require.NoError(t, err)

	assert.Zero(t, cache.gets)
	assert.Zero(t, cache.sets)
}

func TestCachedRepository_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountRepository()
	feeID := seedAccount(t, inner, "s-1")

	cache := newFakeRecordCache()
	repo := NewCachedRepository(inner, cache, nil, logger.Nop())

	_, err := repo.Reader().GetByID(ctx, "s-1")
	require.NoError(t, err)
	require.Contains(t, cache.records, "s-1")

	account, err := repo.GetByIDOrFail(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, account.PayFee(feeID))
	require.NoError(t, repo.Save(ctx, account))

	assert.NotContains(t, cache.records, "s-1")

	reloaded, err := repo.Reader().GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, reloaded.Balance().IsZero())
}

// failingInvalidateCache keeps entries that should have been dropped.
type failingInvalidateCache struct {
	*fakeRecordCache
}

func (c failingInvalidateCache) Invalidate(context.Context, string) error {
	return errors.New("invalidate timed out")
}

func TestCachedRepository_FailedInvalidateKeepsWritesFresh(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountRepository()
	cache := failingInvalidateCache{newFakeRecordCache()}
	repo := NewCachedRepository(inner, cache, nil, logger.Nop())
	reader := repo.Reader()

	account, err := fees.NewAccount("s-1")
	require.NoError(t, err)
	feeID, err := account.AddFee(decimal.NewFromInt(100), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, account))

	// Cache now holds the unpaid account.
	_, err = reader.GetByID(ctx, "s-1")
	require.NoError(t, err)

	account, err = repo.GetByIDOrFail(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, account.PayFee(feeID))
	require.NoError(t, repo.Save(ctx, account))

	// The next command must build on the paid account, not the cached one.
	account, err = repo.GetByID(ctx, "s-1")
	require.NoError(t, err)
	_, err = account.AddFee(decimal.NewFromInt(50), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, account))

	stored, err := inner.GetByIDOrFail(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "50", stored.Balance().String())

	account, err = repo.GetByIDOrFail(ctx, "s-1")
	require.NoError(t, err)
	assert.ErrorIs(t, account.PayFee(feeID), shared.ErrFeeAlreadyPaid)
}

func TestCachedRepository_CacheFailuresFallBack(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountRepository()
	seedAccount(t, inner, "s-1")

	cache := newFakeRecordCache()
	cache.err = errors.New("connection refused")

	var transitions []circuitbreaker.State
	breaker := circuitbreaker.New("test-cache",
		circuitbreaker.WithFailureThreshold(2),
		circuitbreaker.WithOpenTimeout(time.Hour),
		circuitbreaker.WithOnStateChange(func(_ string, _, to circuitbreaker.State) {
			transitions = append(transitions, to)
		}),
	)
	reader := NewCachedRepository(inner, cache, breaker, logger.Nop()).Reader()

	for i := 0; i < 5; i++ {
		account, err := reader.GetByID(ctx, "s-1")
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, "300", account.Balance().String())
	}

	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	assert.Equal(t, []circuitbreaker.State{circuitbreaker.StateOpen}, transitions)
	// get + set on the first read trip the breaker; later calls never reach the cache.
	assert.Equal(t, 1, cache.gets)
	assert.Equal(t, 1, cache.sets)
}

func TestCachedRepository_CorruptEntryDropped(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewAccountRepository()
	seedAccount(t, inner, "s-1")

	cache := newFakeRecordCache()
	cache.records["s-1"] = fees.AccountRecord{
		ID:           "s-1",
		ChargedTotal: decimal.NewFromInt(10),
		PaidTotal:    decimal.NewFromInt(20),
	}
	reader := NewCachedRepository(inner, cache, nil, logger.Nop()).Reader()

	account, err := reader.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "300", account.Balance().String())
	assert.Equal(t, 1, cache.invalidates)
	assert.Equal(t, decimal.NewFromInt(300).String(), cache.records["s-1"].ChargedTotal.String())
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS INTEGRATION
// ══════════════════════════════════════════════════════════════════════════════

func TestAccountCache_Integration(t *testing.T) {
	addr := os.Getenv("FEES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FEES_TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	host, port := splitAddr(t, addr)
	cfg := DefaultConfig()
	cfg.Host, cfg.Port = host, port
	cfg.AccountTTL = time.Minute

	c, err := NewCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	cache := NewAccountCache(c)
	studentID := "it-" + time.Now().UTC().Format("150405.000000000")
	t.Cleanup(func() { _ = cache.Invalidate(context.Background(), studentID) })

	_, hit, err := cache.Get(ctx, studentID)
	require.NoError(t, err)
	assert.False(t, hit)

	account, err := fees.NewAccount(studentID)
	require.NoError(t, err)
	_, err = account.AddFee(decimal.RequireFromString("12.50"), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, account.ToRecord()))

	record, hit, err := cache.Get(ctx, studentID)
	require.NoError(t, err)
	require.True(t, hit)
	restored, err := fees.FromRecord(*record)
	require.NoError(t, err)
	assert.Equal(t, "12.5", restored.Balance().String())

	ttl, err := c.client.TTL(ctx, AccountKey(studentID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	// Entries from another schema are dropped on read.
	require.NoError(t, c.client.Set(ctx, AccountKey(studentID), `{"schema":0,"record":{"id":"`+studentID+`"}}`, time.Minute).Err())
	_, hit, err = cache.Get(ctx, studentID)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Invalidate(ctx, studentID))
	exists, err := c.client.Exists(ctx, AccountKey(studentID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestAccountKey(t *testing.T) {
	assert.Equal(t, "fees:account:v1:s-1", AccountKey("s-1"))
}

func TestAccountEntry(t *testing.T) {
	record := fees.AccountRecord{
		ID:           "s-1",
		ChargedTotal: decimal.RequireFromString("42.10"),
		PaidTotal:    decimal.Zero,
		Fees: []fees.FeeRecord{{
			ID:         "f-1",
			Amount:     decimal.RequireFromString("42.10"),
			Expiration: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	data, err := encodeEntry(record, time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	decoded, err := decodeEntry("s-1", data)
	require.NoError(t, err)
	assert.Equal(t, "s-1", decoded.ID)
	assert.Equal(t, "42.1", decoded.ChargedTotal.String())
	require.Len(t, decoded.Fees, 1)
	assert.True(t, decoded.Fees[0].Expiration.Equal(record.Fees[0].Expiration))

	tests := []struct {
		name      string
		studentID string
		data      string
	}{
		{"not json", "s-1", "{"},
		{"old schema", "s-1", `{"schema":0,"record":{"id":"s-1"}}`},
		{"other student", "s-2", string(data)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEntry(tt.studentID, []byte(tt.data))
			assert.ErrorIs(t, err, ErrStaleEntry)
		})
	}
}

func TestAccountCache_SetRejectsEmptyID(t *testing.T) {
	cache := NewAccountCache(NewCacheWithClient(nil, DefaultConfig()))
	err := cache.Set(context.Background(), fees.AccountRecord{})
	assert.ErrorIs(t, err, shared.ErrInvalidStudent)
}

func TestCache_AccountTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccountTTL = 0
	assert.Equal(t, DefaultAccountTTL, NewCacheWithClient(nil, cfg).accountTTL())

	cfg.AccountTTL = time.Minute
	assert.Equal(t, time.Minute, NewCacheWithClient(nil, cfg).accountTTL())
	assert.Equal(t, "localhost:6379", cfg.Addr())
}
