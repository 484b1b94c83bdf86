package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/pkg/circuitbreaker"
	"github.com/music-school/student-fees/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT RECORD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// AccountCache implements fees.RecordCache on top of Cache. Entries are
// JSON envelopes tagged with EntrySchema.
type AccountCache struct {
	cache *Cache
}

// NewAccountCache creates a new AccountCache.
func NewAccountCache(cache *Cache) *AccountCache {
	return &AccountCache{cache: cache}
}

// Compile-time check.
var _ fees.RecordCache = (*AccountCache)(nil)

type accountEntry struct {
	Schema   int                `json:"schema"`
	CachedAt time.Time          `json:"cached_at"`
	Record   fees.AccountRecord `json:"record"`
}

// ErrStaleEntry marks an entry that cannot be served and should be dropped.
var ErrStaleEntry = errors.New("cache: stale account entry")

func encodeEntry(record fees.AccountRecord, now time.Time) ([]byte, error) {
	return json.Marshal(accountEntry{Schema: EntrySchema, CachedAt: now.UTC(), Record: record})
}

func decodeEntry(studentID string, data []byte) (*fees.AccountRecord, error) {
	var entry accountEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleEntry, err)
	}
	if entry.Schema != EntrySchema {
		return nil, fmt.Errorf("%w: schema %d", ErrStaleEntry, entry.Schema)
	}
	if entry.Record.ID != studentID {
		return nil, fmt.Errorf("%w: holds %q", ErrStaleEntry, entry.Record.ID)
	}
	return &entry.Record, nil
}

// Get returns the cached record, or (nil, false, nil) on a miss.
// An undecodable entry is deleted and reported as a miss.
func (c *AccountCache) Get(ctx context.Context, studentID string) (*fees.AccountRecord, bool, error) {
	key := AccountKey(studentID)
	data, err := c.cache.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	record, err := decodeEntry(studentID, data)
	if err != nil {
		return nil, false, c.cache.client.Del(ctx, key).Err()
	}
	return record, true, nil
}

// Set caches the record under its student id for Config.AccountTTL.
func (c *AccountCache) Set(ctx context.Context, record fees.AccountRecord) error {
	if record.ID == "" {
		return shared.ErrInvalidStudent
	}
	data, err := encodeEntry(record, time.Now())
	if err != nil {
		return fmt.Errorf("encode account %s: %w", record.ID, err)
	}
	return c.cache.client.Set(ctx, AccountKey(record.ID), data, c.cache.accountTTL()).Err()
}

// Invalidate drops the cached record.
func (c *AccountCache) Invalidate(ctx context.Context, studentID string) error {
	return c.cache.client.Del(ctx, AccountKey(studentID)).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHED REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CachedRepository decorates a fees.Repository with a cache-aside read path.
//
// Loads through the fees.Repository methods always hit the inner store, so a
// command never mutates a cached copy. Only Reader serves from the cache.
// Save drops the cached entry after a successful write. If that drop fails,
// or a reader refills the cache with a copy loaded before the write, readers
// may see the old account until AccountTTL expires; writes are unaffected.
// Cache failures never fail a call, and the breaker stops hammering an
// unhealthy cache.
type CachedRepository struct {
	inner   fees.Repository
	cache   fees.RecordCache
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewCachedRepository creates a new CachedRepository.
// A nil breaker gets circuitbreaker.CacheBreaker.
func NewCachedRepository(
	inner fees.Repository,
	cache fees.RecordCache,
	breaker *circuitbreaker.CircuitBreaker,
	log *logger.Logger,
) *CachedRepository {
	log = log.With(logger.Component("account_cache"))
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("cache circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})
	}

	return &CachedRepository{
		inner:   inner,
		cache:   cache,
		breaker: breaker,
		log:     log,
	}
}

// Compile-time checks.
var (
	_ fees.Repository = (*CachedRepository)(nil)
	_ fees.Reader     = (*CachedReader)(nil)
)

// GetByID loads the account from the inner store.
func (r *CachedRepository) GetByID(ctx context.Context, studentID string) (*fees.Account, error) {
	return r.inner.GetByID(ctx, studentID)
}

// GetByIDOrFail loads the account from the inner store or returns ErrAccountNotFound.
func (r *CachedRepository) GetByIDOrFail(ctx context.Context, studentID string) (*fees.Account, error) {
	return r.inner.GetByIDOrFail(ctx, studentID)
}

// Save writes through to the inner repository and then drops the cached copy.
func (r *CachedRepository) Save(ctx context.Context, account *fees.Account) error {
	if err := r.inner.Save(ctx, account); err != nil {
		return err
	}

	studentID := account.ID()
	r.guard(ctx, "invalidate", studentID, func(ctx context.Context) error {
		return r.cache.Invalidate(ctx, studentID)
	})

	return nil
}

// Reader returns the cached read path for queries.
func (r *CachedRepository) Reader() *CachedReader {
	return &CachedReader{repo: r}
}

// CachedReader serves accounts from the cache and fills it on a miss.
type CachedReader struct {
	repo *CachedRepository
}

// GetByID returns the cached account when there is one.
func (c *CachedReader) GetByID(ctx context.Context, studentID string) (*fees.Account, error) {
	r := c.repo
	if account, ok := r.fromCache(ctx, studentID); ok {
		return account, nil
	}

	account, err := r.inner.GetByID(ctx, studentID)
	if err != nil || account == nil {
		return account, err
	}

	record := account.ToRecord()
	r.guard(ctx, "set", studentID, func(ctx context.Context) error {
		return r.cache.Set(ctx, record)
	})

	return account, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper methods
// ─────────────────────────────────────────────────────────────────────────────

func (r *CachedRepository) fromCache(ctx context.Context, studentID string) (*fees.Account, bool) {
	var (
		record *fees.AccountRecord
		hit    bool
	)
	r.guard(ctx, "get", studentID, func(ctx context.Context) error {
		var err error
		record, hit, err = r.cache.Get(ctx, studentID)
		return err
	})
	if !hit || record == nil {
		return nil, false
	}

	account, err := fees.FromRecord(*record)
	if err != nil {
		r.log.Warn("dropping corrupt cached account", logger.StudentID(studentID), logger.Err(err))
		r.guard(ctx, "invalidate", studentID, func(ctx context.Context) error {
			return r.cache.Invalidate(ctx, studentID)
		})
		return nil, false
	}

	return account, true
}

// guard runs a best-effort cache call through the breaker and logs failures.
func (r *CachedRepository) guard(ctx context.Context, op, studentID string, fn func(context.Context) error) {
	err := r.breaker.Execute(ctx, fn)
	switch {
	case err == nil:
	case circuitbreaker.IsRejection(err):
		r.log.Debug("cache call skipped", logger.Operation(op), logger.StudentID(studentID), logger.Err(err))
	default:
		r.log.Warn("cache call failed", logger.Operation(op), logger.StudentID(studentID), logger.Err(err))
	}
}
