// Package memory provides an in-process fees.Repository for local runs and tests.
// Accounts are kept as records, so every load builds a fresh aggregate.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
)

// AccountRepository implements fees.Repository on a map guarded by a RWMutex.
type AccountRepository struct {
	mu      sync.RWMutex
	records map[string]fees.AccountRecord
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{records: make(map[string]fees.AccountRecord)}
}

// Compile-time check.
var _ fees.Repository = (*AccountRepository)(nil)

// GetByID returns the account or (nil, nil) if the student has none.
func (r *AccountRepository) GetByID(ctx context.Context, studentID string) (*fees.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	record, ok := r.records[studentID]
	r.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	account, err := fees.FromRecord(cloneRecord(record))
	if err != nil {
		return nil, fmt.Errorf("memory: load account %s: %w", studentID, err)
	}
	return account, nil
}

// GetByIDOrFail returns the account or ErrAccountNotFound.
func (r *AccountRepository) GetByIDOrFail(ctx context.Context, studentID string) (*fees.Account, error) {
	account, err := r.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, studentID)
	}
	return account, nil
}

// Save overwrites the stored state of the account.
func (r *AccountRepository) Save(ctx context.Context, account *fees.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record := account.ToRecord()

	r.mu.Lock()
	r.records[record.ID] = record
	r.mu.Unlock()

	return nil
}

// Len returns the number of stored accounts.
func (r *AccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Ping always succeeds; it lets the memory store sit behind the same readiness check as Postgres.
func (r *AccountRepository) Ping(context.Context) error {
	return nil
}

func cloneRecord(record fees.AccountRecord) fees.AccountRecord {
	out := record
	out.Fees = make([]fees.FeeRecord, len(record.Fees))
	copy(out.Fees, record.Fees)
	return out
}
