package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/fees"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/pkg/logger"
	"github.com/music-school/student-fees/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements fees.Repository for PostgreSQL.
// Amounts travel as NUMERIC text so no precision is lost on either side.
type AccountRepository struct {
	conn    *Connection
	retries retry.Policy
}

// NewAccountRepository creates a new AccountRepository.
// Transient database errors are retried a few times before surfacing.
func NewAccountRepository(conn *Connection, log *logger.Logger) *AccountRepository {
	log = log.With(logger.Component("postgres_accounts"))
	return &AccountRepository{
		conn:    conn,
		retries: retry.DatabasePolicy(IsTransient, func(attempt int, err error, delay time.Duration) {
			log.Warn("retrying account query",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	}
}

// Compile-time check.
var _ fees.Repository = (*AccountRepository)(nil)

// GetByID returns the account or (nil, nil) if the student has none.
func (r *AccountRepository) GetByID(ctx context.Context, studentID string) (*fees.Account, error) {
	record, err := retry.DoValue(ctx, r.retries, func(ctx context.Context) (*fees.AccountRecord, error) {
		return r.loadRecord(ctx, studentID)
	})
	if err != nil {
		return nil, storeError("GetByID", fmt.Errorf("failed to load fee account: %w", err))
	}
	if record == nil {
		return nil, nil
	}

	account, err := fees.FromRecord(*record)
	if err != nil {
		return nil, fmt.Errorf("failed to restore fee account %s: %w", studentID, err)
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

// Save overwrites the account row and its ledger in one transaction.
func (r *AccountRepository) Save(ctx context.Context, account *fees.Account) error {
	record := account.ToRecord()

	err := r.retries.Do(ctx, func(ctx context.Context) error {
		return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			return saveRecord(ctx, tx, record)
		})
	})
	if err != nil {
		return storeError("Save", fmt.Errorf("failed to save fee account %s: %w", record.ID, err))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper methods
// ─────────────────────────────────────────────────────────────────────────────

// storeError marks failures that outlived the retries as unavailable.
func storeError(op string, err error) error {
	if IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return shared.StoreUnavailable(op, err)
	}
	return err
}

// loadRecord reads the account and its fees from one snapshot.
func (r *AccountRepository) loadRecord(ctx context.Context, studentID string) (*fees.AccountRecord, error) {
	var record *fees.AccountRecord

	err := r.conn.WithTx(ctx, SnapshotReadTxOptions(), func(tx pgx.Tx) error {
		var charged, paid string
		err := tx.QueryRow(ctx, `
			SELECT credit_amount::text, paid_amount::text
			FROM student_fee_accounts
			WHERE student_id = $1
		`, studentID).Scan(&charged, &paid)
		if IsNoRows(err) {
			return nil
		}
		if err != nil {
			return err
		}

		rec := fees.AccountRecord{ID: studentID, Fees: make([]fees.FeeRecord, 0)}
		if rec.ChargedTotal, err = decimal.NewFromString(charged); err != nil {
			return retry.Permanent(fmt.Errorf("credit_amount: %w", err))
		}
		if rec.PaidTotal, err = decimal.NewFromString(paid); err != nil {
			return retry.Permanent(fmt.Errorf("paid_amount: %w", err))
		}

		rows, err := tx.Query(ctx, `
			SELECT fee_id, amount::text, expiration, paid
			FROM student_fees
			WHERE student_id = $1
			ORDER BY position
		`, studentID)
		if err != nil {
			return err
		}

		var (
			feeID      string
			amount     string
			expiration time.Time
			isPaid     bool
		)
		_, err = pgx.ForEachRow(rows, []any{&feeID, &amount, &expiration, &isPaid}, func() error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return retry.Permanent(fmt.Errorf("fee %s amount: %w", feeID, err))
			}
			rec.Fees = append(rec.Fees, fees.FeeRecord{
				ID:         feeID,
				Amount:     value,
				Expiration: expiration.UTC(),
				Paid:       isPaid,
			})
			return nil
		})
		if err != nil {
			return err
		}

		record = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// saveRecord replaces the stored state with record. Must run inside a transaction.
func saveRecord(ctx context.Context, tx pgx.Tx, record fees.AccountRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO student_fee_accounts (student_id, credit_amount, paid_amount, created_at, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, NOW(), NOW())
		ON CONFLICT (student_id) DO UPDATE SET
			credit_amount = EXCLUDED.credit_amount,
			paid_amount = EXCLUDED.paid_amount,
			updated_at = NOW()
	`, record.ID, record.ChargedTotal.String(), record.PaidTotal.String())
	if err != nil {
		if IsCheckViolation(err) {
			return retry.Permanent(fmt.Errorf("%w: %w", shared.ErrInvalidRecord, err))
		}
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM student_fees WHERE student_id = $1`, record.ID); err != nil {
		return err
	}

	if len(record.Fees) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, fee := range record.Fees {
		batch.Queue(`
			INSERT INTO student_fees (student_id, fee_id, position, amount, expiration, paid)
			VALUES ($1, $2, $3, $4::numeric, $5, $6)
		`, record.ID, fee.ID, i, fee.Amount.String(), fee.Expiration, fee.Paid)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if IsUniqueViolation(err) || IsCheckViolation(err) {
			return retry.Permanent(fmt.Errorf("%w: %w", shared.ErrInvalidRecord, err))
		}
		return err
	}

	return nil
}
