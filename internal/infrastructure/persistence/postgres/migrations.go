package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_student_fee_accounts",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "index_unpaid_fees",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENT FEE ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create student fee accounts and their ledger
-- Version: 001

-- One row per student that has ever been charged
CREATE TABLE IF NOT EXISTS student_fee_accounts (
    student_id VARCHAR(128) PRIMARY KEY,
    credit_amount NUMERIC NOT NULL DEFAULT 0,
    paid_amount NUMERIC NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_credit_amount CHECK (credit_amount >= 0),
    CONSTRAINT valid_paid_amount CHECK (paid_amount >= 0 AND paid_amount <= credit_amount)
);

-- Ledger entries; position keeps insertion order
CREATE TABLE IF NOT EXISTS student_fees (
    student_id VARCHAR(128) NOT NULL REFERENCES student_fee_accounts(student_id) ON DELETE CASCADE,
    fee_id VARCHAR(64) NOT NULL,
    position INTEGER NOT NULL,
    amount NUMERIC NOT NULL,
    expiration TIMESTAMP WITH TIME ZONE NOT NULL,
    paid BOOLEAN NOT NULL DEFAULT FALSE,

    PRIMARY KEY (student_id, fee_id),
    UNIQUE (student_id, position),
    CONSTRAINT valid_fee_amount CHECK (amount >= 0)
);

CREATE INDEX IF NOT EXISTS idx_student_fees_student_position ON student_fees(student_id, position);
`

const migration001Down = `
DROP TABLE IF EXISTS student_fees;
DROP TABLE IF EXISTS student_fee_accounts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: INDEX UNPAID FEES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Partial index for overdue lookups
-- Version: 002

CREATE INDEX IF NOT EXISTS idx_student_fees_unpaid_expiration
    ON student_fees(expiration)
    WHERE NOT paid;
`

const migration002Down = `
DROP INDEX IF EXISTS idx_student_fees_unpaid_expiration;
`
