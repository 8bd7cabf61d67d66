package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
//
// The partial unique index on settlement_records(engagement_id) enforces
// "at most one active record per engagement" at the database, so concurrent
// creates cannot race past the in-transaction existence check. The partial
// index on (status, transfer_ref) backs the unsettled-payouts scan.
const schema = `
CREATE TABLE IF NOT EXISTS engagements (
    id TEXT PRIMARY KEY,
    payer_id TEXT NOT NULL,
    payee_id TEXT NOT NULL,
    amount INTEGER NOT NULL,
    payment_status TEXT NOT NULL DEFAULT 'unpaid',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payee_accounts (
    payee_id TEXT PRIMARY KEY,
    account_ref TEXT NOT NULL DEFAULT '',
    can_receive_charges INTEGER NOT NULL DEFAULT 0,
    can_receive_payouts INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settlement_records (
    id TEXT PRIMARY KEY,
    engagement_id TEXT NOT NULL,
    amount INTEGER NOT NULL,
    platform_fee INTEGER NOT NULL,
    payee_payout INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    charge_ref TEXT NOT NULL,
    transfer_ref TEXT,
    created_at INTEGER NOT NULL,
    last_transition_at INTEGER NOT NULL,
    FOREIGN KEY (engagement_id) REFERENCES engagements(id),
    CHECK (platform_fee + payee_payout = amount)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_settlement_records_active
    ON settlement_records(engagement_id) WHERE status != 'failed';
CREATE UNIQUE INDEX IF NOT EXISTS idx_settlement_records_charge_ref
    ON settlement_records(charge_ref);
CREATE INDEX IF NOT EXISTS idx_settlement_records_unsettled
    ON settlement_records(status) WHERE status = 'completed' AND transfer_ref IS NULL;
CREATE INDEX IF NOT EXISTS idx_engagements_payee_id ON engagements(payee_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
