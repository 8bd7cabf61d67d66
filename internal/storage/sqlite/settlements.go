package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/storage"
)

const settlementColumns = `id, engagement_id, amount, platform_fee, payee_payout, status, charge_ref, transfer_ref, created_at, last_transition_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row scanner) (*models.SettlementRecord, error) {
	rec := &models.SettlementRecord{}
	var transferRef sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.EngagementID,
		&rec.Amount,
		&rec.PlatformFee,
		&rec.PayeePayout,
		&rec.Status,
		&rec.ChargeRef,
		&transferRef,
		&rec.CreatedAt,
		&rec.LastTransitionAt,
	)
	if err != nil {
		return nil, err
	}
	if transferRef.Valid {
		rec.TransferRef = transferRef.String
	}
	return rec, nil
}

// CreateSettlement persists a new settlement record in pending state.
// The partial unique index on active engagement records backs up the
// in-transaction existence check, so two concurrent creates for the same
// engagement cannot both succeed.
func (s *SQLiteStore) CreateSettlement(ctx context.Context, rec *models.SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	if rec.LastTransitionAt == 0 {
		rec.LastTransitionAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = models.SettlementPending
	}
	if rec.PlatformFee+rec.PayeePayout != rec.Amount {
		return fmt.Errorf("refusing to persist split that does not sum: %d + %d != %d",
			rec.PlatformFee, rec.PayeePayout, rec.Amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM settlement_records WHERE engagement_id = ? AND status != ?",
		rec.EngagementID, models.SettlementFailed,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check for active record: %w", err)
	}
	if existing > 0 {
		return storage.ErrDuplicateActiveRecord
	}

	var transferRef any
	if rec.TransferRef != "" {
		transferRef = rec.TransferRef
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlement_records (`+settlementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EngagementID, rec.Amount, rec.PlatformFee, rec.PayeePayout,
		rec.Status, rec.ChargeRef, transferRef, rec.CreatedAt, rec.LastTransitionAt,
	)
	if err != nil {
		// The partial unique index on active engagement records reports its
		// violation against the engagement_id column. Other unique indexes
		// (charge_ref) must not be mistaken for a duplicate active record.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") &&
			strings.Contains(err.Error(), "settlement_records.engagement_id") {
			return storage.ErrDuplicateActiveRecord
		}
		return fmt.Errorf("failed to insert settlement record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetSettlement retrieves a settlement record by ID.
func (s *SQLiteStore) GetSettlement(ctx context.Context, id string) (*models.SettlementRecord, error) {
	rec, err := scanSettlement(s.db.QueryRowContext(ctx,
		"SELECT "+settlementColumns+" FROM settlement_records WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("settlement %s: %w", id, storage.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement record: %w", err)
	}
	return rec, nil
}

// GetSettlementByChargeRef retrieves a settlement record by its processor
// charge reference.
func (s *SQLiteStore) GetSettlementByChargeRef(ctx context.Context, chargeRef string) (*models.SettlementRecord, error) {
	rec, err := scanSettlement(s.db.QueryRowContext(ctx,
		"SELECT "+settlementColumns+" FROM settlement_records WHERE charge_ref = ?", chargeRef,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("charge ref %s: %w", chargeRef, storage.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement by charge ref: %w", err)
	}
	return rec, nil
}

// UnsettledPayouts yields completed records without a transfer reference
// for the given payee. The query runs when the sequence is ranged over, so
// every pass observes the current state of the table.
func (s *SQLiteStore) UnsettledPayouts(ctx context.Context, payeeID string) iter.Seq2[*models.SettlementRecord, error] {
	return func(yield func(*models.SettlementRecord, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT r.id, r.engagement_id, r.amount, r.platform_fee, r.payee_payout,
			        r.status, r.charge_ref, r.transfer_ref, r.created_at, r.last_transition_at
			 FROM settlement_records r
			 JOIN engagements e ON e.id = r.engagement_id
			 WHERE e.payee_id = ? AND r.status = ? AND r.transfer_ref IS NULL
			 ORDER BY r.created_at`,
			payeeID, models.SettlementCompleted,
		)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query unsettled payouts: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanSettlement(rows)
			if err != nil {
				yield(nil, fmt.Errorf("failed to scan settlement record: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate unsettled payouts: %w", err))
		}
	}
}

// TransitionStatus moves a record from one status to another as a single
// conditional update. The WHERE clause carries the expected prior status,
// so only one of any number of concurrent callers observes success, and
// last_transition_at moves only with the status.
func (s *SQLiteStore) TransitionStatus(ctx context.Context, id string, from, to models.SettlementStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE settlement_records SET status = ?, last_transition_at = ? WHERE id = ? AND status = ?",
		to, time.Now().Unix(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition settlement status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetTransferRef records the payout transfer reference. The IS NULL guard
// makes the write first-wins: a second transfer for the same record cannot
// overwrite the reference, it only gets a false return.
func (s *SQLiteStore) SetTransferRef(ctx context.Context, id, transferRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE settlement_records SET transfer_ref = ? WHERE id = ? AND transfer_ref IS NULL",
		transferRef, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set transfer ref: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListSettlementsByPayee returns the payee's settlement records, newest first.
func (s *SQLiteStore) ListSettlementsByPayee(ctx context.Context, payeeID string) ([]*models.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.engagement_id, r.amount, r.platform_fee, r.payee_payout,
		        r.status, r.charge_ref, r.transfer_ref, r.created_at, r.last_transition_at
		 FROM settlement_records r
		 JOIN engagements e ON e.id = r.engagement_id
		 WHERE e.payee_id = ?
		 ORDER BY r.created_at DESC`,
		payeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by payee: %w", err)
	}
	defer rows.Close()

	var records []*models.SettlementRecord
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return records, nil
}

// PayeesWithUnsettledPayouts returns the distinct payees that have at least
// one completed record awaiting a transfer.
func (s *SQLiteStore) PayeesWithUnsettledPayouts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT e.payee_id
		 FROM settlement_records r
		 JOIN engagements e ON e.id = r.engagement_id
		 WHERE r.status = ? AND r.transfer_ref IS NULL
		 ORDER BY e.payee_id`,
		models.SettlementCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query payees with unsettled payouts: %w", err)
	}
	defer rows.Close()

	var payees []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan payee id: %w", err)
		}
		payees = append(payees, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payees: %w", err)
	}
	return payees, nil
}
