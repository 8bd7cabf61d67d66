package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/storage"
)

// UpsertPayeeAccount inserts or replaces a payee account row. The
// onboarding subsystem owns this table; the helper exists for seeding and
// tests.
func (s *SQLiteStore) UpsertPayeeAccount(ctx context.Context, p *models.PayeeAccount) error {
	if p.UpdatedAt == 0 {
		p.UpdatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payee_accounts (payee_id, account_ref, can_receive_charges, can_receive_payouts, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(payee_id) DO UPDATE SET
		   account_ref = excluded.account_ref,
		   can_receive_charges = excluded.can_receive_charges,
		   can_receive_payouts = excluded.can_receive_payouts,
		   updated_at = excluded.updated_at`,
		p.PayeeID, p.AccountRef, p.Flags.CanReceiveCharges, p.Flags.CanReceivePayouts, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert payee account: %w", err)
	}
	return nil
}

// GetPayeeAccount retrieves a payee account by payee ID.
func (s *SQLiteStore) GetPayeeAccount(ctx context.Context, payeeID string) (*models.PayeeAccount, error) {
	p := &models.PayeeAccount{}
	err := s.db.QueryRowContext(ctx,
		`SELECT payee_id, account_ref, can_receive_charges, can_receive_payouts, updated_at
		 FROM payee_accounts WHERE payee_id = ?`,
		payeeID,
	).Scan(&p.PayeeID, &p.AccountRef, &p.Flags.CanReceiveCharges, &p.Flags.CanReceivePayouts, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payee account %s: %w", payeeID, storage.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payee account: %w", err)
	}
	return p, nil
}

// GetPayeeAccountByAccountRef resolves a processor account reference back
// to the payee account row.
func (s *SQLiteStore) GetPayeeAccountByAccountRef(ctx context.Context, accountRef string) (*models.PayeeAccount, error) {
	p := &models.PayeeAccount{}
	err := s.db.QueryRowContext(ctx,
		`SELECT payee_id, account_ref, can_receive_charges, can_receive_payouts, updated_at
		 FROM payee_accounts WHERE account_ref = ? AND account_ref != ''`,
		accountRef,
	).Scan(&p.PayeeID, &p.AccountRef, &p.Flags.CanReceiveCharges, &p.Flags.CanReceivePayouts, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account ref %s: %w", accountRef, storage.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payee by account ref: %w", err)
	}
	return p, nil
}

// UpdateEligibilityFlags persists the latest observed capability flags.
func (s *SQLiteStore) UpdateEligibilityFlags(ctx context.Context, payeeID string, flags models.EligibilityFlags) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payee_accounts
		 SET can_receive_charges = ?, can_receive_payouts = ?, updated_at = ?
		 WHERE payee_id = ?`,
		flags.CanReceiveCharges, flags.CanReceivePayouts, time.Now().Unix(), payeeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update eligibility flags: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("payee account %s: %w", payeeID, storage.ErrRecordNotFound)
	}
	return nil
}
