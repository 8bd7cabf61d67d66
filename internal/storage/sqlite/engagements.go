package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/storage"
)

// CreateEngagement inserts an engagement. The lesson subsystem owns this
// table; the helper exists for seeding and tests.
func (s *SQLiteStore) CreateEngagement(ctx context.Context, e *models.Engagement) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	if e.PaymentStatus == "" {
		e.PaymentStatus = models.PaymentUnpaid
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engagements (id, payer_id, payee_id, amount, payment_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.PayerID, e.PayeeID, e.Amount, e.PaymentStatus, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert engagement: %w", err)
	}
	return nil
}

// GetEngagement retrieves an engagement by ID.
func (s *SQLiteStore) GetEngagement(ctx context.Context, id string) (*models.Engagement, error) {
	e := &models.Engagement{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, payer_id, payee_id, amount, payment_status, created_at
		 FROM engagements WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.PayerID, &e.PayeeID, &e.Amount, &e.PaymentStatus, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("engagement %s: %w", id, storage.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get engagement: %w", err)
	}
	return e, nil
}

// MarkPaid sets the engagement's payment-status projection to paid.
func (s *SQLiteStore) MarkPaid(ctx context.Context, id string) error {
	return s.setPaymentStatus(ctx, id, models.PaymentPaid)
}

// MarkPaymentFailed sets the engagement's payment-status projection to failed.
func (s *SQLiteStore) MarkPaymentFailed(ctx context.Context, id string) error {
	return s.setPaymentStatus(ctx, id, models.PaymentFailed)
}

func (s *SQLiteStore) setPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE engagements SET payment_status = ? WHERE id = ?",
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("engagement %s: %w", id, storage.ErrRecordNotFound)
	}
	return nil
}
