package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tutorhive/payments/internal/fees"
	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/processor/processortest"
	"github.com/tutorhive/payments/internal/storage/sqlite"
)

type testEnv struct {
	store   *sqlite.SQLiteStore
	gateway *processortest.FakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "payments-svc-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &testEnv{store: store, gateway: &processortest.FakeGateway{}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (env *testEnv) settlements() *SettlementService {
	return NewSettlementService(env.store, env.gateway, fees.DefaultRateBasisPoints, "usd", testLogger())
}

func (env *testEnv) payouts() *PayoutService {
	return NewPayoutService(env.store, env.gateway, "usd", testLogger())
}

func (env *testEnv) seedEngagement(t *testing.T, payerID, payeeID string, amount int64) *models.Engagement {
	t.Helper()
	e := &models.Engagement{PayerID: payerID, PayeeID: payeeID, Amount: amount}
	if err := env.store.CreateEngagement(context.Background(), e); err != nil {
		t.Fatalf("CreateEngagement failed: %v", err)
	}
	return e
}

func (env *testEnv) seedPayee(t *testing.T, payeeID, accountRef string, eligible bool) {
	t.Helper()
	err := env.store.UpsertPayeeAccount(context.Background(), &models.PayeeAccount{
		PayeeID:    payeeID,
		AccountRef: accountRef,
		Flags: models.EligibilityFlags{
			CanReceiveCharges: eligible,
			CanReceivePayouts: eligible,
		},
	})
	if err != nil {
		t.Fatalf("UpsertPayeeAccount failed: %v", err)
	}
}

func TestCreateSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending record with correct split", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
		env.seedPayee(t, "tutor-1", "acct_1", true)

		result, err := env.settlements().CreateSettlement(ctx, e.ID, 10000, "tutor-1", "student-1")
		if err != nil {
			t.Fatalf("CreateSettlement failed: %v", err)
		}
		if result.RecordID == "" || result.ClientHandle == "" {
			t.Error("expected record ID and client handle")
		}

		rec, err := env.store.GetSettlement(ctx, result.RecordID)
		if err != nil {
			t.Fatalf("GetSettlement failed: %v", err)
		}
		if rec.Status != models.SettlementPending {
			t.Errorf("status = %s, want pending", rec.Status)
		}
		if rec.PlatformFee != 1500 || rec.PayeePayout != 8500 {
			t.Errorf("split = %d/%d, want 1500/8500", rec.PlatformFee, rec.PayeePayout)
		}

		if env.gateway.ChargeCount() != 1 {
			t.Fatalf("expected 1 charge authorization, got %d", env.gateway.ChargeCount())
		}
		charge := env.gateway.Charges[0]
		if charge.DestinationAccount != "acct_1" {
			t.Errorf("charge destination = %s, want acct_1", charge.DestinationAccount)
		}
		if charge.PlatformFee != 1500 {
			t.Errorf("charge platform fee = %d, want 1500", charge.PlatformFee)
		}
	})

	t.Run("rejects caller who is not the payer", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
		env.seedPayee(t, "tutor-1", "acct_1", true)

		_, err := env.settlements().CreateSettlement(ctx, e.ID, 10000, "tutor-1", "someone-else")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if env.gateway.ChargeCount() != 0 {
			t.Error("expected no charge authorization")
		}
	})

	t.Run("rejects unknown engagement", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.settlements().CreateSettlement(ctx, "missing", 10000, "tutor-1", "student-1")
		if !errors.Is(err, ErrEngagementNotFound) {
			t.Errorf("expected ErrEngagementNotFound, got %v", err)
		}
	})

	t.Run("rejects payee that does not match engagement", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)

		_, err := env.settlements().CreateSettlement(ctx, e.ID, 10000, "tutor-2", "student-1")
		if !errors.Is(err, ErrPayeeMismatch) {
			t.Errorf("expected ErrPayeeMismatch, got %v", err)
		}
	})

	t.Run("not onboarded payee creates nothing", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
		env.seedPayee(t, "tutor-1", "", false) // no connected account

		_, err := env.settlements().CreateSettlement(ctx, e.ID, 10000, "tutor-1", "student-1")
		if !errors.Is(err, ErrPayeeNotOnboarded) {
			t.Fatalf("expected ErrPayeeNotOnboarded, got %v", err)
		}
		if env.gateway.ChargeCount() != 0 {
			t.Error("expected no charge authorization for unonboarded payee")
		}

		records, err := env.store.ListSettlementsByPayee(ctx, "tutor-1")
		if err != nil {
			t.Fatalf("ListSettlementsByPayee failed: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected no settlement records, got %d", len(records))
		}
	})

	t.Run("rejects non-positive amount before any side effect", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
		env.seedPayee(t, "tutor-1", "acct_1", true)

		_, err := env.settlements().CreateSettlement(ctx, e.ID, 0, "tutor-1", "student-1")
		if !errors.Is(err, fees.ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
		if env.gateway.ChargeCount() != 0 {
			t.Error("expected no charge authorization")
		}
	})

	t.Run("charge timeout is a partial failure", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
		env.seedPayee(t, "tutor-1", "acct_1", true)
		env.gateway.ChargeErr = context.DeadlineExceeded

		// The authorization may or may not exist processor-side; the caller
		// must be told not to blindly retry.
		_, err := env.settlements().CreateSettlement(ctx, e.ID, 10000, "tutor-1", "student-1")
		if !errors.Is(err, ErrPartialFailure) {
			t.Fatalf("expected ErrPartialFailure, got %v", err)
		}

		records, err := env.store.ListSettlementsByPayee(ctx, "tutor-1")
		if err != nil {
			t.Fatalf("ListSettlementsByPayee failed: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected no settlement records, got %d", len(records))
		}
	})

	t.Run("clear charge rejection is not a partial failure", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
		env.seedPayee(t, "tutor-1", "acct_1", true)
		env.gateway.ChargeErr = errors.New("card declined")

		_, err := env.settlements().CreateSettlement(ctx, e.ID, 10000, "tutor-1", "student-1")
		if err == nil {
			t.Fatal("expected error from rejected charge")
		}
		if errors.Is(err, ErrPartialFailure) {
			t.Error("a definite rejection must not be reported as a partial failure")
		}
	})

	t.Run("local create failure after external charge is a partial failure", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
		env.seedPayee(t, "tutor-1", "acct_1", true)

		svc := env.settlements()
		if _, err := svc.CreateSettlement(ctx, e.ID, 10000, "tutor-1", "student-1"); err != nil {
			t.Fatalf("first CreateSettlement failed: %v", err)
		}

		// The duplicate-active-record check lives in the store, past the
		// point where the external authorization was already opened: the
		// second attempt leaves an orphaned authorization behind.
		_, err := svc.CreateSettlement(ctx, e.ID, 10000, "tutor-1", "student-1")
		if !errors.Is(err, ErrPartialFailure) {
			t.Fatalf("expected ErrPartialFailure, got %v", err)
		}
		if env.gateway.ChargeCount() != 2 {
			t.Errorf("expected 2 charge authorizations, got %d", env.gateway.ChargeCount())
		}
	})
}

func TestGetSettlement_Authorization(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	e := env.seedEngagement(t, "student-1", "tutor-1", 10000)
	env.seedPayee(t, "tutor-1", "acct_1", true)

	svc := env.settlements()
	result, err := svc.CreateSettlement(ctx, e.ID, 10000, "tutor-1", "student-1")
	if err != nil {
		t.Fatalf("CreateSettlement failed: %v", err)
	}

	for _, caller := range []string{"student-1", "tutor-1"} {
		if _, err := svc.GetSettlement(ctx, result.RecordID, caller); err != nil {
			t.Errorf("GetSettlement as %s failed: %v", caller, err)
		}
	}
	if _, err := svc.GetSettlement(ctx, result.RecordID, "stranger"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for stranger, got %v", err)
	}
}
