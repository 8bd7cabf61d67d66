package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tutorhive/payments/internal/models"
)

// recordingNudger captures enqueued payee IDs.
type recordingNudger struct {
	enqueued []string
	full     bool
}

func (n *recordingNudger) Enqueue(payeeID string) bool {
	if n.full {
		return false
	}
	n.enqueued = append(n.enqueued, payeeID)
	return true
}

func TestCheckAndMaybeTriggerRetry(t *testing.T) {
	ctx := context.Background()
	eligible := models.EligibilityFlags{CanReceiveCharges: true, CanReceivePayouts: true}

	t.Run("nudges on the not-eligible to eligible transition", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPayee(t, "tutor-1", "acct_1", false)
		env.gateway.Flags = eligible

		nudger := &recordingNudger{}
		svc := NewEligibilityService(env.store, env.gateway, nudger, testLogger())

		flags, err := svc.CheckAndMaybeTriggerRetry(ctx, "tutor-1")
		if err != nil {
			t.Fatalf("CheckAndMaybeTriggerRetry failed: %v", err)
		}
		if !flags.Eligible() {
			t.Error("expected returned flags to be eligible")
		}
		if len(nudger.enqueued) != 1 || nudger.enqueued[0] != "tutor-1" {
			t.Errorf("nudged = %v, want [tutor-1]", nudger.enqueued)
		}

		account, err := env.store.GetPayeeAccount(ctx, "tutor-1")
		if err != nil {
			t.Fatalf("GetPayeeAccount failed: %v", err)
		}
		if !account.Flags.Eligible() {
			t.Error("expected persisted flags to be eligible")
		}
	})

	t.Run("no nudge when already eligible", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPayee(t, "tutor-1", "acct_1", true)
		env.gateway.Flags = eligible

		nudger := &recordingNudger{}
		svc := NewEligibilityService(env.store, env.gateway, nudger, testLogger())

		if _, err := svc.CheckAndMaybeTriggerRetry(ctx, "tutor-1"); err != nil {
			t.Fatalf("CheckAndMaybeTriggerRetry failed: %v", err)
		}
		if len(nudger.enqueued) != 0 {
			t.Errorf("nudged = %v, want none", nudger.enqueued)
		}
	})

	t.Run("no nudge when still not eligible", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPayee(t, "tutor-1", "acct_1", false)
		env.gateway.Flags = models.EligibilityFlags{CanReceiveCharges: true}

		nudger := &recordingNudger{}
		svc := NewEligibilityService(env.store, env.gateway, nudger, testLogger())

		flags, err := svc.CheckAndMaybeTriggerRetry(ctx, "tutor-1")
		if err != nil {
			t.Fatalf("CheckAndMaybeTriggerRetry failed: %v", err)
		}
		if flags.Eligible() {
			t.Error("expected flags to remain ineligible")
		}
		if len(nudger.enqueued) != 0 {
			t.Errorf("nudged = %v, want none", nudger.enqueued)
		}
	})

	t.Run("full nudge queue does not fail the check", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPayee(t, "tutor-1", "acct_1", false)
		env.gateway.Flags = eligible

		svc := NewEligibilityService(env.store, env.gateway, &recordingNudger{full: true}, testLogger())
		if _, err := svc.CheckAndMaybeTriggerRetry(ctx, "tutor-1"); err != nil {
			t.Errorf("dropped nudge must not fail the check, got %v", err)
		}
	})

	t.Run("not onboarded payee is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		svc := NewEligibilityService(env.store, env.gateway, nil, testLogger())

		_, err := svc.CheckAndMaybeTriggerRetry(ctx, "tutor-missing")
		if !errors.Is(err, ErrPayeeNotOnboarded) {
			t.Errorf("expected ErrPayeeNotOnboarded, got %v", err)
		}
	})

	t.Run("gateway failure leaves stored flags untouched", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPayee(t, "tutor-1", "acct_1", true)
		env.gateway.FlagsErr = errors.New("processor unavailable")

		svc := NewEligibilityService(env.store, env.gateway, nil, testLogger())
		if _, err := svc.CheckAndMaybeTriggerRetry(ctx, "tutor-1"); err == nil {
			t.Fatal("expected error from gateway failure")
		}

		account, err := env.store.GetPayeeAccount(ctx, "tutor-1")
		if err != nil {
			t.Fatalf("GetPayeeAccount failed: %v", err)
		}
		if !account.Flags.Eligible() {
			t.Error("stored flags must not change on gateway failure")
		}
	})
}
