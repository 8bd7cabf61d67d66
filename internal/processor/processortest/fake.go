// Package processortest provides an in-memory Gateway fake for tests.
package processortest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tutorhive/payments/internal/models"
	"github.com/tutorhive/payments/internal/processor"
)

// Ensure FakeGateway implements processor.Gateway
var _ processor.Gateway = (*FakeGateway)(nil)

// FakeGateway records calls and returns configurable outcomes. Zero value
// is usable: all calls succeed with generated references.
type FakeGateway struct {
	mu sync.Mutex

	// ChargeErr fails every CreateDestinationCharge call.
	ChargeErr error

	// TransferErr fails CreateTransfer for specific record IDs.
	TransferErr map[string]error

	// Flags and FlagsErr control GetAccountFlags.
	Flags    models.EligibilityFlags
	FlagsErr error

	// VerifyFn overrides VerifyNotification; nil rejects everything.
	VerifyFn func(payload []byte, sigHeader string) (*processor.Notification, error)

	Charges   []processor.ChargeParams
	Transfers []processor.TransferParams

	chargeSeq   int
	transferSeq int
}

func (f *FakeGateway) CreateDestinationCharge(ctx context.Context, p processor.ChargeParams) (*processor.ChargeAuthorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ChargeErr != nil {
		return nil, f.ChargeErr
	}
	f.chargeSeq++
	f.Charges = append(f.Charges, p)
	ref := fmt.Sprintf("pi_fake_%d", f.chargeSeq)
	return &processor.ChargeAuthorization{
		ChargeRef:    ref,
		ClientHandle: ref + "_secret",
	}, nil
}

func (f *FakeGateway) CreateTransfer(ctx context.Context, p processor.TransferParams) (*processor.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.TransferErr[p.RecordID]; ok {
		return nil, err
	}
	f.transferSeq++
	f.Transfers = append(f.Transfers, p)
	return &processor.TransferResult{
		TransferRef: fmt.Sprintf("tr_fake_%d", f.transferSeq),
	}, nil
}

func (f *FakeGateway) GetAccountFlags(ctx context.Context, accountRef string) (models.EligibilityFlags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Flags, f.FlagsErr
}

func (f *FakeGateway) VerifyNotification(payload []byte, sigHeader string) (*processor.Notification, error) {
	f.mu.Lock()
	verify := f.VerifyFn
	f.mu.Unlock()
	if verify == nil {
		return nil, errors.New("no VerifyFn configured")
	}
	return verify(payload, sigHeader)
}

// TransferCount returns the number of executed transfers.
func (f *FakeGateway) TransferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Transfers)
}

// ChargeCount returns the number of opened charge authorizations.
func (f *FakeGateway) ChargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Charges)
}
