package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/tutorhive/payments/internal/models"
)

// Ensure StripeGateway implements Gateway
var _ Gateway = (*StripeGateway)(nil)

const defaultCallTimeout = 15 * time.Second

// StripeGateway implements Gateway against Stripe Connect.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	callTimeout   time.Duration
}

// NewStripeGateway creates a gateway with the given API key and webhook
// signing secret.
func NewStripeGateway(apiKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
		callTimeout:   defaultCallTimeout,
	}
}

// boundedCtx ensures every outbound call carries a deadline.
func (g *StripeGateway) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.callTimeout)
}

// CreateDestinationCharge opens a PaymentIntent that routes the payee's
// share to their connected account and retains the platform fee.
func (g *StripeGateway) CreateDestinationCharge(ctx context.Context, p ChargeParams) (*ChargeAuthorization, error) {
	ctx, cancel := g.boundedCtx(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(p.Amount),
		Currency:             stripe.String(p.Currency),
		ApplicationFeeAmount: stripe.Int64(p.PlatformFee),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.DestinationAccount),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("engagement_id", p.EngagementID)

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination charge: %w", err)
	}

	return &ChargeAuthorization{
		ChargeRef:    intent.ID,
		ClientHandle: intent.ClientSecret,
	}, nil
}

// CreateTransfer executes a payout transfer to the payee's connected
// account. The settlement record ID serves as the idempotency key, so a
// retried call for the same record cannot move money twice processor-side.
func (g *StripeGateway) CreateTransfer(ctx context.Context, p TransferParams) (*TransferResult, error) {
	ctx, cancel := g.boundedCtx(ctx)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(p.Amount),
		Currency:      stripe.String(p.Currency),
		Destination:   stripe.String(p.DestinationAccount),
		TransferGroup: stripe.String(p.RecordID),
	}
	params.Context = ctx
	params.SetIdempotencyKey("settlement-transfer-" + p.RecordID)

	transfer, err := g.api.Transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	return &TransferResult{TransferRef: transfer.ID}, nil
}

// GetAccountFlags reads the connected account's current capability flags.
func (g *StripeGateway) GetAccountFlags(ctx context.Context, accountRef string) (models.EligibilityFlags, error) {
	ctx, cancel := g.boundedCtx(ctx)
	defer cancel()

	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := g.api.Accounts.GetByID(accountRef, params)
	if err != nil {
		return models.EligibilityFlags{}, fmt.Errorf("failed to get account %s: %w", accountRef, err)
	}

	return models.EligibilityFlags{
		CanReceiveCharges: acct.ChargesEnabled,
		CanReceivePayouts: acct.PayoutsEnabled,
	}, nil
}

// VerifyNotification checks the Stripe-Signature header over the raw
// payload and maps the event to a Notification.
func (g *StripeGateway) VerifyNotification(payload []byte, sigHeader string) (*Notification, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	n := &Notification{EventID: event.ID}

	switch event.Type {
	case "payment_intent.succeeded":
		n.Kind = ChargeSucceeded
	case "payment_intent.payment_failed":
		n.Kind = ChargeFailed
	case "payment_intent.canceled":
		n.Kind = ChargeCanceled
	case "account.updated":
		n.Kind = AccountUpdated
	default:
		n.Kind = KindIgnored
		return n, nil
	}

	if n.Kind == AccountUpdated {
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		n.AccountRef = acct.ID
		return n, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	n.ChargeRef = intent.ID
	return n, nil
}
