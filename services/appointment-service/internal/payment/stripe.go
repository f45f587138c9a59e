package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/refund"
	"github.com/stripe/stripe-go/v79/transfer"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

// AccountDirectory resolves a practitioner's connected payout account.
type AccountDirectory interface {
	PractitionerAccount(ctx context.Context, practitionerID string) (string, error)
}

// StripeClient releases held funds to practitioners and refunds clients
// through Stripe. Release moves the captured amount to the practitioner's
// connected account; Refund reverses the original payment intent.
type StripeClient struct {
	accounts AccountDirectory
	logger   *slog.Logger
	currency string
}

func NewStripeClient(secretKey string, accounts AccountDirectory, logger *slog.Logger, currency string) *StripeClient {
	// Stripe uses a global API key; set once at construction.
	stripe.Key = strings.TrimSpace(secretKey)
	if currency == "" {
		currency = "eur"
	}
	return &StripeClient{accounts: accounts, logger: logger, currency: strings.ToLower(currency)}
}

func (c *StripeClient) Release(ctx context.Context, appt model.Appointment) error {
	price := appt.EffectivePrice()
	if model.IsOnRequest(price) {
		return fmt.Errorf("%w: appointment %s has no settled price", lifecycle.ErrPaymentRelease, appt.ID)
	}
	account, err := c.accounts.PractitionerAccount(ctx, appt.PractitionerID)
	if err != nil {
		return fmt.Errorf("%w: %v", lifecycle.ErrPaymentRelease, err)
	}

	amountCents := price.Mul(centsFactor).IntPart()
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(c.currency),
		Destination:   stripe.String(account),
		TransferGroup: stripe.String(appt.ID),
		Metadata: map[string]string{
			"appointment_id": appt.ID,
			"short_code":     appt.ShortCode,
		},
	}
	// Deterministic key makes retries of the same release safe.
	params.IdempotencyKey = stripe.String("release:" + appt.ID)

	tr, err := transfer.New(params)
	if err != nil {
		c.logger.Error("stripe transfer failed", "err", err, "appointment_id", appt.ID, "destination", account)
		return fmt.Errorf("%w: %v", lifecycle.ErrPaymentRelease, err)
	}
	c.logger.Info("payment released",
		"appointment_id", appt.ID,
		"transfer_id", tr.ID,
		"amount_cents", amountCents,
		"currency", c.currency,
	)
	return nil
}

func (c *StripeClient) Refund(ctx context.Context, appt model.Appointment) error {
	if strings.TrimSpace(appt.PaymentRef) == "" {
		return fmt.Errorf("%w: appointment %s has no payment reference", lifecycle.ErrPaymentRelease, appt.ID)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(appt.PaymentRef),
		Metadata: map[string]string{
			"appointment_id": appt.ID,
			"short_code":     appt.ShortCode,
		},
	}
	params.IdempotencyKey = stripe.String("refund:" + appt.ID)

	rf, err := refund.New(params)
	if err != nil {
		c.logger.Error("stripe refund failed", "err", err, "appointment_id", appt.ID, "payment_ref", appt.PaymentRef)
		return fmt.Errorf("%w: %v", lifecycle.ErrPaymentRelease, err)
	}
	c.logger.Info("payment refunded",
		"appointment_id", appt.ID,
		"refund_id", rf.ID,
		"payment_ref", appt.PaymentRef,
	)
	return nil
}
