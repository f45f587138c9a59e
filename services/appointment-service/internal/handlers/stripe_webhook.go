package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
)

// StripeWebhook receives payment capture events (no JWT auth; signature
// verification is the auth). A verified payment_intent.succeeded carrying an
// appointment_id drives the pending → confirmed transition.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	// Events carry the api_version the Stripe account was pinned to when they
	// were created, which need not match this library's pin; the signature is
	// the authenticity check, not the version.
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.stripeWebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                h.stripeWebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	if evtType != "payment_intent.succeeded" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		h.logger.Error("stripe: invalid payment intent payload", "err", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	appointmentID := strings.TrimSpace(intent.Metadata["appointment_id"])
	if appointmentID == "" {
		h.logger.Warn("stripe: missing appointment_id metadata on payment intent", "payment_intent", intent.ID)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	if _, err := h.svc.ConfirmPayment(r.Context(), appointmentID, intent.ID); err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrNotFound):
			h.logger.Warn("stripe: payment for unknown appointment", "appointment_id", appointmentID)
			writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		case errors.Is(err, lifecycle.ErrPreconditionFailed):
			// Out-of-order delivery; the appointment already moved on.
			h.logger.Warn("stripe: payment event arrived out of order", "appointment_id", appointmentID, "err", err)
			writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		default:
			http.Error(w, "failed to apply payment", http.StatusInternalServerError)
		}
		return
	}

	// Replay record. The conditional pending → confirmed write is what actually
	// prevents double-confirmation; recording after the apply means a failed
	// apply followed by a Stripe retry is not dropped as a duplicate.
	if _, err := h.store.RecordProviderEvent(r.Context(), "stripe", evt.ID, evtType); err != nil {
		h.logger.Warn("failed to record provider event", "provider_event_id", evt.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
