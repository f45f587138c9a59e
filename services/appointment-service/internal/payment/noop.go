package payment

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

var centsFactor = decimal.NewFromInt(100)

// LogClient is the dev-mode payment backend. It logs what a real release or
// refund would have done and always succeeds.
type LogClient struct {
	logger *slog.Logger
}

func NewLogClient(logger *slog.Logger) *LogClient {
	return &LogClient{logger: logger}
}

func (c *LogClient) Release(_ context.Context, appt model.Appointment) error {
	c.logger.Info("payment release (noop)",
		"appointment_id", appt.ID,
		"practitioner_id", appt.PractitionerID,
		"amount", appt.EffectivePrice().String(),
	)
	return nil
}

func (c *LogClient) Refund(_ context.Context, appt model.Appointment) error {
	c.logger.Info("payment refund (noop)",
		"appointment_id", appt.ID,
		"payment_ref", appt.PaymentRef,
	)
	return nil
}
