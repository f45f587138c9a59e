package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/FredM555/FL2M-Web-sub002/libs/db"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

// RecipientDirectory resolves the email address behind an appointment party.
type RecipientDirectory interface {
	RecipientEmail(ctx context.Context, appointmentID string, role model.Role) (string, error)
}

// Notifier implements lifecycle.Notifier by writing a notification-requested
// event to the outbox. Delivery is the notification service's job.
type Notifier struct {
	pool       *db.Pool
	repo       *Repository
	store      lifecycle.Store
	recipients RecipientDirectory
	adminEmail string
	logger     *slog.Logger
}

func NewNotifier(pool *db.Pool, repo *Repository, store lifecycle.Store, recipients RecipientDirectory, adminEmail string, logger *slog.Logger) *Notifier {
	return &Notifier{
		pool:       pool,
		repo:       repo,
		store:      store,
		recipients: recipients,
		adminEmail: adminEmail,
		logger:     logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, recipient model.Role, appointmentID, eventType string) error {
	appt, err := n.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}

	email := n.adminEmail
	if recipient != model.RoleAdmin {
		email, err = n.recipients.RecipientEmail(ctx, appointmentID, recipient)
		if err != nil {
			return err
		}
	}

	payload, err := json.Marshal(NotificationPayload{
		AppointmentID:  appointmentID,
		ShortCode:      appt.ShortCode,
		RecipientRole:  string(recipient),
		RecipientEmail: email,
		EventType:      eventType,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := n.repo.Insert(ctx, tx, Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		Topic:         lifecycle.TopicNotificationRequested,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LogNotifier is the dev-mode fallback when neither Postgres nor Kafka is
// configured. It logs what would have been sent.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, recipient model.Role, appointmentID, eventType string) error {
	n.logger.Info("notification requested (noop)",
		"recipient_role", string(recipient),
		"appointment_id", appointmentID,
		"event_type", eventType,
	)
	return nil
}
