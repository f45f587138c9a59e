package storage

import (
	"context"

	"github.com/FredM555/FL2M-Web-sub002/libs/db"
)

// Notification is one delivery attempt, kept as an audit trail of what was
// sent to whom and for which lifecycle event.
type Notification struct {
	AppointmentID string
	ShortCode     string
	RecipientRole string
	Recipient     string
	EventType     string
	Status        string
	FailureReason string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, short_code, recipient_role, recipient, event_type, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, n.AppointmentID, n.ShortCode, n.RecipientRole, n.Recipient, n.EventType, n.Status, n.FailureReason)
	return err
}
