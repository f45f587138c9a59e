package lifecycle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

// Fields carries the column updates a transition applies alongside the status
// write. Nil pointers leave the current value untouched. Comments are appended
// atomically with the status change so audit entries share the transition's
// commit point.
type Fields struct {
	PaymentStatus      *model.PaymentStatus
	PaymentRef         *string
	Contested          *bool
	ProblemDescription *string
	CancelReason       *string
	CancelledAt        *time.Time
	PractitionerID     *string
	ServicePrice       *decimal.Decimal
	Comments           []model.Comment
}

// Store is the data-store collaborator behind the state machine.
//
// TransitionStatus is the serialization point for the whole core: it applies
// the update only when the appointment's current status equals expect (a
// conditional update / row lock, so two racing transitions cannot both
// succeed), runs sideEffect inside the same atomic unit, and commits nothing
// if either fails. A conditional-update miss is reported as
// ErrPreconditionFailed; an unknown id as ErrNotFound; infrastructure
// failures as ErrTransientStore.
type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	CreateAppointment(ctx context.Context, appt model.Appointment) error
	TransitionStatus(ctx context.Context, id string, expect, next model.Status, fields Fields, sideEffect func(context.Context) error) (model.Appointment, error)

	AppendComment(ctx context.Context, c model.Comment) error
	ListComments(ctx context.Context, appointmentID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, appointmentID, commentID string) error

	ListByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error)
	ListByPractitioner(ctx context.Context, practitionerID string, limit int) ([]model.Appointment, error)

	// RecordProviderEvent deduplicates payment-provider webhook deliveries.
	// It returns false when the event id was already recorded.
	RecordProviderEvent(ctx context.Context, provider, eventID, eventType string) (bool, error)
}

// Payments releases or refunds captured funds. Release failures during
// validation abort the transition (all-or-nothing with the status write).
type Payments interface {
	Release(ctx context.Context, appt model.Appointment) error
	Refund(ctx context.Context, appt model.Appointment) error
}

// Notifier enqueues an outbound notification. Fire-and-forget relative to the
// authoritative state change: failures are logged, never surfaced, and never
// roll back a transition.
type Notifier interface {
	Notify(ctx context.Context, recipient model.Role, appointmentID, eventType string) error
}
