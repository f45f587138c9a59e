package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

// Service owns the appointment lifecycle: every status change goes through one
// of its transition methods, which gate on the authorization predicates, check
// the state-machine precondition, and hand the store an atomic update bundling
// the status write, its field changes, its audit entry, and (for validation
// and refunds) the payment side effect.
type Service struct {
	store    Store
	payments Payments
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, payments Payments, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		payments: payments,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type BookingRequest struct {
	ClientID       string
	PractitionerID string
	BeneficiaryID  string
	ServiceID      string
	ServicePrice   decimal.Decimal
	CustomPrice    *decimal.Decimal
	StartTime      time.Time
	EndTime        time.Time
	MeetingLink    string
	Notes          string
}

// Book creates a pending appointment. Clients book for themselves; admins may
// book on behalf of any client. The custom-price floor is enforced at write
// time — it is a data invariant, not a state-machine concern.
func (s *Service) Book(ctx context.Context, actor model.Actor, req BookingRequest) (model.Appointment, error) {
	if actor.Role == model.RoleClient {
		req.ClientID = actor.ID
	} else if actor.Role != model.RoleAdmin {
		return model.Appointment{}, fmt.Errorf("%w: only clients and admins may book", ErrForbidden)
	}
	if req.ClientID == "" || req.PractitionerID == "" || req.ServiceID == "" {
		return model.Appointment{}, fmt.Errorf("%w: client, practitioner and service are required", ErrPreconditionFailed)
	}
	if !req.EndTime.After(req.StartTime) {
		return model.Appointment{}, fmt.Errorf("%w: end time must be after start time", ErrPreconditionFailed)
	}
	if req.CustomPrice != nil {
		if err := model.ValidateCustomPrice(*req.CustomPrice, req.ServicePrice); err != nil {
			return model.Appointment{}, err
		}
	}

	now := s.now()
	appt := model.Appointment{
		ID:             uuid.NewString(),
		ClientID:       req.ClientID,
		PractitionerID: req.PractitionerID,
		BeneficiaryID:  req.BeneficiaryID,
		ServiceID:      req.ServiceID,
		ServicePrice:   req.ServicePrice,
		CustomPrice:    req.CustomPrice,
		Status:         model.StatusPending,
		PaymentStatus:  model.PaymentPending,
		StartTime:      req.StartTime.UTC(),
		EndTime:        req.EndTime.UTC(),
		MeetingLink:    req.MeetingLink,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	appt.ShortCode = shortCode(appt.ID)

	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := s.store.AppendComment(ctx, s.auditEntry(appt.ID, actor, "appointment booked")); err != nil {
		s.logger.Warn("booking audit entry failed", "appointment_id", appt.ID, "err", err)
	}
	s.notify(ctx, model.RolePractitioner, appt.ID, EventBooked)
	return appt, nil
}

// ConfirmPayment applies the pending → confirmed transition once the payment
// provider reports capture. The caller authenticates the provider (webhook
// signature); there is no actor predicate on this edge.
func (s *Service) ConfirmPayment(ctx context.Context, id, paymentRef string) (model.Appointment, error) {
	captured := model.PaymentCaptured
	updated, err := s.store.TransitionStatus(ctx, id, model.StatusPending, model.StatusConfirmed, Fields{
		PaymentStatus: &captured,
		PaymentRef:    &paymentRef,
		Comments: []model.Comment{
			s.systemEntry(id, "payment captured, appointment confirmed"),
		},
	}, nil)
	if err != nil {
		return model.Appointment{}, err
	}
	s.notify(ctx, model.RoleClient, id, EventConfirmed)
	s.notify(ctx, model.RolePractitioner, id, EventConfirmed)
	return updated, nil
}

// MarkCompleted is the practitioner's claim that the session was delivered.
// It never releases payment; money moves only on validation.
func (s *Service) MarkCompleted(ctx context.Context, actor model.Actor, id string) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanTransition(actor, appt, TransitionMarkCompleted) {
		return model.Appointment{}, ErrForbidden
	}
	if appt.Status != model.StatusConfirmed {
		return model.Appointment{}, fmt.Errorf("%w: cannot complete a %s appointment", ErrPreconditionFailed, appt.Status)
	}
	if appt.StartTime.After(s.now()) {
		return model.Appointment{}, fmt.Errorf("%w: session has not started yet", ErrPreconditionFailed)
	}

	updated, err := s.store.TransitionStatus(ctx, id, model.StatusConfirmed, model.StatusCompleted, Fields{
		Comments: []model.Comment{
			s.auditEntry(id, actor, "session marked completed by "+string(actor.Role)),
		},
	}, nil)
	if err != nil {
		return model.Appointment{}, err
	}
	s.notify(ctx, model.RoleClient, id, EventCompleted)
	return updated, nil
}

// Validate is the client's confirmation that the session was delivered. The
// payment release runs inside the same atomic unit as the status write: if
// release fails the appointment stays in its prior status and the caller gets
// ErrPaymentRelease, so a validated-but-unpaid state cannot exist.
func (s *Service) Validate(ctx context.Context, actor model.Actor, id, comment string) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanTransition(actor, appt, TransitionValidate) {
		return model.Appointment{}, ErrForbidden
	}
	if appt.Status != model.StatusCompleted && appt.Status != model.StatusIssueReported {
		return model.Appointment{}, fmt.Errorf("%w: cannot validate a %s appointment", ErrPreconditionFailed, appt.Status)
	}

	note := "session validated by client, payment released"
	if appt.Contested {
		note = "session validated by client, dispute resolved, payment released"
	}
	comments := []model.Comment{s.auditEntry(id, actor, note)}
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		comments = append(comments, model.Comment{
			ID:            uuid.NewString(),
			AppointmentID: id,
			AuthorID:      actor.ID,
			AuthorRole:    actor.Role,
			Kind:          model.CommentNormal,
			Visibility:    model.VisibilityPublic,
			Body:          trimmed,
			CreatedAt:     s.now(),
		})
	}

	released := model.PaymentReleased
	updated, err := s.store.TransitionStatus(ctx, id, appt.Status, model.StatusValidated, Fields{
		PaymentStatus: &released,
		Comments:      comments,
	}, func(ctx context.Context) error {
		if err := s.payments.Release(ctx, appt); err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentRelease, err)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.notify(ctx, model.RolePractitioner, id, EventValidated)
	if appt.Contested {
		s.notify(ctx, model.RoleAdmin, id, EventResolved)
	}
	return updated, nil
}

// ReportProblem contests a completed session. Allowed exactly once per
// appointment, only by its client, and only after the practitioner has
// claimed completion. Payment is frozen until the dispute is resolved.
func (s *Service) ReportProblem(ctx context.Context, actor model.Actor, id, description string) (model.Appointment, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return model.Appointment{}, ErrEmptyDescription
	}

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanTransition(actor, appt, TransitionContest) {
		return model.Appointment{}, ErrForbidden
	}
	if appt.Status != model.StatusCompleted {
		return model.Appointment{}, fmt.Errorf("%w: cannot contest a %s appointment", ErrPreconditionFailed, appt.Status)
	}
	if appt.Contested {
		return model.Appointment{}, fmt.Errorf("%w: appointment was already contested once", ErrPreconditionFailed)
	}

	contested := true
	frozen := model.PaymentFrozen
	updated, err := s.store.TransitionStatus(ctx, id, model.StatusCompleted, model.StatusIssueReported, Fields{
		PaymentStatus:      &frozen,
		Contested:          &contested,
		ProblemDescription: &description,
		Comments: []model.Comment{
			{
				ID:            uuid.NewString(),
				AppointmentID: id,
				AuthorID:      actor.ID,
				AuthorRole:    actor.Role,
				Kind:          model.CommentDisputeReport,
				Visibility:    model.VisibilityPublic,
				Body:          description,
				CreatedAt:     s.now(),
			},
			s.auditEntry(id, actor, "problem reported by "+string(actor.Role)+", payment frozen"),
		},
	}, nil)
	if err != nil {
		return model.Appointment{}, err
	}
	// Staff alert is best-effort: losing it is recoverable via dashboards,
	// losing the contestation record is not.
	s.notify(ctx, model.RoleAdmin, id, EventContested)
	return updated, nil
}

// Cancel terminates a pending or confirmed appointment. The record is kept
// (terminal status, never a deletion). Payment disposition for captured
// payments is admin policy: only an admin cancellation may refund; client or
// practitioner cancellations leave the capture in place pending admin review.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id, reason string, refund bool) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanTransition(actor, appt, TransitionCancel) {
		return model.Appointment{}, ErrForbidden
	}
	if appt.Status.Terminal() {
		return model.Appointment{}, fmt.Errorf("%w: status is %s", ErrAlreadyTerminal, appt.Status)
	}
	if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
		return model.Appointment{}, fmt.Errorf("%w: cannot cancel a %s appointment", ErrPreconditionFailed, appt.Status)
	}
	if refund && actor.Role != model.RoleAdmin {
		return model.Appointment{}, fmt.Errorf("%w: refund decisions are reserved to admins", ErrForbidden)
	}
	if refund && appt.PaymentStatus != model.PaymentCaptured {
		return model.Appointment{}, fmt.Errorf("%w: no captured payment to refund", ErrPreconditionFailed)
	}

	reason = strings.TrimSpace(reason)
	now := s.now()
	fields := Fields{
		CancelReason: &reason,
		CancelledAt:  &now,
	}

	var sideEffect func(context.Context) error
	switch {
	case appt.PaymentStatus == model.PaymentCaptured && refund:
		refunded := model.PaymentRefunded
		fields.PaymentStatus = &refunded
		sideEffect = func(ctx context.Context) error {
			return s.payments.Refund(ctx, appt)
		}
	case appt.PaymentStatus == model.PaymentPending:
		voided := model.PaymentVoided
		fields.PaymentStatus = &voided
	}

	note := "appointment cancelled"
	if reason != "" {
		note = "appointment cancelled: " + reason
	}
	fields.Comments = []model.Comment{s.auditEntry(id, actor, note)}

	updated, err := s.store.TransitionStatus(ctx, id, appt.Status, model.StatusCancelled, fields, sideEffect)
	if err != nil {
		return model.Appointment{}, err
	}
	s.notify(ctx, model.RoleClient, id, EventCancelled)
	s.notify(ctx, model.RolePractitioner, id, EventCancelled)
	return updated, nil
}

// Resolve is the staff exit from a dispute: either validate (practitioner is
// paid) or cancel (with or without a refund to the client). There is no third
// path; a contested appointment never drifts back to completed.
func (s *Service) Resolve(ctx context.Context, actor model.Actor, id string, outcome model.Status, note string, refund bool) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanTransition(actor, appt, TransitionResolve) {
		return model.Appointment{}, ErrForbidden
	}
	if appt.Status != model.StatusIssueReported {
		return model.Appointment{}, fmt.Errorf("%w: no open dispute on a %s appointment", ErrPreconditionFailed, appt.Status)
	}

	note = strings.TrimSpace(note)
	var updated model.Appointment
	switch outcome {
	case model.StatusValidated:
		released := model.PaymentReleased
		updated, err = s.store.TransitionStatus(ctx, id, model.StatusIssueReported, model.StatusValidated, Fields{
			PaymentStatus: &released,
			Comments: []model.Comment{
				s.auditEntry(id, actor, resolutionNote("dispute resolved by staff, session validated, payment released", note)),
			},
		}, func(ctx context.Context) error {
			if err := s.payments.Release(ctx, appt); err != nil {
				return fmt.Errorf("%w: %v", ErrPaymentRelease, err)
			}
			return nil
		})
	case model.StatusCancelled:
		now := s.now()
		fields := Fields{
			CancelReason: &note,
			CancelledAt:  &now,
			Comments: []model.Comment{
				s.auditEntry(id, actor, resolutionNote("dispute resolved by staff, appointment cancelled", note)),
			},
		}
		var sideEffect func(context.Context) error
		if refund {
			refunded := model.PaymentRefunded
			fields.PaymentStatus = &refunded
			sideEffect = func(ctx context.Context) error {
				return s.payments.Refund(ctx, appt)
			}
		}
		updated, err = s.store.TransitionStatus(ctx, id, model.StatusIssueReported, model.StatusCancelled, fields, sideEffect)
	default:
		return model.Appointment{}, fmt.Errorf("%w: resolution outcome must be validated or cancelled", ErrPreconditionFailed)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	s.notify(ctx, model.RoleClient, id, EventResolved)
	s.notify(ctx, model.RolePractitioner, id, EventResolved)
	return updated, nil
}

// ReassignPractitioner moves a not-yet-delivered appointment to another
// practitioner. An existing custom price is re-validated against the incoming
// practitioner's list price, so the floor invariant survives reassignment.
func (s *Service) ReassignPractitioner(ctx context.Context, actor model.Actor, id, practitionerID string, listPrice decimal.Decimal) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !CanTransition(actor, appt, TransitionReassign) {
		return model.Appointment{}, ErrForbidden
	}
	if appt.Status.Terminal() {
		return model.Appointment{}, fmt.Errorf("%w: status is %s", ErrAlreadyTerminal, appt.Status)
	}
	if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
		return model.Appointment{}, fmt.Errorf("%w: cannot reassign a %s appointment", ErrPreconditionFailed, appt.Status)
	}
	if practitionerID == "" {
		return model.Appointment{}, fmt.Errorf("%w: practitioner id required", ErrPreconditionFailed)
	}
	if appt.CustomPrice != nil {
		if err := model.ValidateCustomPrice(*appt.CustomPrice, listPrice); err != nil {
			return model.Appointment{}, err
		}
	}

	updated, err := s.store.TransitionStatus(ctx, id, appt.Status, appt.Status, Fields{
		PractitionerID: &practitionerID,
		ServicePrice:   &listPrice,
		Comments: []model.Comment{
			s.auditEntry(id, actor, "appointment reassigned to another practitioner"),
		},
	}, nil)
	if err != nil {
		return model.Appointment{}, err
	}
	s.notify(ctx, model.RolePractitioner, id, EventReassigned)
	s.notify(ctx, model.RoleClient, id, EventReassigned)
	return updated, nil
}

// AddComment appends a thread message. Staff-only comments are an admin
// channel, written and read by admins alone; nobody outside the appointment's
// parties may write at all.
func (s *Service) AddComment(ctx context.Context, actor model.Actor, appointmentID, body string, visibility model.CommentVisibility) (model.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Comment{}, ErrEmptyDescription
	}
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Comment{}, err
	}
	if !CanView(actor, appt) {
		return model.Comment{}, ErrForbidden
	}
	if visibility != model.VisibilityStaff {
		visibility = model.VisibilityPublic
	}
	if visibility == model.VisibilityStaff && actor.Role != model.RoleAdmin {
		return model.Comment{}, fmt.Errorf("%w: staff-only comments are reserved to admins", ErrForbidden)
	}

	c := model.Comment{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		AuthorID:      actor.ID,
		AuthorRole:    actor.Role,
		Kind:          model.CommentNormal,
		Visibility:    visibility,
		Body:          body,
		CreatedAt:     s.now(),
	}
	if err := s.store.AppendComment(ctx, c); err != nil {
		return model.Comment{}, err
	}
	return c, nil
}

// Comments returns the thread filtered to what the actor may see.
func (s *Service) Comments(ctx context.Context, actor model.Actor, appointmentID string) ([]model.Comment, error) {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !CanView(actor, appt) {
		return nil, ErrForbidden
	}
	all, err := s.store.ListComments(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	visible := make([]model.Comment, 0, len(all))
	for _, c := range all {
		if c.VisibleTo(actor) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// DeleteComment removes a comment. Admin only; comments are otherwise
// append-only and immutable.
func (s *Service) DeleteComment(ctx context.Context, actor model.Actor, appointmentID, commentID string) error {
	if actor.Role != model.RoleAdmin {
		return ErrForbidden
	}
	if _, err := s.store.GetAppointment(ctx, appointmentID); err != nil {
		return err
	}
	return s.store.DeleteComment(ctx, appointmentID, commentID)
}

func (s *Service) notify(ctx context.Context, role model.Role, appointmentID, eventType string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, role, appointmentID, eventType); err != nil {
		s.logger.Warn("notification enqueue failed",
			"appointment_id", appointmentID,
			"recipient_role", string(role),
			"event", eventType,
			"err", err,
		)
	}
}

// auditEntry builds the system-authored comment that materializes a
// transition event: who, what, when.
func (s *Service) auditEntry(appointmentID string, actor model.Actor, text string) model.Comment {
	return model.Comment{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		AuthorID:      actor.ID,
		AuthorRole:    actor.Role,
		Kind:          model.CommentSystem,
		Visibility:    model.VisibilityPublic,
		Body:          text,
		CreatedAt:     s.now(),
	}
}

func (s *Service) systemEntry(appointmentID, text string) model.Comment {
	return model.Comment{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		Kind:          model.CommentSystem,
		Visibility:    model.VisibilityPublic,
		Body:          text,
		CreatedAt:     s.now(),
	}
}

func resolutionNote(base, note string) string {
	if note == "" {
		return base
	}
	return base + ": " + note
}

func shortCode(id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "APT-" + compact
}
