package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/libs/db"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

// Repository is the Postgres implementation of lifecycle.Store. Transitions
// run in a transaction holding a row lock, so the status check, the
// conditional write, the appended comments, and the side effect commit or
// roll back as one unit.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const appointmentColumns = `
	id, short_code, client_id, practitioner_id, COALESCE(beneficiary_id::text, ''),
	service_id, service_price::text, custom_price::text,
	status, payment_status, COALESCE(payment_ref, ''),
	start_time, end_time, COALESCE(meeting_link, ''), COALESCE(notes, ''),
	contested, COALESCE(problem_description, ''),
	COALESCE(cancel_reason, ''), cancelled_at, created_at, updated_at`

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *Repository) CreateAppointment(ctx context.Context, appt model.Appointment) error {
	var customPrice *string
	if appt.CustomPrice != nil {
		v := appt.CustomPrice.String()
		customPrice = &v
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, short_code, client_id, practitioner_id, beneficiary_id, service_id,
			 service_price, custom_price, status, payment_status,
			 start_time, end_time, meeting_link, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, appt.ID, appt.ShortCode, appt.ClientID, appt.PractitionerID, appt.BeneficiaryID, appt.ServiceID,
		appt.ServicePrice.String(), customPrice, appt.Status, appt.PaymentStatus,
		appt.StartTime, appt.EndTime, appt.MeetingLink, appt.Notes, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id string, expect, next model.Status, fields lifecycle.Fields, sideEffect func(context.Context) error) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	current, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status != expect {
		return model.Appointment{}, fmt.Errorf("%w: status is %s, expected %s", lifecycle.ErrPreconditionFailed, current.Status, expect)
	}

	var servicePrice *string
	if fields.ServicePrice != nil {
		v := fields.ServicePrice.String()
		servicePrice = &v
	}
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			payment_status = COALESCE($3, payment_status),
			payment_ref = COALESCE($4, payment_ref),
			contested = COALESCE($5, contested),
			problem_description = COALESCE($6, problem_description),
			cancel_reason = COALESCE($7, cancel_reason),
			cancelled_at = COALESCE($8, cancelled_at),
			practitioner_id = COALESCE($9, practitioner_id),
			service_price = COALESCE($10::numeric, service_price),
			updated_at = now()
		WHERE id = $1
	`, id, next, fields.PaymentStatus, fields.PaymentRef, fields.Contested,
		fields.ProblemDescription, fields.CancelReason, fields.CancelledAt,
		fields.PractitionerID, servicePrice)
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}

	for _, c := range fields.Comments {
		if err := insertComment(ctx, tx, c); err != nil {
			return model.Appointment{}, err
		}
	}

	if sideEffect != nil {
		if err := sideEffect(ctx); err != nil {
			return model.Appointment{}, err
		}
	}

	row = tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	updated, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, storeErr(err)
	}
	return updated, nil
}

func (r *Repository) AppendComment(ctx context.Context, c model.Comment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := insertComment(ctx, tx, c); err != nil {
		return err
	}
	return storeErr(tx.Commit(ctx))
}

func insertComment(ctx context.Context, tx pgx.Tx, c model.Comment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_comments
			(id, appointment_id, author_id, author_role, kind, visibility, body, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)
	`, c.ID, c.AppointmentID, c.AuthorID, string(c.AuthorRole), c.Kind, c.Visibility, c.Body, c.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return lifecycle.ErrNotFound
		}
		return storeErr(err)
	}
	return nil
}

func (r *Repository) ListComments(ctx context.Context, appointmentID string) ([]model.Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, COALESCE(author_id::text, ''), COALESCE(author_role, ''),
			kind, visibility, body, created_at
		FROM appointment_comments
		WHERE appointment_id = $1
		ORDER BY created_at ASC, id ASC
	`, appointmentID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var role string
		if err := rows.Scan(&c.ID, &c.AppointmentID, &c.AuthorID, &role, &c.Kind, &c.Visibility, &c.Body, &c.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		c.AuthorRole = model.Role(role)
		comments = append(comments, c)
	}
	if rows.Err() != nil {
		return nil, storeErr(rows.Err())
	}
	return comments, nil
}

func (r *Repository) DeleteComment(ctx context.Context, appointmentID, commentID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointment_comments WHERE id = $1 AND appointment_id = $2
	`, commentID, appointmentID)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrNotFound
	}
	return nil
}

func (r *Repository) ListByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	return r.listWhere(ctx, "client_id", clientID, limit)
}

func (r *Repository) ListByPractitioner(ctx context.Context, practitionerID string, limit int) ([]model.Appointment, error) {
	return r.listWhere(ctx, "practitioner_id", practitionerID, limit)
}

func (r *Repository) listWhere(ctx context.Context, column, value string, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+column+` = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, value, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, storeErr(rows.Err())
	}
	return appts, nil
}

func (r *Repository) RecordProviderEvent(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type)
		VALUES ($1, $2, $3)
	`, provider, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, storeErr(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var servicePrice string
	var customPrice *string
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ShortCode,
		&appt.ClientID,
		&appt.PractitionerID,
		&appt.BeneficiaryID,
		&appt.ServiceID,
		&servicePrice,
		&customPrice,
		&appt.Status,
		&appt.PaymentStatus,
		&appt.PaymentRef,
		&appt.StartTime,
		&appt.EndTime,
		&appt.MeetingLink,
		&appt.Notes,
		&appt.Contested,
		&appt.ProblemDescription,
		&appt.CancelReason,
		&cancelledAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, lifecycle.ErrNotFound
		}
		return model.Appointment{}, storeErr(err)
	}

	appt.ServicePrice, err = decimal.NewFromString(servicePrice)
	if err != nil {
		return model.Appointment{}, storeErr(err)
	}
	if customPrice != nil {
		price, err := decimal.NewFromString(*customPrice)
		if err != nil {
			return model.Appointment{}, storeErr(err)
		}
		appt.CustomPrice = &price
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", lifecycle.ErrTransientStore, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
