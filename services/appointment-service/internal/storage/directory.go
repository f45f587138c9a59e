package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/projection"
)

// Directory lookups for the read model. Clients and practitioners share one
// users table distinguished by role.

func (r *Repository) Client(ctx context.Context, id string) (projection.Party, error) {
	return r.party(ctx, id, "client")
}

func (r *Repository) Practitioner(ctx context.Context, id string) (projection.Party, error) {
	return r.party(ctx, id, "practitioner")
}

func (r *Repository) party(ctx context.Context, id, role string) (projection.Party, error) {
	var p projection.Party
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, COALESCE(phone, '')
		FROM users
		WHERE id = $1 AND role = $2
	`, id, role).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return projection.Party{}, fmt.Errorf("%w: %s %s", lifecycle.ErrNotFound, role, id)
		}
		return projection.Party{}, storeErr(err)
	}
	return p, nil
}

func (r *Repository) Service(ctx context.Context, id string) (projection.ServiceInfo, error) {
	var info projection.ServiceInfo
	var listPrice string
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, list_price::text
		FROM services
		WHERE id = $1
	`, id).Scan(&info.ID, &info.Code, &info.Name, &listPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return projection.ServiceInfo{}, fmt.Errorf("%w: service %s", lifecycle.ErrNotFound, id)
		}
		return projection.ServiceInfo{}, storeErr(err)
	}
	info.ListPrice, err = decimal.NewFromString(listPrice)
	if err != nil {
		return projection.ServiceInfo{}, storeErr(err)
	}
	return info, nil
}

func (r *Repository) Beneficiary(ctx context.Context, id string) (projection.Beneficiary, error) {
	var b projection.Beneficiary
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, birth_date, COALESCE(birth_time, ''),
			COALESCE(birth_place, ''), COALESCE(email, ''), COALESCE(phone, '')
		FROM beneficiaries
		WHERE id = $1
	`, id).Scan(&b.ID, &b.FirstName, &b.LastName, &b.BirthDate, &b.BirthTime, &b.BirthPlace, &b.Email, &b.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return projection.Beneficiary{}, fmt.Errorf("%w: beneficiary %s", lifecycle.ErrNotFound, id)
		}
		return projection.Beneficiary{}, storeErr(err)
	}
	return b, nil
}

// PractitionerAccount resolves the connected payout account for releases.
func (r *Repository) PractitionerAccount(ctx context.Context, practitionerID string) (string, error) {
	var account string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(payout_account, '')
		FROM users
		WHERE id = $1 AND role = 'practitioner'
	`, practitionerID).Scan(&account)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: practitioner %s", lifecycle.ErrNotFound, practitionerID)
		}
		return "", storeErr(err)
	}
	if account == "" {
		return "", fmt.Errorf("%w: no payout account for practitioner %s", lifecycle.ErrNotFound, practitionerID)
	}
	return account, nil
}

// RecipientEmail resolves the notification address for an appointment party.
func (r *Repository) RecipientEmail(ctx context.Context, appointmentID string, role model.Role) (string, error) {
	var column string
	switch role {
	case model.RoleClient:
		column = "client_id"
	case model.RolePractitioner:
		column = "practitioner_id"
	default:
		return "", fmt.Errorf("%w: no recipient for role %s", lifecycle.ErrNotFound, role)
	}
	var email string
	err := r.pool.QueryRow(ctx, `
		SELECT u.email
		FROM appointments a
		JOIN users u ON u.id = a.`+column+`
		WHERE a.id = $1
	`, appointmentID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", lifecycle.ErrNotFound
		}
		return "", storeErr(err)
	}
	return email, nil
}
