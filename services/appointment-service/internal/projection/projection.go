package projection

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

// Party is the identity slice of a client or practitioner exposed on reads.
type Party struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Beneficiary is the person actually receiving the session. Birth fields feed
// the practitioner's chart work; contact fields belong to the paying client's
// sphere and are redacted from practitioners.
type Beneficiary struct {
	ID         string
	FirstName  string
	LastName   string
	BirthDate  *time.Time
	BirthTime  string
	BirthPlace string
	Email      string
	Phone      string
}

type ServiceInfo struct {
	ID        string
	Code      string
	Name      string
	ListPrice decimal.Decimal
}

// Directory resolves the related entities an appointment references.
type Directory interface {
	Client(ctx context.Context, id string) (Party, error)
	Practitioner(ctx context.Context, id string) (Party, error)
	Service(ctx context.Context, id string) (ServiceInfo, error)
	Beneficiary(ctx context.Context, id string) (Beneficiary, error)
}

// Record is the assembled read model for one appointment. Pure transform, no
// mutation rights.
type Record struct {
	Appointment  model.Appointment
	Client       Party
	Practitioner Party
	Service      ServiceInfo
	Beneficiary  *Beneficiary
	PriceLabel   string
}

// Build assembles the record for the requesting actor. Access requires the
// view predicate; beneficiary contact fields are additionally withheld from
// practitioners.
func Build(ctx context.Context, dir Directory, actor model.Actor, appt model.Appointment, currency string) (Record, error) {
	if !lifecycle.CanView(actor, appt) {
		return Record{}, lifecycle.ErrForbidden
	}

	client, err := dir.Client(ctx, appt.ClientID)
	if err != nil {
		return Record{}, err
	}
	practitioner, err := dir.Practitioner(ctx, appt.PractitionerID)
	if err != nil {
		return Record{}, err
	}
	svc, err := dir.Service(ctx, appt.ServiceID)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Appointment:  appt,
		Client:       client,
		Practitioner: practitioner,
		Service:      svc,
		PriceLabel:   model.FormatPrice(appt.EffectivePrice(), currency),
	}

	if appt.BeneficiaryID != "" {
		b, err := dir.Beneficiary(ctx, appt.BeneficiaryID)
		if err != nil {
			return Record{}, err
		}
		if actor.Role == model.RolePractitioner {
			b.Email = ""
			b.Phone = ""
		}
		rec.Beneficiary = &b
	}
	return rec, nil
}
