package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/projection"
)

// Store is an in-memory implementation of lifecycle.Store and
// projection.Directory. It backs local development without Postgres and the
// lifecycle test suites. The single mutex is held across the conditional
// status check, the side effect, and the write, which gives the same
// serialization guarantee the SQL store gets from its row lock.
type Store struct {
	mu             sync.Mutex
	appointments   map[string]model.Appointment
	comments       map[string][]model.Comment
	providerEvents map[string]struct{}

	clients       map[string]projection.Party
	practitioners map[string]projection.Party
	services      map[string]projection.ServiceInfo
	beneficiaries map[string]projection.Beneficiary
	accounts      map[string]string // practitioner id -> payout account ref
}

func NewStore() *Store {
	return &Store{
		appointments:   map[string]model.Appointment{},
		comments:       map[string][]model.Comment{},
		providerEvents: map[string]struct{}{},
		clients:        map[string]projection.Party{},
		practitioners:  map[string]projection.Party{},
		services:       map[string]projection.ServiceInfo{},
		beneficiaries:  map[string]projection.Beneficiary{},
		accounts:       map[string]string{},
	}
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	return appt, nil
}

func (s *Store) CreateAppointment(_ context.Context, appt model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.appointments[appt.ID]; exists {
		return fmt.Errorf("%w: duplicate appointment id %s", lifecycle.ErrTransientStore, appt.ID)
	}
	s.appointments[appt.ID] = appt
	return nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, expect, next model.Status, fields lifecycle.Fields, sideEffect func(context.Context) error) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, lifecycle.ErrNotFound
	}
	if appt.Status != expect {
		return model.Appointment{}, fmt.Errorf("%w: status is %s, expected %s", lifecycle.ErrPreconditionFailed, appt.Status, expect)
	}

	updated := applyFields(appt, next, fields)

	// Side effect runs before anything is visible; an error leaves the record
	// untouched, matching the SQL store's rollback.
	if sideEffect != nil {
		if err := sideEffect(ctx); err != nil {
			return model.Appointment{}, err
		}
	}

	s.appointments[id] = updated
	if len(fields.Comments) > 0 {
		s.comments[id] = append(s.comments[id], fields.Comments...)
	}
	return updated, nil
}

func applyFields(appt model.Appointment, next model.Status, fields lifecycle.Fields) model.Appointment {
	appt.Status = next
	if fields.PaymentStatus != nil {
		appt.PaymentStatus = *fields.PaymentStatus
	}
	if fields.PaymentRef != nil {
		appt.PaymentRef = *fields.PaymentRef
	}
	if fields.Contested != nil {
		appt.Contested = *fields.Contested
	}
	if fields.ProblemDescription != nil {
		appt.ProblemDescription = *fields.ProblemDescription
	}
	if fields.CancelReason != nil {
		appt.CancelReason = *fields.CancelReason
	}
	if fields.CancelledAt != nil {
		t := *fields.CancelledAt
		appt.CancelledAt = &t
	}
	if fields.PractitionerID != nil {
		appt.PractitionerID = *fields.PractitionerID
	}
	if fields.ServicePrice != nil {
		appt.ServicePrice = *fields.ServicePrice
	}
	appt.UpdatedAt = time.Now().UTC()
	return appt
}

func (s *Store) AppendComment(_ context.Context, c model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[c.AppointmentID]; !ok {
		return lifecycle.ErrNotFound
	}
	s.comments[c.AppointmentID] = append(s.comments[c.AppointmentID], c)
	return nil
}

func (s *Store) ListComments(_ context.Context, appointmentID string) ([]model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Comment, len(s.comments[appointmentID]))
	copy(out, s.comments[appointmentID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteComment(_ context.Context, appointmentID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.comments[appointmentID]
	for i, c := range list {
		if c.ID == commentID {
			s.comments[appointmentID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return lifecycle.ErrNotFound
}

func (s *Store) ListByClient(_ context.Context, clientID string, limit int) ([]model.Appointment, error) {
	return s.list(func(a model.Appointment) bool { return a.ClientID == clientID }, limit), nil
}

func (s *Store) ListByPractitioner(_ context.Context, practitionerID string, limit int) ([]model.Appointment, error) {
	return s.list(func(a model.Appointment) bool { return a.PractitionerID == practitionerID }, limit), nil
}

func (s *Store) list(match func(model.Appointment) bool, limit int) []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) RecordProviderEvent(_ context.Context, provider, eventID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := provider + ":" + eventID
	if _, dup := s.providerEvents[key]; dup {
		return false, nil
	}
	s.providerEvents[key] = struct{}{}
	return true, nil
}

// Seed helpers for dev mode and tests.

func (s *Store) PutClient(p projection.Party) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[p.ID] = p
}

func (s *Store) PutPractitioner(p projection.Party, payoutAccount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practitioners[p.ID] = p
	if payoutAccount != "" {
		s.accounts[p.ID] = payoutAccount
	}
}

func (s *Store) PutService(info projection.ServiceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[info.ID] = info
}

func (s *Store) PutBeneficiary(b projection.Beneficiary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beneficiaries[b.ID] = b
}

// projection.Directory

func (s *Store) Client(_ context.Context, id string) (projection.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.clients[id]
	if !ok {
		return projection.Party{}, fmt.Errorf("%w: client %s", lifecycle.ErrNotFound, id)
	}
	return p, nil
}

func (s *Store) Practitioner(_ context.Context, id string) (projection.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.practitioners[id]
	if !ok {
		return projection.Party{}, fmt.Errorf("%w: practitioner %s", lifecycle.ErrNotFound, id)
	}
	return p, nil
}

func (s *Store) Service(_ context.Context, id string) (projection.ServiceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.services[id]
	if !ok {
		return projection.ServiceInfo{}, fmt.Errorf("%w: service %s", lifecycle.ErrNotFound, id)
	}
	return info, nil
}

func (s *Store) Beneficiary(_ context.Context, id string) (projection.Beneficiary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.beneficiaries[id]
	if !ok {
		return projection.Beneficiary{}, fmt.Errorf("%w: beneficiary %s", lifecycle.ErrNotFound, id)
	}
	return b, nil
}

// PractitionerAccount satisfies the payment layer's account directory.
func (s *Store) PractitionerAccount(_ context.Context, practitionerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[practitionerID]
	if !ok {
		return "", fmt.Errorf("%w: no payout account for practitioner %s", lifecycle.ErrNotFound, practitionerID)
	}
	return acct, nil
}

// RecipientEmail resolves the notification recipient for an appointment party.
func (s *Store) RecipientEmail(_ context.Context, appointmentID string, role model.Role) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[appointmentID]
	if !ok {
		return "", lifecycle.ErrNotFound
	}
	switch role {
	case model.RoleClient:
		if p, ok := s.clients[appt.ClientID]; ok {
			return p.Email, nil
		}
	case model.RolePractitioner:
		if p, ok := s.practitioners[appt.PractitionerID]; ok {
			return p.Email, nil
		}
	}
	return "", fmt.Errorf("%w: no recipient for role %s", lifecycle.ErrNotFound, role)
}
