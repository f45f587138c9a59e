package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

func seedAppointment(t *testing.T, s *Store, id string, start time.Time) {
	t.Helper()
	err := s.CreateAppointment(context.Background(), model.Appointment{
		ID:             id,
		ClientID:       "c1",
		PractitionerID: "p1",
		ServiceID:      "s1",
		ServicePrice:   decimal.NewFromInt(90),
		Status:         model.StatusPending,
		PaymentStatus:  model.PaymentPending,
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestProviderEventDedup(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	fresh, err := s.RecordProviderEvent(ctx, "stripe", "evt_1", "payment_intent.succeeded")
	if err != nil || !fresh {
		t.Fatalf("first record: fresh=%v err=%v", fresh, err)
	}
	fresh, err = s.RecordProviderEvent(ctx, "stripe", "evt_1", "payment_intent.succeeded")
	if err != nil || fresh {
		t.Fatalf("duplicate record: fresh=%v err=%v", fresh, err)
	}
	// Same id under another provider is a distinct event.
	fresh, err = s.RecordProviderEvent(ctx, "local", "evt_1", "payment_intent.succeeded")
	if err != nil || !fresh {
		t.Fatalf("other provider: fresh=%v err=%v", fresh, err)
	}
}

func TestListByClientOrderAndLimit(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	seedAppointment(t, s, "a1", base)
	seedAppointment(t, s, "a2", base.Add(2*time.Hour))
	seedAppointment(t, s, "a3", base.Add(time.Hour))

	appts, err := s.ListByClient(context.Background(), "c1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("len = %d, want 2", len(appts))
	}
	// Most recent start time first.
	if appts[0].ID != "a2" || appts[1].ID != "a3" {
		t.Errorf("order = %s, %s", appts[0].ID, appts[1].ID)
	}
}

func TestTransitionStatusUnknownID(t *testing.T) {
	s := NewStore()
	_, err := s.TransitionStatus(context.Background(), "missing", model.StatusPending, model.StatusConfirmed, lifecycle.Fields{}, nil)
	if err != lifecycle.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
