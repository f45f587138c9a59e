package templates

import (
	"strings"
	"testing"
)

func TestMessageKnownEvents(t *testing.T) {
	events := []string{
		"appointments.appointment.booked.v1",
		"appointments.appointment.confirmed.v1",
		"appointments.appointment.completed.v1",
		"appointments.appointment.validated.v1",
		"appointments.appointment.contested.v1",
		"appointments.appointment.cancelled.v1",
		"appointments.appointment.resolved.v1",
		"appointments.appointment.reassigned.v1",
	}
	for _, evt := range events {
		subject, body := Message(evt, "client", "APT-1234")
		if subject == "" || body == "" {
			t.Errorf("%s: empty subject or body", evt)
		}
		if !strings.Contains(subject, "APT-1234") && !strings.Contains(body, "APT-1234") {
			t.Errorf("%s: short code missing from message", evt)
		}
	}
}

func TestMessageReassignedVariesByRole(t *testing.T) {
	_, forPractitioner := Message("appointments.appointment.reassigned.v1", "practitioner", "APT-1")
	_, forClient := Message("appointments.appointment.reassigned.v1", "client", "APT-1")
	if forPractitioner == forClient {
		t.Fatal("expected role-specific bodies")
	}
}

func TestMessageUnknownEventFallsBack(t *testing.T) {
	subject, body := Message("appointments.appointment.something.v9", "client", "APT-2")
	if subject == "" || body == "" {
		t.Fatal("fallback message empty")
	}
}
