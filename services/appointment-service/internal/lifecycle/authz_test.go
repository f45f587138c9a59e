package lifecycle

import (
	"testing"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

func TestCanView(t *testing.T) {
	appt := model.Appointment{ClientID: "c1", PractitionerID: "p1"}

	cases := []struct {
		name  string
		actor model.Actor
		want  bool
	}{
		{"own client", model.Actor{ID: "c1", Role: model.RoleClient}, true},
		{"other client", model.Actor{ID: "c2", Role: model.RoleClient}, false},
		{"own practitioner", model.Actor{ID: "p1", Role: model.RolePractitioner}, true},
		{"other practitioner", model.Actor{ID: "p2", Role: model.RolePractitioner}, false},
		{"admin", model.Actor{ID: "a1", Role: model.RoleAdmin}, true},
		{"unknown role", model.Actor{ID: "c1", Role: "guest"}, false},
	}
	for _, tc := range cases {
		if got := CanView(tc.actor, appt); got != tc.want {
			t.Errorf("%s: CanView = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	appt := model.Appointment{ClientID: "c1", PractitionerID: "p1"}
	ownClient := model.Actor{ID: "c1", Role: model.RoleClient}
	otherClient := model.Actor{ID: "c2", Role: model.RoleClient}
	ownPract := model.Actor{ID: "p1", Role: model.RolePractitioner}
	otherPract := model.Actor{ID: "p2", Role: model.RolePractitioner}
	admin := model.Actor{ID: "a1", Role: model.RoleAdmin}

	cases := []struct {
		name  string
		actor model.Actor
		tr    Transition
		want  bool
	}{
		{"practitioner completes own", ownPract, TransitionMarkCompleted, true},
		{"practitioner completes other", otherPract, TransitionMarkCompleted, false},
		{"client cannot complete", ownClient, TransitionMarkCompleted, false},
		{"client validates own", ownClient, TransitionValidate, true},
		{"client validates other", otherClient, TransitionValidate, false},
		{"practitioner cannot validate", ownPract, TransitionValidate, false},
		{"client contests own", ownClient, TransitionContest, true},
		{"practitioner cannot contest", ownPract, TransitionContest, false},
		{"client cancels own", ownClient, TransitionCancel, true},
		{"practitioner cancels own", ownPract, TransitionCancel, true},
		{"other client cannot cancel", otherClient, TransitionCancel, false},
		{"client cannot resolve", ownClient, TransitionResolve, false},
		{"practitioner cannot resolve", ownPract, TransitionResolve, false},
		{"client cannot reassign", ownClient, TransitionReassign, false},
		{"admin does everything", admin, TransitionResolve, true},
		{"admin reassigns", admin, TransitionReassign, true},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.actor, appt, tc.tr); got != tc.want {
			t.Errorf("%s: CanTransition(%s) = %v, want %v", tc.name, tc.tr, got, tc.want)
		}
	}
}
