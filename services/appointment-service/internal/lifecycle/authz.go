package lifecycle

import "github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"

// Transition names the lifecycle operations an actor may be granted.
type Transition string

const (
	TransitionMarkCompleted Transition = "mark_completed"
	TransitionValidate      Transition = "validate"
	TransitionContest       Transition = "contest"
	TransitionCancel        Transition = "cancel"
	TransitionResolve       Transition = "resolve"
	TransitionReassign      Transition = "reassign"
)

// CanView reports whether the actor may read the appointment at all.
// Admins see everything; practitioners and clients only their own.
func CanView(actor model.Actor, appt model.Appointment) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RolePractitioner:
		return appt.PractitionerID == actor.ID
	case model.RoleClient:
		return appt.ClientID == actor.ID
	}
	return false
}

// CanTransition is evaluated before every state-machine transition, not just
// at the API layer. A false result means permission denied and no mutation.
func CanTransition(actor model.Actor, appt model.Appointment, tr Transition) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}
	switch tr {
	case TransitionMarkCompleted:
		return actor.Role == model.RolePractitioner && appt.PractitionerID == actor.ID
	case TransitionValidate, TransitionContest:
		return actor.Role == model.RoleClient && appt.ClientID == actor.ID
	case TransitionCancel:
		if actor.Role == model.RoleClient {
			return appt.ClientID == actor.ID
		}
		if actor.Role == model.RolePractitioner {
			return appt.PractitionerID == actor.ID
		}
		return false
	case TransitionResolve, TransitionReassign:
		// Admin-only; handled by the early return above.
		return false
	}
	return false
}
