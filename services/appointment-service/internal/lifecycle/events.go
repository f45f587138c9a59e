package lifecycle

// Event types carried on notification payloads and audit entries. The Kafka
// topic is always TopicNotificationRequested; the event type rides inside the
// payload so the notification service can pick subject and template.
const (
	EventBooked     = "appointments.appointment.booked.v1"
	EventConfirmed  = "appointments.appointment.confirmed.v1"
	EventCompleted  = "appointments.appointment.completed.v1"
	EventValidated  = "appointments.appointment.validated.v1"
	EventContested  = "appointments.appointment.contested.v1"
	EventCancelled  = "appointments.appointment.cancelled.v1"
	EventResolved   = "appointments.appointment.resolved.v1"
	EventReassigned = "appointments.appointment.reassigned.v1"
)

const TopicNotificationRequested = "appointments.notification.requested.v1"
