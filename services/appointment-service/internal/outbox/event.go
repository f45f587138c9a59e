package outbox

// Event is the envelope written to the outbox table. All appointment
// notifications ride one topic; Type inside the payload selects the template
// on the consumer side.
type Event struct {
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
}

// NotificationPayload is the wire body for notification-requested events.
type NotificationPayload struct {
	AppointmentID  string `json:"appointment_id"`
	ShortCode      string `json:"short_code"`
	RecipientRole  string `json:"recipient_role"`
	RecipientEmail string `json:"recipient_email"`
	EventType      string `json:"event_type"`
	OccurredAt     string `json:"occurred_at"`
}
