package templates

import "fmt"

// Message selects the email subject and body for a lifecycle event. Bodies
// reference the appointment by its short code; recipients look it up in their
// account, the email itself stays free of personal detail.
func Message(eventType, recipientRole, shortCode string) (subject, body string) {
	switch eventType {
	case "appointments.appointment.booked.v1":
		subject = fmt.Sprintf("New booking %s", shortCode)
		body = fmt.Sprintf("A new appointment %s has been booked with you. It is awaiting payment.", shortCode)
	case "appointments.appointment.confirmed.v1":
		subject = fmt.Sprintf("Appointment %s confirmed", shortCode)
		body = fmt.Sprintf("Payment for appointment %s was received. The session is confirmed.", shortCode)
	case "appointments.appointment.completed.v1":
		subject = fmt.Sprintf("Please review appointment %s", shortCode)
		body = fmt.Sprintf("Your practitioner marked appointment %s as delivered. Please validate the session or report a problem.", shortCode)
	case "appointments.appointment.validated.v1":
		subject = fmt.Sprintf("Appointment %s validated", shortCode)
		body = fmt.Sprintf("Appointment %s was validated by the client. Payment has been released.", shortCode)
	case "appointments.appointment.contested.v1":
		subject = fmt.Sprintf("Problem reported on %s", shortCode)
		body = fmt.Sprintf("A problem was reported on appointment %s. Payment is frozen pending review.", shortCode)
	case "appointments.appointment.cancelled.v1":
		subject = fmt.Sprintf("Appointment %s cancelled", shortCode)
		body = fmt.Sprintf("Appointment %s has been cancelled.", shortCode)
	case "appointments.appointment.resolved.v1":
		subject = fmt.Sprintf("Dispute on %s resolved", shortCode)
		body = fmt.Sprintf("The dispute on appointment %s has been resolved.", shortCode)
	case "appointments.appointment.reassigned.v1":
		subject = fmt.Sprintf("Appointment %s reassigned", shortCode)
		if recipientRole == "practitioner" {
			body = fmt.Sprintf("Appointment %s has been assigned to you.", shortCode)
		} else {
			body = fmt.Sprintf("Appointment %s has been reassigned to another practitioner.", shortCode)
		}
	default:
		subject = fmt.Sprintf("Update on appointment %s", shortCode)
		body = fmt.Sprintf("Appointment %s was updated.", shortCode)
	}
	return subject, body
}
