package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the canonical lifecycle state of an appointment. It is only ever
// changed through lifecycle transitions, never written directly.
type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusCompleted     Status = "completed"
	StatusIssueReported Status = "issue_reported"
	StatusValidated     Status = "validated"
	StatusCancelled     Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusIssueReported, StatusValidated, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle transition is legal.
func (s Status) Terminal() bool {
	return s == StatusValidated || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentCaptured PaymentStatus = "captured"
	PaymentFrozen   PaymentStatus = "frozen"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentVoided   PaymentStatus = "voided"
)

type Appointment struct {
	ID             string
	ShortCode      string // human-readable support reference, e.g. APT-3F9C2A1B
	ClientID       string
	PractitionerID string
	BeneficiaryID  string // empty when the client is the beneficiary
	ServiceID      string
	ServicePrice   decimal.Decimal
	CustomPrice    *decimal.Decimal // practitioner override, never below ServicePrice
	Status         Status
	PaymentStatus  PaymentStatus
	PaymentRef     string // provider payment reference set when payment is captured
	StartTime      time.Time
	EndTime        time.Time
	MeetingLink    string
	Notes          string

	// Dispute fields. Contested is set on the first contestation and never
	// cleared, which enforces the contest-at-most-once rule.
	Contested          bool
	ProblemDescription string

	CancelReason string
	CancelledAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectivePrice is the amount owed to the practitioner on payment release:
// the practitioner override when set, the service list price otherwise.
func (a Appointment) EffectivePrice() decimal.Decimal {
	if a.CustomPrice != nil {
		return *a.CustomPrice
	}
	return a.ServicePrice
}
