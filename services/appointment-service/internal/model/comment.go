package model

import "time"

// CommentKind distinguishes ordinary thread messages, flagged dispute reports,
// and system-authored audit entries. An explicit enum, never inferred from the
// comment text.
type CommentKind string

const (
	CommentNormal        CommentKind = "normal"
	CommentDisputeReport CommentKind = "dispute_report"
	CommentSystem        CommentKind = "system"
)

type CommentVisibility string

const (
	// VisibilityPublic comments are visible to every party of the appointment.
	VisibilityPublic CommentVisibility = "public"
	// VisibilityStaff comments are visible to admins only.
	VisibilityStaff CommentVisibility = "staff"
)

// Comment is an append-only annotation on an appointment. Comments are never
// mutated; only admins may delete one.
type Comment struct {
	ID            string
	AppointmentID string
	AuthorID      string // empty for system-authored audit entries
	AuthorRole    Role
	Kind          CommentKind
	Visibility    CommentVisibility
	Body          string
	CreatedAt     time.Time
}

// VisibleTo reports whether the comment may be shown to the given actor.
// Dispute reports are always public regardless of the stored visibility.
func (c Comment) VisibleTo(actor Actor) bool {
	if actor.Role == RoleAdmin || c.Kind == CommentDisputeReport {
		return true
	}
	return c.Visibility != VisibilityStaff
}
