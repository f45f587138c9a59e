package lifecycle

import "errors"

// Sentinel errors matching the transition failure taxonomy. Handlers map these
// to HTTP statuses; callers match with errors.Is.
var (
	// ErrNotFound: unknown appointment id. Fatal to the request.
	ErrNotFound = errors.New("appointment not found")

	// ErrForbidden: the authorization predicate rejected the actor. Never
	// retried, never swallowed; no mutation has occurred.
	ErrForbidden = errors.New("forbidden")

	// ErrPreconditionFailed: the appointment's status is not eligible for the
	// requested transition. The caller should refresh and re-decide, not retry.
	ErrPreconditionFailed = errors.New("status not eligible for transition")

	// ErrAlreadyTerminal: the appointment is validated or cancelled; no further
	// transition is legal.
	ErrAlreadyTerminal = errors.New("appointment already in terminal status")

	// ErrPaymentRelease: the payment side effect failed during validation. The
	// status write was rolled back; money was NOT released.
	ErrPaymentRelease = errors.New("payment release failed")

	// ErrEmptyDescription: a contestation or comment was submitted without text.
	ErrEmptyDescription = errors.New("description must not be empty")

	// ErrTransientStore: infrastructure failure with no partial state. Safe for
	// the caller to retry with backoff; the core itself never retries.
	ErrTransientStore = errors.New("transient store error")
)

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
