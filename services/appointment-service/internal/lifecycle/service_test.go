package lifecycle_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/storage/memory"
)

type fakePayments struct {
	mu          sync.Mutex
	released    []string
	refunded    []string
	failRelease bool
	failRefund  bool
}

func (f *fakePayments) Release(_ context.Context, appt model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRelease {
		return context.DeadlineExceeded
	}
	f.released = append(f.released, appt.ID)
	return nil
}

func (f *fakePayments) Refund(_ context.Context, appt model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRefund {
		return context.DeadlineExceeded
	}
	f.refunded = append(f.refunded, appt.ID)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, recipient model.Role, _, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, string(recipient)+":"+eventType)
	return nil
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

var (
	client       = model.Actor{ID: "client-1", Role: model.RoleClient}
	otherClient  = model.Actor{ID: "client-2", Role: model.RoleClient}
	practitioner = model.Actor{ID: "practitioner-1", Role: model.RolePractitioner}
	otherPract   = model.Actor{ID: "practitioner-2", Role: model.RolePractitioner}
	admin        = model.Actor{ID: "admin-1", Role: model.RoleAdmin}
)

var testBase = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*lifecycle.Service, *memory.Store, *fakePayments, *fakeNotifier) {
	t.Helper()
	store := memory.NewStore()
	payments := &fakePayments{}
	notifier := &fakeNotifier{}
	svc := lifecycle.New(store, payments, notifier, slog.Default()).
		WithClock(func() time.Time { return testBase })
	return svc, store, payments, notifier
}

func bookPast(t *testing.T, svc *lifecycle.Service) model.Appointment {
	t.Helper()
	appt, err := svc.Book(context.Background(), client, lifecycle.BookingRequest{
		PractitionerID: practitioner.ID,
		ServiceID:      "service-1",
		ServicePrice:   decimal.NewFromInt(90),
		StartTime:      testBase.Add(-2 * time.Hour),
		EndTime:        testBase.Add(-1 * time.Hour),
	})
	require.NoError(t, err)
	return appt
}

func confirm(t *testing.T, svc *lifecycle.Service, id string) model.Appointment {
	t.Helper()
	appt, err := svc.ConfirmPayment(context.Background(), id, "pi_test_1")
	require.NoError(t, err)
	return appt
}

func complete(t *testing.T, svc *lifecycle.Service, id string) model.Appointment {
	t.Helper()
	appt, err := svc.MarkCompleted(context.Background(), practitioner, id)
	require.NoError(t, err)
	return appt
}

func TestLifecycleHappyPath(t *testing.T) {
	svc, _, payments, notifier := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	require.Equal(t, model.StatusPending, appt.Status)
	require.Equal(t, model.PaymentPending, appt.PaymentStatus)
	require.NotEmpty(t, appt.ShortCode)

	appt = confirm(t, svc, appt.ID)
	require.Equal(t, model.StatusConfirmed, appt.Status)
	require.Equal(t, model.PaymentCaptured, appt.PaymentStatus)
	require.Equal(t, "pi_test_1", appt.PaymentRef)

	appt = complete(t, svc, appt.ID)
	require.Equal(t, model.StatusCompleted, appt.Status)

	appt, err := svc.Validate(ctx, client, appt.ID, "great session")
	require.NoError(t, err)
	require.Equal(t, model.StatusValidated, appt.Status)
	require.Equal(t, model.PaymentReleased, appt.PaymentStatus)
	require.Equal(t, []string{appt.ID}, payments.released)

	comments, err := svc.Comments(ctx, admin, appt.ID)
	require.NoError(t, err)
	// Audit entry per transition plus the client's validation comment.
	require.Len(t, comments, 5)

	require.Contains(t, notifier.sent(), "practitioner:"+lifecycle.EventValidated)
}

func TestMarkCompletedRequiresConfirmed(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	_, err := svc.MarkCompleted(context.Background(), practitioner, appt.ID)
	require.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
}

func TestMarkCompletedBeforeSessionStart(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt, err := svc.Book(context.Background(), client, lifecycle.BookingRequest{
		PractitionerID: practitioner.ID,
		ServiceID:      "service-1",
		ServicePrice:   decimal.NewFromInt(90),
		StartTime:      testBase.Add(1 * time.Hour),
		EndTime:        testBase.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	confirm(t, svc, appt.ID)

	_, err = svc.MarkCompleted(context.Background(), practitioner, appt.ID)
	require.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
}

func TestMarkCompletedWrongPractitioner(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)

	_, err := svc.MarkCompleted(context.Background(), otherPract, appt.ID)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestValidateWrongClient(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)

	_, err := svc.Validate(context.Background(), otherClient, appt.ID, "")
	require.ErrorIs(t, err, lifecycle.ErrForbidden)

	_, err = svc.Validate(context.Background(), practitioner, appt.ID, "")
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestValidateReleaseFailureKeepsStatus(t *testing.T) {
	svc, store, payments, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)

	payments.failRelease = true
	_, err := svc.Validate(context.Background(), client, appt.ID, "")
	require.ErrorIs(t, err, lifecycle.ErrPaymentRelease)

	current, err := store.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, current.Status)
	require.Equal(t, model.PaymentCaptured, current.PaymentStatus)

	// Release recovers; validation succeeds on retry.
	payments.failRelease = false
	current, err = svc.Validate(context.Background(), client, appt.ID, "")
	require.NoError(t, err)
	require.Equal(t, model.StatusValidated, current.Status)
}

func TestReportProblemRequiresDescription(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)

	_, err := svc.ReportProblem(context.Background(), client, appt.ID, "   ")
	require.ErrorIs(t, err, lifecycle.ErrEmptyDescription)
}

func TestReportProblemFreezesPayment(t *testing.T) {
	svc, _, _, notifier := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)

	appt, err := svc.ReportProblem(context.Background(), client, appt.ID, "session never happened")
	require.NoError(t, err)
	require.Equal(t, model.StatusIssueReported, appt.Status)
	require.Equal(t, model.PaymentFrozen, appt.PaymentStatus)
	require.True(t, appt.Contested)
	require.Equal(t, "session never happened", appt.ProblemDescription)

	require.Contains(t, notifier.sent(), "admin:"+lifecycle.EventContested)
}

func TestReportProblemOnlyOnce(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	// An appointment back in completed with the contested flag already set
	// (the one-shot guard) must reject a second report.
	seed := model.Appointment{
		ID:             "appt-contested",
		ShortCode:      "APT-SEED01",
		ClientID:       client.ID,
		PractitionerID: practitioner.ID,
		ServiceID:      "service-1",
		ServicePrice:   decimal.NewFromInt(90),
		Status:         model.StatusCompleted,
		PaymentStatus:  model.PaymentCaptured,
		Contested:      true,
		StartTime:      testBase.Add(-2 * time.Hour),
		EndTime:        testBase.Add(-1 * time.Hour),
		CreatedAt:      testBase,
		UpdatedAt:      testBase,
	}
	require.NoError(t, store.CreateAppointment(ctx, seed))

	_, err := svc.ReportProblem(ctx, client, seed.ID, "still unhappy")
	require.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
}

func TestContestThenValidate(t *testing.T) {
	svc, _, payments, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)

	_, err := svc.ReportProblem(ctx, client, appt.ID, "wrong meeting link")
	require.NoError(t, err)

	appt, err = svc.Validate(ctx, client, appt.ID, "sorted out directly")
	require.NoError(t, err)
	require.Equal(t, model.StatusValidated, appt.Status)
	require.Equal(t, model.PaymentReleased, appt.PaymentStatus)
	require.True(t, appt.Contested)
	require.Equal(t, []string{appt.ID}, payments.released)
}

func TestConcurrentValidateExactlyOnce(t *testing.T) {
	svc, _, payments, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, client, appt.ID, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var okCount, conflictCount int
	for err := range errs {
		switch {
		case err == nil:
			okCount++
		default:
			require.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
			conflictCount++
		}
	}
	require.Equal(t, 1, okCount)
	require.Equal(t, 1, conflictCount)
	require.Len(t, payments.released, 1)
}

func TestCancelPendingVoidsPayment(t *testing.T) {
	svc, _, payments, _ := newTestService(t)

	appt := bookPast(t, svc)
	appt, err := svc.Cancel(context.Background(), client, appt.ID, "changed my mind", false)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, appt.Status)
	require.Equal(t, model.PaymentVoided, appt.PaymentStatus)
	require.Equal(t, "changed my mind", appt.CancelReason)
	require.NotNil(t, appt.CancelledAt)
	require.Empty(t, payments.refunded)
}

func TestCancelConfirmedKeepsCapture(t *testing.T) {
	svc, _, payments, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)

	appt, err := svc.Cancel(context.Background(), practitioner, appt.ID, "illness", false)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, appt.Status)
	// Captured money stays put until an admin decides on the refund.
	require.Equal(t, model.PaymentCaptured, appt.PaymentStatus)
	require.Empty(t, payments.refunded)
}

func TestCancelRefundRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)

	_, err := svc.Cancel(context.Background(), client, appt.ID, "", true)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestAdminCancelWithRefund(t *testing.T) {
	svc, _, payments, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)

	appt, err := svc.Cancel(context.Background(), admin, appt.ID, "practitioner unavailable", true)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, appt.Status)
	require.Equal(t, model.PaymentRefunded, appt.PaymentStatus)
	require.Equal(t, []string{appt.ID}, payments.refunded)
}

func TestCancelRefundWithoutCaptureRejected(t *testing.T) {
	svc, store, payments, _ := newTestService(t)
	ctx := context.Background()

	// Nothing captured yet; a refund request must fail loudly rather than
	// silently cancel without moving money.
	appt := bookPast(t, svc)
	_, err := svc.Cancel(ctx, admin, appt.ID, "double booking", true)
	require.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
	require.Empty(t, payments.refunded)

	got, err := store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, got.Status)
}

func TestMarkCompletedAuditNamesActor(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)

	_, err := svc.MarkCompleted(ctx, admin, appt.ID)
	require.NoError(t, err)

	comments, err := svc.Comments(ctx, admin, appt.ID)
	require.NoError(t, err)
	var bodies []string
	for _, c := range comments {
		if c.Kind == model.CommentSystem {
			bodies = append(bodies, c.Body)
		}
	}
	require.Contains(t, bodies, "session marked completed by admin")
}

func TestCancelTerminalAppointment(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)
	_, err := svc.Validate(ctx, client, appt.ID, "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, admin, appt.ID, "", false)
	require.ErrorIs(t, err, lifecycle.ErrAlreadyTerminal)
}

func TestCancelCompletedRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)

	_, err := svc.Cancel(context.Background(), admin, appt.ID, "", false)
	require.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
}

func TestResolveRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)
	_, err := svc.ReportProblem(ctx, client, appt.ID, "no show")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, practitioner, appt.ID, model.StatusValidated, "", false)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestResolveToValidated(t *testing.T) {
	svc, _, payments, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)
	_, err := svc.ReportProblem(ctx, client, appt.ID, "no show")
	require.NoError(t, err)

	appt, err = svc.Resolve(ctx, admin, appt.ID, model.StatusValidated, "session evidenced by recording", false)
	require.NoError(t, err)
	require.Equal(t, model.StatusValidated, appt.Status)
	require.Equal(t, model.PaymentReleased, appt.PaymentStatus)
	require.Equal(t, []string{appt.ID}, payments.released)
}

func TestResolveToCancelledWithRefund(t *testing.T) {
	svc, _, payments, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)
	complete(t, svc, appt.ID)
	_, err := svc.ReportProblem(ctx, client, appt.ID, "no show")
	require.NoError(t, err)

	appt, err = svc.Resolve(ctx, admin, appt.ID, model.StatusCancelled, "practitioner confirmed the miss", true)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, appt.Status)
	require.Equal(t, model.PaymentRefunded, appt.PaymentStatus)
	require.Equal(t, []string{appt.ID}, payments.refunded)
	require.Empty(t, payments.released)
}

func TestResolveWithoutOpenDispute(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	confirm(t, svc, appt.ID)

	_, err := svc.Resolve(context.Background(), admin, appt.ID, model.StatusValidated, "", false)
	require.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
}

func TestBookCustomPriceFloor(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	list := decimal.NewFromInt(150)

	below := decimal.NewFromInt(100)
	_, err := svc.Book(ctx, client, lifecycle.BookingRequest{
		PractitionerID: practitioner.ID,
		ServiceID:      "service-1",
		ServicePrice:   list,
		CustomPrice:    &below,
		StartTime:      testBase.Add(time.Hour),
		EndTime:        testBase.Add(2 * time.Hour),
	})
	require.ErrorIs(t, err, model.ErrPriceBelowFloor)

	above := decimal.NewFromInt(200)
	appt, err := svc.Book(ctx, client, lifecycle.BookingRequest{
		PractitionerID: practitioner.ID,
		ServiceID:      "service-1",
		ServicePrice:   list,
		CustomPrice:    &above,
		StartTime:      testBase.Add(time.Hour),
		EndTime:        testBase.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, appt.EffectivePrice().Equal(above))
}

func TestBookPriceOnRequest(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt, err := svc.Book(context.Background(), client, lifecycle.BookingRequest{
		PractitionerID: practitioner.ID,
		ServiceID:      "service-1",
		ServicePrice:   model.PriceOnRequest,
		StartTime:      testBase.Add(time.Hour),
		EndTime:        testBase.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, model.IsOnRequest(appt.EffectivePrice()))
}

func TestReassignRevalidatesFloor(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	custom := decimal.NewFromInt(160)
	appt, err := svc.Book(ctx, client, lifecycle.BookingRequest{
		PractitionerID: practitioner.ID,
		ServiceID:      "service-1",
		ServicePrice:   decimal.NewFromInt(150),
		CustomPrice:    &custom,
		StartTime:      testBase.Add(time.Hour),
		EndTime:        testBase.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	// The incoming practitioner's list price exceeds the agreed custom price.
	_, err = svc.ReassignPractitioner(ctx, admin, appt.ID, otherPract.ID, decimal.NewFromInt(200))
	require.ErrorIs(t, err, model.ErrPriceBelowFloor)

	appt, err = svc.ReassignPractitioner(ctx, admin, appt.ID, otherPract.ID, decimal.NewFromInt(120))
	require.NoError(t, err)
	require.Equal(t, otherPract.ID, appt.PractitionerID)
	require.True(t, appt.ServicePrice.Equal(decimal.NewFromInt(120)))
	require.Equal(t, model.StatusPending, appt.Status)
}

func TestReassignRequiresAdmin(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	appt := bookPast(t, svc)
	_, err := svc.ReassignPractitioner(context.Background(), practitioner, appt.ID, otherPract.ID, decimal.NewFromInt(90))
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestCommentsVisibility(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)

	_, err := svc.AddComment(ctx, client, appt.ID, "looking forward to it", model.VisibilityPublic)
	require.NoError(t, err)
	_, err = svc.AddComment(ctx, admin, appt.ID, "waive the floor check next time", model.VisibilityStaff)
	require.NoError(t, err)

	// Only admins may author staff-only comments.
	_, err = svc.AddComment(ctx, client, appt.ID, "secret", model.VisibilityStaff)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
	_, err = svc.AddComment(ctx, practitioner, appt.ID, "between us", model.VisibilityStaff)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)

	// The admin note is hidden from both parties.
	clientView, err := svc.Comments(ctx, client, appt.ID)
	require.NoError(t, err)
	practView, err := svc.Comments(ctx, practitioner, appt.ID)
	require.NoError(t, err)
	require.Len(t, practView, len(clientView))
	adminView, err := svc.Comments(ctx, admin, appt.ID)
	require.NoError(t, err)
	require.Len(t, adminView, len(clientView)+1)

	// Outsiders see nothing.
	_, err = svc.Comments(ctx, otherClient, appt.ID)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestDeleteCommentAdminOnly(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	appt := bookPast(t, svc)
	c, err := svc.AddComment(ctx, client, appt.ID, "please reschedule", model.VisibilityPublic)
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteComment(ctx, client, appt.ID, c.ID), lifecycle.ErrForbidden)
	require.ErrorIs(t, svc.DeleteComment(ctx, practitioner, appt.ID, c.ID), lifecycle.ErrForbidden)
	require.NoError(t, svc.DeleteComment(ctx, admin, appt.ID, c.ID))
}
