package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/projection"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/storage/memory"
)

func seededStore(t *testing.T) (*memory.Store, model.Appointment) {
	t.Helper()
	store := memory.NewStore()

	store.PutClient(projection.Party{ID: "c1", FirstName: "Claire", LastName: "Martin", Email: "claire@example.test", Phone: "+33 6 00 00 00 01"})
	store.PutPractitioner(projection.Party{ID: "p1", FirstName: "Nadia", LastName: "Rey", Email: "nadia@example.test"}, "acct_1")
	store.PutService(projection.ServiceInfo{ID: "s1", Code: "NUM-STD", Name: "Numerology consultation", ListPrice: decimal.NewFromInt(90)})

	birth := time.Date(1984, 6, 2, 0, 0, 0, 0, time.UTC)
	store.PutBeneficiary(projection.Beneficiary{
		ID:         "b1",
		FirstName:  "Paul",
		LastName:   "Martin",
		BirthDate:  &birth,
		BirthTime:  "06:45",
		BirthPlace: "Lyon",
		Email:      "paul@example.test",
		Phone:      "+33 6 00 00 00 02",
	})

	appt := model.Appointment{
		ID:             "a1",
		ShortCode:      "APT-A1",
		ClientID:       "c1",
		PractitionerID: "p1",
		BeneficiaryID:  "b1",
		ServiceID:      "s1",
		ServicePrice:   decimal.NewFromInt(90),
		Status:         model.StatusConfirmed,
		PaymentStatus:  model.PaymentCaptured,
	}
	require.NoError(t, store.CreateAppointment(context.Background(), appt))
	return store, appt
}

func TestBuildRedactsBeneficiaryContactForPractitioner(t *testing.T) {
	store, appt := seededStore(t)
	ctx := context.Background()

	rec, err := projection.Build(ctx, store, model.Actor{ID: "p1", Role: model.RolePractitioner}, appt, "EUR")
	require.NoError(t, err)
	require.NotNil(t, rec.Beneficiary)
	// Birth data stays (chart work needs it); contact channels do not.
	require.Equal(t, "Paul", rec.Beneficiary.FirstName)
	require.NotNil(t, rec.Beneficiary.BirthDate)
	require.Equal(t, "06:45", rec.Beneficiary.BirthTime)
	require.Empty(t, rec.Beneficiary.Email)
	require.Empty(t, rec.Beneficiary.Phone)
}

func TestBuildKeepsBeneficiaryContactForClientAndAdmin(t *testing.T) {
	store, appt := seededStore(t)
	ctx := context.Background()

	for _, actor := range []model.Actor{
		{ID: "c1", Role: model.RoleClient},
		{ID: "a1", Role: model.RoleAdmin},
	} {
		rec, err := projection.Build(ctx, store, actor, appt, "EUR")
		require.NoError(t, err)
		require.NotNil(t, rec.Beneficiary)
		require.Equal(t, "paul@example.test", rec.Beneficiary.Email)
	}
}

func TestBuildDeniesOutsiders(t *testing.T) {
	store, appt := seededStore(t)

	_, err := projection.Build(context.Background(), store, model.Actor{ID: "c2", Role: model.RoleClient}, appt, "EUR")
	require.ErrorIs(t, err, lifecycle.ErrForbidden)

	_, err = projection.Build(context.Background(), store, model.Actor{ID: "p2", Role: model.RolePractitioner}, appt, "EUR")
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestBuildPriceLabel(t *testing.T) {
	store, appt := seededStore(t)
	ctx := context.Background()
	admin := model.Actor{ID: "a1", Role: model.RoleAdmin}

	rec, err := projection.Build(ctx, store, admin, appt, "EUR")
	require.NoError(t, err)
	require.Equal(t, "90.00 EUR", rec.PriceLabel)

	onRequest := appt
	onRequest.ID = "a2"
	onRequest.ServicePrice = model.PriceOnRequest
	require.NoError(t, store.CreateAppointment(ctx, onRequest))

	rec, err = projection.Build(ctx, store, admin, onRequest, "EUR")
	require.NoError(t, err)
	require.Equal(t, "on request", rec.PriceLabel)
}
