package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FredM555/FL2M-Web-sub002/libs/auth"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/projection"
)

type Handler struct {
	svc       *lifecycle.Service
	store     lifecycle.Store
	directory projection.Directory
	logger    *slog.Logger

	jwtSecret              string
	currency               string
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

type Config struct {
	JWTSecret                     string
	Currency                      string
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
}

func New(svc *lifecycle.Service, store lifecycle.Store, directory projection.Directory, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	currency := strings.TrimSpace(cfg.Currency)
	if currency == "" {
		currency = "EUR"
	}
	return &Handler{
		svc:                    svc,
		store:                  store,
		directory:              directory,
		logger:                 logger,
		jwtSecret:              strings.TrimSpace(cfg.JWTSecret),
		currency:               currency,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
	}
}

// actor resolves the caller from the Bearer token. Webhook endpoints skip
// this; everything else requires it.
func (h *Handler) actor(r *http.Request) (model.Actor, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return model.Actor{}, false
	}
	claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(token), h.jwtSecret)
	if err != nil {
		return model.Actor{}, false
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok || strings.TrimSpace(claims.Sub) == "" {
		return model.Actor{}, false
	}
	return model.Actor{ID: claims.Sub, Role: role}, true
}

type bookRequest struct {
	ClientID       string `json:"client_id,omitempty"` // admin only
	PractitionerID string `json:"practitioner_id"`
	BeneficiaryID  string `json:"beneficiary_id,omitempty"`
	ServiceID      string `json:"service_id"`
	CustomPrice    string `json:"custom_price,omitempty"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	MeetingLink    string `json:"meeting_link,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.PractitionerID == "" || req.ServiceID == "" {
		http.Error(w, "practitioner_id and service_id are required", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	svcInfo, err := h.directory.Service(r.Context(), req.ServiceID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	booking := lifecycle.BookingRequest{
		ClientID:       strings.TrimSpace(req.ClientID),
		PractitionerID: req.PractitionerID,
		BeneficiaryID:  strings.TrimSpace(req.BeneficiaryID),
		ServiceID:      req.ServiceID,
		ServicePrice:   svcInfo.ListPrice,
		StartTime:      startTime,
		EndTime:        endTime,
		MeetingLink:    strings.TrimSpace(req.MeetingLink),
		Notes:          strings.TrimSpace(req.Notes),
	}
	if raw := strings.TrimSpace(req.CustomPrice); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			http.Error(w, "invalid custom_price", http.StatusBadRequest)
			return
		}
		booking.CustomPrice = &price
	}

	appt, err := h.svc.Book(r.Context(), actor, booking)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentJSON(appt, h.currency))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	appt, err := h.store.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rec, err := projection.Build(r.Context(), h.directory, actor, appt, h.currency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(rec, h.currency))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	var (
		appts []model.Appointment
		err   error
	)
	switch actor.Role {
	case model.RoleClient:
		appts, err = h.store.ListByClient(r.Context(), actor.ID, limit)
	case model.RolePractitioner:
		appts, err = h.store.ListByPractitioner(r.Context(), actor.ID, limit)
	case model.RoleAdmin:
		if clientID := strings.TrimSpace(r.URL.Query().Get("client_id")); clientID != "" {
			appts, err = h.store.ListByClient(r.Context(), clientID, limit)
		} else if practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id")); practitionerID != "" {
			appts, err = h.store.ListByPractitioner(r.Context(), practitionerID, limit)
		} else {
			http.Error(w, "client_id or practitioner_id is required", http.StatusBadRequest)
			return
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentJSON(appt, h.currency))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Comment       string `json:"comment,omitempty"`
	Description   string `json:"description,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Refund        bool   `json:"refund,omitempty"`
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor model.Actor, req transitionRequest, r *http.Request) (model.Appointment, error) {
		return h.svc.MarkCompleted(r.Context(), actor, req.AppointmentID)
	})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor model.Actor, req transitionRequest, r *http.Request) (model.Appointment, error) {
		return h.svc.Validate(r.Context(), actor, req.AppointmentID, req.Comment)
	})
}

func (h *Handler) Contest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor model.Actor, req transitionRequest, r *http.Request) (model.Appointment, error) {
		return h.svc.ReportProblem(r.Context(), actor, req.AppointmentID, req.Description)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor model.Actor, req transitionRequest, r *http.Request) (model.Appointment, error) {
		return h.svc.Cancel(r.Context(), actor, req.AppointmentID, req.Reason, req.Refund)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(model.Actor, transitionRequest, *http.Request) (model.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	appt, err := apply(actor, req, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentJSON(appt, h.currency))
}

type resolveRequest struct {
	AppointmentID string `json:"appointment_id"`
	Outcome       string `json:"outcome"` // validated | cancelled
	Note          string `json:"note,omitempty"`
	Refund        bool   `json:"refund,omitempty"`
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	outcome := model.Status(strings.TrimSpace(req.Outcome))
	if req.AppointmentID == "" || outcome == "" {
		http.Error(w, "appointment_id and outcome are required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Resolve(r.Context(), actor, req.AppointmentID, outcome, req.Note, req.Refund)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentJSON(appt, h.currency))
}

type reassignRequest struct {
	AppointmentID  string `json:"appointment_id"`
	PractitionerID string `json:"practitioner_id"`
	ListPrice      string `json:"list_price,omitempty"`
}

func (h *Handler) Reassign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	if req.AppointmentID == "" || req.PractitionerID == "" {
		http.Error(w, "appointment_id and practitioner_id are required", http.StatusBadRequest)
		return
	}

	var listPrice decimal.Decimal
	if raw := strings.TrimSpace(req.ListPrice); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			http.Error(w, "invalid list_price", http.StatusBadRequest)
			return
		}
		listPrice = price
	} else {
		appt, err := h.store.GetAppointment(r.Context(), req.AppointmentID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		svcInfo, err := h.directory.Service(r.Context(), appt.ServiceID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		listPrice = svcInfo.ListPrice
	}

	appt, err := h.svc.ReassignPractitioner(r.Context(), actor, req.AppointmentID, req.PractitionerID, listPrice)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentJSON(appt, h.currency))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, lifecycle.ErrAlreadyTerminal),
		errors.Is(err, lifecycle.ErrPreconditionFailed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, lifecycle.ErrEmptyDescription),
		errors.Is(err, model.ErrPriceBelowFloor):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, lifecycle.ErrPaymentRelease):
		http.Error(w, "payment operation failed", http.StatusBadGateway)
	case errors.Is(err, lifecycle.ErrTransientStore):
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("unhandled request error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func appointmentJSON(appt model.Appointment, currency string) map[string]any {
	out := map[string]any{
		"id":              appt.ID,
		"short_code":      appt.ShortCode,
		"client_id":       appt.ClientID,
		"practitioner_id": appt.PractitionerID,
		"service_id":      appt.ServiceID,
		"status":          string(appt.Status),
		"payment_status":  string(appt.PaymentStatus),
		"price":           model.FormatPrice(appt.EffectivePrice(), currency),
		"start_time":      appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":        appt.EndTime.UTC().Format(time.RFC3339),
		"contested":       appt.Contested,
		"created_at":      appt.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":      appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if appt.BeneficiaryID != "" {
		out["beneficiary_id"] = appt.BeneficiaryID
	}
	if appt.MeetingLink != "" {
		out["meeting_link"] = appt.MeetingLink
	}
	if appt.CancelReason != "" {
		out["cancel_reason"] = appt.CancelReason
	}
	if appt.CancelledAt != nil {
		out["cancelled_at"] = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return out
}

func recordJSON(rec projection.Record, currency string) map[string]any {
	out := appointmentJSON(rec.Appointment, currency)
	out["price"] = rec.PriceLabel
	out["client"] = partyJSON(rec.Client)
	out["practitioner"] = partyJSON(rec.Practitioner)
	out["service"] = map[string]any{
		"id":   rec.Service.ID,
		"code": rec.Service.Code,
		"name": rec.Service.Name,
	}
	if rec.Beneficiary != nil {
		b := map[string]any{
			"id":         rec.Beneficiary.ID,
			"first_name": rec.Beneficiary.FirstName,
			"last_name":  rec.Beneficiary.LastName,
		}
		if rec.Beneficiary.BirthDate != nil {
			b["birth_date"] = rec.Beneficiary.BirthDate.UTC().Format("2006-01-02")
		}
		if rec.Beneficiary.BirthTime != "" {
			b["birth_time"] = rec.Beneficiary.BirthTime
		}
		if rec.Beneficiary.BirthPlace != "" {
			b["birth_place"] = rec.Beneficiary.BirthPlace
		}
		if rec.Beneficiary.Email != "" {
			b["email"] = rec.Beneficiary.Email
		}
		if rec.Beneficiary.Phone != "" {
			b["phone"] = rec.Beneficiary.Phone
		}
		out["beneficiary"] = b
	}
	return out
}

func partyJSON(p projection.Party) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"email":      p.Email,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
