package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/model"
)

type addCommentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Body          string `json:"body"`
	Visibility    string `json:"visibility,omitempty"` // public | staff
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	visibility := model.VisibilityPublic
	if strings.TrimSpace(req.Visibility) == string(model.VisibilityStaff) {
		visibility = model.VisibilityStaff
	}

	c, err := h.svc.AddComment(r.Context(), actor, req.AppointmentID, req.Body, visibility)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentJSON(c))
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	comments, err := h.svc.Comments(r.Context(), actor, appointmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		items = append(items, commentJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": items})
}

type deleteCommentRequest struct {
	AppointmentID string `json:"appointment_id"`
	CommentID     string `json:"comment_id"`
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.actor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req deleteCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.CommentID = strings.TrimSpace(req.CommentID)
	if req.AppointmentID == "" || req.CommentID == "" {
		http.Error(w, "appointment_id and comment_id are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteComment(r.Context(), actor, req.AppointmentID, req.CommentID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func commentJSON(c model.Comment) map[string]any {
	out := map[string]any{
		"id":             c.ID,
		"appointment_id": c.AppointmentID,
		"kind":           string(c.Kind),
		"visibility":     string(c.Visibility),
		"body":           c.Body,
		"created_at":     c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.AuthorID != "" {
		out["author_id"] = c.AuthorID
		out["author_role"] = string(c.AuthorRole)
	}
	return out
}
