package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/contactsapp/message-dispatch/internal/domain"
	"github.com/contactsapp/message-dispatch/internal/model"
	"github.com/contactsapp/message-dispatch/internal/reconcile"
	"github.com/contactsapp/message-dispatch/internal/store"
	"github.com/contactsapp/message-dispatch/internal/template"
)

// MessageService is the dispatch surface the handlers depend on.
type MessageService interface {
	CreateDraft(ctx context.Context, contactID string, msgType model.Type, recipient string, subject *string, body string) (*model.Message, error)
	UpdateDraft(ctx context.Context, id string, fields store.DraftFields) (*model.Message, error)
	Delete(ctx context.Context, id string) error
	Send(ctx context.Context, id string) (*model.Message, error)
	SendNew(ctx context.Context, contactID string, msgType model.Type, recipient string, subject *string, body string) (*model.Message, error)
	MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) (*model.Message, error)
	History(ctx context.Context, contactID string, limit int, direction, status string) ([]model.Message, error)
}

type Handler struct {
	svc MessageService
	rec *reconcile.Reconciler
}

func NewHandler(svc MessageService, rec *reconcile.Reconciler) *Handler {
	return &Handler{svc: svc, rec: rec}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type sendEmailRequest struct {
	ContactID string  `json:"contact_id"`
	Email     string  `json:"email"`
	Subject   *string `json:"subject"`
	Body      string  `json:"body"`
	IsDraft   bool    `json:"is_draft"`
}

func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if req.IsDraft {
		m, err := h.svc.CreateDraft(r.Context(), req.ContactID, model.TypeEmail, req.Email, req.Subject, req.Body)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      m.ID,
			"status":  m.Status,
			"message": "Draft saved",
		})
		return
	}

	m, err := h.svc.SendNew(r.Context(), req.ContactID, model.TypeEmail, req.Email, req.Subject, req.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary := "Email sent successfully"
	if m.Status == model.StatusFailed && m.ErrorMessage != nil {
		summary = *m.ErrorMessage
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      m.ID,
		"status":  m.Status,
		"message": summary,
	})
}

type draftRequest struct {
	ContactID string  `json:"contact_id"`
	Email     string  `json:"email"`
	Subject   *string `json:"subject"`
	Body      string  `json:"body"`
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.svc.CreateDraft(r.Context(), req.ContactID, model.TypeEmail, req.Email, req.Subject, req.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     m.ID,
		"status": m.Status,
	})
}

func (h *Handler) ContactHistory(w http.ResponseWriter, r *http.Request) {
	contactID := r.PathValue("contact_id")
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	direction := r.URL.Query().Get("direction")
	status := r.URL.Query().Get("status")

	msgs, err := h.svc.History(r.Context(), contactID, limit, direction, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type updateDraftRequest struct {
	Recipient *string `json:"recipient"`
	Subject   *string `json:"subject"`
	Body      *string `json:"body"`
}

func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req updateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	m, err := h.svc.UpdateDraft(r.Context(), r.PathValue("message_id"), store.DraftFields{
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("message_id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

type markDeliveredRequest struct {
	DeliveredAt *time.Time `json:"delivered_at"`
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	// The acknowledgement body is optional; an empty POST means "now".
	var req markDeliveredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	at := time.Now().UTC()
	if req.DeliveredAt != nil {
		at = *req.DeliveredAt
	}

	m, err := h.svc.MarkDelivered(r.Context(), r.PathValue("message_id"), at)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, template.List())
}

type renderRequest struct {
	TemplateName string            `json:"template_name"`
	Context      map[string]string `json:"context"`
}

func (h *Handler) RenderTemplate(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body, err := template.Render(req.TemplateName, req.Context)
	if err != nil {
		var missing *template.UnknownPlaceholderError
		if errors.Is(err, template.ErrUnknownTemplate) || errors.As(err, &missing) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"body": body})
}

func (h *Handler) ReconcilerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.rec.IsRunning()})
}

func (h *Handler) ReconcilerStart(w http.ResponseWriter, r *http.Request) {
	h.rec.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.rec.IsRunning()})
}

func (h *Handler) ReconcilerStop(w http.ResponseWriter, r *http.Request) {
	h.rec.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.rec.IsRunning()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	var state *domain.InvalidStateError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &state):
		writeError(w, http.StatusConflict, state.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
