package api

import (
	"net/http"

	"github.com/contactsapp/message-dispatch/internal/metric"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("POST /messages/email/send", h.SendEmail)
	mux.HandleFunc("POST /messages/email/draft", h.CreateDraft)
	mux.HandleFunc("GET /messages/contact/{contact_id}", h.ContactHistory)
	mux.HandleFunc("PUT /messages/{message_id}", h.UpdateDraft)
	mux.HandleFunc("DELETE /messages/{message_id}", h.DeleteMessage)
	mux.HandleFunc("POST /messages/{message_id}/delivered", h.MarkDelivered)

	mux.HandleFunc("GET /messages/templates", h.ListTemplates)
	mux.HandleFunc("POST /messages/templates/render", h.RenderTemplate)

	mux.HandleFunc("GET /v1/reconciler/status", h.ReconcilerStatus)
	mux.HandleFunc("POST /v1/reconciler/start", h.ReconcilerStart)
	mux.HandleFunc("POST /v1/reconciler/stop", h.ReconcilerStop)

	mux.Handle("GET /metrics", metric.Handler())

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("message-dispatch"))
	})

	return mux
}
