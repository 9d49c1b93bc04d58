package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contactsapp/message-dispatch/internal/config"
	"github.com/contactsapp/message-dispatch/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestSendGrid(t *testing.T, apiKey string, h http.HandlerFunc) *SendGridGateway {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	g := NewSendGridGateway(config.EmailConfig{
		SendGridAPIKey: apiKey,
		SenderEmail:    "noreply@contacts-app.com",
		SenderName:     "Contacts App",
	})
	g.baseURL = srv.URL
	return g
}

func TestSendGrid_Deliver_Success(t *testing.T) {
	t.Parallel()

	var captured sgMailRequest
	var auth string

	g := newTestSendGrid(t, "SG.key", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/mail/send", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	})

	result, err := g.Deliver(context.Background(), Outbound{
		Recipient: "john@example.com",
		Subject:   "Hello",
		Body:      "Hi there",
	})
	require.NoError(t, err)
	require.Equal(t, "sg-msg-1", result.ProviderMessageID)

	require.Equal(t, "Bearer SG.key", auth)
	require.Len(t, captured.Personalizations, 1)
	require.Equal(t, "john@example.com", captured.Personalizations[0].To[0].Email)
	require.Equal(t, "noreply@contacts-app.com", captured.From.Email)
	require.Equal(t, "Hello", captured.Subject)
	require.Equal(t, "Hi there", captured.Content[0].Value)
}

func TestSendGrid_Deliver_MissingKey(t *testing.T) {
	t.Parallel()

	called := false
	g := newTestSendGrid(t, "", func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := g.Deliver(context.Background(), Outbound{Recipient: "a@b.com"})

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, domain.KindConfigurationMissing, perr.Kind)
	require.False(t, called, "no network attempt expected when the key is absent")
}

func TestSendGrid_Deliver_AuthFailure(t *testing.T) {
	t.Parallel()

	g := newTestSendGrid(t, "SG.bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid key"}]}`))
	})

	_, err := g.Deliver(context.Background(), Outbound{Recipient: "a@b.com"})

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, domain.KindAuthenticationFailed, perr.Kind)
	require.False(t, perr.Retryable())
}

func TestSendGrid_Deliver_Rejected(t *testing.T) {
	t.Parallel()

	g := newTestSendGrid(t, "SG.key", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad recipient"}]}`))
	})

	_, err := g.Deliver(context.Background(), Outbound{Recipient: "a@b.com"})

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, domain.KindRejected, perr.Kind)
	require.False(t, perr.Retryable())
}

func TestSendGrid_Deliver_ServerErrorIsUnknown(t *testing.T) {
	t.Parallel()

	g := newTestSendGrid(t, "SG.key", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.Deliver(context.Background(), Outbound{Recipient: "a@b.com"})

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, domain.KindUnknown, perr.Kind)
}

func TestSendGrid_Deliver_TimeoutIsConnectionFailed(t *testing.T) {
	t.Parallel()

	g := newTestSendGrid(t, "SG.key", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusAccepted)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Deliver(ctx, Outbound{Recipient: "a@b.com"})

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, domain.KindConnectionFailed, perr.Kind)
	require.True(t, perr.Retryable())
}
