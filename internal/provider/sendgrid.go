package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contactsapp/message-dispatch/internal/config"
	"github.com/contactsapp/message-dispatch/internal/domain"
)

const sendGridBaseURL = "https://api.sendgrid.com"

// SendGridGateway delivers mail through the SendGrid v3 HTTP API.
type SendGridGateway struct {
	baseURL     string
	apiKey      string
	senderEmail string
	senderName  string
	client      *http.Client
}

func NewSendGridGateway(cfg config.EmailConfig) *SendGridGateway {
	return &SendGridGateway{
		baseURL:     sendGridBaseURL,
		apiKey:      cfg.SendGridAPIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (g *SendGridGateway) Name() string { return "sendgrid" }

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMailRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (g *SendGridGateway) Deliver(ctx context.Context, out Outbound) (Result, error) {
	if g.apiKey == "" {
		return Result{}, &domain.ProviderError{
			Provider: g.Name(),
			Kind:     domain.KindConfigurationMissing,
			Err:      errors.New("SendGrid API key not configured"),
		}
	}

	reqBody, err := json.Marshal(sgMailRequest{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: out.Recipient}}}},
		From:             sgAddress{Email: g.senderEmail, Name: g.senderName},
		Subject:          out.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: out.Body}},
	})
	if err != nil {
		return Result{}, &domain.ProviderError{Provider: g.Name(), Kind: domain.KindUnknown, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v3/mail/send", bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, &domain.ProviderError{Provider: g.Name(), Kind: domain.KindUnknown, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, &domain.ProviderError{
			Provider: g.Name(),
			Kind:     domain.KindConnectionFailed,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		return Result{ProviderMessageID: resp.Header.Get("X-Message-Id")}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, &domain.ProviderError{
			Provider: g.Name(),
			Kind:     domain.KindAuthenticationFailed,
			Err:      fmt.Errorf("status %d body=%q", resp.StatusCode, string(body)),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Result{}, &domain.ProviderError{
			Provider: g.Name(),
			Kind:     domain.KindRejected,
			Err:      fmt.Errorf("status %d body=%q", resp.StatusCode, string(body)),
		}
	default:
		return Result{}, &domain.ProviderError{
			Provider: g.Name(),
			Kind:     domain.KindUnknown,
			Err:      fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body)),
		}
	}
}
