// Package service orchestrates draft lifecycle, validation, dispatch and
// history for outbound messages.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/contactsapp/message-dispatch/internal/cache"
	"github.com/contactsapp/message-dispatch/internal/config"
	"github.com/contactsapp/message-dispatch/internal/domain"
	"github.com/contactsapp/message-dispatch/internal/metric"
	"github.com/contactsapp/message-dispatch/internal/model"
	"github.com/contactsapp/message-dispatch/internal/provider"
	"github.com/contactsapp/message-dispatch/internal/store"
	"github.com/google/uuid"
)

var (
	emailPattern = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// resendable are the statuses a send may start from.
var resendable = []model.Status{model.StatusDraft, model.StatusFailed}

type MessageService struct {
	messages store.MessageStore
	gateway  provider.Gateway
	dispatch cache.DispatchCache

	timeout time.Duration
	backoff time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func New(messages store.MessageStore, gateway provider.Gateway, dispatch cache.DispatchCache, cfg config.SendConfig) *MessageService {
	if dispatch == nil {
		dispatch = cache.Noop{}
	}
	return &MessageService{
		messages: messages,
		gateway:  gateway,
		dispatch: dispatch,
		timeout:  cfg.Timeout,
		backoff:  cfg.RetryBackoff,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// CreateDraft stores a new draft immediately. Recipient format is not
// checked here; drafts may be incomplete.
func (s *MessageService) CreateDraft(ctx context.Context, contactID string, msgType model.Type, recipient string, subject *string, body string) (*model.Message, error) {
	if contactID == "" {
		return nil, &domain.ValidationError{Field: "contact_id", Reason: "must not be empty"}
	}

	switch msgType {
	case model.TypeEmail:
		if subject == nil {
			empty := ""
			subject = &empty
		}
	case model.TypeSMS:
		if subject != nil {
			return nil, &domain.ValidationError{Field: "subject", Reason: "not allowed for sms"}
		}
	default:
		return nil, &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported message type %q", msgType)}
	}

	m := &model.Message{
		ID:        uuid.NewString(),
		ContactID: contactID,
		Type:      msgType,
		Direction: model.DirectionSent,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Status:    model.StatusDraft,
		Timestamp: s.now().UTC(),
	}

	if err := s.messages.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}

	slog.Info("draft created", "id", m.ID, "contact_id", contactID, "type", msgType)
	return m, nil
}

// UpdateDraft edits a draft in place. Anything past draft is immutable.
// The subject rule from creation still holds: only email drafts carry one.
func (s *MessageService) UpdateDraft(ctx context.Context, id string, fields store.DraftFields) (*model.Message, error) {
	if fields.Subject != nil {
		current, err := s.messages.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Type != model.TypeEmail {
			return nil, &domain.ValidationError{Field: "subject", Reason: fmt.Sprintf("not allowed for %s", current.Type)}
		}
	}

	m, err := s.messages.UpdateDraft(ctx, id, fields)
	if errors.Is(err, store.ErrConflict) {
		return nil, &domain.InvalidStateError{Op: "update_draft", Reason: "message is not a draft"}
	}
	return m, err
}

// Delete removes a draft or a terminally failed record. Sent, delivered
// and in-flight records are immutable audit entries.
func (s *MessageService) Delete(ctx context.Context, id string) error {
	err := s.messages.Delete(ctx, id, model.StatusDraft, model.StatusFailed)
	if errors.Is(err, store.ErrConflict) {
		return &domain.InvalidStateError{Op: "delete", Reason: "only draft or failed messages can be deleted"}
	}
	return err
}

// Send dispatches the identified message. It blocks until the outcome is
// known and returns the persisted record with its final status. Provider
// failures are not returned as errors: they surface as a failed record.
func (s *MessageService) Send(ctx context.Context, id string) (*model.Message, error) {
	m, err := s.messages.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if reason := validateRecipient(m.Type, m.Recipient); reason != "" {
		failed, err := s.messages.UpdateStatus(ctx, id, resendable, model.StatusFailed, store.Change{
			ErrorMessage: strPtr("invalid recipient"),
		})
		if errors.Is(err, store.ErrConflict) {
			return nil, s.sendConflict(ctx, id)
		}
		if err != nil {
			return nil, err
		}
		return failed, &domain.ValidationError{Field: "recipient", Reason: reason}
	}

	// The status swap is the at-most-one-sender guard: a competing call
	// finds the record already in sending and stops here.
	m, err = s.messages.UpdateStatus(ctx, id, resendable, model.StatusSending, store.Change{})
	if errors.Is(err, store.ErrConflict) {
		return nil, s.sendConflict(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	result, perr := s.deliver(ctx, m)
	if perr != nil {
		return s.recordFailure(ctx, m, perr)
	}
	return s.recordSuccess(ctx, m, result)
}

// SendNew creates the record and dispatches it in one call.
func (s *MessageService) SendNew(ctx context.Context, contactID string, msgType model.Type, recipient string, subject *string, body string) (*model.Message, error) {
	m, err := s.CreateDraft(ctx, contactID, msgType, recipient, subject, body)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, m.ID)
}

// MarkDelivered applies an out-of-band delivery acknowledgement.
func (s *MessageService) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) (*model.Message, error) {
	m, err := s.messages.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	at := deliveredAt.UTC()
	updated, err := s.messages.UpdateStatus(ctx, id, []model.Status{model.StatusSent}, model.StatusDelivered, store.Change{
		DeliveredAt: &at,
		Metadata:    m.Metadata,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, &domain.InvalidStateError{Op: "mark_delivered", Reason: "only sent messages can be acknowledged"}
	}
	return updated, err
}

// History returns the contact's messages, newest first.
func (s *MessageService) History(ctx context.Context, contactID string, limit int, direction, status string) ([]model.Message, error) {
	if contactID == "" {
		return nil, &domain.ValidationError{Field: "contact_id", Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = 50
	}

	f := store.ListFilter{Limit: limit}
	if direction != "" {
		if !model.ValidDirection(direction) {
			return nil, &domain.ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", direction)}
		}
		d := model.Direction(direction)
		f.Direction = &d
	}
	if status != "" {
		if !model.ValidStatus(status) {
			return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
		}
		st := model.Status(status)
		f.Status = &st
	}

	return s.messages.ListByContact(ctx, contactID, f)
}

// sendConflict names why the status swap was refused, based on what the
// record looks like now.
func (s *MessageService) sendConflict(ctx context.Context, id string) error {
	m, err := s.messages.Get(ctx, id)
	if err != nil {
		return &domain.InvalidStateError{Op: "send", Reason: "send already in progress"}
	}
	switch m.Status {
	case model.StatusSending:
		return &domain.InvalidStateError{Op: "send", Reason: "send already in progress"}
	case model.StatusSent, model.StatusDelivered:
		return &domain.InvalidStateError{Op: "send", Reason: fmt.Sprintf("message already %s", m.Status)}
	default:
		return &domain.InvalidStateError{Op: "send", Reason: fmt.Sprintf("cannot send message in status %q", m.Status)}
	}
}

// deliver invokes the gateway with the configured timeout, retrying once
// after a backoff when the failure is a connection timeout.
func (s *MessageService) deliver(ctx context.Context, m *model.Message) (provider.Result, *domain.ProviderError) {
	if m.Type != model.TypeEmail {
		seg := model.SMSSegments(m.Body)
		slog.Info("sms segment estimate", "id", m.ID, "characters", seg.Characters, "segments", seg.Segments)
		return provider.Result{}, &domain.ProviderError{
			Provider: string(m.Type),
			Kind:     domain.KindConfigurationMissing,
			Err:      fmt.Errorf("no %s provider configured", m.Type),
		}
	}

	out := provider.Outbound{
		Recipient: m.Recipient,
		Body:      m.Body,
	}
	if m.Subject != nil {
		out.Subject = *m.Subject
	}

	result, perr := s.attempt(ctx, out)
	if perr != nil && perr.Retryable() {
		slog.Warn("delivery timed out, retrying once", "id", m.ID, "provider", perr.Provider)
		s.sleep(s.backoff)
		result, perr = s.attempt(ctx, out)
	}
	return result, perr
}

func (s *MessageService) attempt(ctx context.Context, out provider.Outbound) (provider.Result, *domain.ProviderError) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.gateway.Deliver(attemptCtx, out)
	if err == nil {
		return result, nil
	}

	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		perr = &domain.ProviderError{
			Provider: s.gateway.Name(),
			Kind:     domain.KindUnknown,
			Err:      err,
		}
	}
	return provider.Result{}, perr
}

func (s *MessageService) recordSuccess(ctx context.Context, m *model.Message, result provider.Result) (*model.Message, error) {
	updated, err := s.messages.UpdateStatus(ctx, m.ID, []model.Status{model.StatusSending}, model.StatusSent, store.Change{
		Metadata: map[string]string{
			model.MetaProvider:          s.gateway.Name(),
			model.MetaProviderMessageID: result.ProviderMessageID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("persist sent status: %w", err)
	}

	metric.ObserveDispatch(s.gateway.Name(), "sent")
	if cerr := s.dispatch.StoreDispatched(ctx, m.ID, s.gateway.Name(), result.ProviderMessageID, s.now()); cerr != nil {
		slog.Warn("dispatch cache write failed", "id", m.ID, "error", cerr)
	}

	slog.Info("message sent", "id", m.ID, "provider", s.gateway.Name(), "provider_message_id", result.ProviderMessageID)
	return updated, nil
}

func (s *MessageService) recordFailure(ctx context.Context, m *model.Message, perr *domain.ProviderError) (*model.Message, error) {
	updated, err := s.messages.UpdateStatus(ctx, m.ID, []model.Status{model.StatusSending}, model.StatusFailed, store.Change{
		ErrorMessage: strPtr(perr.Error()),
		Metadata: map[string]string{
			model.MetaProvider:  perr.Provider,
			model.MetaErrorKind: string(perr.Kind),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("persist failed status: %w", err)
	}

	metric.ObserveDispatch(perr.Provider, "failed")
	metric.ObserveProviderError(string(perr.Kind))

	slog.Warn("message dispatch failed", "id", m.ID, "provider", perr.Provider, "kind", perr.Kind, "error", perr.Err)
	return updated, nil
}

// validateRecipient returns an empty string for a well-formed recipient,
// otherwise the reason it is malformed.
func validateRecipient(msgType model.Type, recipient string) string {
	switch msgType {
	case model.TypeEmail:
		addr := strings.ToLower(strings.TrimSpace(recipient))
		if addr == "" {
			return "email address cannot be empty"
		}
		if !emailPattern.MatchString(addr) {
			return fmt.Sprintf("invalid email address format: %s", addr)
		}
	case model.TypeSMS:
		if !phonePattern.MatchString(strings.TrimSpace(recipient)) {
			return fmt.Sprintf("invalid phone number: %s", recipient)
		}
	}
	return ""
}

func strPtr(s string) *string { return &s }
