// Package store defines the message persistence contract and its
// Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/contactsapp/message-dispatch/internal/model"
)

// ErrConflict is returned when a guarded mutation finds the record in a
// status outside the allowed set. The record is left unchanged.
var ErrConflict = errors.New("status conflict")

// Change carries the status-adjacent fields that must update atomically
// with the status itself. Nil/empty fields are written as NULL, so a
// transition always leaves the record consistent (a resend clears the
// previous failure, a failure clears dispatch metadata).
type Change struct {
	ErrorMessage *string
	DeliveredAt  *time.Time
	Metadata     map[string]string
}

// DraftFields are the freely editable fields of a draft.
type DraftFields struct {
	Recipient *string
	Subject   *string
	Body      *string
}

// ListFilter narrows and pages a contact-scoped listing.
type ListFilter struct {
	Direction *model.Direction
	Status    *model.Status
	Limit     int
	Offset    int
}

// MessageStore is the persistence contract consumed by the dispatch core.
// UpdateStatus is the only mutation path after creation besides draft
// edits, and both are guarded compare-and-swap operations: the mutation
// applies only while the current status is in the allowed set, otherwise
// ErrConflict.
type MessageStore interface {
	Save(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	UpdateStatus(ctx context.Context, id string, from []model.Status, to model.Status, change Change) (*model.Message, error)
	UpdateDraft(ctx context.Context, id string, fields DraftFields) (*model.Message, error)
	Delete(ctx context.Context, id string, allowed ...model.Status) error
	ListByContact(ctx context.Context, contactID string, f ListFilter) ([]model.Message, error)

	// SweepSending flips records to failed when they entered sending
	// before cutoff, recording errMsg. The guard is the time of the
	// transition into sending, not creation time, so an old draft whose
	// dispatch just started is left alone. Returns the number repaired.
	SweepSending(ctx context.Context, cutoff time.Time, errMsg string) (int, error)
}

// allowedSources keeps only the candidate source statuses from which the
// state machine permits moving to target.
func allowedSources(from []model.Status, to model.Status) []model.Status {
	var out []model.Status
	for _, st := range from {
		if st.CanTransition(to) {
			out = append(out, st)
		}
	}
	return out
}
