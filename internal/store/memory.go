package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/contactsapp/message-dispatch/internal/domain"
	"github.com/contactsapp/message-dispatch/internal/model"
)

// MemoryStore is a mutex-guarded in-memory MessageStore. It backs tests
// and deployments without Postgres, with the same CAS semantics.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*model.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]*model.Message)}
}

func (s *MemoryStore) Save(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneMessage(m)
	if cp.StatusUpdatedAt.IsZero() {
		cp.StatusUpdatedAt = cp.Timestamp
	}
	s.messages[m.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from []model.Status, to model.Status, change Change) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !statusIn(m.Status, from) || !m.Status.CanTransition(to) {
		return nil, ErrConflict
	}

	m.Status = to
	m.StatusUpdatedAt = time.Now().UTC()
	m.ErrorMessage = change.ErrorMessage
	m.DeliveredAt = change.DeliveredAt
	if len(change.Metadata) > 0 {
		meta := make(map[string]string, len(change.Metadata))
		for k, v := range change.Metadata {
			meta[k] = v
		}
		m.Metadata = meta
	} else {
		m.Metadata = nil
	}

	return cloneMessage(m), nil
}

func (s *MemoryStore) UpdateDraft(ctx context.Context, id string, fields DraftFields) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if m.Status != model.StatusDraft {
		return nil, ErrConflict
	}

	if fields.Recipient != nil {
		m.Recipient = *fields.Recipient
	}
	if fields.Subject != nil {
		m.Subject = fields.Subject
	}
	if fields.Body != nil {
		m.Body = *fields.Body
	}

	return cloneMessage(m), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string, allowed ...model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !statusIn(m.Status, allowed) {
		return ErrConflict
	}

	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) ListByContact(ctx context.Context, contactID string, f ListFilter) ([]model.Message, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	s.mu.RLock()
	var matched []model.Message
	for _, m := range s.messages {
		if m.ContactID != contactID {
			continue
		}
		if f.Direction != nil && m.Direction != *f.Direction {
			continue
		}
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		matched = append(matched, *cloneMessage(m))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) SweepSending(ctx context.Context, cutoff time.Time, errMsg string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repaired := 0
	for _, m := range s.messages {
		if m.Status != model.StatusSending || !m.StatusUpdatedAt.Before(cutoff) {
			continue
		}
		msg := errMsg
		m.Status = model.StatusFailed
		m.StatusUpdatedAt = time.Now().UTC()
		m.ErrorMessage = &msg
		m.Metadata = nil
		repaired++
	}
	return repaired, nil
}

func statusIn(s model.Status, set []model.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func cloneMessage(m *model.Message) *model.Message {
	cp := *m
	if m.Subject != nil {
		v := *m.Subject
		cp.Subject = &v
	}
	if m.DeliveredAt != nil {
		v := *m.DeliveredAt
		cp.DeliveredAt = &v
	}
	if m.ErrorMessage != nil {
		v := *m.ErrorMessage
		cp.ErrorMessage = &v
	}
	if m.Metadata != nil {
		meta := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		cp.Metadata = meta
	}
	return &cp
}
