package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/contactsapp/message-dispatch/internal/model"
	"github.com/contactsapp/message-dispatch/internal/store"
)

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	t.Run("interval must be > 0", func(t *testing.T) {
		t.Parallel()

		r, err := New(0, time.Minute, store.NewMemoryStore())
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if r != nil {
			t.Fatalf("expected nil reconciler, got %#v", r)
		}
	})

	t.Run("deadline must be > 0", func(t *testing.T) {
		t.Parallel()

		r, err := New(time.Minute, 0, store.NewMemoryStore())
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if r != nil {
			t.Fatalf("expected nil reconciler, got %#v", r)
		}
	})

	t.Run("store must not be nil", func(t *testing.T) {
		t.Parallel()

		r, err := New(time.Minute, time.Minute, nil)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if r != nil {
			t.Fatalf("expected nil reconciler, got %#v", r)
		}
	})
}

func TestReconciler_StartStop_Basics(t *testing.T) {
	r, err := New(time.Hour, time.Minute, store.NewMemoryStore())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if r.IsRunning() {
		t.Fatalf("expected reconciler not running initially")
	}

	if ok := r.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}
	if !r.IsRunning() {
		t.Fatalf("expected reconciler running after Start()")
	}

	// Second Start is a no-op.
	if ok := r.Start(); ok {
		t.Fatalf("expected Start() false while running")
	}

	if ok := r.Stop(); !ok {
		t.Fatalf("expected Stop() true while running")
	}
	if r.IsRunning() {
		t.Fatalf("expected reconciler stopped after Stop()")
	}

	// Second Stop is a no-op.
	if ok := r.Stop(); ok {
		t.Fatalf("expected Stop() false when already stopped")
	}
}

func TestReconciler_SweepRepairsStuckSending(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	ctx := context.Background()

	// A record that entered sending an hour ago and never resolved, as
	// after a crash mid-dispatch.
	old := &model.Message{
		ID:              "stuck",
		ContactID:       "c1",
		Type:            model.TypeEmail,
		Direction:       model.DirectionSent,
		Recipient:       "john@example.com",
		Body:            "hi",
		Status:          model.StatusSending,
		Timestamp:       time.Now().UTC().Add(-time.Hour),
		StatusUpdatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := s.Save(ctx, old); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// An old draft whose dispatch started moments ago: stale by creation
	// time but in flight, so the sweep must leave it alone.
	live := &model.Message{
		ID:        "live",
		ContactID: "c1",
		Type:      model.TypeEmail,
		Direction: model.DirectionSent,
		Recipient: "jane@example.com",
		Body:      "hi",
		Status:    model.StatusDraft,
		Timestamp: time.Now().UTC().Add(-time.Hour),
	}
	if err := s.Save(ctx, live); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := s.UpdateStatus(ctx, "live", []model.Status{model.StatusDraft}, model.StatusSending, store.Change{}); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}

	r, err := New(time.Hour, 5*time.Minute, s)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	repaired, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected 1 repaired record, got %d", repaired)
	}

	got, err := s.Get(ctx, "stuck")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Fatalf("expected status failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "send interrupted" {
		t.Fatalf("expected interrupted error message, got %v", got.ErrorMessage)
	}

	inFlight, err := s.Get(ctx, "live")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if inFlight.Status != model.StatusSending {
		t.Fatalf("expected in-flight record to stay sending, got %s", inFlight.Status)
	}
}
