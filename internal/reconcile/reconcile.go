// Package reconcile repairs records left in the sending state by a
// crash between the status swap and the provider response.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/contactsapp/message-dispatch/internal/store"
)

const interruptedMessage = "send interrupted"

// Reconciler periodically sweeps records that entered sending more than
// deadline ago back to failed so they become resendable.
type Reconciler struct {
	interval time.Duration
	deadline time.Duration
	messages store.MessageStore

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval, deadline time.Duration, messages store.MessageStore) (*Reconciler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if deadline <= 0 {
		return nil, errors.New("deadline must be > 0")
	}
	if messages == nil {
		return nil, errors.New("messages store must not be nil")
	}
	return &Reconciler{
		interval: interval,
		deadline: deadline,
		messages: messages,
		done:     make(chan struct{}),
	}, nil
}

func (r *Reconciler) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running.Store(true)

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		slog.Info("reconciler started", "interval", r.interval.String(), "deadline", r.deadline.String())

		r.safeSweep(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("reconciler stopping")
				return
			case <-ticker.C:
				r.safeSweep(ctx)
			}
		}
	}()

	return true
}

func (r *Reconciler) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Load() {
		return false
	}

	r.cancel()
	<-r.done
	r.running.Store(false)

	slog.Info("reconciler stopped")
	return true
}

func (r *Reconciler) IsRunning() bool {
	return r.running.Load()
}

// Sweep runs a single pass immediately.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.deadline)
	return r.messages.SweepSending(ctx, cutoff, interruptedMessage)
}

func (r *Reconciler) safeSweep(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("reconciler sweep panic recovered", "panic", rec)
		}
	}()

	start := time.Now()
	repaired, err := r.Sweep(ctx)
	if err != nil {
		slog.Error("reconciler sweep failed", "error", err)
		return
	}
	if repaired > 0 {
		slog.Warn("repaired interrupted sends", "count", repaired)
	}
	slog.Info("reconciler sweep completed", "duration_ms", time.Since(start).Milliseconds())
}
