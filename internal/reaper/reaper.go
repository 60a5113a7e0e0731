// Package reaper releases expired holds: temporary bookings whose hold
// window has passed are cancelled and their locked seats returned.
package reaper

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/observability"
)

type Store interface {
	ExpiredBookings(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	CancelHold(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*domain.Booking, error)
}

const (
	sweepLimit = 100
	maxRetries = 3
)

type Reaper struct {
	store  Store
	logger observability.Logger
	now    func() time.Time
}

func New(store Store, logger observability.Logger) *Reaper {
	return &Reaper{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Run sweeps at a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("expiry sweep failed: ", err)
			}
		}
	}
}

// Sweep cancels every expired hold it finds. The sweep races against the
// confirmation orchestrator for the same bookings: whichever transition
// commits first wins, and losing here (the booking confirmed under us)
// is expected, not an error.
func (r *Reaper) Sweep(ctx context.Context) error {
	ids, err := r.store.ExpiredBookings(ctx, r.now(), sweepLimit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.expireWithRetry(ctx, id); err != nil {
			r.logger.WithField("booking_id", id).Error("failed to expire hold: ", err)
		}
	}
	return nil
}

func (r *Reaper) expireWithRetry(ctx context.Context, id uuid.UUID) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = r.store.CancelHold(ctx, id, domain.ReasonHoldExpired, r.now())
		switch {
		case err == nil:
			observability.HoldsExpired.Inc()
			return nil
		case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrNotFound):
			// Confirmed or already cancelled between sweep and here.
			return nil
		case errors.Is(err, domain.ErrSerializationFailure):
			continue
		}

		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
