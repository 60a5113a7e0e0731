package domain

import "github.com/google/uuid"

// SeatCategory is a priced class of seats for an event with its own
// inventory counters. The invariant SeatsSold + LockedSeats <= TotalSeats
// (both non-negative) must hold in every reachable state; the persistence
// layer enforces it with conditional updates and these methods enforce it
// for in-memory copies.
type SeatCategory struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	Name        string
	TotalSeats  uint32
	LockedSeats uint32
	SeatsSold   uint32
	// PriceMinor is the price per seat in minor currency units.
	PriceMinor int64
	Currency   string
	Active     bool
}

func (c *SeatCategory) Available() uint32 {
	return c.TotalSeats - c.SeatsSold - c.LockedSeats
}

// Lock reserves qty seats. Succeeds only if qty seats are available.
func (c *SeatCategory) Lock(qty uint32) error {
	if !c.Active {
		return ErrInvalidState
	}
	if c.Available() < qty {
		return ErrInsufficientSeats
	}
	c.LockedSeats += qty
	return nil
}

// Release returns locked seats to the pool, clamping at zero so it stays
// idempotent under at-least-once retry.
func (c *SeatCategory) Release(qty uint32) {
	if c.LockedSeats < qty {
		c.LockedSeats = 0
		return
	}
	c.LockedSeats -= qty
}

// ConvertToSold moves qty seats from locked to sold. Fails closed with no
// partial mutation when fewer than qty seats are locked.
func (c *SeatCategory) ConvertToSold(qty uint32) error {
	if c.LockedSeats < qty {
		return ErrInvariantViolation
	}
	c.LockedSeats -= qty
	c.SeatsSold += qty
	return nil
}

// ReleaseSold returns sold seats to the pool after a post-confirmation
// cancellation or refund.
func (c *SeatCategory) ReleaseSold(qty uint32) {
	if c.SeatsSold < qty {
		c.SeatsSold = 0
		return
	}
	c.SeatsSold -= qty
}
