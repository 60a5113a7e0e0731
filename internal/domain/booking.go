package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReasonHoldExpired marks cancellations performed by the expiry reaper.
const ReasonHoldExpired = "hold expired"

type BookingStatus string

const (
	StatusTemporary BookingStatus = "TEMPORARY"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusUsed      BookingStatus = "USED"
	StatusRefunded  BookingStatus = "REFUNDED"
)

// transitions is the single source of truth for the booking state machine.
// CANCELLED, REFUNDED and USED are terminal.
var transitions = map[BookingStatus]map[BookingStatus]struct{}{
	StatusTemporary: {
		StatusConfirmed: {},
		StatusCancelled: {},
	},
	StatusConfirmed: {
		StatusCancelled: {},
		StatusRefunded:  {},
		StatusUsed:      {},
	},
}

func CanTransition(from, to BookingStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// Booking is one seat-reservation attempt: a temporary hold that either
// becomes a confirmed purchase or releases its seats.
type Booking struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	EventID        uuid.UUID
	SeatCategoryID uuid.UUID
	Quantity       uint32

	// Prices in minor currency units.
	PricePerSeat int64
	TotalPrice   int64
	Currency     string

	Status BookingStatus

	// GatewayOrderID is the payment order reference issued at hold time.
	// GatewayPaymentID is recorded once a payment proof verifies.
	GatewayOrderID   string
	GatewayPaymentID string
	PaymentVerified  bool

	CreatedAt time.Time
	// ExpiresAt is set only while the booking is temporary.
	ExpiresAt          *time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	UsedAt             *time.Time
	CheckInCount       uint32
	RefundMinor        int64

	// TicketNumbers is populated at confirmation, one per seat.
	TicketNumbers []string
}

func NewBooking(userID, eventID, categoryID uuid.UUID, qty uint32, priceMinor int64, currency string, ttl time.Duration) *Booking {
	now := time.Now().UTC()
	expires := now.Add(ttl)
	return &Booking{
		ID:             uuid.New(),
		UserID:         userID,
		EventID:        eventID,
		SeatCategoryID: categoryID,
		Quantity:       qty,
		PricePerSeat:   priceMinor,
		TotalPrice:     int64(qty) * priceMinor,
		Currency:       currency,
		Status:         StatusTemporary,
		CreatedAt:      now,
		ExpiresAt:      &expires,
	}
}

// Expired reports whether the hold window has passed. Only temporary
// bookings carry an expiry.
func (b *Booking) Expired(now time.Time) bool {
	return b.Status == StatusTemporary && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// Confirmable rejects confirmation from any state other than a live
// temporary hold.
func (b *Booking) Confirmable(now time.Time) error {
	if b.Status != StatusTemporary {
		return ErrInvalidState
	}
	if b.Expired(now) {
		return ErrExpired
	}
	return nil
}

// Confirm applies the payment-confirmed transition in memory. The
// persistence layer performs the same guard as a conditional update.
func (b *Booking) Confirm(now time.Time, paymentID string, tickets []string) error {
	if err := b.Confirmable(now); err != nil {
		return err
	}
	b.Status = StatusConfirmed
	b.GatewayPaymentID = paymentID
	b.PaymentVerified = true
	b.TicketNumbers = tickets
	b.ConfirmedAt = &now
	b.ExpiresAt = nil
	return nil
}

func (b *Booking) Cancel(now time.Time, reason string) error {
	if !CanTransition(b.Status, StatusCancelled) {
		return ErrInvalidTransition
	}
	b.Status = StatusCancelled
	b.CancelledAt = &now
	b.CancellationReason = reason
	b.ExpiresAt = nil
	// Tickets belong only to confirmed or used bookings.
	b.TicketNumbers = nil
	return nil
}

func (b *Booking) Refund(now time.Time, reason string, amountMinor int64) error {
	if !CanTransition(b.Status, StatusRefunded) {
		return ErrInvalidTransition
	}
	b.Status = StatusRefunded
	b.CancelledAt = &now
	b.CancellationReason = reason
	b.RefundMinor = amountMinor
	b.TicketNumbers = nil
	return nil
}

// CheckInPolicy decides whether a ticket admits once or on every scan.
type CheckInPolicy string

const (
	CheckInSingleUse CheckInPolicy = "single"
	CheckInMultiUse  CheckInPolicy = "multi"
)

// CheckIn marks the booking used. Under the single-use policy a second
// scan is rejected; under multi-use the scan count keeps incrementing.
func (b *Booking) CheckIn(now time.Time, policy CheckInPolicy) error {
	switch b.Status {
	case StatusConfirmed:
		b.Status = StatusUsed
		b.UsedAt = &now
		b.CheckInCount = 1
		return nil
	case StatusUsed:
		if policy != CheckInMultiUse {
			return ErrInvalidTransition
		}
		b.CheckInCount++
		return nil
	default:
		return ErrInvalidTransition
	}
}
