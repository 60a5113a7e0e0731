// Package booking implements the use cases over the seat inventory and
// booking records: hold creation, payment confirmation, cancellation,
// check-in and availability.
package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/observability"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/payment"
)

// Store is the persistence boundary. Every mutating method is atomic:
// the status guard, the counter update and the outbox record commit
// together or not at all.
type Store interface {
	CreateHold(ctx context.Context, b *domain.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetBookingByOrderRef(ctx context.Context, gatewayOrderID string) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID, gatewayPaymentID string, tickets []string, now time.Time) (*domain.Booking, error)
	CancelHold(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*domain.Booking, error)
	CancelConfirmed(ctx context.Context, id uuid.UUID, reason string, refundMinor int64, now time.Time) (*domain.Booking, error)
	MarkUsed(ctx context.Context, id uuid.UUID, now time.Time, policy domain.CheckInPolicy) (*domain.Booking, error)
	GetSeatCategory(ctx context.Context, id uuid.UUID) (*domain.SeatCategory, error)
	Availability(ctx context.Context, eventID uuid.UUID) ([]domain.SeatCategory, error)
}

// Audit receives the security-relevant trail. Failures here never roll
// back a booking transition.
type Audit interface {
	LogTransition(ctx context.Context, b *domain.Booking, action string) error
	LogPaymentFailure(ctx context.Context, b *domain.Booking, kind, gatewayPaymentID string) error
}

// AvailabilityCache is an advisory snapshot cache; the system of record
// stays authoritative.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.SeatCategory, error)
	SetAvailability(ctx context.Context, eventID uuid.UUID, categories []domain.SeatCategory, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, eventID uuid.UUID) error
}

const (
	availabilityTTL = 5 * time.Second
	txRetries       = 3
)

type Service struct {
	store   Store
	gateway payment.Gateway
	audit   Audit
	cache   AvailabilityCache
	logger  observability.Logger

	holdTTL         time.Duration
	allowAuthorized bool
	checkInPolicy   domain.CheckInPolicy

	now func() time.Time
}

type Option func(*Service)

func WithHoldTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithAllowAuthorized(allow bool) Option {
	return func(s *Service) { s.allowAuthorized = allow }
}

func WithCheckInPolicy(p domain.CheckInPolicy) Option {
	return func(s *Service) { s.checkInPolicy = p }
}

func WithAudit(a Audit) Option {
	return func(s *Service) { s.audit = a }
}

func WithCache(c AvailabilityCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, gateway payment.Gateway, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		gateway:       gateway,
		logger:        logger,
		holdTTL:       15 * time.Minute,
		checkInPolicy: domain.CheckInSingleUse,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withRetry re-runs fn when the serializable transaction lost a conflict.
// The re-read happens inside the store, so retrying the whole operation
// is the re-read-and-retry discipline.
func withRetry(fn func() error) error {
	var err error
	for i := 0; i < txRetries; i++ {
		err = fn()
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
	}
	return err
}

// CreateHold locks qty seats and creates a temporary booking with a
// payment order attached. Price comes from the category, never from the
// caller.
func (s *Service) CreateHold(ctx context.Context, userID, eventID, categoryID uuid.UUID, qty uint32) (*domain.Booking, error) {
	if qty < 1 {
		return nil, errors.Mark(errors.New("quantity must be at least 1"), domain.ErrValidation)
	}

	category, err := s.store.GetSeatCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if !category.Active || category.EventID != eventID {
		return nil, domain.ErrNotFound
	}

	b := domain.NewBooking(userID, eventID, categoryID, qty, category.PriceMinor, category.Currency, s.holdTTL)

	order, err := s.gateway.CreateOrder(ctx, b.TotalPrice, b.Currency, b.ID.String())
	if err != nil {
		return nil, err
	}
	b.GatewayOrderID = order.GatewayOrderID

	err = withRetry(func() error {
		return s.store.CreateHold(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	observability.SeatsLocked.Add(float64(qty))
	s.invalidate(ctx, eventID)
	s.auditTransition(ctx, b, "hold.created")
	return b, nil
}

// Proof is the gateway's payment proof tuple.
type Proof struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Confirm is the confirmation orchestrator. It verifies the payment
// proof against the gateway and atomically converts the hold into a
// confirmed booking with issued ticket numbers.
func (s *Service) Confirm(ctx context.Context, bookingID uuid.UUID, proof Proof) (*domain.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	// The same proof may arrive twice (webhook plus client call).
	if b.PaymentVerified {
		return b, nil
	}

	now := s.now()
	if err := b.Confirmable(now); err != nil {
		return nil, err
	}

	if proof.GatewayOrderID != b.GatewayOrderID {
		observability.PaymentFailures.WithLabelValues("order_mismatch").Inc()
		return nil, domain.ErrOrderMismatch
	}

	// Security boundary: an unverified signature never leads to seat
	// conversion, and poisons the hold.
	if !s.gateway.VerifySignature(proof.GatewayOrderID, proof.GatewayPaymentID, proof.Signature) {
		s.failPayment(ctx, b, "signature_invalid", proof.GatewayPaymentID)
		return nil, domain.ErrPaymentVerificationFailed
	}

	// Canonical status and amount come from the gateway, not the caller.
	// A transport failure leaves the booking temporary and retryable.
	pay, err := s.gateway.FetchPaymentStatus(ctx, proof.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	captured := pay.Status == payment.StatusCaptured ||
		(pay.Status == payment.StatusAuthorized && s.allowAuthorized)
	if !captured {
		s.failPayment(ctx, b, "not_captured", proof.GatewayPaymentID)
		return nil, domain.ErrPaymentVerificationFailed
	}
	if pay.AmountMinor != b.TotalPrice {
		s.failPayment(ctx, b, "amount_mismatch", proof.GatewayPaymentID)
		return nil, domain.ErrAmountMismatch
	}

	tickets := domain.TicketNumbers(b.ID, b.Quantity)
	var confirmed *domain.Booking
	err = withRetry(func() error {
		confirmed, err = s.store.ConfirmBooking(ctx, b.ID, proof.GatewayPaymentID, tickets, s.now())
		return err
	})
	if err != nil {
		// A concurrent reaper cancellation surfaces as a stale guard;
		// the booking is terminally expired, not partially confirmed.
		if errors.Is(err, domain.ErrInvariantViolation) {
			observability.InvariantViolations.Inc()
			s.logger.WithField("booking_id", b.ID).Error("seat conversion failed: ", err)
		}
		return nil, err
	}

	observability.SeatsSold.Add(float64(b.Quantity))
	s.invalidate(ctx, b.EventID)
	s.auditTransition(ctx, confirmed, "booking.confirmed")
	return confirmed, nil
}

// ConfirmByOrderRef resolves the booking from the gateway order id, for
// webhook deliveries that do not carry the booking id.
func (s *Service) ConfirmByOrderRef(ctx context.Context, proof Proof) (*domain.Booking, error) {
	b, err := s.store.GetBookingByOrderRef(ctx, proof.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, b.ID, proof)
}

// failPayment cancels the hold after a payment-integrity failure.
func (s *Service) failPayment(ctx context.Context, b *domain.Booking, kind, gatewayPaymentID string) {
	observability.PaymentFailures.WithLabelValues(kind).Inc()
	s.logger.WithField("booking_id", b.ID).WithField("kind", kind).Warn("payment integrity failure")
	if s.audit != nil {
		_ = s.audit.LogPaymentFailure(ctx, b, kind, gatewayPaymentID)
	}

	cancelled, err := s.store.CancelHold(ctx, b.ID, "payment "+kind, s.now())
	if err != nil {
		s.logger.WithField("booking_id", b.ID).Error("failed to cancel booking after payment failure: ", err)
		return
	}
	s.invalidate(ctx, b.EventID)
	s.auditTransition(ctx, cancelled, "booking.cancelled")
}

// Cancel releases a hold or refunds a confirmed booking.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*domain.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var cancelled *domain.Booking
	switch b.Status {
	case domain.StatusTemporary:
		err = withRetry(func() error {
			cancelled, err = s.store.CancelHold(ctx, bookingID, reason, s.now())
			return err
		})
	case domain.StatusConfirmed:
		err = withRetry(func() error {
			cancelled, err = s.store.CancelConfirmed(ctx, bookingID, reason, b.TotalPrice, s.now())
			return err
		})
	default:
		return nil, domain.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, b.EventID)
	s.auditTransition(ctx, cancelled, "booking."+string(cancelled.Status))
	return cancelled, nil
}

// CheckIn validates a ticket at the gate under the configured re-entry
// policy.
func (s *Service) CheckIn(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	b, err := s.store.MarkUsed(ctx, bookingID, s.now(), s.checkInPolicy)
	if err != nil {
		return b, err
	}
	s.auditTransition(ctx, b, "booking.checkin")
	return b, nil
}

func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, bookingID)
}

// Availability returns per-category availability for an event, served
// from cache when fresh.
func (s *Service) Availability(ctx context.Context, eventID uuid.UUID) ([]domain.SeatCategory, error) {
	if s.cache != nil {
		cached, err := s.cache.GetAvailability(ctx, eventID)
		if err == nil && cached != nil {
			return cached, nil
		}
	}
	categories, err := s.store.Availability(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetAvailability(ctx, eventID, categories, availabilityTTL)
	}
	return categories, nil
}

func (s *Service) invalidate(ctx context.Context, eventID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateAvailability(ctx, eventID)
	}
}

func (s *Service) auditTransition(ctx context.Context, b *domain.Booking, action string) {
	if s.audit != nil {
		_ = s.audit.LogTransition(ctx, b, action)
	}
}
