package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")

	// ErrValidation covers malformed input. Fail fast, no retry.
	ErrValidation = errors.New("invalid input")

	// ErrInsufficientSeats is a business conflict: the requested quantity
	// exceeds the category's available seats. Surfaced to the caller,
	// never retried automatically.
	ErrInsufficientSeats = errors.New("insufficient seats")

	// State-machine violations.
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrInvalidState      = errors.New("invalid booking state")
	ErrExpired           = errors.New("hold expired")

	// Payment-integrity failures, logged as security-relevant. Signature
	// and amount failures cancel the hold; an order mismatch leaves it
	// alone since the proof may belong to a different booking.
	ErrOrderMismatch             = errors.New("gateway order mismatch")
	ErrAmountMismatch            = errors.New("payment amount mismatch")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")

	// ErrGatewayUnavailable is transient: the booking stays temporary and
	// the caller may retry until the hold expires.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInvariantViolation means seat counters would go inconsistent.
	// Fatal: abort the mutation and alert, never clamp and continue.
	ErrInvariantViolation = errors.New("seat inventory invariant violation")
)
