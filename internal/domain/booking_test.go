package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHold(t *testing.T, ttl time.Duration) *domain.Booking {
	t.Helper()
	return domain.NewBooking(uuid.New(), uuid.New(), uuid.New(), 2, 5000, "USD", ttl)
}

func TestNewBooking(t *testing.T) {
	b := newHold(t, 15*time.Minute)

	assert.Equal(t, domain.StatusTemporary, b.Status)
	assert.Equal(t, int64(10000), b.TotalPrice)
	require.NotNil(t, b.ExpiresAt)
	assert.False(t, b.PaymentVerified)
	assert.Empty(t, b.TicketNumbers)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.BookingStatus
		ok       bool
	}{
		{domain.StatusTemporary, domain.StatusConfirmed, true},
		{domain.StatusTemporary, domain.StatusCancelled, true},
		{domain.StatusTemporary, domain.StatusUsed, false},
		{domain.StatusTemporary, domain.StatusRefunded, false},
		{domain.StatusConfirmed, domain.StatusCancelled, true},
		{domain.StatusConfirmed, domain.StatusRefunded, true},
		{domain.StatusConfirmed, domain.StatusUsed, true},
		{domain.StatusCancelled, domain.StatusConfirmed, false},
		{domain.StatusCancelled, domain.StatusTemporary, false},
		{domain.StatusRefunded, domain.StatusCancelled, false},
		{domain.StatusUsed, domain.StatusConfirmed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, domain.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestBooking_Confirm(t *testing.T) {
	b := newHold(t, 15*time.Minute)
	now := time.Now().UTC()
	tickets := domain.TicketNumbers(b.ID, b.Quantity)

	require.NoError(t, b.Confirm(now, "pay_123", tickets))

	assert.Equal(t, domain.StatusConfirmed, b.Status)
	assert.True(t, b.PaymentVerified)
	assert.Len(t, b.TicketNumbers, 2)
	// A non-temporary booking carries no active expiry.
	assert.Nil(t, b.ExpiresAt)
	require.NotNil(t, b.ConfirmedAt)
}

func TestBooking_ConfirmAfterExpiryRejected(t *testing.T) {
	b := newHold(t, time.Minute)
	late := time.Now().UTC().Add(16 * time.Minute)

	err := b.Confirm(late, "pay_123", nil)
	assert.ErrorIs(t, err, domain.ErrExpired)
	assert.Equal(t, domain.StatusTemporary, b.Status)
}

func TestBooking_TerminalStatesReject(t *testing.T) {
	b := newHold(t, time.Minute)
	now := time.Now().UTC()
	require.NoError(t, b.Cancel(now, "user cancelled"))

	assert.ErrorIs(t, b.Confirm(now, "pay_123", nil), domain.ErrInvalidState)
	assert.ErrorIs(t, b.Cancel(now, "again"), domain.ErrInvalidTransition)
	assert.ErrorIs(t, b.CheckIn(now, domain.CheckInSingleUse), domain.ErrInvalidTransition)
	assert.Nil(t, b.ExpiresAt)
}

func TestBooking_RefundRecordsAmount(t *testing.T) {
	b := newHold(t, time.Minute)
	now := time.Now().UTC()
	require.NoError(t, b.Confirm(now, "pay_123", domain.TicketNumbers(b.ID, b.Quantity)))

	require.NoError(t, b.Refund(now, "event cancelled", b.TotalPrice))
	assert.Equal(t, domain.StatusRefunded, b.Status)
	assert.Equal(t, int64(10000), b.RefundMinor)
	assert.Empty(t, b.TicketNumbers)
}

func TestBooking_CheckInSingleUse(t *testing.T) {
	b := newHold(t, time.Minute)
	now := time.Now().UTC()
	require.NoError(t, b.Confirm(now, "pay_123", domain.TicketNumbers(b.ID, b.Quantity)))

	require.NoError(t, b.CheckIn(now, domain.CheckInSingleUse))
	assert.Equal(t, domain.StatusUsed, b.Status)
	assert.Equal(t, uint32(1), b.CheckInCount)

	// Second scan rejected under single-use.
	assert.ErrorIs(t, b.CheckIn(now, domain.CheckInSingleUse), domain.ErrInvalidTransition)
}

func TestBooking_CheckInMultiUse(t *testing.T) {
	b := newHold(t, time.Minute)
	now := time.Now().UTC()
	require.NoError(t, b.Confirm(now, "pay_123", domain.TicketNumbers(b.ID, b.Quantity)))

	require.NoError(t, b.CheckIn(now, domain.CheckInMultiUse))
	require.NoError(t, b.CheckIn(now, domain.CheckInMultiUse))
	require.NoError(t, b.CheckIn(now, domain.CheckInMultiUse))
	assert.Equal(t, domain.StatusUsed, b.Status)
	assert.Equal(t, uint32(3), b.CheckInCount)
}

func TestTicketNumbers(t *testing.T) {
	id := uuid.New()
	tickets := domain.TicketNumbers(id, 3)

	require.Len(t, tickets, 3)
	seen := make(map[string]struct{})
	for _, tk := range tickets {
		_, dup := seen[tk]
		assert.False(t, dup, "duplicate ticket %s", tk)
		seen[tk] = struct{}{}
	}

	// Stable across re-derivation for the same booking.
	assert.Equal(t, tickets, domain.TicketNumbers(id, 3))

	// Distinct bookings never share numbers.
	other := domain.TicketNumbers(uuid.New(), 3)
	for _, tk := range other {
		_, dup := seen[tk]
		assert.False(t, dup)
	}
}
