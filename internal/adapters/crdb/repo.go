package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// lockSeats is a single conditional update: it succeeds only when the
// category still has qty seats available at commit time. Two concurrent
// locks can never both take the last seats.
func (r *Repository) lockSeats(ctx context.Context, tx pgx.Tx, categoryID uuid.UUID, qty uint32) error {
	result, err := tx.Exec(ctx, `
		UPDATE seat_categories
		SET locked_seats = locked_seats + $2
		WHERE id = $1 AND active
		  AND total_seats - seats_sold - locked_seats >= $2
	`, categoryID, int64(qty))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT active FROM seat_categories WHERE id = $1`, categoryID).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		return domain.ErrInsufficientSeats
	}
	return nil
}

// releaseSeats decrements locked seats, clamping at zero so a retried
// release never drives the counter negative.
func (r *Repository) releaseSeats(ctx context.Context, tx pgx.Tx, categoryID uuid.UUID, qty uint32) error {
	result, err := tx.Exec(ctx, `
		UPDATE seat_categories
		SET locked_seats = locked_seats - $2
		WHERE id = $1 AND locked_seats >= $2
	`, categoryID, int64(qty))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE seat_categories SET locked_seats = 0
			WHERE id = $1 AND locked_seats < $2
		`, categoryID, int64(qty))
		return err
	}
	return nil
}

// convertToSold moves seats from locked to sold in one conditional update.
// Zero rows means the locked count no longer covers qty, which is a lost
// update or logic bug, not a user error.
func (r *Repository) convertToSold(ctx context.Context, tx pgx.Tx, categoryID uuid.UUID, qty uint32) error {
	result, err := tx.Exec(ctx, `
		UPDATE seat_categories
		SET locked_seats = locked_seats - $2, seats_sold = seats_sold + $2
		WHERE id = $1 AND locked_seats >= $2
	`, categoryID, int64(qty))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Mark(errors.Newf("convert to sold: category %s has fewer than %d locked seats", categoryID, qty), domain.ErrInvariantViolation)
	}
	return nil
}

func (r *Repository) releaseSold(ctx context.Context, tx pgx.Tx, categoryID uuid.UUID, qty uint32) error {
	result, err := tx.Exec(ctx, `
		UPDATE seat_categories
		SET seats_sold = seats_sold - $2
		WHERE id = $1 AND seats_sold >= $2
	`, categoryID, int64(qty))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE seat_categories SET seats_sold = 0
			WHERE id = $1 AND seats_sold < $2
		`, categoryID, int64(qty))
		return err
	}
	return nil
}

// CreateHold locks the seats and inserts the temporary booking in one
// serializable transaction.
func (r *Repository) CreateHold(ctx context.Context, b *domain.Booking) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.lockSeats(ctx, tx, b.SeatCategoryID, b.Quantity); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (
				id, user_id, event_id, seat_category_id, quantity,
				price_per_seat, total_price, currency, status,
				gateway_order_id, payment_verified, created_at, expires_at,
				checkin_count, refund_minor
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11, $12, 0, 0)
		`, b.ID, b.UserID, b.EventID, b.SeatCategoryID, int64(b.Quantity),
			b.PricePerSeat, b.TotalPrice, b.Currency, b.Status,
			b.GatewayOrderID, b.CreatedAt, b.ExpiresAt)
		return err
	})
}

const bookingColumns = `
	id, user_id, event_id, seat_category_id, quantity,
	price_per_seat, total_price, currency, status,
	gateway_order_id, gateway_payment_id, payment_verified,
	created_at, expires_at, confirmed_at, cancelled_at, cancellation_reason,
	used_at, checkin_count, refund_minor, ticket_numbers`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var qty, checkins int64
	var paymentID, reason *string
	err := row.Scan(
		&b.ID, &b.UserID, &b.EventID, &b.SeatCategoryID, &qty,
		&b.PricePerSeat, &b.TotalPrice, &b.Currency, &b.Status,
		&b.GatewayOrderID, &paymentID, &b.PaymentVerified,
		&b.CreatedAt, &b.ExpiresAt, &b.ConfirmedAt, &b.CancelledAt, &reason,
		&b.UsedAt, &checkins, &b.RefundMinor, &b.TicketNumbers,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Quantity = uint32(qty)
	b.CheckInCount = uint32(checkins)
	if paymentID != nil {
		b.GatewayPaymentID = *paymentID
	}
	if reason != nil {
		b.CancellationReason = *reason
	}
	return &b, nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

// GetBookingByOrderRef serves duplicate-proof lookups from webhook
// deliveries that only carry the gateway order id.
func (r *Repository) GetBookingByOrderRef(ctx context.Context, gatewayOrderID string) (*domain.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE gateway_order_id = $1`, gatewayOrderID))
}

// classifyStale explains why a guarded transition matched no row. A
// booking the reaper cancelled under a racing confirmation reads as
// expired, not merely invalid.
func (r *Repository) classifyStale(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time, wantTemporary bool) error {
	var status domain.BookingStatus
	var expiresAt *time.Time
	var reason *string
	err := tx.QueryRow(ctx, `SELECT status, expires_at, cancellation_reason FROM bookings WHERE id = $1`, id).Scan(&status, &expiresAt, &reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if wantTemporary {
		if status == domain.StatusTemporary && expiresAt != nil && !now.Before(*expiresAt) {
			return domain.ErrExpired
		}
		if status == domain.StatusCancelled && reason != nil && *reason == domain.ReasonHoldExpired {
			return domain.ErrExpired
		}
	}
	return domain.ErrInvalidState
}

// ConfirmBooking performs the whole payment-confirmed transition in one
// transaction: a guarded status update that re-checks temporary and
// non-expired (losing the race against the reaper surfaces here), the
// locked-to-sold conversion, and the outbox record.
func (r *Repository) ConfirmBooking(ctx context.Context, id uuid.UUID, gatewayPaymentID string, tickets []string, now time.Time) (*domain.Booking, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var categoryID uuid.UUID
		var qty int64
		err := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2, payment_verified = true, gateway_payment_id = $3,
			    ticket_numbers = $4, confirmed_at = $5, expires_at = NULL
			WHERE id = $1 AND status = $6 AND expires_at > $5
			RETURNING seat_category_id, quantity
		`, id, domain.StatusConfirmed, gatewayPaymentID, tickets, now, domain.StatusTemporary).Scan(&categoryID, &qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyStale(ctx, tx, id, now, true)
		}
		if err != nil {
			return err
		}
		if err := r.convertToSold(ctx, tx, categoryID, uint32(qty)); err != nil {
			return err
		}
		return r.insertBookingEvent(ctx, tx, id, "booking.confirmed", map[string]interface{}{
			"booking_id":     id,
			"ticket_numbers": tickets,
		})
	})
	if err != nil {
		return nil, err
	}
	return r.GetBooking(ctx, id)
}

// CancelHold cancels a temporary booking and releases its locked seats.
// Used both by user cancellation and the expiry reaper; whichever of
// reaper and orchestrator commits first wins, the loser's guarded update
// matches nothing.
func (r *Repository) CancelHold(ctx context.Context, id uuid.UUID, reason string, now time.Time) (*domain.Booking, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var categoryID uuid.UUID
		var qty int64
		err := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2, cancelled_at = $3, cancellation_reason = $4, expires_at = NULL
			WHERE id = $1 AND status = $5
			RETURNING seat_category_id, quantity
		`, id, domain.StatusCancelled, now, reason, domain.StatusTemporary).Scan(&categoryID, &qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyStale(ctx, tx, id, now, false)
		}
		if err != nil {
			return err
		}
		if err := r.releaseSeats(ctx, tx, categoryID, uint32(qty)); err != nil {
			return err
		}
		return r.insertBookingEvent(ctx, tx, id, "booking.cancelled", map[string]interface{}{
			"booking_id": id,
			"reason":     reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return r.GetBooking(ctx, id)
}

// CancelConfirmed cancels or refunds a confirmed booking and returns its
// seats to the sellable pool. A non-zero refund records the booking as
// refunded.
func (r *Repository) CancelConfirmed(ctx context.Context, id uuid.UUID, reason string, refundMinor int64, now time.Time) (*domain.Booking, error) {
	target := domain.StatusCancelled
	if refundMinor > 0 {
		target = domain.StatusRefunded
	}
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var categoryID uuid.UUID
		var qty int64
		err := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2, cancelled_at = $3, cancellation_reason = $4, refund_minor = $5,
			    ticket_numbers = NULL
			WHERE id = $1 AND status = $6
			RETURNING seat_category_id, quantity
		`, id, target, now, reason, refundMinor, domain.StatusConfirmed).Scan(&categoryID, &qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyStale(ctx, tx, id, now, false)
		}
		if err != nil {
			return err
		}
		if err := r.releaseSold(ctx, tx, categoryID, uint32(qty)); err != nil {
			return err
		}
		return r.insertBookingEvent(ctx, tx, id, "booking."+string(target), map[string]interface{}{
			"booking_id":   id,
			"reason":       reason,
			"refund_minor": refundMinor,
		})
	})
	if err != nil {
		return nil, err
	}
	return r.GetBooking(ctx, id)
}

// MarkUsed records a check-in. Single-use policy admits once; multi-use
// keeps counting scans on an already used booking.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID, now time.Time, policy domain.CheckInPolicy) (*domain.Booking, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE bookings SET status = $2, used_at = $3, checkin_count = 1
		WHERE id = $1 AND status = $4
	`, id, domain.StatusUsed, now, domain.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		if policy == domain.CheckInMultiUse {
			result, err = r.pool.Exec(ctx, `
				UPDATE bookings SET checkin_count = checkin_count + 1
				WHERE id = $1 AND status = $2
			`, id, domain.StatusUsed)
			if err != nil {
				return nil, err
			}
		}
		if result.RowsAffected() == 0 {
			b, err := r.GetBooking(ctx, id)
			if err != nil {
				return nil, err
			}
			return b, domain.ErrInvalidTransition
		}
	}
	return r.GetBooking(ctx, id)
}

// ExpiredBookings is the reaper's sweep query, served by the
// (status, expires_at) index.
func (r *Repository) ExpiredBookings(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM bookings
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, domain.StatusTemporary, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) GetSeatCategory(ctx context.Context, id uuid.UUID) (*domain.SeatCategory, error) {
	var c domain.SeatCategory
	var total, locked, sold int64
	err := r.pool.QueryRow(ctx, `
		SELECT id, event_id, name, total_seats, locked_seats, seats_sold,
		       price_minor, currency, active
		FROM seat_categories WHERE id = $1
	`, id).Scan(&c.ID, &c.EventID, &c.Name, &total, &locked, &sold, &c.PriceMinor, &c.Currency, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.TotalSeats = uint32(total)
	c.LockedSeats = uint32(locked)
	c.SeatsSold = uint32(sold)
	return &c, nil
}

func (r *Repository) Availability(ctx context.Context, eventID uuid.UUID) ([]domain.SeatCategory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, name, total_seats, locked_seats, seats_sold,
		       price_minor, currency, active
		FROM seat_categories WHERE event_id = $1 ORDER BY name
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.SeatCategory
	for rows.Next() {
		var c domain.SeatCategory
		var total, locked, sold int64
		if err := rows.Scan(&c.ID, &c.EventID, &c.Name, &total, &locked, &sold, &c.PriceMinor, &c.Currency, &c.Active); err != nil {
			return nil, err
		}
		c.TotalSeats = uint32(total)
		c.LockedSeats = uint32(locked)
		c.SeatsSold = uint32(sold)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// InsertSeatCategory seeds a category. Categories are created with their
// event and never deleted while bookings reference them.
func (r *Repository) InsertSeatCategory(ctx context.Context, c domain.SeatCategory) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO seat_categories (id, event_id, name, total_seats, locked_seats, seats_sold, price_minor, currency, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.EventID, c.Name, int64(c.TotalSeats), int64(c.LockedSeats), int64(c.SeatsSold), c.PriceMinor, c.Currency, c.Active)
	return err
}
