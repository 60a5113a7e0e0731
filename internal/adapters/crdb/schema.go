package crdb

import "context"

// Schema is the DDL for the system of record. Bookings carry a secondary
// index on (status, expires_at) for the reaper sweep and on the gateway
// order reference for duplicate-proof lookups.
const Schema = `
CREATE TABLE IF NOT EXISTS seat_categories (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	name TEXT NOT NULL,
	total_seats INT NOT NULL CHECK (total_seats >= 0),
	locked_seats INT NOT NULL DEFAULT 0 CHECK (locked_seats >= 0),
	seats_sold INT NOT NULL DEFAULT 0 CHECK (seats_sold >= 0),
	price_minor BIGINT NOT NULL,
	currency TEXT NOT NULL,
	active BOOL NOT NULL DEFAULT true,
	CHECK (seats_sold + locked_seats <= total_seats)
);
CREATE INDEX IF NOT EXISTS seat_categories_event_idx ON seat_categories (event_id);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	event_id UUID NOT NULL,
	seat_category_id UUID NOT NULL,
	quantity INT NOT NULL CHECK (quantity >= 1),
	price_per_seat BIGINT NOT NULL,
	total_price BIGINT NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('TEMPORARY', 'CONFIRMED', 'CANCELLED', 'USED', 'REFUNDED')),
	gateway_order_id TEXT NOT NULL,
	gateway_payment_id TEXT,
	payment_verified BOOL NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ,
	confirmed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	cancellation_reason TEXT,
	used_at TIMESTAMPTZ,
	checkin_count INT NOT NULL DEFAULT 0,
	refund_minor BIGINT NOT NULL DEFAULT 0,
	ticket_numbers TEXT[]
);
CREATE INDEX IF NOT EXISTS bookings_expiry_idx ON bookings (status, expires_at);
CREATE INDEX IF NOT EXISTS bookings_order_ref_idx ON bookings (gateway_order_id);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, created_at);
`

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}
