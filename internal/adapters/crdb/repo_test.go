package crdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/adapters/crdb"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func newTestRepo(t *testing.T) *crdb.Repository {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	return repo
}

func seedCategory(t *testing.T, repo *crdb.Repository, total uint32) domain.SeatCategory {
	t.Helper()
	c := domain.SeatCategory{
		ID:         uuid.New(),
		EventID:    uuid.New(),
		Name:       "General",
		TotalSeats: total,
		PriceMinor: 5000,
		Currency:   "USD",
		Active:     true,
	}
	if err := repo.InsertSeatCategory(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

func newHold(c domain.SeatCategory, qty uint32, ttl time.Duration) *domain.Booking {
	b := domain.NewBooking(uuid.New(), c.EventID, c.ID, qty, c.PriceMinor, c.Currency, ttl)
	b.GatewayOrderID = "order_" + b.ID.String()[:8]
	return b
}

func TestRepository_CreateHold(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 3)

	hold := newHold(category, 2, 5*time.Minute)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := repo.GetSeatCategory(ctx, category.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LockedSeats != 2 || got.Available() != 1 {
		t.Errorf("expected 2 locked and 1 available, got %d locked %d available", got.LockedSeats, got.Available())
	}

	// Only one seat left; a second hold of two must not fit.
	overflow := newHold(category, 2, 5*time.Minute)
	err = repo.CreateHold(ctx, overflow)
	if !errors.Is(err, domain.ErrInsufficientSeats) {
		t.Errorf("expected insufficient seats, got %v", err)
	}

	// Unknown category.
	missing := newHold(category, 1, 5*time.Minute)
	missing.SeatCategoryID = uuid.New()
	err = repo.CreateHold(ctx, missing)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRepository_CreateHoldConcurrent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	var g errgroup.Group
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			results <- repo.CreateHold(ctx, newHold(category, 1, 5*time.Minute))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientSeats), errors.Is(err, domain.ErrSerializationFailure):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok > 5 {
		t.Errorf("oversold: %d holds succeeded for 5 seats", ok)
	}

	got, err := repo.GetSeatCategory(ctx, category.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SeatsSold+got.LockedSeats > got.TotalSeats {
		t.Errorf("invariant violated: sold %d + locked %d > total %d", got.SeatsSold, got.LockedSeats, got.TotalSeats)
	}
}

func TestRepository_ConfirmBooking(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	hold := newHold(category, 2, 5*time.Minute)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatal(err)
	}

	tickets := domain.TicketNumbers(hold.ID, hold.Quantity)
	confirmed, err := repo.ConfirmBooking(ctx, hold.ID, "pay_1", tickets, time.Now().UTC())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if confirmed.Status != domain.StatusConfirmed || !confirmed.PaymentVerified {
		t.Errorf("expected confirmed verified booking, got %v verified=%v", confirmed.Status, confirmed.PaymentVerified)
	}
	if len(confirmed.TicketNumbers) != 2 {
		t.Errorf("expected 2 tickets, got %d", len(confirmed.TicketNumbers))
	}
	if confirmed.ExpiresAt != nil {
		t.Error("confirmed booking must not carry an expiry")
	}

	got, err := repo.GetSeatCategory(ctx, category.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SeatsSold != 2 || got.LockedSeats != 0 {
		t.Errorf("expected 2 sold 0 locked, got %d sold %d locked", got.SeatsSold, got.LockedSeats)
	}

	// Re-confirming a non-temporary booking is a state error; the
	// orchestrator handles idempotency above this layer.
	_, err = repo.ConfirmBooking(ctx, hold.ID, "pay_1", tickets, time.Now().UTC())
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
}

func TestRepository_ConfirmExpiredHold(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	hold := newHold(category, 1, time.Millisecond)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatal(err)
	}

	_, err := repo.ConfirmBooking(ctx, hold.ID, "pay_1", domain.TicketNumbers(hold.ID, 1), time.Now().UTC().Add(time.Second))
	if !errors.Is(err, domain.ErrExpired) {
		t.Errorf("expected expired, got %v", err)
	}
}

func TestRepository_ConfirmAfterReaperCancel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	hold := newHold(category, 1, time.Millisecond)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CancelHold(ctx, hold.ID, domain.ReasonHoldExpired, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	// The losing confirmation reads as expired, not merely invalid.
	_, err := repo.ConfirmBooking(ctx, hold.ID, "pay_1", domain.TicketNumbers(hold.ID, 1), time.Now().UTC())
	if !errors.Is(err, domain.ErrExpired) {
		t.Errorf("expected expired, got %v", err)
	}
}

func TestRepository_ExpirySweep(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	expired := newHold(category, 2, time.Millisecond)
	live := newHold(category, 1, 5*time.Minute)
	if err := repo.CreateHold(ctx, expired); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateHold(ctx, live); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	ids, err := repo.ExpiredBookings(ctx, time.Now().UTC(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != expired.ID {
		t.Fatalf("expected only the expired hold, got %v", ids)
	}

	cancelled, err := repo.CancelHold(ctx, expired.ID, domain.ReasonHoldExpired, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("expected cancelled, got %v", cancelled.Status)
	}

	got, err := repo.GetSeatCategory(ctx, category.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LockedSeats != 1 {
		t.Errorf("expected only the live hold's seat locked, got %d", got.LockedSeats)
	}
}

func TestRepository_CancelConfirmedRefunds(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	hold := newHold(category, 2, 5*time.Minute)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ConfirmBooking(ctx, hold.ID, "pay_1", domain.TicketNumbers(hold.ID, 2), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	refunded, err := repo.CancelConfirmed(ctx, hold.ID, "event cancelled", hold.TotalPrice, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if refunded.Status != domain.StatusRefunded || refunded.RefundMinor != hold.TotalPrice {
		t.Errorf("expected refunded with %d, got %v with %d", hold.TotalPrice, refunded.Status, refunded.RefundMinor)
	}

	got, err := repo.GetSeatCategory(ctx, category.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SeatsSold != 0 {
		t.Errorf("expected seats returned to pool, got %d sold", got.SeatsSold)
	}
}

func TestRepository_GetBookingByOrderRef(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	hold := newHold(category, 1, 5*time.Minute)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetBookingByOrderRef(ctx, hold.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != hold.ID {
		t.Errorf("expected %s, got %s", hold.ID, got.ID)
	}

	_, err = repo.GetBookingByOrderRef(ctx, "order_unknown")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRepository_MarkUsed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	hold := newHold(category, 1, 5*time.Minute)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ConfirmBooking(ctx, hold.ID, "pay_1", domain.TicketNumbers(hold.ID, 1), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	used, err := repo.MarkUsed(ctx, hold.ID, time.Now().UTC(), domain.CheckInSingleUse)
	if err != nil {
		t.Fatal(err)
	}
	if used.Status != domain.StatusUsed || used.CheckInCount != 1 {
		t.Errorf("expected used with one check-in, got %v count %d", used.Status, used.CheckInCount)
	}

	_, err = repo.MarkUsed(ctx, hold.ID, time.Now().UTC(), domain.CheckInSingleUse)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}

	again, err := repo.MarkUsed(ctx, hold.ID, time.Now().UTC(), domain.CheckInMultiUse)
	if err != nil {
		t.Fatal(err)
	}
	if again.CheckInCount != 2 {
		t.Errorf("expected second scan counted, got %d", again.CheckInCount)
	}
}

func TestRepository_Outbox(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	category := seedCategory(t, repo, 5)

	hold := newHold(category, 1, 5*time.Minute)
	if err := repo.CreateHold(ctx, hold); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ConfirmBooking(ctx, hold.ID, "pay_1", domain.TicketNumbers(hold.ID, 1), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].EventType != "booking.confirmed" {
		t.Fatalf("expected one booking.confirmed record, got %v", records)
	}

	if err := repo.MarkPublished(ctx, records[0].ID, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty outbox, got %d records", len(records))
	}
}
