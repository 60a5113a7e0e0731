package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/seat-reservations-and-bookings/internal/adapters/mongo"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/booking"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/config"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/idempotency"
)

// BookingService is the use-case surface the handlers expose.
type BookingService interface {
	CreateHold(ctx context.Context, userID, eventID, categoryID uuid.UUID, qty uint32) (*domain.Booking, error)
	Confirm(ctx context.Context, bookingID uuid.UUID, proof booking.Proof) (*domain.Booking, error)
	ConfirmByOrderRef(ctx context.Context, proof booking.Proof) (*domain.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*domain.Booking, error)
	CheckIn(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	Availability(ctx context.Context, eventID uuid.UUID) ([]domain.SeatCategory, error)
}

// EventCatalog supplies display metadata for availability responses.
// A lookup failure degrades to counters-only output.
type EventCatalog interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*mongoadapter.EventDoc, error)
}

type Handlers struct {
	cfg      *config.Config
	svc      BookingService
	idemp    *idempotency.Idempotency
	catalog  EventCatalog
	validate *validator.Validate
}

func NewHandlers(cfg *config.Config, svc BookingService, idemp *idempotency.Idempotency, catalog EventCatalog) *Handlers {
	return &Handlers{
		cfg:      cfg,
		svc:      svc,
		idemp:    idemp,
		catalog:  catalog,
		validate: validator.New(),
	}
}

type bookingResponse struct {
	BookingID     uuid.UUID  `json:"booking_id"`
	Status        string     `json:"status"`
	Quantity      uint32     `json:"quantity"`
	TotalPrice    int64      `json:"total_price"`
	Currency      string     `json:"currency"`
	OrderID       string     `json:"gateway_order_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TicketNumbers []string   `json:"ticket_numbers,omitempty"`
	Reason        string     `json:"cancellation_reason,omitempty"`
}

func toResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		BookingID:     b.ID,
		Status:        string(b.Status),
		Quantity:      b.Quantity,
		TotalPrice:    b.TotalPrice,
		Currency:      b.Currency,
		OrderID:       b.GatewayOrderID,
		ExpiresAt:     b.ExpiresAt,
		TicketNumbers: b.TicketNumbers,
		Reason:        b.CancellationReason,
	}
}

// writeError maps the error taxonomy onto status codes so clients can
// tell a retryable seat conflict from a payment dispute.
func writeError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientSeats),
		errors.Is(err, domain.ErrSerializationFailure),
		errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrExpired):
		code = http.StatusGone
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidTransition):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrOrderMismatch),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrPaymentVerificationFailed):
		code = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrGatewayUnavailable):
		code = http.StatusBadGateway
	default:
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

type createHoldRequest struct {
	EventID        uuid.UUID `json:"event_id" validate:"required"`
	SeatCategoryID uuid.UUID `json:"seat_category_id" validate:"required"`
	Quantity       uint32    `json:"quantity" validate:"required,min=1"`
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.svc.CreateHold(r.Context(), userID, req.EventID, req.SeatCategoryID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, toResponse(b))
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

type confirmRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

func (h *Handlers) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.svc.Confirm(r.Context(), id, booking.Proof{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

// PaymentWebhook handles gateway-initiated confirmations that carry the
// order reference instead of the booking id.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.svc.ConfirmByOrderRef(r.Context(), booking.Proof{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.svc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	b, err := h.svc.CheckIn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := toResponse(b)
	writeJSON(w, http.StatusOK, struct {
		bookingResponse
		CheckInCount uint32 `json:"checkin_count"`
	}{resp, b.CheckInCount})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

type availabilityItem struct {
	SeatCategoryID uuid.UUID `json:"seat_category_id"`
	Name           string    `json:"name"`
	Available      uint32    `json:"available"`
	PriceMinor     int64     `json:"price_minor"`
	Currency       string    `json:"currency"`
	Active         bool      `json:"active"`
}

type eventInfo struct {
	Name  string     `json:"name"`
	Venue string     `json:"venue,omitempty"`
	Date  *time.Time `json:"date,omitempty"`
}

type availabilityResponse struct {
	EventID    uuid.UUID          `json:"event_id"`
	Event      *eventInfo         `json:"event,omitempty"`
	Categories []availabilityItem `json:"categories"`
}

func (h *Handlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	categories, err := h.svc.Availability(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := availabilityResponse{
		EventID:    eventID,
		Categories: make([]availabilityItem, 0, len(categories)),
	}
	for _, c := range categories {
		resp.Categories = append(resp.Categories, availabilityItem{
			SeatCategoryID: c.ID,
			Name:           c.Name,
			Available:      c.Available(),
			PriceMinor:     c.PriceMinor,
			Currency:       c.Currency,
			Active:         c.Active,
		})
	}

	// Catalog metadata is decorative; a miss never fails the request.
	if h.catalog != nil {
		if doc, err := h.catalog.GetEvent(r.Context(), eventID); err == nil && doc != nil {
			date := doc.Date
			resp.Event = &eventInfo{Name: doc.Name, Venue: doc.Venue, Date: &date}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
