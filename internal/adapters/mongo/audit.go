package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogTransition(ctx context.Context, b *domain.Booking, action string) error {
	data := map[string]interface{}{
		"booking_id": b.ID,
		"status":     b.Status,
		"quantity":   b.Quantity,
		"event_id":   b.EventID,
	}
	return a.LogEvent(ctx, action, b.UserID, data)
}

// LogPaymentFailure records a payment-integrity failure. These are
// security-relevant and kept separate from the transition trail.
func (a *AuditLogger) LogPaymentFailure(ctx context.Context, b *domain.Booking, kind string, gatewayPaymentID string) error {
	data := map[string]interface{}{
		"booking_id":         b.ID,
		"kind":               kind,
		"gateway_order_id":   b.GatewayOrderID,
		"gateway_payment_id": gatewayPaymentID,
	}
	return a.LogEvent(ctx, "payment.failure", b.UserID, data)
}
