// Package payment is the boundary to the external payment gateway. The
// gateway's internals are out of scope; only order creation, canonical
// payment status and signature verification are consumed.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/seat-reservations-and-bookings/internal/domain"
)

type Status string

const (
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusFailed     Status = "FAILED"
)

type Order struct {
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
}

type Payment struct {
	Status      Status
	AmountMinor int64
}

// Gateway is the adapter contract. Amounts are minor currency units and
// come from the gateway, never from the caller.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, reference string) (Order, error)
	FetchPaymentStatus(ctx context.Context, gatewayPaymentID string) (Payment, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

type HTTPGateway struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
}

// NewHTTPGateway builds a gateway client with a bounded timeout; a timed
// out confirmation attempt must not leave the booking half-mutated, so
// callers treat any transport error as ErrGatewayUnavailable.
func NewHTTPGateway(baseURL, keyID, secret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, reference string) (Order, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  reference,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.secret)

	resp, err := g.client.Do(req)
	if err != nil {
		return Order{}, errors.Mark(errors.Wrap(err, "create order"), domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Order{}, errors.Mark(fmt.Errorf("create order: gateway returned %d", resp.StatusCode), domain.ErrGatewayUnavailable)
	}

	var out struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Order{}, errors.Mark(errors.Wrap(err, "decode order"), domain.ErrGatewayUnavailable)
	}
	return Order{GatewayOrderID: out.ID, AmountMinor: out.Amount, Currency: out.Currency}, nil
}

func (g *HTTPGateway) FetchPaymentStatus(ctx context.Context, gatewayPaymentID string) (Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payments/"+gatewayPaymentID, nil)
	if err != nil {
		return Payment{}, err
	}
	req.SetBasicAuth(g.keyID, g.secret)

	resp, err := g.client.Do(req)
	if err != nil {
		return Payment{}, errors.Mark(errors.Wrap(err, "fetch payment"), domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Payment{}, errors.Mark(fmt.Errorf("fetch payment: gateway returned %d", resp.StatusCode), domain.ErrGatewayUnavailable)
	}

	var out struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Payment{}, errors.Mark(errors.Wrap(err, "decode payment"), domain.ErrGatewayUnavailable)
	}

	var status Status
	switch out.Status {
	case "authorized":
		status = StatusAuthorized
	case "captured":
		status = StatusCaptured
	default:
		status = StatusFailed
	}
	return Payment{Status: status, AmountMinor: out.Amount}, nil
}

func (g *HTTPGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return VerifySignature(g.secret, gatewayOrderID, gatewayPaymentID, signature)
}
