package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	switch status := PaymentStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return status, nil
	default:
		return "", fmt.Errorf("unknown payment status %q", value)
	}
}

// Payment is one checkout attempt for a session. PayeeID is the tutor record id.
type Payment struct {
	ID               uuid.UUID       `json:"id"`
	SessionID        uuid.UUID       `json:"session_id"`
	PayerID          uuid.UUID       `json:"payer_id"`
	PayeeID          uuid.UUID       `json:"payee_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	ProviderOrderID  *string         `json:"paypal_order_id"`
	PayerReferenceID *string         `json:"paypal_payment_id"`
	ProcessedAt      *time.Time      `json:"processed_at"`
	CreatedAt        time.Time       `json:"created_at"`
	SessionTitle     string          `json:"session_title,omitempty"`
}

type EarningsSummary struct {
	Total          decimal.Decimal `json:"total"`
	ThisMonth      decimal.Decimal `json:"this_month"`
	ThisYear       decimal.Decimal `json:"this_year"`
	Pending        decimal.Decimal `json:"pending"`
	Average        decimal.Decimal `json:"average"`
	CompletedCount int             `json:"completed_count"`
}
