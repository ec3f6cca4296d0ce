package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/paypal"
	"github.com/learnbridge/tutoring-backend/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultCurrency = "USD"

type orderGateway interface {
	AccessToken(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, accessToken string, req paypal.CreateOrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, accessToken string, orderID string) (*paypal.Capture, error)
}

type sessionReader interface {
	GetByID(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
}

type checkoutPaymentStore interface {
	Create(ctx context.Context, input repository.CreatePaymentInput) (*models.Payment, error)
	MarkCompletedByOrderID(ctx context.Context, orderID string, payerReferenceID string, processedAt time.Time) (int64, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
}

type CheckoutService struct {
	gateway  orderGateway
	sessions sessionReader
	payments checkoutPaymentStore
	appURL   string
	log      *zap.Logger
	now      func() time.Time
}

func NewCheckoutService(
	gateway orderGateway,
	sessions sessionReader,
	payments checkoutPaymentStore,
	appURL string,
	log *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		gateway:  gateway,
		sessions: sessions,
		payments: payments,
		appURL:   strings.TrimRight(appURL, "/"),
		log:      log,
		now:      time.Now,
	}
}

type CreateOrderInput struct {
	SessionID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	// Origin is the client origin used for the provider return and cancel URLs.
	Origin string
}

type CreateOrderResult struct {
	OrderID     string `json:"orderId"`
	ApprovalURL string `json:"approvalUrl"`
}

type CaptureOrderResult struct {
	Success   bool   `json:"success"`
	CaptureID string `json:"captureId"`
}

func (s *CheckoutService) CreateOrder(
	ctx context.Context,
	callerID uuid.UUID,
	input CreateOrderInput,
) (*CreateOrderResult, error) {
	if input.SessionID == uuid.Nil {
		return nil, invalidInput("sessionId is required")
	}
	if !input.Amount.IsPositive() {
		return nil, invalidInput("amount must be greater than 0")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, invalidInput("currency must be a 3-letter code")
	}

	accessToken, err := s.gateway.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}

	session, err := s.sessions.GetByID(ctx, input.SessionID)
	if err != nil {
		return nil, storeError(err, "session "+input.SessionID.String())
	}
	if !session.IsLearner(callerID) {
		return nil, ErrForbidden
	}

	origin := strings.TrimRight(strings.TrimSpace(input.Origin), "/")
	if origin == "" {
		origin = s.appURL
	}

	order, err := s.gateway.CreateOrder(ctx, accessToken, paypal.CreateOrderRequest{
		Amount:        input.Amount,
		Currency:      currency,
		Description:   "Tutoring Session: " + session.Title,
		CorrelationID: session.ID.String(),
		ReturnURL:     origin + "/payment-success",
		CancelURL:     origin + "/payment-cancelled",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRequest, err)
	}

	// The provider order exists from here on; a failed insert orphans it.
	_, err = s.payments.Create(context.WithoutCancel(ctx), repository.CreatePaymentInput{
		SessionID:       session.ID,
		PayerID:         session.LearnerID,
		PayeeID:         session.TutorID,
		Amount:          input.Amount,
		Currency:        currency,
		ProviderOrderID: order.ID,
	})
	if err != nil {
		s.log.Error("payment record insert failed after provider order",
			zap.String("order_id", order.ID),
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: failed to create payment record: %v", ErrUpstreamQuery, err)
	}

	if order.ApprovalURL == "" {
		s.log.Warn("provider order has no approval link", zap.String("order_id", order.ID))
	}

	s.log.Info("checkout order created",
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID.String()),
		zap.String("amount", input.Amount.StringFixed(2)),
		zap.String("currency", currency),
	)

	return &CreateOrderResult{
		OrderID:     order.ID,
		ApprovalURL: order.ApprovalURL,
	}, nil
}

// CaptureOrder settles an approved order. A failure to record the capture
// locally is logged and does not fail the call.
func (s *CheckoutService) CaptureOrder(
	ctx context.Context,
	orderID string,
	payerReferenceID string,
) (*CaptureOrderResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, invalidInput("orderId is required")
	}

	accessToken, err := s.gateway.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}

	capture, err := s.gateway.CaptureOrder(ctx, accessToken, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRequest, err)
	}

	updated, err := s.payments.MarkCompletedByOrderID(
		context.WithoutCancel(ctx),
		orderID,
		strings.TrimSpace(payerReferenceID),
		s.now().UTC(),
	)
	switch {
	case err != nil:
		s.log.Error("payment status update failed after capture",
			zap.String("order_id", orderID),
			zap.String("capture_id", capture.CaptureID),
			zap.Error(err),
		)
	case updated == 0:
		s.log.Warn("captured order has no payment record", zap.String("order_id", orderID))
	default:
		s.log.Info("checkout order captured",
			zap.String("order_id", orderID),
			zap.String("capture_id", capture.CaptureID),
		)
	}

	return &CaptureOrderResult{
		Success:   true,
		CaptureID: capture.CaptureID,
	}, nil
}

func (s *CheckoutService) PaymentStatus(
	ctx context.Context,
	callerID uuid.UUID,
	orderID string,
) (*models.Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, invalidInput("orderId is required")
	}

	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "payment for order "+orderID)
	}
	if payment.PayerID != callerID {
		return nil, ErrForbidden
	}
	return payment, nil
}
