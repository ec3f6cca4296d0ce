package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/services"
	"github.com/learnbridge/tutoring-backend/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
)

type checkoutApplicationService interface {
	CreateOrder(ctx context.Context, callerID uuid.UUID, input services.CreateOrderInput) (*services.CreateOrderResult, error)
	CaptureOrder(ctx context.Context, orderID string, payerReferenceID string) (*services.CaptureOrderResult, error)
}

// CheckoutHandler serves the payment function: a single endpoint that
// dispatches on method and reports every failure as a 500.
type CheckoutHandler struct {
	service   checkoutApplicationService
	jwtSecret string
}

func NewCheckoutHandler(service checkoutApplicationService, jwtSecret string) *CheckoutHandler {
	return &CheckoutHandler{service: service, jwtSecret: jwtSecret}
}

type createOrderRequest struct {
	SessionID string          `json:"sessionId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency" validate:"omitempty,len=3,alpha"`
}

const (
	msgCallerRequired = "Authorization required"
	msgInvalidBody    = "Invalid request body"
)

var errCallerRequired = errors.New("caller token missing or invalid")

func (h *CheckoutHandler) Handle(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, corsAllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)

	switch c.Method() {
	case fiber.MethodOptions:
		return c.SendStatus(fiber.StatusOK)
	case fiber.MethodPost:
		return h.createOrder(c)
	case fiber.MethodGet:
		return h.captureOrder(c)
	default:
		return c.Status(fiber.StatusMethodNotAllowed).SendString("Method not allowed")
	}
}

func (h *CheckoutHandler) createOrder(c *fiber.Ctx) error {
	callerID, err := h.callerFromHeader(c)
	if err != nil {
		return checkoutFailure(c, msgCallerRequired)
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return checkoutFailure(c, msgInvalidBody)
	}
	if err := requestValidator().Struct(req); err != nil {
		return checkoutFailure(c, msgInvalidBody)
	}
	sessionID, err := uuid.Parse(strings.TrimSpace(req.SessionID))
	if err != nil {
		return checkoutFailure(c, msgInvalidBody)
	}

	result, err := h.service.CreateOrder(c.Context(), callerID, services.CreateOrderInput{
		SessionID: sessionID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Origin:    c.Get(fiber.HeaderOrigin),
	})
	if err != nil {
		return checkoutFailure(c, mapCreateOrderError(err))
	}

	return c.JSON(result)
}

func (h *CheckoutHandler) captureOrder(c *fiber.Ctx) error {
	result, err := h.service.CaptureOrder(c.Context(), c.Query("orderId"), c.Query("paymentId"))
	if err != nil {
		return checkoutFailure(c, mapCaptureOrderError(err))
	}

	return c.JSON(result)
}

func (h *CheckoutHandler) callerFromHeader(c *fiber.Ctx) (uuid.UUID, error) {
	parts := strings.Split(c.Get(fiber.HeaderAuthorization), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return uuid.Nil, errCallerRequired
	}
	claims, err := utils.ValidateToken(parts[1], h.jwtSecret)
	if err != nil {
		return uuid.Nil, errCallerRequired
	}
	callerID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return uuid.Nil, errCallerRequired
	}
	return callerID, nil
}

func checkoutFailure(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message})
}

func mapCreateOrderError(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, services.ErrUpstreamAuth):
		return "Failed to get PayPal access token"
	case errors.Is(err, services.ErrNotFound):
		return "Session not found"
	case errors.Is(err, services.ErrForbidden):
		return "Only the session learner can pay for this session"
	case errors.Is(err, services.ErrUpstreamRequest):
		return "Failed to create PayPal order"
	case errors.Is(err, services.ErrUpstreamQuery):
		return "Failed to store payment record"
	default:
		return err.Error()
	}
}

func mapCaptureOrderError(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return "Order ID is required for capture"
	case errors.Is(err, services.ErrUpstreamAuth):
		return "Failed to get PayPal access token"
	case errors.Is(err, services.ErrUpstreamRequest):
		return "Failed to capture PayPal payment"
	default:
		return err.Error()
	}
}
