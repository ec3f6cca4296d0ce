package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/services"
)

type paymentLedgerService interface {
	ListPayerPayments(ctx context.Context, callerID uuid.UUID) ([]models.Payment, error)
	Earnings(ctx context.Context, callerID uuid.UUID) (*models.EarningsSummary, error)
}

type paymentStatusReader interface {
	PaymentStatus(ctx context.Context, callerID uuid.UUID, orderID string) (*models.Payment, error)
}

type PaymentHandler struct {
	ledger   paymentLedgerService
	statuses paymentStatusReader
}

func NewPaymentHandler(ledger paymentLedgerService, statuses paymentStatusReader) *PaymentHandler {
	return &PaymentHandler{ledger: ledger, statuses: statuses}
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	payments, err := h.ledger.ListPayerPayments(c.Context(), userID)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"payments": payments})
}

// PaymentStatus lets the payer poll an order after returning from approval.
func (h *PaymentHandler) PaymentStatus(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	payment, err := h.statuses.PaymentStatus(c.Context(), userID, strings.TrimSpace(c.Query("orderId")))
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) Earnings(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	summary, err := h.ledger.Earnings(c.Context(), userID)
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"earnings": summary})
}

func mapPaymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load payments"})
	}
}
