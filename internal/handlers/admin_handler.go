package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
)

type tutorReviewService interface {
	ListApplications(ctx context.Context, callerID uuid.UUID, status string) ([]models.Tutor, error)
	ReviewApplication(ctx context.Context, callerID uuid.UUID, tutorID uuid.UUID, status string) (*models.Tutor, error)
}

// AdminHandler serves the tutor application review queue.
type AdminHandler struct {
	service tutorReviewService
}

func NewAdminHandler(service tutorReviewService) *AdminHandler {
	return &AdminHandler{service: service}
}

type reviewApplicationRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected suspended"`
}

func (h *AdminHandler) ListApplications(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	tutors, err := h.service.ListApplications(c.Context(), userID, c.Query("status"))
	if err != nil {
		return mapTutorError(c, err)
	}

	return c.JSON(fiber.Map{"applications": tutors})
}

func (h *AdminHandler) ReviewApplication(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	tutorID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tutor id"})
	}

	var req reviewApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := requestValidator().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be approved, rejected or suspended"})
	}

	tutor, err := h.service.ReviewApplication(c.Context(), userID, tutorID, req.Status)
	if err != nil {
		return mapTutorError(c, err)
	}

	return c.JSON(fiber.Map{"tutor": tutor})
}
