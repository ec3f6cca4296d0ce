package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/services"
	"github.com/shopspring/decimal"
)

type tutorApplicationService interface {
	SubmitApplication(ctx context.Context, callerID uuid.UUID, input services.TutorApplicationInput) (*models.Tutor, error)
	GetApplication(ctx context.Context, callerID uuid.UUID) (*models.Tutor, error)
	ListApproved(ctx context.Context, search services.TutorSearch) ([]models.Tutor, int, error)
}

type TutorHandler struct {
	service tutorApplicationService
}

func NewTutorHandler(service tutorApplicationService) *TutorHandler {
	return &TutorHandler{service: service}
}

type tutorSubjectRequest struct {
	SubjectID        string  `json:"subject_id" validate:"required"`
	ProficiencyLevel *string `json:"proficiency_level" validate:"omitempty,max=50"`
}

type tutorApplicationRequest struct {
	Education       *string               `json:"education" validate:"omitempty,max=500"`
	ExperienceYears *int                  `json:"experience_years" validate:"omitempty,min=0,max=80"`
	HourlyRate      *decimal.Decimal      `json:"hourly_rate"`
	Languages       []string              `json:"languages" validate:"max=20,dive,max=50"`
	Certifications  []string              `json:"certifications" validate:"max=20,dive,max=200"`
	Subjects        []tutorSubjectRequest `json:"subjects" validate:"max=30,dive"`
}

func (h *TutorHandler) SubmitApplication(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req tutorApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := requestValidator().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid application fields"})
	}

	subjects := make([]models.TutorSubject, 0, len(req.Subjects))
	for _, subject := range req.Subjects {
		subjectID, err := uuid.Parse(strings.TrimSpace(subject.SubjectID))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid application fields"})
		}
		subjects = append(subjects, models.TutorSubject{
			SubjectID:        subjectID,
			ProficiencyLevel: subject.ProficiencyLevel,
		})
	}

	tutor, err := h.service.SubmitApplication(c.Context(), userID, services.TutorApplicationInput{
		Education:       req.Education,
		ExperienceYears: req.ExperienceYears,
		HourlyRate:      req.HourlyRate,
		Languages:       req.Languages,
		Certifications:  req.Certifications,
		Subjects:        subjects,
	})
	if err != nil {
		return mapTutorError(c, err)
	}

	return c.JSON(fiber.Map{"tutor": tutor})
}

func (h *TutorHandler) GetApplication(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	tutor, err := h.service.GetApplication(c.Context(), userID)
	if err != nil {
		return mapTutorError(c, err)
	}

	return c.JSON(fiber.Map{"tutor": tutor})
}

func (h *TutorHandler) ListTutors(c *fiber.Ctx) error {
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	maxRate, err := parseOptionalNonNegativeDecimal(c.Query("max_rate"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "max_rate must be a valid non-negative number"})
	}
	minExperience, err := parseOptionalNonNegativeInt(c.Query("min_experience"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "min_experience must be a valid non-negative integer"})
	}

	tutors, total, err := h.service.ListApproved(c.Context(), services.TutorSearch{
		MaxRate:       maxRate,
		MinExperience: minExperience,
		Language:      strings.TrimSpace(c.Query("language")),
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		return mapTutorError(c, err)
	}

	return c.JSON(fiber.Map{
		"tutors":     tutors,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func mapTutorError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tutor application not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process tutor request"})
	}
}
