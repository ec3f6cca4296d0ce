package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/repository"
	"github.com/shopspring/decimal"
)

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type tutorStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Tutor, error)
	GetByID(ctx context.Context, tutorID uuid.UUID) (*models.Tutor, error)
	ListByStatus(ctx context.Context, status string) ([]models.Tutor, error)
	List(ctx context.Context, filter repository.TutorListFilter) ([]models.Tutor, int, error)
	Review(ctx context.Context, tutorID uuid.UUID, status models.TutorStatus, reviewerID uuid.UUID) error
}

type roleChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
}

type TutorService struct {
	db     txStarter
	tutors tutorStore
	roles  roleChecker
}

func NewTutorService(db txStarter, tutors tutorStore, roles roleChecker) *TutorService {
	return &TutorService{db: db, tutors: tutors, roles: roles}
}

type TutorApplicationInput struct {
	Education       *string
	ExperienceYears *int
	HourlyRate      *decimal.Decimal
	Languages       []string
	Certifications  []string
	Subjects        []models.TutorSubject
}

type TutorSearch struct {
	MaxRate       *decimal.Decimal
	MinExperience *int
	Language      string
	Page          int
	Limit         int
}

// SubmitApplication creates or updates the caller's tutor application. A new
// application starts pending; resubmitting keeps the current status.
func (s *TutorService) SubmitApplication(
	ctx context.Context,
	callerID uuid.UUID,
	input TutorApplicationInput,
) (*models.Tutor, error) {
	if input.ExperienceYears != nil && *input.ExperienceYears < 0 {
		return nil, invalidInput("experience_years must be non-negative")
	}
	hourlyRate := decimal.NullDecimal{}
	if input.HourlyRate != nil {
		if input.HourlyRate.IsNegative() {
			return nil, invalidInput("hourly_rate must be non-negative")
		}
		hourlyRate = decimal.NewNullDecimal(input.HourlyRate.Round(2))
	}
	subjects, err := dedupeSubjects(input.Subjects)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeError(err, "begin application")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txTutorRepo := repository.NewTutorRepository(tx)
	tutorID, err := txTutorRepo.UpsertApplication(ctx, repository.TutorApplicationInput{
		UserID:          callerID,
		Education:       trimOptional(input.Education),
		ExperienceYears: input.ExperienceYears,
		HourlyRate:      hourlyRate,
		Languages:       cleanList(input.Languages),
		Certifications:  cleanList(input.Certifications),
	})
	if err != nil {
		return nil, storeError(err, "tutor application")
	}
	if err := txTutorRepo.ReplaceSubjects(ctx, tutorID, subjects); err != nil {
		return nil, storeError(err, "tutor subjects")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError(err, "commit application")
	}

	tutor, err := s.tutors.GetByID(ctx, tutorID)
	if err != nil {
		return nil, storeError(err, "tutor "+tutorID.String())
	}
	return tutor, nil
}

func (s *TutorService) GetApplication(ctx context.Context, callerID uuid.UUID) (*models.Tutor, error) {
	tutor, err := s.tutors.GetByUserID(ctx, callerID)
	if err != nil {
		return nil, storeError(err, "tutor application")
	}
	return tutor, nil
}

// ListApproved is the public tutor directory. It returns one page of
// approved tutors and the total number matching the filters.
func (s *TutorService) ListApproved(ctx context.Context, search TutorSearch) ([]models.Tutor, int, error) {
	if search.MaxRate != nil && search.MaxRate.IsNegative() {
		return nil, 0, invalidInput("max_rate must be non-negative")
	}
	if search.MinExperience != nil && *search.MinExperience < 0 {
		return nil, 0, invalidInput("min_experience must be non-negative")
	}
	page := search.Page
	if page < 1 {
		page = 1
	}
	limit := search.Limit
	if limit < 1 {
		limit = 10
	}

	tutors, total, err := s.tutors.List(ctx, repository.TutorListFilter{
		Status:        models.TutorApproved,
		MaxRate:       search.MaxRate,
		MinExperience: search.MinExperience,
		Language:      strings.TrimSpace(search.Language),
		Offset:        (page - 1) * limit,
		Limit:         limit,
	})
	if err != nil {
		return nil, 0, storeError(err, "tutors")
	}
	return tutors, total, nil
}

func (s *TutorService) ListApplications(ctx context.Context, callerID uuid.UUID, status string) ([]models.Tutor, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if status != "" {
		parsed, err := models.ParseTutorStatus(status)
		if err != nil {
			return nil, ErrInvalidStatus
		}
		status = string(parsed)
	}

	tutors, err := s.tutors.ListByStatus(ctx, status)
	if err != nil {
		return nil, storeError(err, "tutor applications")
	}
	return tutors, nil
}

// ReviewApplication moves an application to approved, rejected or suspended.
func (s *TutorService) ReviewApplication(
	ctx context.Context,
	callerID uuid.UUID,
	tutorID uuid.UUID,
	status string,
) (*models.Tutor, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	next, err := models.ParseTutorStatus(status)
	if err != nil || next == models.TutorPending {
		return nil, ErrInvalidStatus
	}

	if err := s.tutors.Review(ctx, tutorID, next, callerID); err != nil {
		return nil, storeError(err, "tutor "+tutorID.String())
	}

	tutor, err := s.tutors.GetByID(ctx, tutorID)
	if err != nil {
		return nil, storeError(err, "tutor "+tutorID.String())
	}
	return tutor, nil
}

func (s *TutorService) requireAdmin(ctx context.Context, callerID uuid.UUID) error {
	ok, err := s.roles.HasRole(ctx, callerID, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("%w: role lookup: %v", ErrUpstreamQuery, err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func dedupeSubjects(subjects []models.TutorSubject) ([]models.TutorSubject, error) {
	seen := make(map[uuid.UUID]bool, len(subjects))
	result := make([]models.TutorSubject, 0, len(subjects))
	for _, subject := range subjects {
		if subject.SubjectID == uuid.Nil {
			return nil, invalidInput("subject_id is required")
		}
		if seen[subject.SubjectID] {
			continue
		}
		seen[subject.SubjectID] = true
		subject.ProficiencyLevel = trimOptional(subject.ProficiencyLevel)
		result = append(result, subject)
	}
	return result, nil
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	return cleaned
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
