package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/shopspring/decimal"
)

type TutorApplicationInput struct {
	UserID          uuid.UUID
	Education       *string
	ExperienceYears *int
	HourlyRate      decimal.NullDecimal
	Languages       []string
	Certifications  []string
}

type TutorListFilter struct {
	Status        models.TutorStatus
	MaxRate       *decimal.Decimal
	MinExperience *int
	Language      string
	Offset        int
	Limit         int
}

type TutorRepository struct {
	db DBTX
}

func NewTutorRepository(db DBTX) *TutorRepository {
	return &TutorRepository{db: db}
}

const tutorColumns = `
	t.id, t.user_id, t.status, t.education, t.experience_years, t.hourly_rate,
	t.languages, t.certifications, t.approved_at, t.approved_by, t.created_at, t.updated_at,
	COALESCE((
		SELECT jsonb_agg(jsonb_build_object('subject_id', ts.subject_id, 'proficiency_level', ts.proficiency_level))
		FROM tutor_subjects ts
		WHERE ts.tutor_id = t.id
	), '[]'::jsonb),
	pr.first_name, pr.last_name, pr.avatar_url, pr.email
`

func scanTutor(row pgx.Row, extra ...any) (*models.Tutor, error) {
	var (
		tutor   models.Tutor
		status  string
		profile models.ProfileSummary
	)
	dest := []any{
		&tutor.ID,
		&tutor.UserID,
		&status,
		&tutor.Education,
		&tutor.ExperienceYears,
		&tutor.HourlyRate,
		&tutor.Languages,
		&tutor.Certifications,
		&tutor.ApprovedAt,
		&tutor.ApprovedBy,
		&tutor.CreatedAt,
		&tutor.UpdatedAt,
		&tutor.Subjects,
		&profile.FirstName,
		&profile.LastName,
		&profile.AvatarURL,
		&profile.Email,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	parsed, err := models.ParseTutorStatus(status)
	if err != nil {
		return nil, err
	}
	tutor.Status = parsed
	tutor.Profile = &profile
	return &tutor, nil
}

func (r *TutorRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Tutor, error) {
	query := `
		SELECT ` + tutorColumns + `
		FROM tutors t
		LEFT JOIN profiles pr ON pr.user_id = t.user_id
		WHERE t.user_id = $1
	`
	return scanTutor(r.db.QueryRow(ctx, query, userID))
}

func (r *TutorRepository) GetByID(ctx context.Context, tutorID uuid.UUID) (*models.Tutor, error) {
	query := `
		SELECT ` + tutorColumns + `
		FROM tutors t
		LEFT JOIN profiles pr ON pr.user_id = t.user_id
		WHERE t.id = $1
	`
	return scanTutor(r.db.QueryRow(ctx, query, tutorID))
}

// UpsertApplication creates the tutor row as pending or updates the
// application fields of an existing row without touching its status.
func (r *TutorRepository) UpsertApplication(ctx context.Context, input TutorApplicationInput) (uuid.UUID, error) {
	query := `
		INSERT INTO tutors (user_id, status, education, experience_years, hourly_rate, languages, certifications)
		VALUES ($1, 'pending', $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET education = EXCLUDED.education,
		    experience_years = EXCLUDED.experience_years,
		    hourly_rate = EXCLUDED.hourly_rate,
		    languages = EXCLUDED.languages,
		    certifications = EXCLUDED.certifications,
		    updated_at = NOW()
		RETURNING id
	`

	var tutorID uuid.UUID
	err := r.db.QueryRow(
		ctx,
		query,
		input.UserID,
		input.Education,
		input.ExperienceYears,
		input.HourlyRate,
		input.Languages,
		input.Certifications,
	).Scan(&tutorID)
	if err != nil {
		return uuid.Nil, err
	}
	return tutorID, nil
}

func (r *TutorRepository) ReplaceSubjects(ctx context.Context, tutorID uuid.UUID, subjects []models.TutorSubject) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM tutor_subjects WHERE tutor_id = $1`, tutorID); err != nil {
		return err
	}
	if len(subjects) == 0 {
		return nil
	}

	subjectIDs := make([]uuid.UUID, 0, len(subjects))
	levels := make([]*string, 0, len(subjects))
	for _, subject := range subjects {
		subjectIDs = append(subjectIDs, subject.SubjectID)
		levels = append(levels, subject.ProficiencyLevel)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO tutor_subjects (tutor_id, subject_id, proficiency_level)
		SELECT $1, s.subject_id, s.proficiency_level
		FROM unnest($2::uuid[], $3::text[]) AS s(subject_id, proficiency_level)
		ON CONFLICT (tutor_id, subject_id) DO UPDATE SET proficiency_level = EXCLUDED.proficiency_level
	`, tutorID, subjectIDs, levels)
	return err
}

func (r *TutorRepository) ListByStatus(ctx context.Context, status string) ([]models.Tutor, error) {
	args := []any{}
	where := ""
	if strings.TrimSpace(status) != "" {
		args = append(args, status)
		where = "WHERE t.status = $1"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM tutors t
		LEFT JOIN profiles pr ON pr.user_id = t.user_id
		%s
		ORDER BY t.created_at DESC
	`, tutorColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tutors := make([]models.Tutor, 0)
	for rows.Next() {
		tutor, err := scanTutor(rows)
		if err != nil {
			return nil, err
		}
		tutors = append(tutors, *tutor)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tutors, nil
}

func (r *TutorRepository) List(ctx context.Context, filter TutorListFilter) ([]models.Tutor, int, error) {
	args := []any{string(filter.Status)}
	whereParts := []string{"t.status = $1"}

	if filter.MaxRate != nil {
		args = append(args, *filter.MaxRate)
		whereParts = append(whereParts, fmt.Sprintf("t.hourly_rate <= $%d", len(args)))
	}
	if filter.MinExperience != nil {
		args = append(args, *filter.MinExperience)
		whereParts = append(whereParts, fmt.Sprintf("t.experience_years >= $%d", len(args)))
	}
	if language := strings.TrimSpace(filter.Language); language != "" {
		args = append(args, language)
		whereParts = append(whereParts, fmt.Sprintf("$%d = ANY(t.languages)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER()
		FROM tutors t
		LEFT JOIN profiles pr ON pr.user_id = t.user_id
		WHERE %s
		ORDER BY t.approved_at DESC NULLS LAST, t.id ASC
		LIMIT $%d OFFSET $%d
	`, tutorColumns, strings.Join(whereParts, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	total := 0
	tutors := make([]models.Tutor, 0)
	for rows.Next() {
		tutor, err := scanTutor(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		tutors = append(tutors, *tutor)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tutors, total, nil
}

// Review sets a tutor's status. Approval stamps approved_at and approved_by.
func (r *TutorRepository) Review(
	ctx context.Context,
	tutorID uuid.UUID,
	status models.TutorStatus,
	reviewerID uuid.UUID,
) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tutors
		SET status = $2,
		    approved_at = CASE WHEN $2 = 'approved' THEN NOW() ELSE approved_at END,
		    approved_by = CASE WHEN $2 = 'approved' THEN $3 ELSE approved_by END,
		    updated_at = NOW()
		WHERE id = $1
	`, tutorID, string(status), reviewerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
