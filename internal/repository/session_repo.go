package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/learnbridge/tutoring-backend/internal/models"
)

type SessionListFilter struct {
	ActorID uuid.UUID
	Role    models.Role
	Status  string
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	ts.id, ts.tutor_id, t.user_id, ts.learner_id, ts.subject_id, ts.title, ts.description,
	ts.scheduled_start, ts.scheduled_end, ts.actual_start, ts.actual_end, ts.status,
	ts.created_at, ts.updated_at
`

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		session models.Session
		status  string
	)
	if err := row.Scan(
		&session.ID,
		&session.TutorID,
		&session.TutorUserID,
		&session.LearnerID,
		&session.SubjectID,
		&session.Title,
		&session.Description,
		&session.ScheduledStart,
		&session.ScheduledEnd,
		&session.ActualStart,
		&session.ActualEnd,
		&status,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := models.ParseSessionStatus(status)
	if err != nil {
		return nil, err
	}
	session.Status = parsed
	return &session, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tutoring_sessions ts
		JOIN tutors t ON t.id = ts.tutor_id
		WHERE ts.id = $1
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, error) {
	actorColumn := "ts.learner_id"
	if filter.Role == models.RoleTutor {
		actorColumn = "t.user_id"
	}

	args := []any{filter.ActorID}
	whereParts := []string{fmt.Sprintf("%s = $1", actorColumn)}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("ts.status = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM tutoring_sessions ts
		JOIN tutors t ON t.id = ts.tutor_id
		WHERE %s
		ORDER BY ts.scheduled_start DESC, ts.id ASC
	`, sessionColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// UpdateStatusIfCurrent moves a session between states, stamping actual_start
// on entry to in_progress and actual_end on entry to completed.
func (r *SessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	sessionID uuid.UUID,
	currentStatus models.SessionStatus,
	nextStatus models.SessionStatus,
) error {
	query := `
		UPDATE tutoring_sessions
		SET status = $3,
		    actual_start = CASE WHEN $3 = 'in_progress' THEN NOW() ELSE actual_start END,
		    actual_end = CASE WHEN $3 = 'completed' THEN NOW() ELSE actual_end END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	tag, err := r.db.Exec(ctx, query, sessionID, string(currentStatus), string(nextStatus))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
