package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/repository"
)

type sessionStore interface {
	GetByID(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	List(ctx context.Context, filter repository.SessionListFilter) ([]models.Session, error)
	UpdateStatusIfCurrent(ctx context.Context, sessionID uuid.UUID, current models.SessionStatus, next models.SessionStatus) error
}

type sessionPaymentReader interface {
	ListBySessionIDs(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]models.Payment, error)
}

type SessionService struct {
	sessionRepo sessionStore
	paymentRepo sessionPaymentReader
}

func NewSessionService(sessionRepo sessionStore, paymentRepo sessionPaymentReader) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		paymentRepo: paymentRepo,
	}
}

// ListSessions returns the caller's sessions seen from one side, each with
// its most recent payment.
func (s *SessionService) ListSessions(
	ctx context.Context,
	actorID uuid.UUID,
	role string,
	status string,
) ([]models.SessionDetail, error) {
	viewRole, err := sessionViewRole(role)
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" {
		if _, err := models.ParseSessionStatus(status); err != nil {
			return nil, ErrInvalidStatus
		}
	}

	sessions, err := s.sessionRepo.List(ctx, repository.SessionListFilter{
		ActorID: actorID,
		Role:    viewRole,
		Status:  status,
	})
	if err != nil {
		return nil, storeError(err, "sessions")
	}

	sessionIDs := make([]uuid.UUID, 0, len(sessions))
	for _, session := range sessions {
		sessionIDs = append(sessionIDs, session.ID)
	}

	paymentsBySession, err := s.paymentRepo.ListBySessionIDs(ctx, sessionIDs)
	if err != nil {
		return nil, storeError(err, "session payments")
	}

	details := make([]models.SessionDetail, 0, len(sessions))
	for _, session := range sessions {
		detail := models.SessionDetail{Session: session}
		if payment, ok := paymentsBySession[session.ID]; ok {
			paymentCopy := payment
			detail.Payment = &paymentCopy
		}
		details = append(details, detail)
	}

	return details, nil
}

func (s *SessionService) GetSession(
	ctx context.Context,
	actorID uuid.UUID,
	sessionID uuid.UUID,
) (*models.SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "session "+sessionID.String())
	}
	if !session.IsParticipant(actorID) {
		return nil, ErrForbidden
	}

	detail := &models.SessionDetail{Session: *session}
	payments, err := s.paymentRepo.ListBySessionIDs(ctx, []uuid.UUID{sessionID})
	if err != nil {
		return nil, storeError(err, "session payments")
	}
	if payment, ok := payments[sessionID]; ok {
		detail.Payment = &payment
	}
	return detail, nil
}

func (s *SessionService) UpdateStatus(
	ctx context.Context,
	actorID uuid.UUID,
	sessionID uuid.UUID,
	requestedStatus string,
) (*models.SessionDetail, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "session "+sessionID.String())
	}
	if !session.IsParticipant(actorID) {
		return nil, ErrForbidden
	}

	nextStatus, err := normalizeRequestedStatus(requestedStatus)
	if err != nil {
		return nil, err
	}
	if err := validateStatusTransition(actorID, session, nextStatus); err != nil {
		return nil, err
	}

	if err := s.sessionRepo.UpdateStatusIfCurrent(ctx, sessionID, session.Status, nextStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, storeError(err, "session status")
	}
	return s.GetSession(ctx, actorID, sessionID)
}

func sessionViewRole(role string) (models.Role, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", string(models.RoleLearner):
		return models.RoleLearner, nil
	case string(models.RoleTutor):
		return models.RoleTutor, nil
	default:
		return "", invalidInput("role must be learner or tutor")
	}
}

func normalizeRequestedStatus(status string) (models.SessionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "start", "in_progress":
		return models.SessionInProgress, nil
	case "complete", "completed":
		return models.SessionCompleted, nil
	case "cancel", "cancelled", "canceled":
		return models.SessionCancelled, nil
	default:
		return "", ErrInvalidStatus
	}
}

// validateStatusTransition lets the tutor drive the session lifecycle; the
// learner may only cancel before it starts.
func validateStatusTransition(
	actorID uuid.UUID,
	session *models.Session,
	nextStatus models.SessionStatus,
) error {
	if session.IsTutor(actorID) {
		switch nextStatus {
		case models.SessionInProgress:
			if session.Status != models.SessionScheduled {
				return ErrInvalidStateTransition
			}
		case models.SessionCompleted:
			if session.Status != models.SessionInProgress {
				return ErrInvalidStateTransition
			}
		case models.SessionCancelled:
			if session.Status != models.SessionScheduled && session.Status != models.SessionInProgress {
				return ErrInvalidStateTransition
			}
		default:
			return ErrInvalidStatus
		}
		return nil
	}

	if session.IsLearner(actorID) {
		if nextStatus != models.SessionCancelled {
			return ErrForbidden
		}
		if session.Status != models.SessionScheduled {
			return ErrInvalidStateTransition
		}
		return nil
	}

	return ErrForbidden
}
