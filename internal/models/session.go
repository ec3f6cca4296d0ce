package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

func ParseSessionStatus(value string) (SessionStatus, error) {
	switch status := SessionStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case SessionScheduled, SessionInProgress, SessionCompleted, SessionCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown session status %q", value)
	}
}

type Session struct {
	ID             uuid.UUID     `json:"id"`
	TutorID        uuid.UUID     `json:"tutor_id"`
	TutorUserID    uuid.UUID     `json:"tutor_user_id"`
	LearnerID      uuid.UUID     `json:"learner_id"`
	SubjectID      *uuid.UUID    `json:"subject_id,omitempty"`
	Title          string        `json:"title"`
	Description    *string       `json:"description"`
	ScheduledStart time.Time     `json:"scheduled_start"`
	ScheduledEnd   time.Time     `json:"scheduled_end"`
	ActualStart    *time.Time    `json:"actual_start"`
	ActualEnd      *time.Time    `json:"actual_end"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (s *Session) IsLearner(userID uuid.UUID) bool {
	return s != nil && s.LearnerID == userID
}

func (s *Session) IsTutor(userID uuid.UUID) bool {
	return s != nil && s.TutorUserID == userID
}

func (s *Session) IsParticipant(userID uuid.UUID) bool {
	return s.IsLearner(userID) || s.IsTutor(userID)
}

type SessionDetail struct {
	Session
	Payment *Payment `json:"payment,omitempty"`
}
