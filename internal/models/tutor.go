package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TutorStatus string

const (
	TutorPending   TutorStatus = "pending"
	TutorApproved  TutorStatus = "approved"
	TutorRejected  TutorStatus = "rejected"
	TutorSuspended TutorStatus = "suspended"
)

func ParseTutorStatus(value string) (TutorStatus, error) {
	switch status := TutorStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case TutorPending, TutorApproved, TutorRejected, TutorSuspended:
		return status, nil
	default:
		return "", fmt.Errorf("unknown tutor status %q", value)
	}
}

type Role string

const (
	RoleLearner Role = "learner"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

type Tutor struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	Status          TutorStatus         `json:"status"`
	Education       *string             `json:"education"`
	ExperienceYears *int                `json:"experience_years"`
	HourlyRate      decimal.NullDecimal `json:"hourly_rate"`
	Languages       []string            `json:"languages"`
	Certifications  []string            `json:"certifications"`
	ApprovedAt      *time.Time          `json:"approved_at"`
	ApprovedBy      *uuid.UUID          `json:"approved_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Subjects        []TutorSubject      `json:"subjects"`
	Profile         *ProfileSummary     `json:"profile,omitempty"`
}

type TutorSubject struct {
	SubjectID        uuid.UUID `json:"subject_id"`
	ProficiencyLevel *string   `json:"proficiency_level"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
