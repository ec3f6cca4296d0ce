package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
)

type paymentLedger interface {
	ListByPayer(ctx context.Context, payerID uuid.UUID) ([]models.Payment, error)
	EarningsForPayee(ctx context.Context, payeeID uuid.UUID, now time.Time) (*models.EarningsSummary, error)
}

type tutorReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Tutor, error)
}

type PaymentService struct {
	payments paymentLedger
	tutors   tutorReader
	now      func() time.Time
}

func NewPaymentService(payments paymentLedger, tutors tutorReader) *PaymentService {
	return &PaymentService{payments: payments, tutors: tutors, now: time.Now}
}

func (s *PaymentService) ListPayerPayments(ctx context.Context, callerID uuid.UUID) ([]models.Payment, error) {
	payments, err := s.payments.ListByPayer(ctx, callerID)
	if err != nil {
		return nil, storeError(err, "payments")
	}
	return payments, nil
}

// Earnings summarises payments received by the caller's tutor record.
func (s *PaymentService) Earnings(ctx context.Context, callerID uuid.UUID) (*models.EarningsSummary, error) {
	tutor, err := s.tutors.GetByUserID(ctx, callerID)
	if err != nil {
		return nil, storeError(err, "tutor profile")
	}

	summary, err := s.payments.EarningsForPayee(ctx, tutor.ID, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "earnings")
	}
	return summary, nil
}
