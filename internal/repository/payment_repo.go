package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/shopspring/decimal"
)

type CreatePaymentInput struct {
	SessionID       uuid.UUID
	PayerID         uuid.UUID
	PayeeID         uuid.UUID
	Amount          decimal.Decimal
	Currency        string
	ProviderOrderID string
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	p.id, p.session_id, p.payer_id, p.payee_id, p.amount, p.currency, p.status,
	p.paypal_order_id, p.paypal_payment_id, p.processed_at, p.created_at
`

func scanPayment(row pgx.Row, extra ...any) (*models.Payment, error) {
	var (
		payment models.Payment
		status  string
	)
	dest := []any{
		&payment.ID,
		&payment.SessionID,
		&payment.PayerID,
		&payment.PayeeID,
		&payment.Amount,
		&payment.Currency,
		&status,
		&payment.ProviderOrderID,
		&payment.PayerReferenceID,
		&payment.ProcessedAt,
		&payment.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	parsed, err := models.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	payment.Status = parsed
	return &payment, nil
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := `
		INSERT INTO payments AS p (session_id, payer_id, payee_id, amount, currency, status, paypal_order_id)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING ` + paymentColumns

	return scanPayment(r.db.QueryRow(
		ctx,
		query,
		input.SessionID,
		input.PayerID,
		input.PayeeID,
		input.Amount,
		input.Currency,
		input.ProviderOrderID,
	))
}

// MarkCompletedByOrderID settles every row carrying the provider order id and
// reports how many rows changed.
func (r *PaymentRepository) MarkCompletedByOrderID(
	ctx context.Context,
	orderID string,
	payerReferenceID string,
	processedAt time.Time,
) (int64, error) {
	var payerReference *string
	if payerReferenceID != "" {
		payerReference = &payerReferenceID
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = 'completed', paypal_payment_id = $2, processed_at = $3
		WHERE paypal_order_id = $1
	`, orderID, payerReference, processedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments p
		WHERE p.paypal_order_id = $1
		ORDER BY p.created_at DESC
		LIMIT 1
	`
	return scanPayment(r.db.QueryRow(ctx, query, orderID))
}

func (r *PaymentRepository) CountBySessionID(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE session_id = $1`, sessionID).Scan(&count)
	return count, err
}

func (r *PaymentRepository) ListByPayer(ctx context.Context, payerID uuid.UUID) ([]models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `, ts.title
		FROM payments p
		JOIN tutoring_sessions ts ON ts.id = p.session_id
		WHERE p.payer_id = $1
		ORDER BY p.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, payerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]models.Payment, 0)
	for rows.Next() {
		var title string
		payment, err := scanPayment(rows, &title)
		if err != nil {
			return nil, err
		}
		payment.SessionTitle = title
		payments = append(payments, *payment)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) ListBySessionIDs(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]models.Payment, error) {
	payments := make(map[uuid.UUID]models.Payment, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return payments, nil
	}

	query := `
		SELECT DISTINCT ON (p.session_id) ` + paymentColumns + `
		FROM payments p
		WHERE p.session_id = ANY($1)
		ORDER BY p.session_id, p.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments[payment.SessionID] = *payment
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

// EarningsForPayee aggregates a tutor's payments. Completed payments are dated
// by processed_at, falling back to created_at.
func (r *PaymentRepository) EarningsForPayee(
	ctx context.Context,
	payeeID uuid.UUID,
	now time.Time,
) (*models.EarningsSummary, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0),
			COALESCE(SUM(amount) FILTER (
				WHERE status = 'completed'
				  AND date_trunc('month', COALESCE(processed_at, created_at)) = date_trunc('month', $2::timestamptz)
			), 0),
			COALESCE(SUM(amount) FILTER (
				WHERE status = 'completed'
				  AND date_trunc('year', COALESCE(processed_at, created_at)) = date_trunc('year', $2::timestamptz)
			), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0),
			COUNT(*) FILTER (WHERE status = 'completed')
		FROM payments
		WHERE payee_id = $1
	`

	var summary models.EarningsSummary
	if err := r.db.QueryRow(ctx, query, payeeID, now).Scan(
		&summary.Total,
		&summary.ThisMonth,
		&summary.ThisYear,
		&summary.Pending,
		&summary.CompletedCount,
	); err != nil {
		return nil, err
	}

	summary.Average = decimal.Zero
	if summary.CompletedCount > 0 {
		summary.Average = summary.Total.Div(decimal.NewFromInt(int64(summary.CompletedCount))).Round(2)
	}
	return &summary, nil
}
