package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/learnbridge/tutoring-backend/internal/models"
)

type CreateMessageInput struct {
	SessionID uuid.UUID
	SenderID  uuid.UUID
	Content   string
	Type      models.MessageType
	FileURL   *string
}

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageWithSenderColumns = `
	m.id, m.session_id, m.sender_id, m.content, m.message_type, m.file_url, m.created_at,
	pr.first_name, pr.last_name, pr.avatar_url, pr.email
`

func scanMessageWithSender(row pgx.Row) (*models.Message, error) {
	var (
		message     models.Message
		messageType string
		sender      models.ProfileSummary
	)
	if err := row.Scan(
		&message.ID,
		&message.SessionID,
		&message.SenderID,
		&message.Content,
		&messageType,
		&message.FileURL,
		&message.CreatedAt,
		&sender.FirstName,
		&sender.LastName,
		&sender.AvatarURL,
		&sender.Email,
	); err != nil {
		return nil, err
	}

	parsed, err := models.ParseMessageType(messageType)
	if err != nil {
		return nil, err
	}
	message.Type = parsed
	message.Sender = &sender
	return &message, nil
}

func (r *MessageRepository) Create(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	query := `
		INSERT INTO messages (session_id, sender_id, content, message_type, file_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, session_id, sender_id, content, message_type, file_url, created_at
	`

	var (
		message     models.Message
		messageType string
	)
	err := r.db.QueryRow(
		ctx,
		query,
		input.SessionID,
		input.SenderID,
		input.Content,
		string(input.Type),
		input.FileURL,
	).Scan(
		&message.ID,
		&message.SessionID,
		&message.SenderID,
		&message.Content,
		&messageType,
		&message.FileURL,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	message.Type, err = models.ParseMessageType(messageType)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListBySession returns the full history in creation order. Rows sharing a
// timestamp come back in whatever order the planner picks.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT ` + messageWithSenderColumns + `
		FROM messages m
		LEFT JOIN profiles pr ON pr.user_id = m.sender_id
		WHERE m.session_id = $1
		ORDER BY m.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessageWithSender(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *MessageRepository) GetWithSender(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	query := `
		SELECT ` + messageWithSenderColumns + `
		FROM messages m
		LEFT JOIN profiles pr ON pr.user_id = m.sender_id
		WHERE m.id = $1
	`
	return scanMessageWithSender(r.db.QueryRow(ctx, query, messageID))
}
