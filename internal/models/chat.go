package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageImage MessageType = "image"
)

func ParseMessageType(value string) (MessageType, error) {
	switch messageType := MessageType(strings.ToLower(strings.TrimSpace(value))); messageType {
	case MessageText, MessageFile, MessageImage:
		return messageType, nil
	default:
		return "", fmt.Errorf("unknown message type %q", value)
	}
}

type ProfileSummary struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	AvatarURL *string `json:"avatar_url"`
	Email     *string `json:"email"`
}

type Message struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	SenderID  uuid.UUID       `json:"sender_id"`
	Content   string          `json:"content"`
	Type      MessageType     `json:"message_type"`
	FileURL   *string         `json:"file_url"`
	CreatedAt time.Time       `json:"created_at"`
	Sender    *ProfileSummary `json:"sender,omitempty"`
}

type FileUpload struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	FileSize      int64     `json:"file_size"`
	FileType      string    `json:"file_type"`
	UploadPurpose string    `json:"upload_purpose"`
	CreatedAt     time.Time `json:"created_at"`
}
