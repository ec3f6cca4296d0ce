package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
)

type CreateFileUploadInput struct {
	UserID        uuid.UUID
	FileName      string
	FilePath      string
	FileSize      int64
	FileType      string
	UploadPurpose string
}

type FileUploadRepository struct {
	db DBTX
}

func NewFileUploadRepository(db DBTX) *FileUploadRepository {
	return &FileUploadRepository{db: db}
}

func (r *FileUploadRepository) Create(ctx context.Context, input CreateFileUploadInput) (*models.FileUpload, error) {
	query := `
		INSERT INTO file_uploads (user_id, file_name, file_path, file_size, file_type, upload_purpose)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, file_name, file_path, file_size, file_type, upload_purpose, created_at
	`

	var upload models.FileUpload
	err := r.db.QueryRow(
		ctx,
		query,
		input.UserID,
		input.FileName,
		input.FilePath,
		input.FileSize,
		input.FileType,
		input.UploadPurpose,
	).Scan(
		&upload.ID,
		&upload.UserID,
		&upload.FileName,
		&upload.FilePath,
		&upload.FileSize,
		&upload.FileType,
		&upload.UploadPurpose,
		&upload.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &upload, nil
}
