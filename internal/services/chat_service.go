package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/realtime"
	"github.com/learnbridge/tutoring-backend/internal/repository"
	"go.uber.org/zap"
)

const (
	MaxSharedFileSize        = 10 << 20
	SessionMaterialPurpose   = "session_material"
	subscriptionBufferLength = 16
)

var imagePathPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

type messageStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
	GetWithSender(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
	Create(ctx context.Context, input repository.CreateMessageInput) (*models.Message, error)
}

type uploadRecorder interface {
	Create(ctx context.Context, input repository.CreateFileUploadInput) (*models.FileUpload, error)
}

type ChatService struct {
	sessions sessionReader
	messages messageStore
	uploads  uploadRecorder
	feed     realtime.ChangeFeed
	storage  StorageService
	log      *zap.Logger
	now      func() time.Time
}

func NewChatService(
	sessions sessionReader,
	messages messageStore,
	uploads uploadRecorder,
	feed realtime.ChangeFeed,
	storage StorageService,
	log *zap.Logger,
) *ChatService {
	return &ChatService{
		sessions: sessions,
		messages: messages,
		uploads:  uploads,
		feed:     feed,
		storage:  storage,
		log:      log,
		now:      time.Now,
	}
}

type SendMessageInput struct {
	SessionID uuid.UUID
	Content   string
	Type      string
	FileURL   *string
}

type SharedFile struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// AuthorizeViewer returns the session when the caller is its learner or tutor.
func (s *ChatService) AuthorizeViewer(ctx context.Context, callerID uuid.UUID, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "session "+sessionID.String())
	}
	if !session.IsParticipant(callerID) {
		return nil, ErrForbidden
	}
	return session, nil
}

func (s *ChatService) LoadHistory(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	messages, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %v", ErrUpstreamQuery, err)
	}
	return messages, nil
}

// Subscribe starts a producer that turns insert events for the session into
// fully joined messages, in the order the feed delivers them.
func (s *ChatService) Subscribe(ctx context.Context, sessionID uuid.UUID) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	events, err := s.feed.Subscribe(subCtx, sessionID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrUpstreamQuery, err)
	}

	sub := &Subscription{
		sessionID: sessionID,
		messages:  make(chan models.Message, subscriptionBufferLength),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go sub.produce(subCtx, events, s.messages, s.log)
	return sub, nil
}

func (s *ChatService) SendMessage(ctx context.Context, callerID uuid.UUID, input SendMessageInput) (*models.Message, error) {
	messageType := models.MessageText
	if strings.TrimSpace(input.Type) != "" {
		parsed, err := models.ParseMessageType(input.Type)
		if err != nil {
			return nil, invalidInput(err.Error())
		}
		messageType = parsed
	}

	content := strings.TrimSpace(input.Content)
	if messageType == models.MessageText && content == "" {
		return nil, invalidInput("message content is required")
	}
	if messageType != models.MessageText && (input.FileURL == nil || strings.TrimSpace(*input.FileURL) == "") {
		return nil, invalidInput("file_url is required for file messages")
	}

	if _, err := s.AuthorizeViewer(ctx, callerID, input.SessionID); err != nil {
		return nil, err
	}

	message, err := s.messages.Create(ctx, repository.CreateMessageInput{
		SessionID: input.SessionID,
		SenderID:  callerID,
		Content:   content,
		Type:      messageType,
		FileURL:   input.FileURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: send message: %v", ErrUpstreamQuery, err)
	}

	if notifier, ok := s.feed.(realtime.Notifier); ok {
		event := realtime.InsertEvent{MessageID: message.ID, SessionID: message.SessionID}
		if err := notifier.Publish(ctx, event); err != nil {
			s.log.Warn("realtime publish failed",
				zap.String("message_id", message.ID.String()),
				zap.String("session_id", message.SessionID.String()),
				zap.Error(err),
			)
		}
	}

	return message, nil
}

// ShareFile uploads session material and posts a file or image message
// pointing at it.
func (s *ChatService) ShareFile(ctx context.Context, callerID uuid.UUID, sessionID uuid.UUID, file SharedFile) (*models.Message, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", ErrConfiguration)
	}
	if file.Size <= 0 || file.Size > MaxSharedFileSize {
		return nil, invalidInput("file must be between 1 byte and 10MB")
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(file.Name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return nil, invalidInput("file name is required")
	}
	if !IsAllowedSharedFile(name, file.ContentType) {
		return nil, invalidInput("file type not allowed")
	}

	if _, err := s.AuthorizeViewer(ctx, callerID, sessionID); err != nil {
		return nil, err
	}

	folder := sessionID.String()
	objectName := fmt.Sprintf("%d-%s", s.now().UnixMilli(), name)
	fileURL, err := s.storage.UploadFile(ctx, file.Body, file.ContentType, objectName, folder)
	if err != nil {
		return nil, fmt.Errorf("%w: upload file: %v", ErrUpstreamQuery, err)
	}

	objectPath := folder + "/" + objectName
	if _, err := s.uploads.Create(ctx, repository.CreateFileUploadInput{
		UserID:        callerID,
		FileName:      name,
		FilePath:      objectPath,
		FileSize:      file.Size,
		FileType:      file.ContentType,
		UploadPurpose: SessionMaterialPurpose,
	}); err != nil {
		s.log.Error("file upload record failed", zap.String("file_path", objectPath), zap.Error(err))
	}

	messageType := ClassifySharedFile(objectPath)
	message, err := s.SendMessage(ctx, callerID, SendMessageInput{
		SessionID: sessionID,
		Content:   "Shared a " + string(messageType),
		Type:      string(messageType),
		FileURL:   &fileURL,
	})
	if err != nil {
		if deleteErr := s.storage.DeleteFile(context.WithoutCancel(ctx), fileURL); deleteErr != nil {
			s.log.Warn("orphaned upload cleanup failed", zap.String("file_url", fileURL), zap.Error(deleteErr))
		}
		return nil, err
	}
	return message, nil
}

// ClassifySharedFile treats a path as an image when it mentions "image" or
// carries a common image extension.
func ClassifySharedFile(objectPath string) models.MessageType {
	if strings.Contains(objectPath, "image") || imagePathPattern.MatchString(objectPath) {
		return models.MessageImage
	}
	return models.MessageFile
}

func IsAllowedSharedFile(name string, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return true
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf", ".doc", ".docx", ".txt":
		return true
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}

// Subscription is the consumer side of a live session feed. Messages is
// closed once the feed ends or Close is called.
type Subscription struct {
	sessionID uuid.UUID
	messages  chan models.Message
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *Subscription) SessionID() uuid.UUID {
	return s.sessionID
}

func (s *Subscription) Messages() <-chan models.Message {
	return s.messages
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Subscription) produce(
	ctx context.Context,
	events <-chan realtime.InsertEvent,
	store messageStore,
	log *zap.Logger,
) {
	defer close(s.done)
	defer close(s.messages)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			message, err := store.GetWithSender(ctx, event.MessageID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("realtime message fetch failed, dropping event",
					zap.String("message_id", event.MessageID.String()),
					zap.String("session_id", event.SessionID.String()),
					zap.Error(err),
				)
				continue
			}
			select {
			case s.messages <- *message:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Timeline is the in-memory ordered view of one session's conversation:
// history first, then live messages appended in delivery order.
type Timeline struct {
	mu       sync.RWMutex
	messages []models.Message
}

func NewTimeline(history []models.Message) *Timeline {
	messages := make([]models.Message, len(history))
	copy(messages, history)
	return &Timeline{messages: messages}
}

func (t *Timeline) Append(message models.Message) {
	t.mu.Lock()
	t.messages = append(t.messages, message)
	t.mu.Unlock()
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Timeline) Snapshot() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot := make([]models.Message, len(t.messages))
	copy(snapshot, t.messages)
	return snapshot
}

// Follow drains the subscription until it closes, appending each message
// before handing it to onAppend.
func (t *Timeline) Follow(sub *Subscription, onAppend func(models.Message)) {
	for message := range sub.Messages() {
		t.Append(message)
		if onAppend != nil {
			onAppend(message)
		}
	}
}
