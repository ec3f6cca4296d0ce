package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/services"
	chatws "github.com/learnbridge/tutoring-backend/internal/websocket"
	"github.com/learnbridge/tutoring-backend/pkg/utils"
	"go.uber.org/zap"
)

type chatApplicationService interface {
	AuthorizeViewer(ctx context.Context, callerID uuid.UUID, sessionID uuid.UUID) (*models.Session, error)
	LoadHistory(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
	Subscribe(ctx context.Context, sessionID uuid.UUID) (*services.Subscription, error)
	SendMessage(ctx context.Context, callerID uuid.UUID, input services.SendMessageInput) (*models.Message, error)
	ShareFile(ctx context.Context, callerID uuid.UUID, sessionID uuid.UUID, file services.SharedFile) (*models.Message, error)
}

type ChatHandler struct {
	service   chatApplicationService
	jwtSecret string
	log       *zap.Logger
}

type sendMessageRequest struct {
	Content     string  `json:"content" validate:"max=4000"`
	MessageType string  `json:"message_type" validate:"omitempty,oneof=text file image"`
	FileURL     *string `json:"file_url" validate:"omitempty,url"`
}

func NewChatHandler(service chatApplicationService, jwtSecret string, log *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service:   service,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	if _, err := h.service.AuthorizeViewer(c.Context(), userID, sessionID); err != nil {
		return mapChatError(c, err)
	}

	messages, err := h.service.LoadHistory(c.Context(), sessionID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := requestValidator().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendMessage(c.Context(), userID, services.SendMessageInput{
		SessionID: sessionID,
		Content:   req.Content,
		Type:      req.MessageType,
		FileURL:   req.FileURL,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

// ShareFile accepts a multipart "file" field and posts it to the session chat.
func (h *ChatHandler) ShareFile(c *fiber.Ctx) error {
	userID, err := parseCallerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	if fileHeader.Size > services.MaxSharedFileSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "File exceeds 10MB"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unable to read file"})
	}
	defer file.Close()

	message, err := h.service.ShareFile(c.Context(), userID, sessionID, services.SharedFile{
		Name:        fileHeader.Filename,
		Size:        fileHeader.Size,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

// WebSocketAuth authenticates the upgrade request and checks that the caller
// takes part in the session before the connection is accepted.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}
	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	if _, err := h.service.AuthorizeViewer(c.Context(), userID, sessionID); err != nil {
		return mapChatError(c, err)
	}

	c.Locals("user_id", userID.String())
	c.Locals("session_id", sessionID.String())
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, err := uuid.Parse(localString(conn.Locals("user_id")))
	if err != nil {
		_ = conn.Close()
		return
	}
	sessionID, err := uuid.Parse(localString(conn.Locals("session_id")))
	if err != nil {
		_ = conn.Close()
		return
	}

	chatws.NewClient(conn, h.service, userID, sessionID, h.log).Serve(context.Background())
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func localString(value interface{}) string {
	s, _ := value.(string)
	return s
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, services.ErrConfiguration):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File sharing is not available"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
