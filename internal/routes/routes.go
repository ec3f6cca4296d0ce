package routes

import (
	"fmt"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/learnbridge/tutoring-backend/internal/config"
	"github.com/learnbridge/tutoring-backend/internal/handlers"
	"github.com/learnbridge/tutoring-backend/internal/middleware"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/paypal"
	"github.com/learnbridge/tutoring-backend/internal/realtime"
	"github.com/learnbridge/tutoring-backend/internal/repository"
	"github.com/learnbridge/tutoring-backend/internal/services"
	"go.uber.org/zap"
)

// CheckoutPath is the single endpoint of the payment function.
const CheckoutPath = "/functions/v1/paypal-checkout"

// RegisterRoutes wires repositories, services and handlers onto the app. The
// returned cleanup releases the realtime backend.
func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, log *zap.Logger) (func(), error) {
	sessionRepo := repository.NewSessionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	fileUploadRepo := repository.NewFileUploadRepository(db)
	tutorRepo := repository.NewTutorRepository(db)
	roleRepo := repository.NewRoleRepository(db)

	var feed interface {
		realtime.ChangeFeed
		Close() error
	}
	switch cfg.RealtimeBackend {
	case "redis":
		redisFeed, err := realtime.NewRedisFeed(cfg.RedisURL, log.Named("realtime"))
		if err != nil {
			return func() {}, fmt.Errorf("connect realtime redis: %w", err)
		}
		feed = redisFeed
	default:
		// LISTEN runs on a dedicated connection outside the pool.
		feed = realtime.NewPostgresFeed(realtime.DialPostgres(cfg.DBUrl), log.Named("realtime"))
	}
	cleanup := func() {
		if err := feed.Close(); err != nil {
			log.Warn("realtime feed close failed", zap.Error(err))
		}
	}

	var storageService services.StorageService
	if cfg.StorageEnabled() {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	} else {
		log.Info("file sharing disabled: storage is not configured")
	}

	gateway := paypal.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
	checkoutService := services.NewCheckoutService(gateway, sessionRepo, paymentRepo, cfg.AppURL, log.Named("checkout"))
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, cfg.JWTSecret)

	chatService := services.NewChatService(sessionRepo, messageRepo, fileUploadRepo, feed, storageService, log.Named("chat"))
	chatHandler := handlers.NewChatHandler(chatService, cfg.JWTSecret, log.Named("chat"))

	sessionService := services.NewSessionService(sessionRepo, paymentRepo)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	paymentService := services.NewPaymentService(paymentRepo, tutorRepo)
	paymentHandler := handlers.NewPaymentHandler(paymentService, checkoutService)

	tutorService := services.NewTutorService(db, tutorRepo, roleRepo)
	tutorHandler := handlers.NewTutorHandler(tutorService)
	adminHandler := handlers.NewAdminHandler(tutorService)

	// The checkout function answers its own preflight, so it is mounted
	// ahead of the shared CORS middleware.
	app.All(CheckoutPath, checkoutHandler.Handle)

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/v1/tutors", tutorHandler.ListTutors)
	// The websocket authenticates from ?token, so it sits outside the bearer group.
	api.Get("/v1/sessions/:id/ws", chatHandler.WebSocketAuth, websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	tutors := authProtected.Group("/tutors")
	tutors.Get("/application", tutorHandler.GetApplication)
	tutors.Post("/application", tutorHandler.SubmitApplication)

	sessions := authProtected.Group("/sessions")
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Put("/:id/status", sessionHandler.UpdateStatus)
	sessions.Get("/:id/messages", chatHandler.GetMessages)
	sessions.Post("/:id/messages", chatHandler.SendMessage)
	sessions.Post("/:id/messages/files", chatHandler.ShareFile)

	payments := authProtected.Group("/payments")
	payments.Get("", paymentHandler.ListPayments)
	payments.Get("/status", paymentHandler.PaymentStatus)
	authProtected.Get("/earnings", paymentHandler.Earnings)

	admin := authProtected.Group("/admin", middleware.RequireRole(roleRepo, models.RoleAdmin))
	admin.Get("/applications", adminHandler.ListApplications)
	admin.Put("/applications/:id", adminHandler.ReviewApplication)

	return cleanup, nil
}
