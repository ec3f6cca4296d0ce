package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/models"
	"github.com/learnbridge/tutoring-backend/internal/services"
	"github.com/shopspring/decimal"
)

type stubSessionService struct {
	listResult         []models.SessionDetail
	listErr            error
	getResult          *models.SessionDetail
	getErr             error
	updateStatusResult *models.SessionDetail
	updateStatusErr    error
	lastActorID        uuid.UUID
	lastRole           string
	lastStatus         string
	lastSessionID      uuid.UUID
}

func (s *stubSessionService) ListSessions(_ context.Context, actorID uuid.UUID, role string, status string) ([]models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastStatus = status
	return s.listResult, s.listErr
}

func (s *stubSessionService) GetSession(_ context.Context, actorID uuid.UUID, sessionID uuid.UUID) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	return s.getResult, s.getErr
}

func (s *stubSessionService) UpdateStatus(_ context.Context, actorID uuid.UUID, sessionID uuid.UUID, requestedStatus string) (*models.SessionDetail, error) {
	s.lastActorID = actorID
	s.lastSessionID = sessionID
	s.lastStatus = requestedStatus
	return s.updateStatusResult, s.updateStatusErr
}

func newSessionApp(service *stubSessionService, userID uuid.UUID) *fiber.App {
	handler := NewSessionHandler(service)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID.String())
		return c.Next()
	})
	app.Get("/api/v1/sessions", handler.ListSessions)
	app.Get("/api/v1/sessions/:id", handler.GetSession)
	app.Put("/api/v1/sessions/:id/status", handler.UpdateStatus)
	return app
}

func TestListSessionsForwardsRoleAndStatus(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	service := &stubSessionService{
		listResult: []models.SessionDetail{{
			Session: models.Session{
				ID:             sessionID,
				TutorUserID:    userID,
				LearnerID:      uuid.New(),
				Title:          "Calculus review",
				ScheduledStart: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
				ScheduledEnd:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
				Status:         models.SessionScheduled,
			},
			Payment: &models.Payment{ID: uuid.New(), SessionID: sessionID, Amount: decimal.NewFromInt(40), Status: models.PaymentCompleted},
		}},
	}
	app := newSessionApp(service, userID)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sessions?role=tutor&status=scheduled", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != userID || service.lastRole != "tutor" || service.lastStatus != "scheduled" {
		t.Fatalf("unexpected forwarded query: %s %q %q", service.lastActorID, service.lastRole, service.lastStatus)
	}

	var body struct {
		Sessions []models.SessionDetail `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Sessions) != 1 || body.Sessions[0].Payment == nil || body.Sessions[0].Payment.Status != models.PaymentCompleted {
		t.Fatalf("unexpected sessions: %+v", body.Sessions)
	}
}

func TestListSessionsRejectsUnknownStatus(t *testing.T) {
	app := newSessionApp(&stubSessionService{listErr: services.ErrInvalidStatus}, uuid.New())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sessions?status=archived", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListSessionsRequiresCaller(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/sessions", NewSessionHandler(&stubSessionService{}).ListSessions)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGetSessionErrors(t *testing.T) {
	cases := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"bad id", "/api/v1/sessions/not-a-uuid", nil, http.StatusBadRequest},
		{"missing", "/api/v1/sessions/" + uuid.NewString(), fmt.Errorf("%w: session", services.ErrNotFound), http.StatusNotFound},
		{"outsider", "/api/v1/sessions/" + uuid.NewString(), services.ErrForbidden, http.StatusForbidden},
		{"store", "/api/v1/sessions/" + uuid.NewString(), fmt.Errorf("%w: timeout", services.ErrUpstreamQuery), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		app := newSessionApp(&stubSessionService{getErr: tc.err}, uuid.New())

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
		if err != nil {
			t.Fatalf("%s: app.Test: %v", tc.name, err)
		}
		resp.Body.Close()

		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

func TestUpdateSessionStatusReturnsUpdatedSession(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	service := &stubSessionService{
		updateStatusResult: &models.SessionDetail{Session: models.Session{ID: sessionID, Status: models.SessionInProgress}},
	}
	app := newSessionApp(service, userID)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+sessionID.String()+"/status", strings.NewReader(`{"status":"start"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSessionID != sessionID || service.lastStatus != "start" {
		t.Fatalf("unexpected forwarded update: %s %q", service.lastSessionID, service.lastStatus)
	}
}

func TestUpdateSessionStatusRequiresStatus(t *testing.T) {
	service := &stubSessionService{}
	app := newSessionApp(service, uuid.New())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+uuid.NewString()+"/status", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if service.lastSessionID != uuid.Nil {
		t.Fatalf("service should not be called without a status")
	}
}

func TestUpdateSessionStatusRejectsInvalidTransition(t *testing.T) {
	service := &stubSessionService{updateStatusErr: fmt.Errorf("%w: completed to scheduled", services.ErrInvalidStateTransition)}
	app := newSessionApp(service, uuid.New())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"cancel"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}
