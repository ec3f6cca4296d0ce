package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnbridge/tutoring-backend/internal/services"
	"github.com/learnbridge/tutoring-backend/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

type stubCheckoutService struct {
	createResult  *services.CreateOrderResult
	createErr     error
	captureResult *services.CaptureOrderResult
	captureErr    error
	lastCallerID  uuid.UUID
	lastInput     services.CreateOrderInput
	lastOrderID   string
	lastPayerRef  string
	createCalls   int
}

func (s *stubCheckoutService) CreateOrder(_ context.Context, callerID uuid.UUID, input services.CreateOrderInput) (*services.CreateOrderResult, error) {
	s.createCalls++
	s.lastCallerID = callerID
	s.lastInput = input
	return s.createResult, s.createErr
}

func (s *stubCheckoutService) CaptureOrder(_ context.Context, orderID string, payerReferenceID string) (*services.CaptureOrderResult, error) {
	s.lastOrderID = orderID
	s.lastPayerRef = payerReferenceID
	return s.captureResult, s.captureErr
}

func newCheckoutApp(service *stubCheckoutService) *fiber.App {
	app := fiber.New()
	app.All("/functions/v1/paypal-checkout", NewCheckoutHandler(service, testJWTSecret).Handle)
	return app
}

func bearerToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := utils.GenerateToken(userID.String(), "learner@example.com", testJWTSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func decodeErrorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload["error"]
}

func TestCheckoutPreflightReturnsCORSHeaders(t *testing.T) {
	app := newCheckoutApp(&stubCheckoutService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodOptions, "/functions/v1/paypal-checkout", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestCheckoutRejectsOtherMethods(t *testing.T) {
	app := newCheckoutApp(&stubCheckoutService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPut, "/functions/v1/paypal-checkout", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCheckoutCreateOrderRequiresToken(t *testing.T) {
	service := &stubCheckoutService{}
	app := newCheckoutApp(service)

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/paypal-checkout", strings.NewReader(`{"sessionId":"`+uuid.NewString()+`","amount":40}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Authorization required", decodeErrorBody(t, resp))
	assert.Zero(t, service.createCalls)
}

func TestCheckoutCreateOrderReturnsApprovalURL(t *testing.T) {
	callerID := uuid.New()
	sessionID := uuid.New()
	service := &stubCheckoutService{createResult: &services.CreateOrderResult{
		OrderID:     "ORDER-1",
		ApprovalURL: "https://www.sandbox.paypal.com/checkoutnow?token=ORDER-1",
	}}
	app := newCheckoutApp(service)

	body := fmt.Sprintf(`{"sessionId":%q,"amount":"45.50","currency":"eur"}`, sessionID)
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/paypal-checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, callerID))
	req.Header.Set("Origin", "https://app.example.com")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result services.CreateOrderResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "ORDER-1", result.OrderID)
	assert.Equal(t, callerID, service.lastCallerID)
	assert.Equal(t, sessionID, service.lastInput.SessionID)
	assert.Equal(t, "45.5", service.lastInput.Amount.String())
	assert.Equal(t, "eur", service.lastInput.Currency)
	assert.Equal(t, "https://app.example.com", service.lastInput.Origin)
}

func TestCheckoutCreateOrderAcceptsUppercaseSessionID(t *testing.T) {
	sessionID := uuid.New()
	service := &stubCheckoutService{createResult: &services.CreateOrderResult{OrderID: "ORDER-2"}}
	app := newCheckoutApp(service)

	body := fmt.Sprintf(`{"sessionId":%q,"amount":20}`, strings.ToUpper(sessionID.String()))
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/paypal-checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t, uuid.New()))

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, service.lastInput.SessionID)
}

func TestCheckoutCreateOrderRejectsInvalidBody(t *testing.T) {
	service := &stubCheckoutService{}
	app := newCheckoutApp(service)

	for _, body := range []string{`{"amount":10}`, `{"sessionId":"not-a-uuid","amount":10}`, `{"sessionId":"` + uuid.NewString() + `","amount":10,"currency":"dollars"}`} {
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/paypal-checkout", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", bearerToken(t, uuid.New()))

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode, body)
		assert.Equal(t, "Invalid request body", decodeErrorBody(t, resp), body)
	}
	assert.Zero(t, service.createCalls)
}

func TestCheckoutCreateOrderMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: 401", services.ErrUpstreamAuth), "Failed to get PayPal access token"},
		{services.ErrNotFound, "Session not found"},
		{services.ErrForbidden, "Only the session learner can pay for this session"},
		{fmt.Errorf("%w: 422", services.ErrUpstreamRequest), "Failed to create PayPal order"},
		{fmt.Errorf("%w: insert", services.ErrUpstreamQuery), "Failed to store payment record"},
	}

	for _, tc := range cases {
		app := newCheckoutApp(&stubCheckoutService{createErr: tc.err})
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/paypal-checkout", strings.NewReader(`{"sessionId":"`+uuid.NewString()+`","amount":20}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", bearerToken(t, uuid.New()))

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, tc.want, decodeErrorBody(t, resp))
	}
}

func TestCheckoutCaptureOrderSucceeds(t *testing.T) {
	service := &stubCheckoutService{captureResult: &services.CaptureOrderResult{Success: true, CaptureID: "CAP-9"}}
	app := newCheckoutApp(service)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/functions/v1/paypal-checkout?orderId=ORDER-1&paymentId=PAYER-2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result services.CaptureOrderResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "CAP-9", result.CaptureID)
	assert.Equal(t, "ORDER-1", service.lastOrderID)
	assert.Equal(t, "PAYER-2", service.lastPayerRef)
}

func TestCheckoutCaptureOrderFailures(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: orderId is required", services.ErrInvalidInput), "Order ID is required for capture"},
		{fmt.Errorf("%w: 401", services.ErrUpstreamAuth), "Failed to get PayPal access token"},
		{fmt.Errorf("%w: 422", services.ErrUpstreamRequest), "Failed to capture PayPal payment"},
		{errors.New("boom"), "boom"},
	}

	for _, tc := range cases {
		app := newCheckoutApp(&stubCheckoutService{captureErr: tc.err})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/functions/v1/paypal-checkout", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, tc.want, decodeErrorBody(t, resp))
	}
}
