package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	tokenCalls   atomic.Int32
	captureCalls atomic.Int32
	lastOrder    map[string]any
	rejectToken  bool
	rejectOrder  bool
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if f.rejectToken || !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_ = r.ParseForm()
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"A21","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer A21", r.Header.Get("Authorization"))
		if f.rejectOrder {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY"}`))
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &f.lastOrder)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"id": "O-123",
			"status": "CREATED",
			"links": [
				{"href": "https://api/self", "rel": "self"},
				{"href": "https://provider/approve/O-123", "rel": "approve"}
			]
		}`))
	})
	mux.HandleFunc("/v2/checkout/orders/O-123/capture", func(w http.ResponseWriter, r *http.Request) {
		f.captureCalls.Add(1)
		_, _ = w.Write([]byte(`{
			"id": "O-123",
			"status": "COMPLETED",
			"purchase_units": [{"payments": {"captures": [{"id": "C-77", "status": "COMPLETED"}]}}]
		}`))
	})
	mux.HandleFunc("/v2/checkout/orders/O-404/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND"}`))
	})
	mux.HandleFunc("/v2/checkout/orders/O-bare/capture", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "O-bare", "status": "COMPLETED"}`))
	})
	return mux
}

func newTestClient(t *testing.T, provider *fakeProvider) *Client {
	server := httptest.NewServer(provider.handler(t))
	t.Cleanup(server.Close)
	return NewClient(server.URL, "client", "secret").WithHTTPClient(server.Client())
}

func TestAccessTokenFetchesFreshTokenEachCall(t *testing.T) {
	provider := &fakeProvider{}
	client := newTestClient(t, provider)

	for i := 0; i < 2; i++ {
		token, err := client.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "A21", token)
	}
	assert.EqualValues(t, 2, provider.tokenCalls.Load())
}

func TestAccessTokenFailureIsAuthError(t *testing.T) {
	client := newTestClient(t, &fakeProvider{rejectToken: true})

	_, err := client.AccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestCreateOrderBuildsCheckoutPayload(t *testing.T) {
	provider := &fakeProvider{}
	client := newTestClient(t, provider)

	order, err := client.CreateOrder(context.Background(), "A21", CreateOrderRequest{
		Amount:        decimal.RequireFromString("45"),
		Currency:      "USD",
		Description:   "Tutoring Session: Algebra",
		CorrelationID: "s1",
		ReturnURL:     "https://app/payment-success",
		CancelURL:     "https://app/payment-cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, "O-123", order.ID)
	assert.Equal(t, "https://provider/approve/O-123", order.ApprovalURL)

	assert.Equal(t, "CAPTURE", provider.lastOrder["intent"])
	units := provider.lastOrder["purchase_units"].([]any)
	require.Len(t, units, 1)
	unit := units[0].(map[string]any)
	assert.Equal(t, "s1", unit["custom_id"])
	assert.Equal(t, "Tutoring Session: Algebra", unit["description"])
	amount := unit["amount"].(map[string]any)
	assert.Equal(t, "45.00", amount["value"])
	assert.Equal(t, "USD", amount["currency_code"])
	appContext := provider.lastOrder["application_context"].(map[string]any)
	assert.Equal(t, "https://app/payment-success", appContext["return_url"])
	assert.Equal(t, "https://app/payment-cancelled", appContext["cancel_url"])
}

func TestCreateOrderRejectedIsRequestError(t *testing.T) {
	client := newTestClient(t, &fakeProvider{rejectOrder: true})

	_, err := client.CreateOrder(context.Background(), "A21", CreateOrderRequest{
		Amount:   decimal.NewFromInt(10),
		Currency: "USD",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequest))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
}

func TestCaptureOrderReadsCaptureID(t *testing.T) {
	client := newTestClient(t, &fakeProvider{})

	capture, err := client.CaptureOrder(context.Background(), "A21", "O-123")
	require.NoError(t, err)
	assert.Equal(t, "C-77", capture.CaptureID)
	assert.Equal(t, "COMPLETED", capture.Status)
}

func TestCaptureOrderFallsBackToOrderID(t *testing.T) {
	client := newTestClient(t, &fakeProvider{})

	capture, err := client.CaptureOrder(context.Background(), "A21", "O-bare")
	require.NoError(t, err)
	assert.Equal(t, "O-bare", capture.CaptureID)
}

func TestCaptureOrderRejected(t *testing.T) {
	client := newTestClient(t, &fakeProvider{})

	_, err := client.CaptureOrder(context.Background(), "A21", "O-404")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequest))
}

func TestCaptureIsNotDeduplicated(t *testing.T) {
	provider := &fakeProvider{}
	client := newTestClient(t, provider)

	for i := 0; i < 2; i++ {
		_, err := client.CaptureOrder(context.Background(), "A21", "O-123")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, provider.captureCalls.Load())
}
