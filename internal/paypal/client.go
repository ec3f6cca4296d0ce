package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrAuth    = errors.New("paypal: token exchange failed")
	ErrRequest = errors.New("paypal: request rejected")
)

// APIError carries the provider's status and raw body for a rejected call.
type APIError struct {
	Operation string
	Status    int
	Body      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal %s failed: status %d: %s", e.Operation, e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrRequest
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// AccessToken performs a fresh client-credentials exchange on every call.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	config := clientcredentials.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		TokenURL:     c.baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	token, err := config.Token(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuth)
	}
	return token.AccessToken, nil
}

type CreateOrderRequest struct {
	Amount        decimal.Decimal
	Currency      string
	Description   string
	CorrelationID string
	ReturnURL     string
	CancelURL     string
}

type Order struct {
	ID          string
	Status      string
	ApprovalURL string
}

type Capture struct {
	OrderID   string
	CaptureID string
	Status    string
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount      orderAmount `json:"amount"`
	Description string      `json:"description"`
	CustomID    string      `json:"custom_id"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type createOrderBody struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

func (c *Client) CreateOrder(ctx context.Context, accessToken string, req CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount: orderAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
			Description: req.Description,
			CustomID:    req.CorrelationID,
		}},
		ApplicationContext: applicationContext{
			ReturnURL: req.ReturnURL,
			CancelURL: req.CancelURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	payload, err := c.do(ctx, accessToken, "create order", c.baseURL+"/v2/checkout/orders", body)
	if err != nil {
		return nil, err
	}

	order := &Order{
		ID:          gjson.GetBytes(payload, "id").String(),
		Status:      gjson.GetBytes(payload, "status").String(),
		ApprovalURL: gjson.GetBytes(payload, `links.#(rel=="approve").href`).String(),
	}
	if order.ID == "" {
		return nil, &APIError{Operation: "create order", Status: http.StatusOK, Body: "missing order id"}
	}
	return order, nil
}

func (c *Client) CaptureOrder(ctx context.Context, accessToken string, orderID string) (*Capture, error) {
	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.baseURL, url.PathEscape(orderID))
	payload, err := c.do(ctx, accessToken, "capture order", endpoint, nil)
	if err != nil {
		return nil, err
	}

	capture := &Capture{
		OrderID:   gjson.GetBytes(payload, "id").String(),
		Status:    gjson.GetBytes(payload, "status").String(),
		CaptureID: gjson.GetBytes(payload, "purchase_units.0.payments.captures.0.id").String(),
	}
	if capture.CaptureID == "" {
		capture.CaptureID = capture.OrderID
	}
	return capture, nil
}

func (c *Client) do(ctx context.Context, accessToken, operation, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRequest, operation, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{
			Operation: operation,
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}
