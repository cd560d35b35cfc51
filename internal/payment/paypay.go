// Package payment integrates with the PayPay Open Payment API for
// verifying cashless payments. Orders carry the merchant payment id in
// their order number; staff trigger a details lookup to confirm.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// StatusCompleted is the PayPay-side state that marks a payment settled.
const StatusCompleted = "COMPLETED"

// tokenSlack refreshes the cached token this long before it actually
// expires so in-flight requests never race the cutoff.
const tokenSlack = 60 * time.Second

// PayPayClient calls the PayPay API with a cached OAuth access token.
type PayPayClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPayClient creates a client for the given API base (production or
// the stg sandbox).
func NewPayPayClient(baseURL, apiKey, apiSecret string) *PayPayClient {
	return &PayPayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// PaymentDetails is the subset of the PayPay payment object we act on.
type PaymentDetails struct {
	MerchantPaymentID string
	Status            string
	Amount            int64
	Currency          string
	PaidAt            time.Time
}

// Completed reports whether PayPay considers the payment settled.
func (d PaymentDetails) Completed() bool {
	return d.Status == StatusCompleted
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type detailsResponse struct {
	ResultInfo struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"resultInfo"`
	Data struct {
		MerchantPaymentID string `json:"merchantPaymentId"`
		Status            string `json:"status"`
		AcceptedAt        int64  `json:"acceptedAt"`
		Amount            struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"amount"`
	} `json:"data"`
}

// GetPaymentDetails fetches the payment identified by merchantPaymentID.
func (c *PayPayClient) GetPaymentDetails(ctx context.Context, merchantPaymentID string) (PaymentDetails, error) {
	token, err := c.accessTokenLocked(ctx)
	if err != nil {
		return PaymentDetails{}, err
	}

	endpoint := fmt.Sprintf("%s/v2/codes/payments/%s", c.baseURL, url.PathEscape(merchantPaymentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("build details request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("get payment details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return PaymentDetails{}, fmt.Errorf("get payment details: status %d: %s", resp.StatusCode, detail)
	}

	var body detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PaymentDetails{}, fmt.Errorf("decode payment details: %w", err)
	}

	d := PaymentDetails{
		MerchantPaymentID: body.Data.MerchantPaymentID,
		Status:            body.Data.Status,
		Amount:            body.Data.Amount.Amount,
		Currency:          body.Data.Amount.Currency,
	}
	if body.Data.AcceptedAt > 0 {
		d.PaidAt = time.Unix(body.Data.AcceptedAt, 0)
	}
	return d, nil
}

// accessTokenLocked returns the cached token, refreshing it behind the
// mutex when missing or close to expiry. Holding the lock across the
// refresh means concurrent callers wait instead of stampeding the token
// endpoint.
func (c *PayPayClient) accessTokenLocked(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSlack)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.apiKey)
	form.Set("client_secret", c.apiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("fetch access token: status %d: %s", resp.StatusCode, detail)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode access token: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("fetch access token: empty token in response")
	}

	c.accessToken = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return c.accessToken, nil
}
