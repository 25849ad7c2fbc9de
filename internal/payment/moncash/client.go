package moncash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/ht-marketplace/internal/payment"
)

const (
	// Sandbox endpoints; production swaps the hosts via Config.
	DefaultAPIBase     = "https://sandbox.moncashbutton.digicelgroup.com/Api"
	DefaultGatewayBase = "https://sandbox.moncashbutton.digicelgroup.com/Moncash-middleware"

	requestTimeout = 10 * time.Second
	maxRetries     = 3
)

type Config struct {
	APIBase      string `yaml:"api_base"`
	GatewayBase  string `yaml:"gateway_base"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Client talks to the MonCash REST API. It implements payment.Gateway.
// Amounts cross the wire in gourdes; the rest of the system accounts in
// centimes.
type Client struct {
	httpClient  *http.Client
	apiBase     string
	gatewayBase string
	clientID    string
	secret      string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	gatewayBase := cfg.GatewayBase
	if gatewayBase == "" {
		gatewayBase = DefaultGatewayBase
	}
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		apiBase:     strings.TrimRight(apiBase, "/"),
		gatewayBase: strings.TrimRight(gatewayBase, "/"),
		clientID:    cfg.ClientID,
		secret:      cfg.ClientSecret,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type createPaymentResponse struct {
	PaymentToken struct {
		Token   string `json:"token"`
		Expired string `json:"expired"`
	} `json:"payment_token"`
	Status int `json:"status"`
}

type retrievePaymentResponse struct {
	Payment struct {
		TransactionID string  `json:"transaction_id"`
		Cost          float64 `json:"cost"`
		Message       string  `json:"message"`
		Payer         string  `json:"payer"`
	} `json:"payment"`
	Status int `json:"status"`
}

// CreatePayment registers a payment with MonCash and returns the URL to
// redirect the buyer to. Transient failures are retried with exponential
// backoff before the error is surfaced.
func (c *Client) CreatePayment(ctx context.Context, orderID string, amount int64) (*payment.PaymentIntent, error) {
	body := map[string]any{
		"amount":  centimesToGourdes(amount),
		"orderId": orderID,
	}

	var resp createPaymentResponse
	if err := c.postWithRetry(ctx, "/v1/CreatePayment", body, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentToken.Token == "" {
		return nil, fmt.Errorf("moncash: create payment returned no token (status %d)", resp.Status)
	}

	return &payment.PaymentIntent{
		Token:       resp.PaymentToken.Token,
		RedirectURL: c.gatewayBase + "/Payment/Redirect?token=" + url.QueryEscape(resp.PaymentToken.Token),
	}, nil
}

// VerifyPayment asks MonCash for the current state of a transaction.
func (c *Client) VerifyPayment(ctx context.Context, gatewayTxnID string) (payment.Status, error) {
	body := map[string]any{"transactionId": gatewayTxnID}

	var resp retrievePaymentResponse
	if err := c.postWithRetry(ctx, "/v1/RetrieveTransactionPayment", body, &resp); err != nil {
		return "", err
	}

	switch strings.ToLower(resp.Payment.Message) {
	case "successful":
		return payment.StatusSuccessful, nil
	case "failed":
		return payment.StatusFailed, nil
	default:
		return payment.StatusInitiated, nil
	}
}

func (c *Client) postWithRetry(ctx context.Context, path string, body, out any) error {
	operation := func() error {
		return c.post(ctx, path, body, out)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(250*time.Millisecond),
		), maxRetries),
		ctx,
	)
	return backoff.Retry(operation, policy)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(raw))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// force a new token on the next attempt
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return fmt.Errorf("moncash: unauthorized")
	case resp.StatusCode >= 500:
		return fmt.Errorf("moncash: server error %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("moncash: request rejected with %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("moncash: decoding response: %w", err))
	}
	return nil
}

// token returns a cached OAuth access token, fetching a fresh one when
// missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("scope", "read,write")
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("moncash: token request failed with %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("moncash: decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("moncash: empty access token")
	}

	c.accessToken = tr.AccessToken
	// renew a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func centimesToGourdes(amount int64) float64 {
	return float64(amount) / 100
}
