package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	checkoutPath = "/api/payment/checkout"
	verifyPath   = "/api/payment/verify-payment"

	maxBodyBytes = 1 << 20
)

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	payload := map[string]any{
		"fullname":    req.Username,
		"email":       fmt.Sprintf("%s@users.mail-market", req.Username),
		"amount":      req.Amount.StringFixed(2),
		"success_url": req.SuccessURL,
		"cancel_url":  req.CancelURL,
		"webhook_url": req.WebhookURL,
		"meta_data": map[string]string{
			"deposit_id": strconv.FormatInt(req.DepositID, 10),
			"user_id":    strconv.FormatInt(req.UserID, 10),
		},
	}

	body, err := c.post(ctx, checkoutPath, payload)
	if err != nil {
		return nil, err
	}
	if !accepted(body) {
		return nil, fmt.Errorf("%w: checkout rejected: %s", ErrGateway, gjson.GetBytes(body, "message").String())
	}
	paymentURL := gjson.GetBytes(body, "payment_url").String()
	if paymentURL == "" {
		return nil, fmt.Errorf("%w: checkout response has no payment_url", ErrGateway)
	}
	return &Checkout{PaymentURL: paymentURL}, nil
}

func (c *Client) Verify(ctx context.Context, transactionID string) (*Verification, error) {
	body, err := c.post(ctx, verifyPath, map[string]string{"transaction_id": transactionID})
	if err != nil {
		return nil, err
	}

	status := strings.ToUpper(gjson.GetBytes(body, "status").String())
	amount, err := decimal.NewFromString(gjson.GetBytes(body, "amount").String())
	if err != nil {
		return nil, fmt.Errorf("%w: verify response amount: %v", ErrGateway, err)
	}

	meta := gjson.GetBytes(body, "metadata")
	if !meta.Exists() {
		meta = gjson.GetBytes(body, "meta_data")
	}
	if meta.Type == gjson.String {
		// some gateway versions send metadata as an encoded JSON string
		meta = gjson.Parse(meta.String())
	}
	depositID, err := strconv.ParseInt(meta.Get("deposit_id").String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: verify response has no deposit_id", ErrGateway)
	}

	txID := gjson.GetBytes(body, "transaction_id").String()
	if txID == "" {
		txID = transactionID
	}
	return &Verification{
		TransactionID: txID,
		Status:        status,
		Amount:        amount,
		DepositID:     depositID,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrGateway, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed body", ErrGateway)
	}
	return body, nil
}

// accepted reads the gateway's status flag, sent as 1, true or "success".
func accepted(body []byte) bool {
	s := gjson.GetBytes(body, "status")
	switch s.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return s.Int() == 1
	case gjson.String:
		v := strings.ToLower(s.String())
		return v == "1" || v == "success" || v == "true"
	}
	return false
}

var _ Gateway = (*Client)(nil)
