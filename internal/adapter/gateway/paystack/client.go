package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wallet-service/internal/core/ports"
)

const defaultTimeout = 10 * time.Second

// Config holds Paystack API configuration.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client implements ports.PaymentGateway against the Paystack REST API.
type Client struct {
	httpClient *http.Client
	config     Config
}

type initializeRequest struct {
	Email     string `json:"email"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// envelope is the common Paystack response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// NewClient creates a new Paystack API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// Initialize starts a hosted checkout for req and returns its authorization URL.
// The call is bounded by the configured timeout; it is never retried.
func (c *Client) Initialize(ctx context.Context, req ports.GatewayInitRequest) (*ports.GatewayInitResult, error) {
	if req.AmountMinor <= 0 {
		return nil, errors.New("paystack: amount must be > 0")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, errors.New("paystack: reference must be non-empty")
	}
	if strings.TrimSpace(c.config.SecretKey) == "" {
		return nil, errors.New("paystack config error: secret_key is empty")
	}

	payload, err := json.Marshal(initializeRequest{
		Email:     req.Email,
		Amount:    req.AmountMinor,
		Reference: req.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("encode paystack request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := strings.TrimRight(c.config.BaseURL, "/") + "/transaction/initialize"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build paystack request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.SecretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paystack api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read paystack response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paystack api returned non-2xx status: %d, body: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse paystack response: %w", err)
	}
	if !env.Status {
		return nil, fmt.Errorf("paystack rejected initialize: %s", env.Message)
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("parse paystack data: %w", err)
	}
	if data.AuthorizationURL == "" {
		return nil, errors.New("paystack response missing authorization_url")
	}

	return &ports.GatewayInitResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}
