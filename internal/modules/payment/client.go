// README: Payment processor adapter (HTTP JSON client with idempotency keys).
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"marketpace/internal/types"
)

// Receipt is the processor's answer for one capture or charge.
type Receipt struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

type Client struct {
	baseURL string
	apiKey  string
	session *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		session: &http.Client{Timeout: timeout},
	}
}

type transferRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Party       string `json:"party"`
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("payment processor: code %d: %s", e.Code, e.Body)
}

// Capture pays amount out to payee.
func (c *Client) Capture(ctx context.Context, amount types.Money, payee types.ID, idempotencyKey string) (Receipt, error) {
	return c.post(ctx, "/v1/captures", amount, payee, idempotencyKey)
}

// Charge collects amount from payer.
func (c *Client) Charge(ctx context.Context, amount types.Money, payer types.ID, idempotencyKey string) (Receipt, error) {
	return c.post(ctx, "/v1/charges", amount, payer, idempotencyKey)
}

func (c *Client) post(ctx context.Context, path string, amount types.Money, party types.ID, key string) (Receipt, error) {
	if key == "" {
		return Receipt{}, errors.New("payment processor: idempotency key required")
	}
	body, err := json.Marshal(transferRequest{
		AmountCents: amount.Amount,
		Currency:    amount.Currency,
		Party:       string(party),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Idempotency-Key", key)
		return req, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	defer resp.Body.Close()

	var out Receipt
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return out, nil
}

// MaxCallDuration bounds one Capture or Charge, retries and backoff included.
func (c *Client) MaxCallDuration() time.Duration {
	total := time.Duration(maxAttempts) * c.session.Timeout
	backoff := initialBackoff
	for i := 1; i < maxAttempts; i++ {
		total += backoff
		backoff *= 2
	}
	return total
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry resends transient failures with exponential backoff. The
// idempotency key makes a resend safe on the processor side.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	backoff := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}
		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var se *statusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
				http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}
