package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rickgao/reits-ledger/internal/ledger"
)

// ErrNoCredentials is returned by signed calls on a client without credentials.
var ErrNoCredentials = errors.New("client has no credentials")

// APIError represents an error response from the ledger API.
type APIError struct {
	StatusCode int
	Code       uint32 // Ledger error code, 0 for transport errors
	Name       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("ledger api error %d %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("ledger api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the ledger error named by Code, if any.
func (e *APIError) Unwrap() error {
	if le, ok := ledger.ErrorByCode(e.Code); ok {
		return le
	}
	return nil
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.Code == 0 && (e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
		Body:       body,
	}
	var resp struct {
		Code  uint32 `json:"code"`
		Name  string `json:"name"`
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &resp) == nil && resp.Error != "" {
		apiErr.Code = resp.Code
		apiErr.Name = resp.Name
		apiErr.Message = resp.Error
	}
	return apiErr
}

// doRequest performs one HTTP request, signing it when signed is set.
func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte, signed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		for k, v := range c.creds.SignRequest(method, path, payload) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, body)
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry. Signed
// requests are re-signed on every attempt.
func (c *Client) doWithRetry(ctx context.Context, method, path string, payload []byte, signed bool) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, path, payload, signed)
		if err == nil {
			return body, nil
		}

		lastErr = err

		// Check if error is retryable
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, path string, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// post performs a signed POST request with retries.
func (c *Client) post(ctx context.Context, path string, params, result any) error {
	if c.creds == nil {
		return ErrNoCredentials
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.doWithRetry(ctx, http.MethodPost, path, payload, true)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
