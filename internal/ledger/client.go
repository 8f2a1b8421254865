// Package ledger provides the client for the external settlement ledger.
// The ledger is append-only and idempotent per event: resubmitting an
// already-settled ledger id is reported as skipped, never as an error.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
)

// Settlement is a single (ledger id, outcome) pair submitted for settlement.
type Settlement struct {
	LedgerID string         `json:"ledgerId"`
	Outcome  models.Outcome `json:"outcome"`
}

// BatchResult reports the ledger's view of a batch submission. Skipped ids
// were already settled before this submission; they are not failures.
type BatchResult struct {
	Settled []string `json:"settled"`
	Skipped []string `json:"skipped"`
}

// State is the ledger-side lifecycle state of an event.
type State string

const (
	StateOpen      State = "open"
	StateResolved  State = "resolved"
	StateCancelled State = "cancelled"
)

// ClientConfig holds HTTP client tuning parameters.
type ClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
	RetryDelayMax  time.Duration
}

// Client talks to the settlement ledger service.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	cfg        ClientConfig
}

// NewClient creates a settlement ledger client.
func NewClient(baseURL, authToken string, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.RetryDelayMax <= 0 {
		cfg.RetryDelayMax = 30 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
	}
}

// SubmitBatch writes every settlement in one call. A non-nil error means the
// whole submission failed and nothing should be flagged settled locally; a
// partially-skipped batch is a success.
func (c *Client) SubmitBatch(ctx context.Context, settlements []Settlement) (*BatchResult, error) {
	if len(settlements) == 0 {
		return &BatchResult{}, nil
	}
	payload, err := json.Marshal(map[string]any{"settlements": settlements})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	var result BatchResult
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/settlements/batch", payload, &result); err != nil {
		return nil, fmt.Errorf("failed to submit settlement batch: %w", err)
	}
	return &result, nil
}

// Cancel voids an open event on the ledger with the given reason.
func (c *Client) Cancel(ctx context.Context, ledgerID, reason string) error {
	payload, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("failed to marshal cancellation: %w", err)
	}
	u := fmt.Sprintf("%s/settlements/%s/cancel", c.baseURL, ledgerID)
	if err := c.doJSON(ctx, http.MethodPost, u, payload, nil); err != nil {
		return fmt.Errorf("failed to cancel %s: %w", ledgerID, err)
	}
	return nil
}

// GetStatus returns the authoritative ledger state for the given id.
func (c *Client) GetStatus(ctx context.Context, ledgerID string) (State, error) {
	var status struct {
		State State `json:"state"`
	}
	u := fmt.Sprintf("%s/settlements/%s", c.baseURL, ledgerID)
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &status); err != nil {
		return "", fmt.Errorf("failed to get status of %s: %w", ledgerID, err)
	}
	switch status.State {
	case StateOpen, StateResolved, StateCancelled:
		return status.State, nil
	default:
		return "", fmt.Errorf("unknown ledger state %q for %s", status.State, ledgerID)
	}
}

// doJSON performs a request with capped exponential back-off. Server errors
// and rate limits are retried; other client errors are permanent.
func (c *Client) doJSON(ctx context.Context, method, urlStr string, payload []byte, out any) error {
	var lastErr error
	delay := c.cfg.RetryDelayBase

	for i := 0; i < c.cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.cfg.RetryDelayMax {
				delay = c.cfg.RetryDelayMax
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode < 300:
			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					resp.Body.Close()
					return fmt.Errorf("failed to decode response: %w", err)
				}
			}
			resp.Body.Close()
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, msg)
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("request rejected with status %d: %s", resp.StatusCode, msg)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
