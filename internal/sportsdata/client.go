// Package sportsdata provides the read-only client for the upstream
// fixtures API, the engine's outcome source.
package sportsdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Chukwuemekamusic/matchday-bet-bot-sub001/internal/models"
)

// Fixture is a single match as reported by the upstream API. Scores stay nil
// until the provider publishes them; a finished fixture with missing scores
// is treated as an upstream anomaly, never resolved.
type Fixture struct {
	ExternalID  string    `json:"id"`
	KickoffAt   time.Time `json:"kickoff"`
	Status      string    `json:"status"`
	HomeTeam    string    `json:"homeTeam"`
	AwayTeam    string    `json:"awayTeam"`
	Competition string    `json:"competition"`
	HomeScore   *int      `json:"homeScore"`
	AwayScore   *int      `json:"awayScore"`
}

// Upstream short status codes, grouped by the internal status they map to.
var statusCodes = map[string]models.Status{
	"NS": models.StatusScheduled,
	"TBD": models.StatusScheduled,

	"1H":   models.StatusLive,
	"HT":   models.StatusLive,
	"2H":   models.StatusLive,
	"ET":   models.StatusLive,
	"P":    models.StatusLive,
	"LIVE": models.StatusLive,

	"FT":  models.StatusFinished,
	"AET": models.StatusFinished,
	"PEN": models.StatusFinished,

	"PST": models.StatusPostponed,

	"CANC": models.StatusCancelled,
	"ABD":  models.StatusCancelled,
}

// MappedStatus translates the upstream status code into the internal status.
// ok is false for codes outside the known set.
func (f *Fixture) MappedStatus() (models.Status, bool) {
	st, ok := statusCodes[f.Status]
	return st, ok
}

// HasFullScore reports whether both scores are present.
func (f *Fixture) HasFullScore() bool {
	return f.HomeScore != nil && f.AwayScore != nil
}

// ClientConfig holds HTTP client tuning parameters.
type ClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
	RetryDelayMax  time.Duration
}

// Client provides access to the fixtures API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cfg        ClientConfig
}

// NewClient creates a fixtures API client.
func NewClient(baseURL, apiKey string, cfg ClientConfig) *Client {
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
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
	}
}

// FetchByDate retrieves all fixtures scheduled on the given calendar date
// (UTC) in a single batched call.
func (c *Client) FetchByDate(ctx context.Context, date time.Time) ([]Fixture, error) {
	u, err := url.Parse(c.baseURL + "/fixtures")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("date", date.UTC().Format("2006-01-02"))
	u.RawQuery = q.Encode()

	var fixtures []Fixture
	if err := c.getJSON(ctx, u.String(), &fixtures); err != nil {
		return nil, fmt.Errorf("failed to fetch fixtures for %s: %w", q.Get("date"), err)
	}
	return fixtures, nil
}

// FetchFixture retrieves a single fixture by its upstream id.
func (c *Client) FetchFixture(ctx context.Context, externalID string) (*Fixture, error) {
	var fixture Fixture
	u := fmt.Sprintf("%s/fixtures/%s", c.baseURL, url.PathEscape(externalID))
	if err := c.getJSON(ctx, u, &fixture); err != nil {
		return nil, fmt.Errorf("failed to fetch fixture %s: %w", externalID, err)
	}
	return &fixture, nil
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	resp, err := c.doRequest(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs a GET with capped exponential back-off. Server errors
// and rate limits are retried; other client errors are permanent.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error
	delay := c.cfg.RetryDelayBase

	for i := 0; i < c.cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.cfg.RetryDelayMax {
				delay = c.cfg.RetryDelayMax
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, body)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("request rejected with status %d: %s", resp.StatusCode, body)
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
