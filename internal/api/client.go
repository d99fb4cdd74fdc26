// Package api is the JSON-over-HTTP client for the brewing API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/brewsync/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 2
	baseRetryDelay = 500 * time.Millisecond
)

// Client talks to the brewing API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for baseURL. token may be empty until Login.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// errorBody is the API's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// doRequest sends an authenticated request and returns the response body.
// Reads are retried with exponential backoff on 5xx; writes are not, since
// the sync engine owns their retry policy.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	reqURL := c.baseURL + path
	if query != nil {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = maxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "url", reqURL)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := c.bearer(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		c.logger.Debug("api request", "method", method, "url", reqURL, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("api request failed", "method", method, "url", reqURL, "error", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrServerOffline, err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, domain.ErrAuthFailed
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}

		apiErr := &domain.APIError{StatusCode: resp.StatusCode, Message: decodeError(data)}
		if resp.StatusCode >= 500 && attempt < retries {
			lastErr = apiErr
			c.logger.Warn("api server error, will retry",
				"status", resp.StatusCode,
				"attempt", attempt,
				"maxRetries", retries,
				"path", path,
			)
			continue
		}

		c.logger.Debug("api error response", "method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}

	c.logger.Error("api request failed after retries", "error", lastErr, "url", reqURL)
	return nil, lastErr
}

func decodeError(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(data))
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Health checks that the API answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	return err
}

// Login exchanges credentials for a token and starts using it.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.AuthResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/auth/login", nil, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %s", domain.ErrAuthFailed, apiErr.Message)
		}
		return nil, err
	}

	var result domain.AuthResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	if result.Token == "" || result.UserID == "" {
		return nil, fmt.Errorf("login response missing token or user id")
	}
	c.SetToken(result.Token)
	return &result, nil
}

// GetIngredients returns the ingredient catalog in unitSystem.
func (c *Client) GetIngredients(ctx context.Context, unitSystem domain.UnitSystem) ([]domain.Ingredient, error) {
	query := url.Values{}
	query.Set("unit_system", string(unitSystem))
	var items []domain.Ingredient
	if err := c.getJSON(ctx, "/ingredients", query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetBeerStyles returns the style guidelines.
func (c *Client) GetBeerStyles(ctx context.Context) ([]domain.BeerStyle, error) {
	var styles []domain.BeerStyle
	if err := c.getJSON(ctx, "/beer-styles", nil, &styles); err != nil {
		return nil, err
	}
	return styles, nil
}
