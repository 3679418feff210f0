// Package deleter performs the one destructive call of the agent: the
// DELETE against the dashboard API once a countdown has expired.
package deleter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"classdesk/internal/domain"
)

// Client calls the dashboard's delete endpoint and classifies the
// response. It never mutates countdown state; it only reports an
// outcome.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewClient(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		logger:     logger,
		maxRetries: 2,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// Delete issues the destructive call. A 2xx is a deletion, a 404 means
// the class was already gone and counts as success, and anything else
// (after bounded retries on 429/5xx) is a failure with the server's
// message.
func (c *Client) Delete(ctx context.Context, targetID string, scope domain.Scope) domain.DeleteOutcome {
	q := url.Values{}
	q.Set("scope", string(scope))
	requestURL := fmt.Sprintf("%s/api/classes/%s?%s", c.baseURL, url.PathEscape(targetID), q.Encode())

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, requestURL, nil)
		if err != nil {
			return domain.DeleteOutcome{Code: domain.OutcomeFailed, Message: err.Error()}
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return domain.DeleteOutcome{Code: domain.OutcomeFailed, Message: waitErr.Error()}
				}
				continue
			}
			return domain.DeleteOutcome{Code: domain.OutcomeFailed, Message: err.Error()}
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			return domain.DeleteOutcome{Code: domain.OutcomeDeleted}
		case resp.StatusCode == http.StatusNotFound:
			c.logger.Info("class already gone, treating delete as done",
				zap.String("target_id", targetID))
			return domain.DeleteOutcome{Code: domain.OutcomeAlreadyGone}
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return domain.DeleteOutcome{Code: domain.OutcomeFailed, Message: waitErr.Error()}
			}
			continue
		}

		if readErr != nil {
			return domain.DeleteOutcome{Code: domain.OutcomeFailed, Message: fmt.Sprintf("http %d", resp.StatusCode)}
		}
		return domain.DeleteOutcome{Code: domain.OutcomeFailed, Message: failureMessage(resp.StatusCode, body)}
	}
}

func failureMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	if payload.Error != "" {
		return payload.Error
	}
	if payload.Message != "" {
		return payload.Message
	}
	return fmt.Sprintf("http %d: %s", status, http.StatusText(status))
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
