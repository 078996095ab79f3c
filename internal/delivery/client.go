// Package delivery posts metrics records to the ingestion endpoint.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/waabox/pipemetrics/internal/domain"
)

// DefaultTimeout bounds a delivery attempt when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 512

// TransportError describes a failed delivery. StatusCode is zero when no response was received.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Timeout    bool
	After      time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "delivering metrics to %s", e.Endpoint)
	if e.Timeout {
		fmt.Fprintf(&sb, ": timed out after %s", e.After)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": HTTP %d", e.StatusCode)
		if e.Body != "" {
			fmt.Fprintf(&sb, ": %s", e.Body)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidateEndpoint checks that endpoint is an absolute http(s) URL.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return &domain.InputError{Field: "endpoint", Reason: "required unless --dry-run is set"}
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &domain.InputError{Field: "endpoint", Reason: fmt.Sprintf("must be an absolute http(s) URL, got %q", endpoint)}
	}
	return nil
}

// Client delivers records to a single endpoint. It never retries.
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
}

// NewClient creates a delivery client. A timeout of zero uses DefaultTimeout.
func NewClient(endpoint string, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		timeout:  timeout,
		client:   &http.Client{},
	}
}

// Deliver posts rec as JSON. Any non-2xx response, network failure or timeout is returned as a
// *TransportError.
func (c *Client) Deliver(ctx context.Context, rec domain.PipelineMetricsRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{
			Endpoint: c.endpoint,
			Timeout:  isTimeout(ctx, err),
			After:    c.timeout,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
