// Package remote talks to the alert service over REST/JSON.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alertsync/internal/alerts"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

// Transport sends JSON requests to the remote service and classifies
// failures into the alerts error taxonomy. It holds no credentials; callers
// pass the bearer token per request.
type Transport struct {
	baseURL *url.URL
	client  *http.Client
	timeout time.Duration
	logger  alerts.Logger
}

// NewTransport creates a Transport rooted at baseURL. A nil client uses
// http.DefaultClient; timeout <= 0 selects DefaultTimeout.
func NewTransport(baseURL string, client *http.Client, timeout time.Duration, logger alerts.Logger) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = alerts.NewNopLogger()
	}
	return &Transport{baseURL: u, client: client, timeout: timeout, logger: logger}, nil
}

// request describes one call. A nil body sends no payload; a nil out
// discards the response body.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	out    any
}

// do sends r with an optional bearer token. Each attempt is bounded by the
// transport timeout; a timeout is reported as ErrNetwork.
func (t *Transport) do(ctx context.Context, r request, token string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	u := t.baseURL.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("request failed", "method", r.method, "path", r.path, "error", err)
		return fmt.Errorf("%w: %s %s: %v", alerts.ErrNetwork, r.method, r.path, err)
	}
	defer resp.Body.Close()

	t.logger.Debug("request", "method", r.method, "path", r.path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(resp)
	}

	if r.out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		if errors.Is(err, alerts.ErrDecode) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s %s: %v", alerts.ErrNetwork, r.method, r.path, err)
		}
		return fmt.Errorf("%w: %s %s: %v", alerts.ErrDecode, r.method, r.path, err)
	}
	return nil
}

// classify turns a non-2xx response into a *alerts.RemoteError. The kind
// follows the status; a {"detail": ...} body supplies the message.
func classify(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var kind error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = alerts.ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = alerts.ErrValidation
	default:
		kind = alerts.ErrServer
	}

	return &alerts.RemoteError{Kind: kind, Status: resp.StatusCode, Detail: detail(raw)}
}

// detail extracts the message of a {"detail": ...} body. A string detail is
// used as is; any other JSON value is kept in compact form.
func detail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body.Detail); err != nil {
		return string(body.Detail)
	}
	return buf.String()
}
