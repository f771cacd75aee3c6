// Package actions contains the built-in action executors shipped with the
// gatehouse binary. Deployments register their own executors through the
// registry; these cover the common delegate-over-HTTP case and local testing.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxForwardResponseBytes caps the downstream response retained as the action result.
const maxForwardResponseBytes = 1 << 20

// HTTPForward executes an action by POSTing its parameters to a downstream
// endpoint named inside the parameters themselves. The downstream JSON
// response becomes the action result, so quality evaluation applies to
// whatever the endpoint returns.
type HTTPForward struct {
	client *http.Client
}

// NewHTTPForward constructs an HTTPForward with the given client. A nil
// client gets a 30 second timeout default.
func NewHTTPForward(client *http.Client) *HTTPForward {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPForward{client: client}
}

// forwardParams is the parameter envelope the executor understands.
type forwardParams struct {
	Endpoint string          `json:"endpoint"`
	Payload  json.RawMessage `json:"payload"`
	// Refinements accumulate across retry attempts and are forwarded verbatim
	// so the downstream endpoint can act on them.
	Refinements []string `json:"refinements,omitempty"`
}

// Execute posts the payload to the configured endpoint and returns its JSON body.
func (f *HTTPForward) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p forwardParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("decode forward parameters: %w", err)
	}
	if p.Endpoint == "" {
		return nil, fmt.Errorf("forward parameters missing endpoint")
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode forward body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", p.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxForwardResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read forward response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("forward to %s: status %d", p.Endpoint, resp.StatusCode)
	}

	if !json.Valid(data) {
		// Wrap non-JSON bodies so the result column stays valid jsonb.
		wrapped, merr := json.Marshal(map[string]string{"body": string(data)})
		if merr != nil {
			return nil, fmt.Errorf("wrap forward response: %w", merr)
		}
		return wrapped, nil
	}
	return data, nil
}
