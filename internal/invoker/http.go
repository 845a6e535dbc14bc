package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/opcoord/opcoord/internal/core"
)

// HTTPInvoker is the built-in "http.request" operation: it forwards the
// submission to an upstream HTTP endpoint and classifies the response for the
// retry executor. The caller supplies the client, so transport construction
// (timeouts, TLS, auth) stays outside the coordinator.
type HTTPInvoker struct {
	client *http.Client
}

// NewHTTPInvoker creates an HTTPInvoker. A nil client means http.DefaultClient.
func NewHTTPInvoker(client *http.Client) *HTTPInvoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPInvoker{client: client}
}

// Invoke expects parameters {url, method?, body?} and returns the response
// body on 2xx. Non-2xx statuses map through core.HTTPError so rate limits
// carry their Retry-After hint into backoff.
func (h *HTTPInvoker) Invoke(ctx context.Context, params map[string]json.RawMessage) (json.RawMessage, error) {
	var url string
	if raw, ok := params["url"]; ok {
		if err := json.Unmarshal(raw, &url); err != nil || url == "" {
			return nil, core.NewInputError("url parameter must be a non-empty string", nil)
		}
	} else {
		return nil, core.NewInputError("url parameter is required", nil)
	}

	method := http.MethodPost
	if raw, ok := params["method"]; ok {
		var m string
		if err := json.Unmarshal(raw, &m); err == nil && m != "" {
			method = strings.ToUpper(m)
		}
	}

	var body io.Reader
	if raw, ok := params["body"]; ok {
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, core.NewInputError("invalid request", map[string]any{"error": err.Error()})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		// Transport errors classify via Classify (timeout, connection).
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewConnectionError("reading upstream response", err)
	}

	if opErr := core.HTTPError(resp.StatusCode, resp.Header.Get("Retry-After")); opErr != nil {
		return nil, opErr
	}
	if len(payload) == 0 {
		return nil, nil
	}
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(payload))
		return quoted, nil
	}
	return payload, nil
}
