// Package ingressclient is the agent-side HTTP client for the ingress RPC
// surface: it JSON-POSTs a signed payload to the matching `/rpc/<method>`
// route and treats any non-2xx response as a failure the dispatch bus can
// retry.
package ingressclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RequestTimeout bounds a single RPC call; the dispatch bus owns retry
// scheduling, so this only needs to catch a hung connection.
const RequestTimeout = 15 * time.Second

// Client posts signed payloads to one ingress base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "https://ingress.ivynet.example").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: RequestTimeout}}
}

// Call POSTs body (JSON-encoded) to baseURL + "/rpc/" + method and
// discards a successful response body; the ingress RPC surface returns no
// data the agent needs back on success.
func (c *Client) Call(ctx context.Context, method string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ingressclient: encode %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+method, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("ingressclient: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ingressclient: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ingressclient: %s: ingress responded %d: %s", method, resp.StatusCode, string(detail))
	}
	return nil
}
