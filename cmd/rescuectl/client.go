package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// apiClient talks to the rescued HTTP API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

// remoteError is an error payload returned by rescued.
type remoteError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *remoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("rescued returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("rescued returned %d (%s): %s", e.Status, e.Code, e.Message)
}

var newHTTPClient = func() *http.Client {
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func newAPIClient(base, token string) (*apiClient, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, fmt.Errorf("api endpoint required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid api endpoint %q: %w", base, err)
	}
	return &apiClient{base: base, token: strings.TrimSpace(token), http: newHTTPClient()}, nil
}

func (c *apiClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, c.base+path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		remote := &remoteError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(payload, remote); jsonErr != nil || remote.Message == "" {
			remote.Message = strings.TrimSpace(string(payload))
		}
		return remote
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
