package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abduss/cloudnest/internal/callback"
)

const defaultCallbackTimeout = 10 * time.Second

// Reporter delivers a job outcome to the coordinator.
type Reporter interface {
	Report(ctx context.Context, req callback.UpdateRequest) error
}

// CallbackClient posts outcomes to the coordinator's internal endpoint.
type CallbackClient struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewCallbackClient targets <baseURL>/internal/update. A nil client gets a default with a timeout.
func NewCallbackClient(baseURL, token string, client *http.Client) *CallbackClient {
	if client == nil {
		client = &http.Client{Timeout: defaultCallbackTimeout}
	}
	return &CallbackClient{
		endpoint: strings.TrimRight(baseURL, "/") + callback.Path,
		token:    token,
		client:   client,
	}
}

// Report sends req once. Transport errors and non-2xx statuses are returned.
func (c *CallbackClient) Report(ctx context.Context, req callback.UpdateRequest) error {
	if req.Version == 0 {
		req.Version = callback.Version
	}
	if req.Variants == nil {
		req.Variants = []callback.Variant{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set(callback.TokenHeader, c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
