// Copyright 2025 The Chorus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chorus/shared/logger"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Target identifies the endpoint, credential, and model for one call.
type Target struct {
	BaseURL string
	APIKey  string
	Model   string
}

// StreamSink receives completion deltas in upstream arrival order. Returning
// an error aborts the stream.
type StreamSink func(delta string) error

// Client issues chat-completion calls with one pooled HTTP client per
// endpoint host. Safe for concurrent use.
type Client struct {
	mu    sync.RWMutex
	pools map[string]*http.Client
	log   *logger.Logger
}

// NewClient creates a client. Warm pre-builds per-host pools so no transport
// is constructed on the request path.
func NewClient(log *logger.Logger) *Client {
	if log == nil {
		log = logger.New("llm")
	}
	return &Client{
		pools: make(map[string]*http.Client),
		log:   log,
	}
}

// Warm builds pooled HTTP clients for the given endpoint hosts.
func (c *Client) Warm(hosts []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, host := range hosts {
		if _, ok := c.pools[host]; !ok {
			c.pools[host] = newPooledClient()
		}
	}
}

func newPooledClient() *http.Client {
	// Deadlines come from the request context; the transport only bounds
	// connection setup and idle reuse.
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (c *Client) httpClient(baseURL string) *http.Client {
	host := hostOf(baseURL)

	c.mu.RLock()
	client, ok := c.pools[host]
	c.mu.RUnlock()
	if ok {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok = c.pools[host]; ok {
		return client
	}
	client = newPooledClient()
	c.pools[host] = client
	return client
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

// ChatCompletion performs a non-streaming chat completion and returns the
// full reply text.
func (c *Client) ChatCompletion(ctx context.Context, target Target, messages []Message, temperature *float64) (string, error) {
	return c.do(ctx, target, messages, temperature, nil)
}

// ChatCompletionStream performs a streaming chat completion, forwarding each
// delta to sink in arrival order, and returns the concatenated reply text.
// Providers that answer a stream request with a plain JSON body still get
// their full reply forwarded as a single delta.
func (c *Client) ChatCompletionStream(ctx context.Context, target Target, messages []Message, temperature *float64, sink StreamSink) (string, error) {
	if sink == nil {
		return "", fmt.Errorf("stream sink is required")
	}
	return c.do(ctx, target, messages, temperature, sink)
}

func (c *Client) do(ctx context.Context, target Target, messages []Message, temperature *float64, sink StreamSink) (string, error) {
	endpoint := strings.TrimRight(target.BaseURL, "/") + "/chat/completions"

	body := map[string]interface{}{
		"model":    target.Model,
		"messages": messages,
		"stream":   sink != nil,
	}
	if temperature != nil {
		body["temperature"] = *temperature
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	if logger.Enabled(logger.DEBUG) {
		c.log.Debug("", "calling LLM API", map[string]interface{}{
			"url":     endpoint,
			"model":   target.Model,
			"payload": RedactPayload(string(reqBody)),
		})
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+target.APIKey)
	if sink != nil {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient(target.BaseURL).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, excerptLimit+1))
		return "", &APIError{StatusCode: resp.StatusCode, Excerpt: excerpt(raw)}
	}

	if sink != nil && isEventStream(resp) {
		text, err := consumeEventStream(resp.Body, sink)
		if err != nil && ctx.Err() != nil {
			return "", ctx.Err()
		}
		return text, err
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to decode LLM response: %w", err)
	}

	if content, ok := extractCompletionText(payload); ok {
		if sink != nil {
			if err := sink(content); err != nil {
				return "", err
			}
		}
		return content, nil
	}

	if msg, ok := detectProviderError(payload); ok {
		return "", &ProviderError{Endpoint: target.BaseURL, Model: target.Model, Message: msg}
	}

	return "", &ProviderError{Endpoint: target.BaseURL, Model: target.Model, Message: "response missing content field"}
}

func isEventStream(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
}
