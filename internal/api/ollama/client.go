// Package ollama is a minimal client for the Ollama generate API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	defaultTimeout = 300 * time.Second
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTemperature sets the sampling temperature sent with each request.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.options.Temperature = t
	}
}

// WithSeed sets the sampling seed sent with each request.
func WithSeed(seed int) ClientOption {
	return func(c *Client) {
		c.options.Seed = seed
	}
}

// WithContextWindow sets num_ctx.
func WithContextWindow(n int) ClientOption {
	return func(c *Client) {
		c.options.NumCtx = n
	}
}

// WithTimeout bounds each request, including reading the full response.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client talks to one Ollama host.
type Client struct {
	baseURL    string
	httpClient *http.Client
	options    Options
	timeout    time.Duration
}

// NewClient creates a new client for the host at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		},
		options: Options{Temperature: 0.7, Seed: 42},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// Host returns the base URL of the server.
func (c *Client) Host() string {
	return c.baseURL
}

// Temperature returns the configured sampling temperature.
func (c *Client) Temperature() float64 {
	return c.options.Temperature
}

// Seed returns the configured sampling seed.
func (c *Client) Seed() int {
	return c.options.Seed
}

// Generate sends a non-streaming generate request and returns the text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	opts := c.options
	resp, err := c.CreateGeneration(ctx, &GenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: &opts,
	})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// CreateGeneration sends a generate request.
func (c *Client) CreateGeneration(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	var result GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/generate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListModels returns the models available on the host.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var result TagsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return ParseErrorResponse(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
