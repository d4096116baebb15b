package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ClientConfig contains configuration for the HTTP semantic backend client.
type ClientConfig struct {
	// BaseURL is the root of the embedding service API.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Timeout bounds each request. Default: 5 seconds.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Client queries a remote embedding service over its JSON API:
//
//	POST /v1/query_rules  {"message": ..., "threshold": ...}
//	  -> {"matches": [{"rule_id": ..., "similarity": ...}]}
//	POST /v1/embed        {"text": ...} -> {"embedding": [...]}
//
// Client implements Matcher.
type Client struct {
	config *ClientConfig
	http   *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewClient creates a semantic backend client.
func NewClient(config *ClientConfig, logger *slog.Logger) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, &ConfigError{Field: "base_url", Message: "semantic backend URL is required"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "semantic.client"),
		tracer: otel.Tracer("securecheck/semantic"),
	}, nil
}

type queryRulesRequest struct {
	Message   string  `json:"message"`
	Threshold float64 `json:"threshold"`
}

type queryRulesResponse struct {
	Matches []Match `json:"matches"`
}

// QueryRules asks the backend for all rules whose exemplars clear threshold.
func (c *Client) QueryRules(ctx context.Context, message string, threshold float64) ([]Match, error) {
	ctx, span := c.tracer.Start(ctx, "semantic.query_rules",
		trace.WithAttributes(attribute.Float64("semantic.threshold", threshold)))
	defer span.End()

	var resp queryRulesResponse
	err := c.post(ctx, "/v1/query_rules", queryRulesRequest{Message: message, Threshold: threshold}, &resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("semantic.match_count", len(resp.Matches)))
	return resp.Matches, nil
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// GenerateEmbedding returns the raw embedding vector for text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, span := c.tracer.Start(ctx, "semantic.embed")
	defer span.End()

	var resp embedResponse
	if err := c.post(ctx, "/v1/embed", embedRequest{Text: text}, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, err
	}
	return resp.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &BackendError{Op: path, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bound the diagnostic body so a misbehaving backend cannot bloat logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &BackendError{
			Op:         path,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s", snippet),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &BackendError{Op: path, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
