package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"time"
)

const MaxRetries = 3

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

type ClientConfig struct {
	URL           string
	Token         string
	ModelType     string
	QwenModelType string
	UseEnsemble   bool
}

// Client opens result streams from the correction service.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.ModelType == "" {
		cfg.ModelType = "gpt"
	}
	if cfg.QwenModelType == "" {
		cfg.QwenModelType = "standard"
	}
	return &Client{
		cfg: cfg,
		// Streams are bounded by the request context.
		httpClient: &http.Client{},
		backoff:    Backoff,
	}
}

type streamRequest struct {
	Text          string `json:"text"`
	ModelType     string `json:"model_type"`
	QwenModelType string `json:"qwen_model_type"`
	UseEnsemble   bool   `json:"use_ensemble"`
}

// Open posts text to the service and returns the response body once the
// stream has started.
func (c *Client) Open(ctx context.Context, text string) (io.ReadCloser, error) {
	payload, err := json.Marshal(streamRequest{
		Text:          text,
		ModelType:     c.cfg.ModelType,
		QwenModelType: c.cfg.QwenModelType,
		UseEnsemble:   c.cfg.UseEnsemble,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		body, err := c.open(ctx, payload)
		if err == nil {
			return body, nil
		}
		if !IsRetryable(err) || attempt >= MaxRetries {
			return nil, err
		}
		log.Printf("analysis: correction service attempt %d failed, retrying: %v", attempt+1, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}
}

func (c *Client) open(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("correction service: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: string(msg)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("correction service status %d: %s", resp.StatusCode, truncate(string(msg), 200))
	}
	return resp.Body, nil
}
