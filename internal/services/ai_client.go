// internal/services/ai_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/exportready/backend/internal/config"
)

// TransientError marks a judgment-endpoint failure that was retryable
// (network, timeout, 5xx) and exhausted its retry budget. Callers substitute
// a deterministic fallback instead of propagating it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient AI error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// SchemaError marks a response that arrived but could not be parsed into the
// expected structure. Not retryable; callers fall back the same way.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("malformed AI response: %s", e.Reason)
}

// AIClient is the chat boundary to the reasoning capability. Implementations
// must be safe for concurrent use.
type AIClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// KolosalClient talks to the Kolosal OpenAI-compatible chat-completions API.
type KolosalClient struct {
	cfg        config.AIConfig
	httpClient *http.Client
}

func NewKolosalClient(cfg config.AIConfig) *KolosalClient {
	if cfg.Model == "" {
		cfg.Model = "kolosal-chat"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30
	}

	return &KolosalClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Chat sends one prompt pair and returns the assistant text. Each call gets
// its own timeout; transient failures are retried with linear backoff up to
// the configured budget and then surfaced as *TransientError.
func (c *KolosalClient) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &TransientError{Err: errors.New("AI API key not configured")}
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody, err := json.Marshal(chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal AI request: %w", err)
	}

	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			logrus.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"delay":   delay,
			}).Debug("Retrying AI request")

			select {
			case <-ctx.Done():
				return "", &TransientError{Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		content, err := c.doRequest(ctx, reqBody)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return "", err
		}
		logrus.WithError(err).WithField("attempt", attempt+1).Warn("AI request failed")
	}

	return "", &TransientError{Err: lastErr}
}

func (c *KolosalClient) doRequest(ctx context.Context, body []byte) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.RequestTimeout)*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create AI request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: err}
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("AI request failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", &retryableError{err: err}
		}
		// Other 4xx responses are final, but callers still only see the
		// documented error types.
		return "", &TransientError{Err: err}
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &SchemaError{Reason: "completion envelope is not valid JSON"}
	}
	if len(chatResp.Choices) == 0 {
		return "", &SchemaError{Reason: "completion has no choices"}
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// retryableError tags errors that are worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	} {
		if strings.Contains(errStr, fragment) {
			return true
		}
	}

	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
