// Package completion is the client for the hosted LLM inference endpoint.
// The endpoint speaks the OpenAI-compatible chat format; the client turns
// structured story prompts into age-tuned model input and classifies every
// upstream failure into a closed error set.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// RequestTimeout bounds a single completion call.
const RequestTimeout = 60 * time.Second

// Message is one chat message in the OpenAI-compatible wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures a Client.
type Config struct {
	APIURL   string
	APIToken string
	Model    string
	Logger   *slog.Logger

	// HTTPClient overrides the default 60s-timeout client, for tests.
	HTTPClient *http.Client
}

// Client calls the completion endpoint.
type Client struct {
	apiURL     string
	apiToken   string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a completion client. URL, token, and model are required.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("completion: api url is required")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("completion: api token is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("completion: model id is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: RequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL:     cfg.APIURL,
		apiToken:   cfg.APIToken,
		model:      cfg.Model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type upstreamError struct {
	Error string `json:"error"`
}

// Complete sends a chat completion request and returns the first choice's
// message content, trimmed. Failures are always *Error values.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   maxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", &Error{Kind: KindResponse, Message: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindResponse, Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("completion request timed out", "model", c.model)
			return "", &Error{Kind: KindTimeout, Message: "request to the model endpoint timed out"}
		}
		c.logger.Warn("completion network error", "model", c.model, "error", err)
		return "", &Error{Kind: KindNetwork, Message: "network error calling the model endpoint", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Warn("completion auth failed", "status", resp.StatusCode, "model", c.model)
		return "", &Error{Kind: KindAuth, Message: "model endpoint token is invalid or expired"}
	case resp.StatusCode == http.StatusServiceUnavailable:
		c.logger.Warn("completion model unavailable", "model", c.model)
		return "", &Error{Kind: KindModelLoading, Message: "the model is currently loading, try again shortly"}
	case resp.StatusCode != http.StatusOK:
		detail := readUpstreamDetail(resp.Body)
		c.logger.Warn("completion upstream error", "status", resp.StatusCode, "detail", detail)
		return "", &Error{Kind: KindResponse, Message: fmt.Sprintf("model endpoint error: %s", detail)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Warn("completion non-JSON response", "model", c.model)
		return "", &Error{Kind: KindResponse, Message: "model endpoint returned a non-JSON response", Err: err}
	}

	var text string
	if len(parsed.Choices) > 0 {
		text = parsed.Choices[0].Message.Content
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("completion empty response", "model", c.model)
		return "", &Error{Kind: KindResponse, Message: "model returned empty response"}
	}
	return strings.TrimSpace(text), nil
}

func readUpstreamDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unknown error"
	}
	var ue upstreamError
	if json.Unmarshal(data, &ue) == nil && ue.Error != "" {
		return ue.Error
	}
	if detail := strings.TrimSpace(string(data)); detail != "" {
		return detail
	}
	return "unknown error"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
