// ABOUTME: Client for a local Ollama daemon's native chat endpoint
// ABOUTME: Sends temperature and num_ctx, which the OpenAI-compatible endpoint ignores
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harper/ddl-architect/internal/models"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaClient completes chats through POST /api/chat
type OllamaClient struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewOllamaClient creates a client; empty arguments use the local defaults
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: timeout},
	}
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResp struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Complete runs one non-streaming chat. Callers own retries.
func (c *OllamaClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	if c.Client == nil {
		return "", errors.New("ollama: http client is nil")
	}

	options := map[string]any{"temperature": opts.Temperature}
	if opts.ContextWindow > 0 {
		options["num_ctx"] = opts.ContextWindow
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	b, err := json.Marshal(ollamaChatReq{
		Model:    c.Model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ollama: %w", models.ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: ollama: status %d: %s", models.ErrConnection, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: ollama: decode reply: %w", models.ErrInvalidResponse, err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", models.ErrConnection, decoded.Error)
	}
	return decoded.Message.Content, nil
}
