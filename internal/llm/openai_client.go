// ABOUTME: OpenAI client for embeddings and chat completions
// ABOUTME: Works against api.openai.com or any OpenAI-compatible base URL
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/util"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel openai.EmbeddingModel
	// Dimensions asks text-embedding-3 models for shortened vectors; 0 keeps the model default
	Dimensions int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:         apiKey,
		ChatModel:      DefaultChatModel,
		EmbeddingModel: DefaultEmbeddingModel,
		MaxRetries:     3,
		RetryDelay:     time.Second * 2,
		Timeout:        30 * time.Second,
	}
}

// OpenAIClient wraps the OpenAI API client
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	dimensions     int
	maxRetries     int
	retryDelay     time.Duration
	timeout        time.Duration
}

// NewOpenAIClient creates a new OpenAI client with the given API key using default configuration
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	return NewOpenAIClientWithConfig(DefaultConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", models.ErrValidation)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientConfig),
		chatModel:      config.ChatModel,
		embeddingModel: config.EmbeddingModel,
		dimensions:     config.Dimensions,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		timeout:        timeout,
	}, nil
}

// Embed generates an embedding vector, retrying transient failures
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	err := util.Retry(ctx, c.maxRetries+1, c.retryDelay, func(attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateEmbeddings(callCtx, openai.EmbeddingRequestStrings{
			Input:      []string{text},
			Model:      c.embeddingModel,
			Dimensions: c.dimensions,
		})
		if err != nil {
			return fmt.Errorf("attempt %d: %w: %w", attempt, models.ErrConnection, err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return fmt.Errorf("attempt %d: %w: no embeddings returned", attempt, models.ErrInvalidResponse)
		}

		embedding = resp.Data[0].Embedding
		return nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding after %d attempts: %w", c.maxRetries+1, err)
	}
	return embedding, nil
}

// Complete runs one chat completion. Callers own retries.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:               c.chatModel,
		Messages:            make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature:         float32(opts.Temperature),
		MaxCompletionTokens: opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if rejected(err) {
			return "", fmt.Errorf("%w: chat completion rejected: %w", models.ErrValidation, err)
		}
		return "", fmt.Errorf("%w: chat completion: %w", models.ErrConnection, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", models.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// rejected reports whether the provider refused the request itself. Timeouts
// (408), rate limits (429) and server errors are transient and stay retryable.
func rejected(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}
