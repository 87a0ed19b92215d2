// ABOUTME: Centralized configuration for the schema architect server and CLI
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// AppName names the data directory and the MCP server
const AppName = "ddl-architect"

// Store backends
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
)

// LLM providers
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Embedders
const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"
)

// DefaultOllamaURL is where a local ollama daemon listens
const DefaultOllamaURL = "http://localhost:11434"

// Config holds all configuration for the schema architect
type Config struct {
	// Storage settings
	StoreBackend string
	DataDir      string

	// Model settings
	LLMProvider   string
	LLMBaseURL    string
	OpenAIKey     string
	ChatModel     string
	Temperature   float64
	ContextWindow int
	MaxTokens     int
	Timeout       time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration

	// Embedding settings
	Embedder         string
	EmbeddingModel   string
	EmbeddingBaseURL string
	VectorDimension  int

	// Context retrieval settings
	ContextTopK     int
	ContextMaxPairs int

	// Server settings
	HTTPAddr    string
	CORSOrigins []string

	// Logging settings
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama))

	defaultBaseURL := ""
	if provider == ProviderOllama {
		defaultBaseURL = DefaultOllamaURL
	}

	cfg := &Config{
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		DataDir:          getEnv("DATA_DIR", DefaultDataDir()),
		LLMProvider:      provider,
		LLMBaseURL:       getEnv("LLM_BASE_URL", defaultBaseURL),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		ChatModel:        getEnv("CHAT_MODEL", "llama3.2"),
		Temperature:      getEnvFloat("LLM_TEMPERATURE", 0.3),
		ContextWindow:    getEnvInt("LLM_CONTEXT_WINDOW", 4096),
		MaxTokens:        getEnvInt("LLM_MAX_TOKENS", 2048),
		Timeout:          getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		MaxAttempts:      getEnvInt("ANALYZE_ATTEMPTS", 3),
		RetryDelay:       getEnvDuration("RETRY_DELAY", time.Second),
		Embedder:         strings.ToLower(getEnv("EMBEDDER", EmbedderHash)),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBaseURL: os.Getenv("EMBEDDING_BASE_URL"),
		VectorDimension:  getEnvInt("VECTOR_DIMENSION", 384),
		ContextTopK:      getEnvInt("CONTEXT_TOP_K", 5),
		ContextMaxPairs:  getEnvInt("CONTEXT_MAX_PAIRS", 3),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendChromem:
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite or chromem, got %q", c.StoreBackend)
	}
	switch c.LLMProvider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("LLM_PROVIDER must be ollama or openai, got %q", c.LLMProvider)
	}
	switch c.Embedder {
	case EmbedderHash, EmbedderOpenAI:
	default:
		return fmt.Errorf("EMBEDDER must be hash or openai, got %q", c.Embedder)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be 0-2, got %f", c.Temperature)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("ANALYZE_ATTEMPTS must be 1-10, got %d", c.MaxAttempts)
	}
	if c.VectorDimension <= 0 {
		return fmt.Errorf("VECTOR_DIMENSION must be positive, got %d", c.VectorDimension)
	}
	if c.ContextTopK <= 0 {
		return fmt.Errorf("CONTEXT_TOP_K must be positive, got %d", c.ContextTopK)
	}
	if c.ContextMaxPairs < 0 {
		return fmt.Errorf("CONTEXT_MAX_PAIRS must not be negative, got %d", c.ContextMaxPairs)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %v", c.Timeout)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	return nil
}

// DefaultDataDir returns the XDG data directory for the record store
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// SQLitePath returns the database file used by the sqlite backend
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "chat_history.db")
}

// ChromemPath returns the directory used by the chromem backend
func (c *Config) ChromemPath() string {
	return filepath.Join(c.DataDir, "chroma_data")
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
