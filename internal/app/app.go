// ABOUTME: Wires configuration into a running schema architect: store, models, analysis, and history
// ABOUTME: Shared by the HTTP server, the MCP server, and every CLI command
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sashabaranov/go-openai"

	"github.com/harper/ddl-architect/internal/architect"
	"github.com/harper/ddl-architect/internal/config"
	"github.com/harper/ddl-architect/internal/history"
	"github.com/harper/ddl-architect/internal/httpapi"
	"github.com/harper/ddl-architect/internal/llm"
	"github.com/harper/ddl-architect/internal/mcp"
	"github.com/harper/ddl-architect/internal/metrics"
	"github.com/harper/ddl-architect/internal/migrate"
	"github.com/harper/ddl-architect/internal/retrieval"
	"github.com/harper/ddl-architect/internal/schema"
	"github.com/harper/ddl-architect/internal/store"
	"github.com/harper/ddl-architect/internal/store/chromem"
	"github.com/harper/ddl-architect/internal/store/sqlite"
)

// App holds every long-lived component
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Store     store.Store
	Embedder  architect.Embedder
	Completer architect.Completer
	Retriever *retrieval.Retriever
	Manager   *architect.Manager
	History   *history.Service
	Catalog   *schema.Introspector
	Metrics   *metrics.Metrics
}

// New opens the configured store and builds the components on top of it
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s, err := OpenStore(ctx, cfg, logger.WithPrefix("store"))
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	completer, err := NewCompleter(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	m := metrics.New()
	m.WatchStore(s.Count)

	retriever := retrieval.New(s, cfg.ContextTopK, cfg.ContextMaxPairs, logger.WithPrefix("retrieval"))
	manager := architect.NewManager(embedder, completer, s, retriever, architect.Config{
		Options: llm.Options{
			Temperature:   cfg.Temperature,
			ContextWindow: cfg.ContextWindow,
			MaxTokens:     cfg.MaxTokens,
		},
		Attempts:   cfg.MaxAttempts,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.Timeout,
	}, architect.WithRecorder(m), architect.WithLogger(logger.WithPrefix("architect")))

	logger.Debug("components ready",
		"store", cfg.StoreBackend,
		"provider", cfg.LLMProvider,
		"model", cfg.ChatModel,
		"embedder", cfg.Embedder,
		"dimension", cfg.VectorDimension)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     s,
		Embedder:  embedder,
		Completer: completer,
		Retriever: retriever,
		Manager:   manager,
		History:   history.NewService(s, logger.WithPrefix("history")),
		Catalog:   schema.NewIntrospector(logger.WithPrefix("schema")),
		Metrics:   m,
	}, nil
}

// OpenStore opens the record store backend named in cfg
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendChromem:
		s, err := chromem.Open(ctx, cfg.ChromemPath(), cfg.VectorDimension, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem store at %s: %w", cfg.ChromemPath(), err)
		}
		return s, nil
	case config.BackendSQLite, "":
		db, err := sqlite.Open(cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store at %s: %w", cfg.SQLitePath(), err)
		}
		s, err := sqlite.NewStore(ctx, db, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewEmbedder builds the configured embedder
func NewEmbedder(cfg *config.Config) (architect.Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderOpenAI:
		c := llm.DefaultConfig(cfg.OpenAIKey)
		c.BaseURL = cfg.EmbeddingBaseURL
		c.EmbeddingModel = openai.EmbeddingModel(cfg.EmbeddingModel)
		c.Dimensions = cfg.VectorDimension
		c.Timeout = cfg.Timeout
		client, err := llm.NewOpenAIClientWithConfig(c)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		return client, nil
	case config.EmbedderHash, "":
		return llm.NewHashEmbedder(cfg.VectorDimension), nil
	}
	return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
}

// NewCompleter builds the configured chat model client
func NewCompleter(cfg *config.Config) (architect.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		c := llm.DefaultConfig(cfg.OpenAIKey)
		c.BaseURL = cfg.LLMBaseURL
		c.ChatModel = cfg.ChatModel
		c.Timeout = cfg.Timeout
		client, err := llm.NewOpenAIClientWithConfig(c)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat client: %w", err)
		}
		return client, nil
	case config.ProviderOllama, "":
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaURL
		}
		return llm.NewOllamaClient(baseURL, cfg.ChatModel, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}

// HTTPServer builds the HTTP API over the app
func (a *App) HTTPServer() *httpapi.Server {
	return httpapi.NewServer(httpapi.Deps{
		History:     a.History,
		Analyzer:    a.Manager,
		Catalog:     a.Catalog,
		Count:       a.Store.Count,
		Metrics:     a.Metrics,
		CORSOrigins: a.Config.CORSOrigins,
		Logger:      a.Logger.WithPrefix("http"),
	})
}

// MCPServer builds an MCP server with every tool registered
func (a *App) MCPServer(version string) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(config.AppName, version)
	mcp.RegisterTools(server, a.History, a.Manager, a.Catalog, a.Logger.WithPrefix("mcp"))
	return server
}

// Migrator builds a migrator over the app's store
func (a *App) Migrator() *migrate.Migrator {
	return migrate.New(a.Store, a.Embedder, a.Logger.WithPrefix("migrate"))
}

// Close releases the record store
func (a *App) Close() error {
	return a.Store.Close()
}
