// ABOUTME: Orchestrates one schema analysis: embed, retrieve context, call the model, persist the pair
// ABOUTME: The model call is retried with backoff; every failure is reported as an AnalysisError
package architect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harper/ddl-architect/internal/llm"
	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
	"github.com/harper/ddl-architect/internal/util"
)

// Analysis stages named in AnalysisError
const (
	StageEmbedPrompt   = "embed_prompt"
	StagePrompt        = "build_prompt"
	StageComplete      = "complete"
	StageValidate      = "validate_response"
	StageEmbedResponse = "embed_response"
	StagePersist       = "persist"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer runs one chat completion
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

// ContextSource finds related prior exchanges; it never fails
type ContextSource interface {
	Context(ctx context.Context, embedding []float32, database string, tables []string) string
}

// Recorder observes analyses for metrics
type Recorder interface {
	AnalysisFinished(stage string, elapsed time.Duration)
	ModelRetry()
}

// Request is one analysis ask
type Request struct {
	Prompt   string              `json:"prompt"`
	Database string              `json:"database"`
	Tables   []string            `json:"tables"`
	Schema   models.TableSchemas `json:"schema,omitempty"`
}

// Result is what an analysis returns
type Result struct {
	Analysis       string   `json:"analysis"`
	DDL            []string `json:"ddl"`
	ContextUsed    bool     `json:"context_used"`
	ConversationID string   `json:"conversation_id"`
}

// Config tunes the model call
type Config struct {
	Options       llm.Options
	Attempts      int
	RetryDelay    time.Duration
	Timeout       time.Duration
	SchemaVersion string
}

// DefaultConfig matches the low-variance settings the analyzer runs with
func DefaultConfig() Config {
	return Config{
		Options:       llm.Options{Temperature: 0.3, ContextWindow: 4096, MaxTokens: 2048},
		Attempts:      3,
		RetryDelay:    time.Second,
		Timeout:       60 * time.Second,
		SchemaVersion: models.SchemaVersion,
	}
}

// Manager runs analyses against a store
type Manager struct {
	embedder  Embedder
	completer Completer
	store     store.Store
	retriever ContextSource
	cfg       Config
	recorder  Recorder
	logger    *log.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithLogger sets the manager's logger
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager wires the collaborators of an analysis
func NewManager(e Embedder, c Completer, s store.Store, ctxSrc ContextSource, cfg Config, opts ...Option) *Manager {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = models.SchemaVersion
	}
	m := &Manager{
		embedder:  e,
		completer: c,
		store:     s,
		retriever: ctxSrc,
		cfg:       cfg,
		recorder:  noopRecorder{},
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Analyze runs one analysis in session. The session keeps its conversation id
// even when the analysis fails, so a retry lands in the same conversation.
// A request for a different database or table selection than the session's
// conversation starts a new conversation.
func (m *Manager) Analyze(ctx context.Context, session *Session, req Request) (*Result, error) {
	start := time.Now()
	previous := session.ID()
	convID, started := session.claim(req.Database, req.Tables, m.storedScope(ctx))
	if started && previous != "" {
		m.logger.Info("scope changed, starting new conversation", "previous", previous,
			"conversation_id", convID, "database", req.Database, "tables", strings.Join(req.Tables, ","))
	}

	fail := func(stage string, err error) (*Result, error) {
		m.recorder.AnalysisFinished(stage, time.Since(start))
		m.logger.Error("analysis failed", "stage", stage, "conversation_id", convID,
			"database", req.Database, "tables", strings.Join(req.Tables, ","), "err", err)
		return nil, &models.AnalysisError{
			ConversationID: convID,
			Database:       req.Database,
			Tables:         req.Tables,
			Stage:          stage,
			Err:            err,
		}
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return fail(StagePrompt, fmt.Errorf("%w: prompt is empty", models.ErrValidation))
	}

	promptVec, err := m.embedder.Embed(ctx, req.Prompt)
	if err != nil {
		return fail(StageEmbedPrompt, err)
	}

	related := ""
	if m.retriever != nil {
		related = m.retriever.Context(ctx, promptVec, req.Database, req.Tables)
	}

	messages, err := BuildMessages(req, related)
	if err != nil {
		return fail(StagePrompt, err)
	}

	reply, err := m.complete(ctx, convID, messages)
	if err != nil {
		return fail(StageComplete, err)
	}
	if strings.TrimSpace(reply) == "" {
		return fail(StageValidate, fmt.Errorf("%w: model returned empty content", models.ErrInvalidResponse))
	}

	replyVec, err := m.embedder.Embed(ctx, reply)
	if err != nil {
		return fail(StageEmbedResponse, err)
	}

	userID, _, err := m.store.InsertPair(ctx, store.PairInput{
		UserBody:           req.Prompt,
		AssistantBody:      reply,
		UserEmbedding:      promptVec,
		AssistantEmbedding: replyVec,
		Database:           req.Database,
		Tables:             req.Tables,
		SchemaVersion:      m.cfg.SchemaVersion,
		ConversationID:     convID,
	})
	if err != nil {
		return fail(StagePersist, err)
	}

	m.recorder.AnalysisFinished("", time.Since(start))
	m.logger.Info("analysis stored", "conversation_id", convID, "user_id", userID,
		"database", req.Database, "context_used", related != "", "elapsed", time.Since(start).Round(time.Millisecond))

	return &Result{
		Analysis:       reply,
		DDL:            ExtractDDL(reply),
		ContextUsed:    related != "",
		ConversationID: convID,
	}, nil
}

// storedScope reads a conversation's scope from its first stored record
func (m *Manager) storedScope(ctx context.Context) ScopeLookup {
	return func(conversationID string) (models.Metadata, bool) {
		msgs, err := m.store.FetchByFilter(ctx, store.Eq(store.FieldConversationID, conversationID), store.Page{Limit: 1})
		if err != nil {
			m.logger.Warn("could not read conversation scope", "conversation_id", conversationID, "err", err)
			return models.Metadata{}, false
		}
		if len(msgs) == 0 {
			return models.Metadata{}, false
		}
		return msgs[0].Metadata, true
	}
}

// complete calls the model with per-attempt timeouts; rejected requests are not retried
func (m *Manager) complete(ctx context.Context, convID string, messages []llm.Message) (string, error) {
	var reply string
	err := util.Retry(ctx, m.cfg.Attempts, m.cfg.RetryDelay, func(attempt int) error {
		callCtx := ctx
		if m.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()
		}

		out, err := m.completer.Complete(callCtx, messages, m.cfg.Options)
		if errors.Is(err, models.ErrValidation) {
			return util.Permanent(err)
		}
		if err != nil {
			return err
		}
		reply = out
		return nil
	}, func(attempt int, err error) {
		m.recorder.ModelRetry()
		m.logger.Warn("model call failed, retrying", "attempt", attempt, "of", m.cfg.Attempts,
			"conversation_id", convID, "err", err)
	})
	return reply, err
}

type noopRecorder struct{}

func (noopRecorder) AnalysisFinished(string, time.Duration) {}
func (noopRecorder) ModelRetry()                            {}
