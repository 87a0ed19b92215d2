// ABOUTME: Tests for the analysis manager, sessions, and DDL extraction
// ABOUTME: Uses an in-memory SQLite store, the hash embedder, and a scripted completer
package architect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harper/ddl-architect/internal/history"
	"github.com/harper/ddl-architect/internal/llm"
	"github.com/harper/ddl-architect/internal/logging"
	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/retrieval"
	"github.com/harper/ddl-architect/internal/store"
	"github.com/harper/ddl-architect/internal/store/sqlite"
)

const sampleReply = `Here is a star schema.

CREATE TABLE fact_orders (id INT PRIMARY KEY, customer_id INT);
create index idx_orders_customer ON fact_orders(customer_id)
ALTER TABLE fact_orders ADD CONSTRAINT fk_customer FOREIGN KEY (customer_id) REFERENCES dim_customer(id);;
That should do it.`

// scriptedCompleter fails the first len(errs) calls with the given errors
type scriptedCompleter struct {
	mu       sync.Mutex
	errs     []error
	reply    string
	calls    int
	messages []llm.Message
}

func (c *scriptedCompleter) Complete(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.messages = messages
	if c.calls <= len(c.errs) {
		return "", c.errs[c.calls-1]
	}
	return c.reply, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder offline")
}

func newTestManager(t *testing.T, c Completer) (*Manager, store.Store) {
	t.Helper()
	db, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	s, err := sqlite.NewStore(context.Background(), db, logging.Discard())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = time.Second

	e := llm.NewHashEmbedder(32)
	return NewManager(e, c, s, retrieval.New(s, 5, 3, nil), cfg, WithLogger(logging.Discard())), s
}

func salesRequest() Request {
	return Request{
		Prompt:   "Design a star schema for orders",
		Database: "sales",
		Tables:   []string{"orders", "customers"},
		Schema: models.TableSchemas{
			"orders": {{Name: "id", Type: "int", Nullable: false}},
		},
	}
}

func TestAnalyzeStoresPair(t *testing.T) {
	c := &scriptedCompleter{reply: sampleReply}
	m, s := newTestManager(t, c)
	ctx := context.Background()
	session := NewSession()

	res, err := m.Analyze(ctx, session, salesRequest())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if err := models.ValidateConversationID(res.ConversationID); err != nil {
		t.Errorf("conversation id %q invalid: %v", res.ConversationID, err)
	}
	if session.ID() != res.ConversationID {
		t.Errorf("session id = %s, want %s", session.ID(), res.ConversationID)
	}
	if res.ContextUsed {
		t.Error("context_used should be false on an empty store")
	}
	if res.Analysis != sampleReply {
		t.Error("analysis should be the full model reply")
	}
	if len(res.DDL) != 3 {
		t.Fatalf("ddl = %v, want 3 statements", res.DDL)
	}

	msgs, err := s.FetchByFilter(ctx, store.Eq(store.FieldConversationID, res.ConversationID), store.Page{})
	if err != nil {
		t.Fatalf("FetchByFilter() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stored records = %d, want 2", len(msgs))
	}
	if msgs[0].Body != salesRequest().Prompt || msgs[1].Body != sampleReply {
		t.Errorf("stored bodies = %q / %q", msgs[0].Body, msgs[1].Body)
	}
	if msgs[0].Metadata.SchemaVersion != models.SchemaVersion {
		t.Errorf("schema version = %q", msgs[0].Metadata.SchemaVersion)
	}

	user := c.messages[1].Content
	for _, want := range []string{"Design a star schema for orders", "Database: sales", "orders, customers", `"nullable": false`} {
		if !strings.Contains(user, want) {
			t.Errorf("user turn missing %q:\n%s", want, user)
		}
	}
}

func TestAnalyzeReusesConversationUntilReset(t *testing.T) {
	c := &scriptedCompleter{reply: sampleReply}
	m, s := newTestManager(t, c)
	ctx := context.Background()
	session := NewSession()

	first, err := m.Analyze(ctx, session, salesRequest())
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Analyze(ctx, session, salesRequest())
	if err != nil {
		t.Fatal(err)
	}
	if first.ConversationID != second.ConversationID {
		t.Errorf("conversation changed without reset: %s -> %s", first.ConversationID, second.ConversationID)
	}
	if !second.ContextUsed {
		t.Error("second analysis should find the first pair as context")
	}
	if !strings.Contains(c.messages[0].Content, "Related Q: Design a star schema for orders") {
		t.Error("related pair missing from the system turn")
	}

	msgs, _ := s.FetchByFilter(ctx, store.Eq(store.FieldConversationID, first.ConversationID), store.Page{})
	if len(msgs) != 4 {
		t.Errorf("records in conversation = %d, want 4", len(msgs))
	}

	session.Reset()
	third, err := m.Analyze(ctx, session, salesRequest())
	if err != nil {
		t.Fatal(err)
	}
	if third.ConversationID == first.ConversationID {
		t.Error("reset should start a new conversation")
	}
}

func TestAnalyzeScopeChangeStartsConversation(t *testing.T) {
	m, s := newTestManager(t, &scriptedCompleter{reply: sampleReply})
	ctx := context.Background()
	session := NewSession()
	hist := history.NewService(s, logging.Discard())

	wide := salesRequest()
	narrow := salesRequest()
	narrow.Tables = []string{"orders"}

	first, err := m.Analyze(ctx, session, wide)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Analyze(ctx, session, narrow)
	if err != nil {
		t.Fatal(err)
	}
	third, err := m.Analyze(ctx, session, narrow)
	if err != nil {
		t.Fatal(err)
	}

	if second.ConversationID == first.ConversationID {
		t.Error("changing the table selection should start a new conversation")
	}
	if third.ConversationID != second.ConversationID {
		t.Error("same scope should keep appending to the current conversation")
	}

	for _, tt := range []struct {
		id    string
		pairs int
	}{{first.ConversationID, 1}, {second.ConversationID, 2}} {
		conv, err := hist.Get(ctx, tt.id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", tt.id, err)
		}
		if len(conv.Messages) != tt.pairs {
			t.Errorf("conversation %s has %d pairs, want %d", tt.id, len(conv.Messages), tt.pairs)
		}
	}

	other := narrow
	other.Database = "hr"
	fourth, err := m.Analyze(ctx, session, other)
	if err != nil {
		t.Fatal(err)
	}
	if fourth.ConversationID == third.ConversationID {
		t.Error("changing the database should start a new conversation")
	}
}

func TestAnalyzeResumedSessionKeepsScope(t *testing.T) {
	m, s := newTestManager(t, &scriptedCompleter{reply: sampleReply})
	ctx := context.Background()

	first, err := m.Analyze(ctx, NewSession(), salesRequest())
	if err != nil {
		t.Fatal(err)
	}

	same, _ := ResumeSession(first.ConversationID)
	again, err := m.Analyze(ctx, same, salesRequest())
	if err != nil {
		t.Fatal(err)
	}
	if again.ConversationID != first.ConversationID {
		t.Errorf("resumed conversation changed: %s -> %s", first.ConversationID, again.ConversationID)
	}

	resumed, _ := ResumeSession(first.ConversationID)
	narrow := salesRequest()
	narrow.Tables = []string{"orders"}
	moved, err := m.Analyze(ctx, resumed, narrow)
	if err != nil {
		t.Fatal(err)
	}
	if moved.ConversationID == first.ConversationID {
		t.Error("a different scope must not be appended to the resumed conversation")
	}

	if _, err := history.NewService(s, nil).Get(ctx, first.ConversationID); err != nil {
		t.Errorf("resumed conversation unreadable: %v", err)
	}
}

func TestAnalyzeRetriesModelCall(t *testing.T) {
	transient := errors.New("connection reset")

	t.Run("succeeds on third attempt", func(t *testing.T) {
		c := &scriptedCompleter{errs: []error{transient, context.DeadlineExceeded}, reply: sampleReply}
		m, _ := newTestManager(t, c)

		if _, err := m.Analyze(context.Background(), NewSession(), salesRequest()); err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if c.calls != 3 {
			t.Errorf("calls = %d, want 3", c.calls)
		}
	})

	t.Run("fails after three attempts", func(t *testing.T) {
		final := errors.New("model unavailable")
		c := &scriptedCompleter{errs: []error{transient, transient, final}, reply: sampleReply}
		m, s := newTestManager(t, c)
		session := NewSession()

		_, err := m.Analyze(context.Background(), session, salesRequest())
		if !errors.Is(err, final) {
			t.Fatalf("Analyze() error = %v, want the final failure", err)
		}
		var ae *models.AnalysisError
		if !errors.As(err, &ae) {
			t.Fatalf("error %T is not an AnalysisError", err)
		}
		if ae.Stage != StageComplete || ae.Database != "sales" || ae.ConversationID != session.ID() {
			t.Errorf("analysis error = %+v", ae)
		}
		if session.ID() == "" {
			t.Error("failed analysis must keep the conversation id")
		}
		if c.calls != 3 {
			t.Errorf("calls = %d, want 3", c.calls)
		}
		if n, _ := s.Count(context.Background()); n != 0 {
			t.Errorf("stored records = %d after failure, want 0", n)
		}
	})

	t.Run("rejected request is not retried", func(t *testing.T) {
		rejected := errors.Join(models.ErrValidation, errors.New("bad model name"))
		c := &scriptedCompleter{errs: []error{rejected}, reply: sampleReply}
		m, _ := newTestManager(t, c)

		_, err := m.Analyze(context.Background(), NewSession(), salesRequest())
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("Analyze() error = %v", err)
		}
		if c.calls != 1 {
			t.Errorf("calls = %d, want 1", c.calls)
		}
	})
}

func TestAnalyzeRetriesRateLimitedProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"requests"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"CREATE TABLE fact_orders (id INT);"}}]}`))
	}))
	defer srv.Close()

	cfg := llm.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	client, err := llm.NewOpenAIClientWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIClientWithConfig() error = %v", err)
	}
	m, _ := newTestManager(t, client)

	res, err := m.Analyze(context.Background(), NewSession(), salesRequest())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("provider calls = %d, want 3", calls.Load())
	}
	if len(res.DDL) != 1 {
		t.Errorf("ddl = %v", res.DDL)
	}
}

func TestAnalyzeInvalidResponse(t *testing.T) {
	c := &scriptedCompleter{reply: "   "}
	m, _ := newTestManager(t, c)

	_, err := m.Analyze(context.Background(), NewSession(), salesRequest())
	if !errors.Is(err, models.ErrInvalidResponse) {
		t.Errorf("Analyze() error = %v, want ErrInvalidResponse", err)
	}
}

func TestAnalyzeEmbedFailure(t *testing.T) {
	db, _ := sqlite.OpenInMemory()
	s, _ := sqlite.NewStore(context.Background(), db, nil)
	defer func() { _ = s.Close() }()

	m := NewManager(failingEmbedder{}, &scriptedCompleter{reply: sampleReply}, s, nil, DefaultConfig())
	session, _ := ResumeSession(models.NewConversationID())
	before := session.ID()

	_, err := m.Analyze(context.Background(), session, salesRequest())
	var ae *models.AnalysisError
	if !errors.As(err, &ae) || ae.Stage != StageEmbedPrompt {
		t.Fatalf("Analyze() error = %v, want embed_prompt AnalysisError", err)
	}
	if session.ID() != before {
		t.Error("resumed session id changed after failure")
	}
}

func TestAnalyzeEmptyPrompt(t *testing.T) {
	m, _ := newTestManager(t, &scriptedCompleter{reply: sampleReply})
	req := salesRequest()
	req.Prompt = "  "
	if _, err := m.Analyze(context.Background(), NewSession(), req); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Analyze() error = %v, want ErrValidation", err)
	}
}

func TestResumeSession(t *testing.T) {
	if _, err := ResumeSession("conv_123"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("ResumeSession() error = %v, want ErrValidation", err)
	}
	id := models.NewConversationID()
	s, err := ResumeSession(id)
	if err != nil || s.ID() != id {
		t.Errorf("ResumeSession() = %v, %v", s, err)
	}
}

func TestExtractDDL(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "mixed case and semicolons",
			reply: sampleReply,
			want: []string{
				"CREATE TABLE fact_orders (id INT PRIMARY KEY, customer_id INT);",
				"create index idx_orders_customer ON fact_orders(customer_id);",
				"ALTER TABLE fact_orders ADD CONSTRAINT fk_customer FOREIGN KEY (customer_id) REFERENCES dim_customer(id);",
			},
		},
		{name: "no ddl", reply: "Use a star schema.", want: []string{}},
		{name: "indented", reply: "    CREATE TABLE t (id INT) ;  ", want: []string{"CREATE TABLE t (id INT);"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDDL(tt.reply)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractDDL() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ExtractDDL()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
