// ABOUTME: Tests for context retrieval over an in-memory SQLite store
// ABOUTME: Covers pairing by uuid, table relevance, the pair cap, and fail-open behavior
package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harper/ddl-architect/internal/logging"
	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
	"github.com/harper/ddl-architect/internal/store/sqlite"
)

func newStore(t *testing.T) store.Store {
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
	return s
}

func add(t *testing.T, s store.Store, database, question, answer string, userVec, assistantVec []float32) {
	t.Helper()
	_, _, err := s.InsertPair(context.Background(), store.PairInput{
		UserBody:           question,
		AssistantBody:      answer,
		UserEmbedding:      userVec,
		AssistantEmbedding: assistantVec,
		Database:           database,
		Tables:             []string{"orders"},
		SchemaVersion:      models.SchemaVersion,
		ConversationID:     models.NewConversationID(),
	})
	if err != nil {
		t.Fatalf("InsertPair() error = %v", err)
	}
}

func TestContext(t *testing.T) {
	s := newStore(t)
	q := []float32{1, 0, 0, 0}

	add(t, s, "sales", "model orders as a fact table", "CREATE TABLE fact_orders (id INT);", []float32{1, 0, 0, 0}, []float32{0.9, 0.1, 0, 0})
	add(t, s, "sales", "unrelated question", "CREATE TABLE misc (id INT);", []float32{0.8, 0.2, 0, 0}, []float32{0.7, 0.3, 0, 0})
	add(t, s, "hr", "orders in hr", "CREATE TABLE hr_orders (id INT);", []float32{1, 0, 0, 0}, []float32{1, 0, 0, 0})

	r := New(s, 5, 3, logging.Discard())
	got := r.Context(context.Background(), q, "sales", []string{"orders"})

	want := "Related Q: model orders as a fact table\nA: CREATE TABLE fact_orders (id INT);"
	if got != want {
		t.Errorf("Context() = %q, want %q", got, want)
	}
	if strings.Contains(got, "hr_orders") {
		t.Error("context leaked another database")
	}
}

func TestContextCompletesSplitPairs(t *testing.T) {
	s := newStore(t)

	// Only the user half is near the query; its answer must be fetched by id
	add(t, s, "sales", "star schema for orders", "CREATE TABLE dim_date (id INT);", []float32{1, 0, 0}, []float32{0, 0, 1})

	r := New(s, 1, 3, nil)
	got := r.Context(context.Background(), []float32{1, 0, 0}, "sales", []string{"orders"})
	if got != "Related Q: star schema for orders\nA: CREATE TABLE dim_date (id INT);" {
		t.Errorf("Context() = %q", got)
	}
}

func TestContextPairCap(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 4; i++ {
		add(t, s, "sales", "orders question", "orders answer", []float32{1, 0}, []float32{1, 0})
	}

	r := New(s, 8, 2, nil)
	got := r.Context(context.Background(), []float32{1, 0}, "sales", []string{"orders"})
	if n := strings.Count(got, "Related Q:"); n != 2 {
		t.Errorf("blocks = %d, want 2\n%s", n, got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("blocks should be joined, not terminated, by newlines")
	}
}

func TestContextEmpty(t *testing.T) {
	tests := []struct {
		name     string
		database string
		tables   []string
	}{
		{"no tables selected", "sales", nil},
		{"no table mentioned", "sales", []string{"customers"}},
		{"other database", "finance", []string{"orders"}},
	}

	s := newStore(t)
	add(t, s, "sales", "orders?", "orders!", []float32{1, 0}, []float32{1, 0})
	r := New(s, 0, 0, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Context(context.Background(), []float32{1, 0}, tt.database, tt.tables); got != "" {
				t.Errorf("Context() = %q, want empty", got)
			}
		})
	}

	empty := New(newStore(t), 5, 3, nil)
	if got := empty.Context(context.Background(), []float32{1, 0}, "sales", []string{"orders"}); got != "" {
		t.Errorf("Context() on empty store = %q", got)
	}
}

type failingStore struct{ store.Store }

func (failingStore) QuerySimilar(context.Context, []float32, int, store.Filter) ([]store.Match, error) {
	return nil, errors.New("index unavailable")
}

func TestContextFailsOpen(t *testing.T) {
	r := New(failingStore{}, 5, 3, nil)
	if got := r.Context(context.Background(), []float32{1, 0}, "sales", []string{"orders"}); got != "" {
		t.Errorf("Context() = %q, want empty on store failure", got)
	}
}
