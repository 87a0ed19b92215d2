// ABOUTME: Runs the shared store suite against the SQLite backend
// ABOUTME: Also checks persistence across reopen and clock seeding
package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/harper/ddl-architect/internal/logging"
	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
	"github.com/harper/ddl-architect/internal/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	s, err := NewStore(context.Background(), db, logging.Discard())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestStoreSuite(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat_history.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s, err := NewStore(ctx, db, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	conv := models.NewConversationID()
	userID, _, err := s.InsertPair(ctx, store.PairInput{
		UserBody:           "prompt",
		AssistantBody:      "CREATE TABLE t (id INT);",
		UserEmbedding:      storetest.Vector(storetest.Dim, 0),
		AssistantEmbedding: storetest.Vector(storetest.Dim, 1),
		Database:           "sales",
		Tables:             []string{"orders"},
		SchemaVersion:      models.SchemaVersion,
		ConversationID:     conv,
	})
	if err != nil {
		t.Fatalf("InsertPair() error = %v", err)
	}
	first, _ := s.FetchByIDs(ctx, []string{userID})
	_ = s.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	s, err = NewStore(ctx, db, nil)
	if err != nil {
		t.Fatalf("NewStore() after reopen error = %v", err)
	}
	defer func() { _ = s.Close() }()

	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("Count() after reopen = %d, want 2", n)
	}

	if s.clock.Next() <= first[0].Metadata.Timestamp {
		t.Error("clock was not advanced past the stored timestamps")
	}
}

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   store.Filter
		wantSQL  string
		wantArgs int
	}{
		{"all", store.Filter{}, "", 0},
		{"eq", store.Eq(store.FieldDatabase, "sales"), " WHERE database_name = ?", 1},
		{"scope", store.ScopeFilter("sales", "orders"),
			" WHERE database_name = ? AND instr(',' || REPLACE(table_list, ' ', '') || ',', ',' || ? || ',') > 0", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compileFilter(tt.filter)
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}
