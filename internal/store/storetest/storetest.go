// ABOUTME: Behavioral test suite every store.Store backend must pass
// ABOUTME: Backends call Run from their own tests with a constructor for a fresh store
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
)

// Factory returns an empty store; the suite closes it
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertPairThenFetchByIDs", testInsertPairThenFetchByIDs},
		{"TablesRoundTrip", testTablesRoundTrip},
		{"InsertPairRejectsInvalid", testInsertPairRejectsInvalid},
		{"FetchByIDsIgnoresMissing", testFetchByIDsIgnoresMissing},
		{"ScopeFiltering", testScopeFiltering},
		{"TableNamesWithSpaces", testTableNamesWithSpaces},
		{"FetchByFilterPaging", testFetchByFilterPaging},
		{"DeleteByConversationIdempotent", testDeleteByConversationIdempotent},
		{"DeleteByIDs", testDeleteByIDs},
		{"QuerySimilarRanksAndFilters", testQuerySimilarRanksAndFilters},
		{"QuerySimilarEmpty", testQuerySimilarEmpty},
		{"UpsertReplaces", testUpsertReplaces},
		{"ConcurrentInserts", testConcurrentInserts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer func() { _ = s.Close() }()
			tt.fn(t, s)
		})
	}
}

// Vector returns a unit vector of dimension dim pointing along axis
func Vector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis%dim] = 1
	return v
}

// Dim is the embedding dimension used by the suite
const Dim = 8

func pairInput(conv, database string, tables []string, axis int) store.PairInput {
	return store.PairInput{
		UserBody:           fmt.Sprintf("prompt about %v", tables),
		AssistantBody:      fmt.Sprintf("CREATE TABLE dim_%d (id INT);", axis),
		UserEmbedding:      Vector(Dim, axis),
		AssistantEmbedding: Vector(Dim, axis+1),
		Database:           database,
		Tables:             tables,
		SchemaVersion:      models.SchemaVersion,
		ConversationID:     conv,
	}
}

func mustInsert(t *testing.T, s store.Store, in store.PairInput) (string, string) {
	t.Helper()
	u, a, err := s.InsertPair(context.Background(), in)
	if err != nil {
		t.Fatalf("InsertPair() error = %v", err)
	}
	return u, a
}

func conversationIDs(msgs []models.Message) []string {
	set := map[string]bool{}
	for _, m := range msgs {
		set[m.Metadata.ConversationID] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func testInsertPairThenFetchByIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := models.NewConversationID()
	userID, assistantID := mustInsert(t, s, pairInput(conv, "sales", []string{"orders", "customers"}, 0))

	msgs, err := s.FetchByIDs(ctx, []string{userID, assistantID})
	if err != nil {
		t.Fatalf("FetchByIDs() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("FetchByIDs() returned %d records, want 2", len(msgs))
	}

	byID := map[string]models.Message{}
	for _, m := range msgs {
		byID[m.ID] = m
	}
	user, assistant := byID[userID], byID[assistantID]

	if user.Metadata.Role != models.RoleUser || assistant.Metadata.Role != models.RoleAssistant {
		t.Errorf("roles = %q/%q", user.Metadata.Role, assistant.Metadata.Role)
	}
	if user.Metadata.Timestamp == "" || user.Metadata.Timestamp != assistant.Metadata.Timestamp {
		t.Errorf("timestamps = %q/%q, want identical", user.Metadata.Timestamp, assistant.Metadata.Timestamp)
	}
	if user.Metadata.ConversationID != conv || assistant.Metadata.ConversationID != conv {
		t.Errorf("conversation ids = %q/%q, want %q", user.Metadata.ConversationID, assistant.Metadata.ConversationID, conv)
	}
	if !user.Metadata.SameScope(assistant.Metadata) {
		t.Error("database/tables differ across the pair")
	}
	if user.PairUUID() != assistant.PairUUID() {
		t.Error("pair uuids differ")
	}
	if user.Body == assistant.Body {
		t.Error("bodies should differ")
	}
	if user.Metadata.SchemaVersion != models.SchemaVersion {
		t.Errorf("schema version = %q", user.Metadata.SchemaVersion)
	}
	if len(user.Embedding) != Dim {
		t.Errorf("embedding dimension = %d, want %d", len(user.Embedding), Dim)
	}
}

func testTablesRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	cases := [][]string{
		{"orders"},
		{"fact_sales", "dim_customer", "dim_date"},
		{},
	}
	for i, tables := range cases {
		userID, _ := mustInsert(t, s, pairInput(models.NewConversationID(), "sales", tables, i))
		msgs, err := s.FetchByIDs(ctx, []string{userID})
		if err != nil || len(msgs) != 1 {
			t.Fatalf("FetchByIDs() = %d records, err %v", len(msgs), err)
		}
		if !reflect.DeepEqual(msgs[0].Metadata.Tables, tables) {
			t.Errorf("tables = %#v, want %#v", msgs[0].Metadata.Tables, tables)
		}
	}
}

func testInsertPairRejectsInvalid(t *testing.T, s store.Store) {
	in := pairInput("", "sales", []string{"orders"}, 0)
	if _, _, err := s.InsertPair(context.Background(), in); !errors.Is(err, models.ErrValidation) {
		t.Errorf("InsertPair() without conversation error = %v, want ErrValidation", err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("Count() = %d after rejected insert, want 0", n)
	}
}

func testFetchByIDsIgnoresMissing(t *testing.T, s store.Store) {
	userID, _ := mustInsert(t, s, pairInput(models.NewConversationID(), "sales", []string{"orders"}, 0))
	ghost, _ := models.PairIDs(models.NewPairUUID())

	msgs, err := s.FetchByIDs(context.Background(), []string{userID, ghost})
	if err != nil {
		t.Fatalf("FetchByIDs() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != userID {
		t.Errorf("FetchByIDs() = %v, want only %s", msgs, userID)
	}

	none, err := s.FetchByIDs(context.Background(), nil)
	if err != nil || len(none) != 0 {
		t.Errorf("FetchByIDs(nil) = %v, %v", none, err)
	}
}

func testScopeFiltering(t *testing.T, s store.Store) {
	ctx := context.Background()
	convA, convB, convC := models.NewConversationID(), models.NewConversationID(), models.NewConversationID()
	mustInsert(t, s, pairInput(convA, "sales", []string{"orders"}, 0))
	mustInsert(t, s, pairInput(convB, "sales", []string{"customers"}, 2))
	mustInsert(t, s, pairInput(convC, "hr", []string{"orders"}, 4))

	sorted := func(ids ...string) []string {
		sort.Strings(ids)
		return ids
	}

	tests := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{"database", store.ScopeFilter("sales", ""), sorted(convA, convB)},
		{"table", store.ScopeFilter("", "orders"), sorted(convA, convC)},
		{"both", store.ScopeFilter("sales", "orders"), sorted(convA)},
		{"none", store.ScopeFilter("", ""), sorted(convA, convB, convC)},
		{"no match", store.ScopeFilter("finance", ""), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := s.FetchByFilter(ctx, tt.filter, store.Page{})
			if err != nil {
				t.Fatalf("FetchByFilter() error = %v", err)
			}
			if got := conversationIDs(msgs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("conversations = %v, want %v", got, tt.want)
			}
			if len(msgs) != 2*len(tt.want) {
				t.Errorf("records = %d, want %d", len(msgs), 2*len(tt.want))
			}
		})
	}
}

func testTableNamesWithSpaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := models.NewConversationID()
	userID, _ := mustInsert(t, s, pairInput(conv, "sales", []string{" order items", "customers "}, 0))

	stored, err := s.FetchByIDs(ctx, []string{userID})
	if err != nil || len(stored) != 1 {
		t.Fatalf("FetchByIDs() = %d records, err %v", len(stored), err)
	}
	if want := []string{"order items", "customers"}; !reflect.DeepEqual(stored[0].Metadata.Tables, want) {
		t.Errorf("tables = %#v, want %#v", stored[0].Metadata.Tables, want)
	}

	tests := []struct {
		table string
		want  int
	}{
		{"order items", 2},
		{" order items ", 2},
		{"customers", 2},
		{"orderitems", 0},
		{"order", 0},
	}
	for _, tt := range tests {
		f := store.Contains(store.FieldTables, tt.table)
		msgs, err := s.FetchByFilter(ctx, f, store.Page{})
		if err != nil {
			t.Fatalf("FetchByFilter(%q) error = %v", tt.table, err)
		}
		if len(msgs) != tt.want {
			t.Errorf("FetchByFilter(%q) = %d records, want %d", tt.table, len(msgs), tt.want)
		}
		for _, m := range msgs {
			if !f.Matches(m.Metadata) {
				t.Errorf("backend returned %s for %q but Filter.Matches disagrees", m.ID, tt.table)
			}
		}
	}

	if _, _, err := s.InsertPair(ctx, pairInput(conv, "sales", []string{"a,b"}, 1)); !errors.Is(err, models.ErrValidation) {
		t.Errorf("InsertPair() with comma in table name error = %v, want ErrValidation", err)
	}
}

func testFetchByFilterPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	var userIDs []string
	for i := 0; i < 3; i++ {
		u, _ := mustInsert(t, s, pairInput(models.NewConversationID(), "sales", []string{"orders"}, i))
		userIDs = append(userIDs, u)
	}

	all, err := s.FetchByFilter(ctx, store.Filter{}, store.Page{})
	if err != nil {
		t.Fatalf("FetchByFilter() error = %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("records = %d, want 6", len(all))
	}
	if all[0].ID != userIDs[0] || all[2].ID != userIDs[1] || all[4].ID != userIDs[2] {
		t.Errorf("records not in insertion order: %s %s %s", all[0].ID, all[2].ID, all[4].ID)
	}
	if all[1].Metadata.Role != models.RoleAssistant {
		t.Errorf("second record role = %s, want assistant after its user", all[1].Metadata.Role)
	}

	page, err := s.FetchByFilter(ctx, store.Filter{}, store.Page{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("FetchByFilter(page) error = %v", err)
	}
	if len(page) != 2 || page[0].ID != userIDs[1] {
		t.Errorf("page = %d records starting %v, want 2 starting %s", len(page), page, userIDs[1])
	}

	newest, err := s.FetchByFilter(ctx, store.Filter{}, store.Page{Limit: 2, Newest: true})
	if err != nil {
		t.Fatalf("FetchByFilter(newest) error = %v", err)
	}
	if len(newest) != 2 || newest[1].ID != userIDs[2] {
		t.Errorf("newest page = %v, want the last pair", newest)
	}

	tail, err := s.FetchByFilter(ctx, store.Filter{}, store.Page{Offset: 5})
	if err != nil {
		t.Fatalf("FetchByFilter(offset only) error = %v", err)
	}
	if len(tail) != 1 {
		t.Errorf("offset-only page = %d records, want 1", len(tail))
	}
}

func testDeleteByConversationIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := models.NewConversationID()
	other := models.NewConversationID()
	mustInsert(t, s, pairInput(conv, "sales", []string{"orders"}, 0))
	mustInsert(t, s, pairInput(conv, "sales", []string{"orders"}, 1))
	mustInsert(t, s, pairInput(other, "sales", []string{"orders"}, 2))

	n, err := s.DeleteByConversation(ctx, conv)
	if err != nil {
		t.Fatalf("DeleteByConversation() error = %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}

	again, err := s.DeleteByConversation(ctx, conv)
	if err != nil || again != 0 {
		t.Errorf("second delete = %d, %v, want 0, nil", again, err)
	}

	left, err := s.FetchByFilter(ctx, store.Eq(store.FieldConversationID, conv), store.Page{})
	if err != nil || len(left) != 0 {
		t.Errorf("conversation still has %d records (err %v)", len(left), err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2 for the untouched conversation", n)
	}
}

func testDeleteByIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID, assistantID := mustInsert(t, s, pairInput(models.NewConversationID(), "sales", []string{"orders"}, 0))
	ghost, _ := models.PairIDs(models.NewPairUUID())

	if err := s.DeleteByIDs(ctx, []string{userID, assistantID, ghost}); err != nil {
		t.Fatalf("DeleteByIDs() error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
	if err := s.DeleteByIDs(ctx, []string{ghost}); err != nil {
		t.Errorf("DeleteByIDs() on missing id error = %v", err)
	}
}

func testQuerySimilarRanksAndFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	userSales, _ := mustInsert(t, s, pairInput(models.NewConversationID(), "sales", []string{"orders"}, 0))
	mustInsert(t, s, pairInput(models.NewConversationID(), "sales", []string{"customers"}, 4))
	mustInsert(t, s, pairInput(models.NewConversationID(), "hr", []string{"orders"}, 0))

	matches, err := s.QuerySimilar(ctx, Vector(Dim, 0), 3, store.Eq(store.FieldDatabase, "sales"))
	if err != nil {
		t.Fatalf("QuerySimilar() error = %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(matches))
	}
	if matches[0].Message.ID != userSales {
		t.Errorf("top match = %s, want %s", matches[0].Message.ID, userSales)
	}
	for i, m := range matches {
		if m.Message.Metadata.Database != "sales" {
			t.Errorf("match %d from database %q, want sales", i, m.Message.Metadata.Database)
		}
		if i > 0 && m.Similarity > matches[i-1].Similarity {
			t.Errorf("matches not sorted by similarity at %d", i)
		}
	}

	withTable, err := s.QuerySimilar(ctx, Vector(Dim, 0), 10,
		store.And(store.Eq(store.FieldDatabase, "sales"), store.Contains(store.FieldTables, "customers")))
	if err != nil {
		t.Fatalf("QuerySimilar(compound) error = %v", err)
	}
	if len(withTable) != 2 {
		t.Errorf("compound matches = %d, want 2", len(withTable))
	}
}

func testQuerySimilarEmpty(t *testing.T, s store.Store) {
	ctx := context.Background()
	matches, err := s.QuerySimilar(ctx, Vector(Dim, 0), 5, store.Filter{})
	if err != nil {
		t.Fatalf("QuerySimilar() on empty store error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %d, want 0", len(matches))
	}

	mustInsert(t, s, pairInput(models.NewConversationID(), "sales", []string{"orders"}, 0))
	none, err := s.QuerySimilar(ctx, Vector(Dim, 0), 5, store.Eq(store.FieldDatabase, "finance"))
	if err != nil || len(none) != 0 {
		t.Errorf("QuerySimilar(no match) = %d, %v", len(none), err)
	}

	bodies := store.SimilarBodies(ctx, s, nil, Vector(Dim, 0), 5, store.Filter{})
	if len(bodies) != 2 {
		t.Errorf("SimilarBodies() = %d, want 2", len(bodies))
	}
}

func testUpsertReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	legacy := models.Message{
		ID:        "legacy-1",
		Body:      "old prompt",
		Embedding: Vector(Dim, 3),
		Metadata: models.Metadata{
			Database:  "sales",
			Tables:    []string{"orders"},
			Timestamp: "2024-01-01T00:00:00.000000Z",
			Extra:     map[string]string{models.KeyLegacyType: "user"},
		},
	}
	if err := s.Upsert(ctx, []models.Message{legacy}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.FetchByIDs(ctx, []string{"legacy-1"})
	if err != nil || len(got) != 1 {
		t.Fatalf("FetchByIDs() = %v, %v", got, err)
	}
	if got[0].Metadata.EffectiveRole() != models.RoleUser {
		t.Errorf("legacy role = %q, want user from type key", got[0].Metadata.EffectiveRole())
	}

	byRole, err := s.FetchByFilter(ctx, store.Eq(store.FieldRole, "user"), store.Page{})
	if err != nil || len(byRole) != 1 {
		t.Errorf("role filter over legacy record = %d, %v", len(byRole), err)
	}

	legacy.Metadata.ConversationID = models.NewConversationID()
	legacy.Metadata.Role = models.RoleUser
	legacy.Metadata.Extra = nil
	if err := s.Upsert(ctx, []models.Message{legacy}); err != nil {
		t.Fatalf("Upsert(replace) error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d after replace, want 1", n)
	}
	got, _ = s.FetchByIDs(ctx, []string{"legacy-1"})
	if len(got) != 1 || got[0].Metadata.ConversationID != legacy.Metadata.ConversationID {
		t.Errorf("replaced record = %+v", got)
	}

	// New pairs must sort after imported history
	u, _ := mustInsert(t, s, pairInput(models.NewConversationID(), "sales", []string{"orders"}, 1))
	fresh, _ := s.FetchByIDs(ctx, []string{u})
	if len(fresh) != 1 || fresh[0].Metadata.Timestamp <= legacy.Metadata.Timestamp {
		t.Errorf("new pair timestamp %v should follow imported history", fresh)
	}
}

func testConcurrentInserts(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := models.NewConversationID()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := s.InsertPair(ctx, pairInput(conv, "sales", []string{"orders"}, i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent InsertPair() error = %v", err)
	}

	msgs, err := s.FetchByFilter(ctx, store.Eq(store.FieldConversationID, conv), store.Page{})
	if err != nil {
		t.Fatalf("FetchByFilter() error = %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("records = %d, want 20", len(msgs))
	}

	stamps := map[string]int{}
	for _, m := range msgs {
		stamps[m.Metadata.Timestamp]++
	}
	for ts, n := range stamps {
		if n != 2 {
			t.Errorf("timestamp %s shared by %d records, want exactly one pair", ts, n)
		}
	}
}
