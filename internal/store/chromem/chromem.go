// ABOUTME: Message record store backed by the embedded chromem-go vector database
// ABOUTME: Equality filters run inside chromem; containment and role fallback run in Go
package chromem

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	chromem "github.com/philippgille/chromem-go"

	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
)

// Store implements store.Store on a single chromem collection
type Store struct {
	db     *chromem.DB
	col    *chromem.Collection
	dim    int
	clock  *store.Clock
	logger *log.Logger

	// Writers take the lock exclusively so a reader never sees half a pair
	mu sync.RWMutex
}

var _ store.Store = (*Store)(nil)

// Open loads or creates a persistent chromem database in dir
func Open(ctx context.Context, dir string, dim int, logger *log.Logger) (*Store, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open chromem database at %s: %w", models.ErrConnection, dir, err)
	}
	return New(ctx, db, dim, logger)
}

// NewInMemory creates a store that lives only as long as the process
func NewInMemory(ctx context.Context, dim int, logger *log.Logger) (*Store, error) {
	return New(ctx, chromem.NewDB(), dim, logger)
}

// New wraps db. dim is the embedding dimension every record is expected to have.
func New(ctx context.Context, db *chromem.DB, dim int, logger *log.Logger) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", models.ErrValidation, dim)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	// Embeddings are always supplied, so the collection never embeds on its own
	col, err := db.GetOrCreateCollection(store.CollectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open collection %s: %w", models.ErrConnection, store.CollectionName, err)
	}

	s := &Store{db: db, col: col, dim: dim, clock: store.NewClock(), logger: logger}

	existing, err := s.scan(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		s.clock.Observe(m.Metadata.Timestamp)
	}

	logger.Debug("chromem collection ready", "collection", store.CollectionName, "records", len(existing))
	return s, nil
}

// InsertPair adds both documents; if the second add fails the first is removed
func (s *Store) InsertPair(ctx context.Context, in store.PairInput) (string, string, error) {
	if err := in.Validate(); err != nil {
		return "", "", err
	}
	if len(in.UserEmbedding) != s.dim {
		return "", "", fmt.Errorf("%w: embedding dimension %d, store expects %d", models.ErrValidation, len(in.UserEmbedding), s.dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, assistant := store.BuildPair(s.clock, in)
	if err := s.col.AddDocument(ctx, toDocument(user)); err != nil {
		return "", "", fmt.Errorf("%w: failed to add %s: %w", models.ErrStorage, user.ID, err)
	}
	if err := s.col.AddDocument(ctx, toDocument(assistant)); err != nil {
		if derr := s.col.Delete(ctx, nil, nil, user.ID, assistant.ID); derr != nil {
			s.logger.Error("failed to roll back partial pair", "user_id", user.ID, "err", derr)
		}
		return "", "", fmt.Errorf("%w: failed to add %s: %w", models.ErrStorage, assistant.ID, err)
	}

	s.logger.Debug("pair stored", "conversation_id", in.ConversationID, "user_id", user.ID, "database", in.Database)
	return user.ID, assistant.ID, nil
}

// Upsert replaces documents by id. Documents written before a failure are removed again.
func (s *Store) Upsert(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	for _, m := range msgs {
		if len(m.Embedding) != s.dim {
			return fmt.Errorf("%w: record %s has dimension %d, store expects %d", models.ErrValidation, m.ID, len(m.Embedding), s.dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if err := s.col.AddDocument(ctx, toDocument(m)); err != nil {
			if len(written) > 0 {
				if derr := s.col.Delete(ctx, nil, nil, written...); derr != nil {
					s.logger.Error("failed to roll back partial upsert", "written", len(written), "err", derr)
				}
			}
			return fmt.Errorf("%w: failed to upsert %s: %w", models.ErrStorage, m.ID, err)
		}
		written = append(written, m.ID)
		s.clock.Observe(m.Metadata.Timestamp)
	}
	return nil
}

// QuerySimilar returns the k nearest records matching f
func (s *Store) QuerySimilar(ctx context.Context, embedding []float32, k int, f store.Filter) ([]store.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query dimension %d, store expects %d", models.ErrValidation, len(embedding), s.dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}

	where, residual := splitFilter(f)

	// Residual predicates are checked after ranking, so rank everything
	n := k
	if !residual.IsZero() || n > count {
		n = count
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity query: %w", models.ErrStorage, err)
	}

	matches := make([]store.Match, 0, k)
	for _, r := range results {
		m := fromResult(r)
		if !residual.Matches(m.Metadata) {
			continue
		}
		matches = append(matches, store.Match{Message: m, Similarity: r.Similarity})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// FetchByFilter returns matching records in insertion order
func (s *Store) FetchByFilter(ctx context.Context, f store.Filter, p store.Page) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, residual := splitFilter(f)
	all, err := s.scan(ctx, where)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(all))
	for _, m := range all {
		if residual.Matches(m.Metadata) {
			msgs = append(msgs, m)
		}
	}

	if p.Newest {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}

	if p.Offset >= len(msgs) {
		return []models.Message{}, nil
	}
	msgs = msgs[p.Offset:]
	if p.Limit > 0 && len(msgs) > p.Limit {
		msgs = msgs[:p.Limit]
	}
	return msgs, nil
}

// FetchByIDs returns the stored subset of ids in insertion order
func (s *Store) FetchByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetch(ctx, ids), nil
}

// DeleteByConversation removes every record of a conversation
func (s *Store) DeleteByConversation(ctx context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.scan(ctx, map[string]string{models.KeyConversationID: conversationID})
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}

	ids := make([]string, len(found))
	for i, m := range found {
		ids[i] = m.ID
	}
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("%w: failed to delete conversation %s: %w", models.ErrStorage, conversationID, err)
	}
	return len(ids), nil
}

// DeleteByIDs removes whichever of ids exist
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("%w: failed to delete %d ids: %w", models.ErrStorage, len(ids), err)
	}
	return nil
}

// Count returns the number of stored records
func (s *Store) Count(_ context.Context) (int, error) {
	return s.col.Count(), nil
}

// Close is a no-op; chromem persists every write as it happens
func (s *Store) Close() error {
	return nil
}

// fetch looks up ids one at a time; chromem reports a missing id as an error
func (s *Store) fetch(ctx context.Context, ids []string) []models.Message {
	msgs := make([]models.Message, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		doc, err := s.col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		msgs = append(msgs, fromDocument(doc))
	}
	models.SortInsertionOrder(msgs)
	return msgs
}

// scan enumerates the records matching where. chromem has no listing call,
// so this ranks the whole collection against a probe vector.
func (s *Store) scan(ctx context.Context, where map[string]string) ([]models.Message, error) {
	count := s.col.Count()
	if count == 0 {
		return []models.Message{}, nil
	}

	probe := make([]float32, s.dim)
	probe[0] = 1

	results, err := s.col.QueryEmbedding(ctx, probe, count, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: scan collection: %w", models.ErrStorage, err)
	}

	msgs := make([]models.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, fromResult(r))
	}
	models.SortInsertionOrder(msgs)
	return msgs, nil
}

// splitFilter separates the equality leaves chromem can evaluate from the rest
func splitFilter(f store.Filter) (map[string]string, store.Filter) {
	var (
		where    map[string]string
		residual []store.Filter
	)
	for _, leaf := range f.Leaves() {
		// Legacy records keep their role under another key, so role is checked in Go
		if leaf.Op == store.OpEq && leaf.Field != store.FieldRole {
			if prev, ok := where[string(leaf.Field)]; ok && prev != leaf.Value {
				residual = append(residual, leaf)
				continue
			}
			if where == nil {
				where = map[string]string{}
			}
			where[string(leaf.Field)] = leaf.Value
			continue
		}
		residual = append(residual, leaf)
	}
	return where, store.And(residual...)
}

func toDocument(m models.Message) chromem.Document {
	return chromem.Document{
		ID:        m.ID,
		Content:   m.Body,
		Embedding: m.Embedding,
		Metadata:  m.Metadata.Flatten(),
	}
}

func fromDocument(doc chromem.Document) models.Message {
	return models.Message{
		ID:        doc.ID,
		Body:      doc.Content,
		Embedding: doc.Embedding,
		Metadata:  models.MetadataFromMap(doc.Metadata),
	}
}

func fromResult(r chromem.Result) models.Message {
	return models.Message{
		ID:        r.ID,
		Body:      r.Content,
		Embedding: append([]float32(nil), r.Embedding...),
		Metadata:  models.MetadataFromMap(r.Metadata),
	}
}
