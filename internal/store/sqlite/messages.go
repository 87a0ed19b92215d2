// ABOUTME: Message record store backed by SQLite
// ABOUTME: Pairs are written in one transaction; similarity is scored in Go
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
)

const messageColumns = `id, body, role, database_name, table_list, ts, conversation_id, schema_version, extra, vector`

// Store implements store.Store on a SQLite database
type Store struct {
	db     *DB
	clock  *store.Clock
	logger *log.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an open database. The clock is advanced past the newest stored timestamp.
func NewStore(ctx context.Context, db *DB, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Store{db: db, clock: store.NewClock(), logger: logger}

	var latest sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT MAX(ts) FROM messages`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("%w: failed to read latest timestamp: %w", models.ErrStorage, err)
	}
	if latest.Valid {
		s.clock.Observe(latest.String)
	}
	return s, nil
}

// InsertPair writes both messages in a single transaction
func (s *Store) InsertPair(ctx context.Context, in store.PairInput) (string, string, error) {
	if err := in.Validate(); err != nil {
		return "", "", err
	}

	user, assistant := store.BuildPair(s.clock, in)
	if err := s.write(ctx, []models.Message{user, assistant}); err != nil {
		return "", "", fmt.Errorf("%w: failed to insert pair for %s: %w", models.ErrStorage, in.ConversationID, err)
	}

	s.logger.Debug("pair stored", "conversation_id", in.ConversationID, "user_id", user.ID, "database", in.Database)
	return user.ID, assistant.ID, nil
}

// Upsert writes raw records in a single transaction
func (s *Store) Upsert(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := s.write(ctx, msgs); err != nil {
		return fmt.Errorf("%w: failed to upsert %d records: %w", models.ErrStorage, len(msgs), err)
	}
	for _, m := range msgs {
		s.clock.Observe(m.Metadata.Timestamp)
	}
	return nil
}

func (s *Store) write(ctx context.Context, msgs []models.Message) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			role = excluded.role,
			database_name = excluded.database_name,
			table_list = excluded.table_list,
			ts = excluded.ts,
			conversation_id = excluded.conversation_id,
			schema_version = excluded.schema_version,
			extra = excluded.extra,
			vector = excluded.vector
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range msgs {
		var extra sql.NullString
		if len(m.Metadata.Extra) > 0 {
			raw, err := json.Marshal(m.Metadata.Extra)
			if err != nil {
				return err
			}
			extra = sql.NullString{String: string(raw), Valid: true}
		}

		md := m.Metadata
		if _, err := stmt.ExecContext(ctx, m.ID, m.Body, string(md.Role), md.Database,
			models.JoinTables(md.Tables), md.Timestamp, md.ConversationID, md.SchemaVersion,
			extra, vectorToBlob(m.Embedding)); err != nil {
			return fmt.Errorf("write %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// QuerySimilar scores every matching record by cosine similarity
func (s *Store) QuerySimilar(ctx context.Context, embedding []float32, k int, f store.Filter) ([]store.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	where, args := compileFilter(f)
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity query: %w", models.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var results []store.Match
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: similarity scan: %w", models.ErrStorage, err)
		}
		results = append(results, store.Match{
			Message:    m,
			Similarity: CosineSimilarity(embedding, m.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: similarity query: %w", models.ErrStorage, err)
	}

	// Sort by similarity descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// FetchByFilter returns matching records in insertion order
func (s *Store) FetchByFilter(ctx context.Context, f store.Filter, p store.Page) ([]models.Message, error) {
	where, args := compileFilter(f)

	order := " ORDER BY seq ASC"
	if p.Newest {
		order = " ORDER BY seq DESC"
	}

	limit := ""
	if p.Limit > 0 || p.Offset > 0 {
		n := p.Limit
		if n <= 0 {
			n = -1
		}
		limit = " LIMIT ? OFFSET ?"
		args = append(args, n, p.Offset)
	}

	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages`+where+order+limit, args...)
}

// FetchByIDs returns the stored subset of ids
func (s *Store) FetchByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	in, args := inClause(ids)
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages WHERE id IN `+in+` ORDER BY seq ASC`, args...)
}

// DeleteByConversation removes a conversation and reports the number of records removed
func (s *Store) DeleteByConversation(ctx context.Context, conversationID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete conversation %s: %w", models.ErrStorage, conversationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count deleted rows: %w", models.ErrStorage, err)
	}
	return int(n), nil
}

// DeleteByIDs removes whichever of ids exist
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id IN `+in, args...); err != nil {
		return fmt.Errorf("%w: failed to delete %d ids: %w", models.ErrStorage, len(ids), err)
	}
	return nil
}

// Count returns the number of stored records
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count records: %w", models.ErrStorage, err)
	}
	return n, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %w", models.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", models.ErrStorage, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch: %w", models.ErrStorage, err)
	}
	return msgs, nil
}

func scanMessage(rows *sql.Rows) (models.Message, error) {
	var (
		m      models.Message
		role   string
		tables string
		extra  sql.NullString
		blob   []byte
	)

	err := rows.Scan(&m.ID, &m.Body, &role, &m.Metadata.Database, &tables, &m.Metadata.Timestamp,
		&m.Metadata.ConversationID, &m.Metadata.SchemaVersion, &extra, &blob)
	if err != nil {
		return m, err
	}

	m.Metadata.Role = models.Role(role)
	m.Metadata.Tables = models.SplitTables(tables)
	m.Embedding = blobToVector(blob)

	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &m.Metadata.Extra); err != nil {
			m.Metadata.Extra = nil
		}
	}
	return m, nil
}

// compileFilter renders a filter as a parameterized WHERE clause
func compileFilter(f store.Filter) (string, []any) {
	leaves := f.Leaves()
	if len(leaves) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(leaves))
	args := make([]any, 0, len(leaves))
	for _, leaf := range leaves {
		col := columnFor(leaf.Field)
		switch leaf.Op {
		case store.OpEq:
			clauses = append(clauses, col+" = ?")
		case store.OpContains:
			if leaf.Field == store.FieldTables {
				// table_list is written by models.JoinTables: trimmed names, no blanks around commas
				clauses = append(clauses, "instr(',' || table_list || ',', ',' || ? || ',') > 0")
			} else {
				clauses = append(clauses, "instr("+col+", ?) > 0")
			}
		}
		args = append(args, leaf.Value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func columnFor(field store.Field) string {
	switch field {
	case store.FieldDatabase:
		return "database_name"
	case store.FieldTables:
		return "table_list"
	case store.FieldRole:
		return "COALESCE(NULLIF(role, ''), json_extract(extra, '$.type'), '')"
	case store.FieldConversationID:
		return "conversation_id"
	}
	return "''"
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}
