// ABOUTME: Finds prior exchanges relevant to a new prompt and formats them as model context
// ABOUTME: Best effort: every failure degrades to an empty context
package retrieval

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
)

const (
	DefaultTopK     = 5
	DefaultMaxPairs = 3
)

// Retriever builds context blocks from similar stored pairs
type Retriever struct {
	store    store.Store
	topK     int
	maxPairs int
	logger   *log.Logger
}

// New creates a retriever; non-positive k or maxPairs use the defaults
func New(s store.Store, topK, maxPairs int, logger *log.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Retriever{store: s, topK: topK, maxPairs: maxPairs, logger: logger}
}

type qa struct {
	question string
	answer   string
}

// Context returns up to maxPairs "Related Q/A" blocks from the same database
// that mention one of tables, or "" when nothing qualifies.
func (r *Retriever) Context(ctx context.Context, embedding []float32, database string, tables []string) string {
	filter := store.Filter{}
	if database != "" {
		filter = store.Eq(store.FieldDatabase, database)
	}

	matches, err := store.SimilarMatches(ctx, r.store, r.logger, embedding, r.topK, filter)
	if err != nil || len(matches) == 0 {
		return ""
	}

	pairs := r.pair(ctx, matches)

	var blocks []string
	for _, p := range pairs {
		if !mentionsAny(p, tables) {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("Related Q: %s\nA: %s", p.question, p.answer))
		if len(blocks) == r.maxPairs {
			break
		}
	}

	r.logger.Debug("context retrieved", "database", database, "hits", len(matches), "pairs", len(pairs), "used", len(blocks))
	return strings.Join(blocks, "\n")
}

// pair joins hits by pair uuid in rank order, fetching counterparts the query did not return
func (r *Retriever) pair(ctx context.Context, matches []store.Match) []qa {
	type halves struct {
		user, assistant *models.Message
	}

	byUUID := map[string]*halves{}
	var order []string
	for i := range matches {
		m := &matches[i].Message
		role, pairUUID, err := models.ParseMessageID(m.ID)
		if err != nil {
			continue
		}
		h, ok := byUUID[pairUUID]
		if !ok {
			h = &halves{}
			byUUID[pairUUID] = h
			order = append(order, pairUUID)
		}
		if role == models.RoleUser {
			h.user = m
		} else {
			h.assistant = m
		}
	}

	var missing []string
	for _, id := range order {
		h := byUUID[id]
		userID, assistantID := models.PairIDs(id)
		if h.user == nil {
			missing = append(missing, userID)
		}
		if h.assistant == nil {
			missing = append(missing, assistantID)
		}
	}

	if len(missing) > 0 {
		fetched, err := r.store.FetchByIDs(ctx, missing)
		if err != nil {
			r.logger.Warn("failed to fetch pair counterparts", "count", len(missing), "err", err)
		}
		for i := range fetched {
			m := &fetched[i]
			role, pairUUID, err := models.ParseMessageID(m.ID)
			if err != nil || byUUID[pairUUID] == nil {
				continue
			}
			if role == models.RoleUser {
				byUUID[pairUUID].user = m
			} else {
				byUUID[pairUUID].assistant = m
			}
		}
	}

	out := make([]qa, 0, len(order))
	for _, id := range order {
		h := byUUID[id]
		if h.user == nil || h.assistant == nil {
			continue
		}
		out = append(out, qa{question: h.user.Body, answer: h.assistant.Body})
	}
	return out
}

func mentionsAny(p qa, tables []string) bool {
	for _, t := range tables {
		if t == "" {
			continue
		}
		if strings.Contains(p.question, t) || strings.Contains(p.answer, t) {
			return true
		}
	}
	return false
}
