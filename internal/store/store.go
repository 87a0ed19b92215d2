// ABOUTME: Vector record store contract shared by the sqlite and chromem backends
// ABOUTME: Messages are stored in pairs; a pair is the only atomic write unit
package store

import (
	"context"
	"fmt"

	"github.com/harper/ddl-architect/internal/models"
)

// CollectionName is the logical collection every backend stores messages in
const CollectionName = "chat_history"

// Store persists paired messages with embeddings and metadata.
// Implementations must be safe for concurrent use.
type Store interface {
	// InsertPair writes both halves of a pair or neither
	InsertPair(ctx context.Context, in PairInput) (userID, assistantID string, err error)
	// QuerySimilar returns up to k records nearest to embedding that match f
	QuerySimilar(ctx context.Context, embedding []float32, k int, f Filter) ([]Match, error)
	// FetchByFilter returns records matching f in insertion order, paginated by p
	FetchByFilter(ctx context.Context, f Filter, p Page) ([]models.Message, error)
	// FetchByIDs returns the subset of ids that exist
	FetchByIDs(ctx context.Context, ids []string) ([]models.Message, error)
	// DeleteByConversation removes every record of a conversation and reports how many
	DeleteByConversation(ctx context.Context, conversationID string) (int, error)
	// DeleteByIDs removes the subset of ids that exist
	DeleteByIDs(ctx context.Context, ids []string) error
	// Upsert writes raw records atomically, replacing any with the same id
	Upsert(ctx context.Context, msgs []models.Message) error
	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)
	Close() error
}

// PairInput is everything a caller supplies for a new pair
type PairInput struct {
	UserBody           string
	AssistantBody      string
	UserEmbedding      []float32
	AssistantEmbedding []float32
	Database           string
	Tables             []string
	SchemaVersion      string
	ConversationID     string
}

// Validate checks the fields every backend requires
func (in PairInput) Validate() error {
	if in.ConversationID == "" {
		return fmt.Errorf("%w: pair requires a conversation id", models.ErrValidation)
	}
	if len(in.UserEmbedding) == 0 || len(in.AssistantEmbedding) == 0 {
		return fmt.Errorf("%w: pair requires both embeddings", models.ErrValidation)
	}
	if len(in.UserEmbedding) != len(in.AssistantEmbedding) {
		return fmt.Errorf("%w: embedding dimensions differ (%d vs %d)",
			models.ErrValidation, len(in.UserEmbedding), len(in.AssistantEmbedding))
	}
	for _, t := range in.Tables {
		if !models.ValidTableName(t) {
			return fmt.Errorf("%w: table name %q contains a comma", models.ErrValidation, t)
		}
	}
	return nil
}

// Match is a similarity hit
type Match struct {
	Message    models.Message
	Similarity float32
}

// Page selects a window of records; Limit 0 means no limit
type Page struct {
	Limit  int
	Offset int
	// Newest reverses insertion order
	Newest bool
}
