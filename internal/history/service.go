// ABOUTME: Read and delete operations over stored conversations and legacy pairs
// ABOUTME: Validates ids before touching the store and logs integrity violations
package history

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ListOptions selects a page of conversations
type ListOptions struct {
	Limit    int
	Offset   int
	Database string
	Table    string
}

// Validate fills in the default limit and checks bounds
func (o *ListOptions) Validate() error {
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit < 1 || o.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d, got %d", models.ErrValidation, MaxLimit, o.Limit)
	}
	if o.Offset < 0 {
		return fmt.Errorf("%w: offset must be non-negative, got %d", models.ErrValidation, o.Offset)
	}
	return nil
}

// Service serves conversation views from a record store
type Service struct {
	store  store.Store
	logger *log.Logger
}

// NewService creates a history service over s
func NewService(s store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Service{store: s, logger: logger}
}

// List returns conversations newest first
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.Conversation, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Pages count conversations, and a conversation may hold any number of
	// records, so the whole scope is grouped before the page is cut.
	filter := store.ScopeFilter(opts.Database, opts.Table)
	msgs, err := s.store.FetchByFilter(ctx, filter, store.Page{})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations (database=%q table=%q): %w", opts.Database, opts.Table, err)
	}

	convs, dropped := Assemble(msgs, 0)
	if dropped > 0 {
		s.logger.Warn("skipped records without conversation id", "count", dropped, "hint", "run architect migrate")
	}
	total := len(convs)
	convs = pageOf(convs, opts.Offset, opts.Limit)
	s.logger.Debug("listed conversations", "count", len(convs), "total", total, "records", len(msgs), "filter", filter.String())
	return convs, nil
}

func pageOf(convs []models.Conversation, offset, limit int) []models.Conversation {
	if offset >= len(convs) {
		return []models.Conversation{}
	}
	convs = convs[offset:]
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs
}

// All returns every conversation in scope, newest first
func (s *Service) All(ctx context.Context, database, table string) ([]models.Conversation, error) {
	msgs, err := s.store.FetchByFilter(ctx, store.ScopeFilter(database, table), store.Page{})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	convs, dropped := Assemble(msgs, 0)
	if dropped > 0 {
		s.logger.Warn("skipped records without conversation id", "count", dropped)
	}
	return convs, nil
}

// Get returns one conversation with its pairs in time order
func (s *Service) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	if err := models.ValidateConversationID(conversationID); err != nil {
		return models.Conversation{}, err
	}

	msgs, err := s.store.FetchByFilter(ctx, store.Eq(store.FieldConversationID, conversationID), store.Page{})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to fetch conversation %s: %w", conversationID, err)
	}

	conv, err := AssembleOne(conversationID, msgs)
	if errors.Is(err, models.ErrDataIntegrity) {
		s.logger.Error("conversation violates pairing invariant", "conversation_id", conversationID, "records", len(msgs), "err", err)
	}
	return conv, err
}

// Delete removes a conversation; deleting an absent conversation reports 0
func (s *Service) Delete(ctx context.Context, conversationID string) (int, error) {
	if err := models.ValidateConversationID(conversationID); err != nil {
		return 0, err
	}

	n, err := s.store.DeleteByConversation(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	s.logger.Info("conversation deleted", "conversation_id", conversationID, "records", n)
	return n, nil
}

// GetPair returns the pair addressed by a user_<uuid> or assistant_<uuid> id
func (s *Service) GetPair(ctx context.Context, itemID string) (models.PairView, error) {
	_, pairUUID, err := models.ParseMessageID(itemID)
	if err != nil {
		return models.PairView{}, err
	}

	userID, assistantID := models.PairIDs(pairUUID)
	msgs, err := s.store.FetchByIDs(ctx, []string{userID, assistantID})
	if err != nil {
		return models.PairView{}, fmt.Errorf("failed to fetch pair %s: %w", pairUUID, err)
	}

	pair, err := AssemblePair(pairUUID, msgs)
	if errors.Is(err, models.ErrDataIntegrity) {
		s.logger.Error("pair violates pairing invariant", "pair_uuid", pairUUID, "records", len(msgs), "err", err)
	}
	return pair, err
}

// DeletePair removes both halves of the pair addressed by itemID
func (s *Service) DeletePair(ctx context.Context, itemID string) error {
	_, pairUUID, err := models.ParseMessageID(itemID)
	if err != nil {
		return err
	}

	userID, assistantID := models.PairIDs(pairUUID)
	if err := s.store.DeleteByIDs(ctx, []string{userID, assistantID}); err != nil {
		return fmt.Errorf("failed to delete pair %s: %w", pairUUID, err)
	}
	s.logger.Info("pair deleted", "pair_uuid", pairUUID)
	return nil
}
