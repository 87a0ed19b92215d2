// ABOUTME: Conversation session: the id new analyses are appended under
// ABOUTME: A conversation has one database/table scope; changing scope starts a new one
package architect

import (
	"sync"

	"github.com/harper/ddl-architect/internal/models"
)

// Session owns the current conversation id for a sequence of analyses
type Session struct {
	mu sync.Mutex
	id string

	// scope of the current conversation; unknown until the first analysis
	// or, for a resumed conversation, until its stored records are read
	scope  models.Metadata
	scoped bool
}

// ScopeLookup reports the stored scope of a conversation, ok=false when it has no records
type ScopeLookup func(conversationID string) (scope models.Metadata, ok bool)

// NewSession returns a session with no conversation yet
func NewSession() *Session {
	return &Session{}
}

// ResumeSession continues an existing conversation
func ResumeSession(conversationID string) (*Session, error) {
	if err := models.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}
	return &Session{id: conversationID}, nil
}

// ID returns the current conversation id, or "" before the first analysis
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Reset ends the current conversation; the next analysis starts a new one
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	s.scope = models.Metadata{}
	s.scoped = false
}

// claim returns the conversation an analysis of database/tables belongs to.
// A new conversation is started when the session has none or when its scope
// differs from the request's; started reports that.
func (s *Session) claim(database string, tables []string, lookup ScopeLookup) (id string, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := models.Metadata{Database: database, Tables: models.SplitTables(models.JoinTables(tables))}

	if s.id != "" && !s.scoped && lookup != nil {
		if stored, ok := lookup(s.id); ok {
			s.scope, s.scoped = stored, true
		}
	}

	if s.id == "" || (s.scoped && !s.scope.SameScope(want)) {
		s.id = models.NewConversationID()
		started = true
	}
	s.scope, s.scoped = want, true
	return s.id, started
}
