// ABOUTME: Pair construction and the monotonic timestamp clock shared by backends
// ABOUTME: Both halves of a pair get one uuid and one strictly increasing timestamp
package store

import (
	"sync"
	"time"

	"github.com/harper/ddl-architect/internal/models"
)

// Clock hands out strictly increasing UTC timestamps at microsecond resolution
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock returns a clock backed by time.Now
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockFunc returns a clock backed by now, for tests
func NewClockFunc(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next returns the next timestamp, formatted fixed-width
func (c *Clock) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t.Format(models.TimestampLayout)
}

// Observe moves the clock past an already persisted timestamp
func (c *Clock) Observe(ts string) {
	t, err := time.Parse(models.TimestampLayout, ts)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t
	}
}

// BuildPair turns a PairInput into the two records to persist
func BuildPair(clock *Clock, in PairInput) (user, assistant models.Message) {
	pairUUID := models.NewPairUUID()
	userID, assistantID := models.PairIDs(pairUUID)
	ts := clock.Next()

	tables := models.SplitTables(models.JoinTables(in.Tables))

	base := models.Metadata{
		Database:       in.Database,
		Tables:         tables,
		Timestamp:      ts,
		ConversationID: in.ConversationID,
		SchemaVersion:  in.SchemaVersion,
	}

	userMD := base
	userMD.Role = models.RoleUser
	assistantMD := base
	assistantMD.Role = models.RoleAssistant

	user = models.Message{ID: userID, Body: in.UserBody, Embedding: in.UserEmbedding, Metadata: userMD}
	assistant = models.Message{ID: assistantID, Body: in.AssistantBody, Embedding: in.AssistantEmbedding, Metadata: assistantMD}
	return user, assistant
}
