// ABOUTME: Message is one half of a prompt/response pair in the record store
// ABOUTME: Metadata converts to and from the flat string map vector stores keep
package models

import (
	"sort"
	"strings"
)

// Role identifies which side of a pair a message holds
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two pair roles
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Metadata keys as persisted by every backend
const (
	KeyDatabase       = "database"
	KeyTables         = "tables"
	KeyRole           = "role"
	KeyTimestamp      = "timestamp"
	KeyConversationID = "conversation_id"
	KeySchemaVersion  = "schema_version"

	// KeyLegacyType is the pre-conversation name of the role key
	KeyLegacyType = "type"
)

// TimestampLayout is fixed width so lexicographic order matches time order
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// SchemaVersion tags records written by the current lifecycle manager
const SchemaVersion = "conv-pair-1"

// Metadata is the scalar/list metadata attached to a message
type Metadata struct {
	Database       string            `json:"database" yaml:"database"`
	Tables         []string          `json:"tables" yaml:"tables"`
	Role           Role              `json:"role" yaml:"role"`
	Timestamp      string            `json:"timestamp" yaml:"timestamp"`
	ConversationID string            `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	SchemaVersion  string            `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	Extra          map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Message is a single stored record: id, body, embedding and metadata
type Message struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Embedding []float32 `json:"-"`
	Metadata  Metadata  `json:"metadata"`
}

// PairUUID returns the uuid suffix of a canonical message id, or "" for other ids
func (m Message) PairUUID() string {
	_, id, err := ParseMessageID(m.ID)
	if err != nil {
		return ""
	}
	return id
}

// JoinTables serializes a table list for storage. Names are trimmed and empty
// names dropped, so the stored form never has blanks around a separator.
func JoinTables(tables []string) string {
	kept := make([]string, 0, len(tables))
	for _, t := range tables {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, ",")
}

// ValidTableName reports whether name survives the comma-joined storage form
func ValidTableName(name string) bool {
	return !strings.Contains(name, ",")
}

// SplitTables parses a stored table list, trimming whitespace and dropping empties
func SplitTables(s string) []string {
	out := []string{}
	if strings.TrimSpace(s) == "" {
		return out
	}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HasTable reports whether table is an element of the metadata table list
func (m Metadata) HasTable(table string) bool {
	for _, t := range m.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// SameScope reports whether two metadata values agree on database and tables
func (m Metadata) SameScope(o Metadata) bool {
	if m.Database != o.Database || len(m.Tables) != len(o.Tables) {
		return false
	}
	for i := range m.Tables {
		if m.Tables[i] != o.Tables[i] {
			return false
		}
	}
	return true
}

// Flatten returns the string map form used by vector stores
func (m Metadata) Flatten() map[string]string {
	out := make(map[string]string, 6+len(m.Extra))
	for k, v := range m.Extra {
		out[k] = v
	}
	out[KeyDatabase] = m.Database
	out[KeyTables] = JoinTables(m.Tables)
	if m.Role != "" {
		out[KeyRole] = string(m.Role)
	}
	if m.Timestamp != "" {
		out[KeyTimestamp] = m.Timestamp
	}
	if m.ConversationID != "" {
		out[KeyConversationID] = m.ConversationID
	}
	if m.SchemaVersion != "" {
		out[KeySchemaVersion] = m.SchemaVersion
	}
	return out
}

// MetadataFromMap parses the flat form; unknown keys are kept in Extra
func MetadataFromMap(raw map[string]string) Metadata {
	md := Metadata{Tables: []string{}}
	for k, v := range raw {
		switch k {
		case KeyDatabase:
			md.Database = v
		case KeyTables:
			md.Tables = SplitTables(v)
		case KeyRole:
			md.Role = Role(v)
		case KeyTimestamp:
			md.Timestamp = v
		case KeyConversationID:
			md.ConversationID = v
		case KeySchemaVersion:
			md.SchemaVersion = v
		default:
			if md.Extra == nil {
				md.Extra = map[string]string{}
			}
			md.Extra[k] = v
		}
	}
	return md
}

// EffectiveRole returns the role, falling back to the legacy type key
func (m Metadata) EffectiveRole() Role {
	if m.Role != "" {
		return m.Role
	}
	return Role(m.Extra[KeyLegacyType])
}

// SortInsertionOrder orders messages by timestamp, then pair, user before assistant
func SortInsertionOrder(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].Metadata, msgs[j].Metadata
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if pi, pj := msgs[i].PairUUID(), msgs[j].PairUUID(); pi != pj {
			return pi < pj
		}
		if a.Role != b.Role {
			return a.Role == RoleUser
		}
		return msgs[i].ID < msgs[j].ID
	})
}
