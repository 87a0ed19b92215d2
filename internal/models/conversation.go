// ABOUTME: Read-side views of stored pairs: a pair and a whole conversation
// ABOUTME: Field names follow the JSON shape the web client consumes
package models

// PairView is one prompt/response exchange as returned to callers
type PairView struct {
	ID             string   `json:"id" yaml:"id"`
	ConversationID string   `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Prompt         string   `json:"prompt" yaml:"prompt"`
	Response       string   `json:"response" yaml:"response"`
	Database       string   `json:"database,omitempty" yaml:"database,omitempty"`
	Tables         []string `json:"tables,omitempty" yaml:"tables,omitempty"`
	Timestamp      string   `json:"timestamp" yaml:"timestamp"`
}

// Conversation is every pair sharing one conversation id
type Conversation struct {
	ID          string     `json:"id" yaml:"id"`
	Database    string     `json:"database" yaml:"database"`
	Tables      []string   `json:"tables" yaml:"tables"`
	Messages    []PairView `json:"messages" yaml:"messages"`
	LastUpdated string     `json:"last_updated" yaml:"last_updated"`
}
