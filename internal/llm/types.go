// ABOUTME: Provider-neutral chat message and completion options
// ABOUTME: Shared by the OpenAI and Ollama completers
package llm

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to a model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion
type Options struct {
	Temperature   float64
	ContextWindow int
	MaxTokens     int
}
