package models

// Chat roles understood by the completion service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single role-tagged segment of a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LastUserContent returns the content of the final user message, or "" if
// the sequence has none.
func LastUserContent(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// ModelTier is the coarse routing decision choosing which model answers.
type ModelTier string

const (
	TierFast    ModelTier = "fast"
	TierCapable ModelTier = "capable"
)

// Source records how a question reached the assistant.
type Source string

const (
	SourceText  Source = "text"
	SourcePhoto Source = "photo"
)
