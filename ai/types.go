package ai

// Role identifies the author of a chat message.
type Role string

const (
	// RoleSystem is the system prompt role.
	RoleSystem Role = "system"
	// RoleUser is the end-user role.
	RoleUser Role = "user"
	// RoleAssistant is the model's own role.
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent to a completion provider.
type Message struct {
	Role Role
	Text string
}

// Completion is the result of a chat completion call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns the combined input and output token count.
func (c *Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}
