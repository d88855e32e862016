package llm

// Roles accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message. The merger sends each engine transcript as
// its own user message.
type Message struct {
	Role    string
	Content string
}
