package core

import "time"

// Conversation roles persisted in a run.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Turn is one message within a run. Turns are append-only; insertion order is
// conversational order.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"` // Producing agent for assistant turns
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn stamped with the current UTC time.
func NewTurn(role, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Run identifies one persisted conversation thread.
type Run struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
