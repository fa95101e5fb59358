package models

// Conversation pairs one non-agent user with at most one agent. LastMessage,
// UpdatedAt and UnreadCount are maintained by the store on every message write.
type Conversation struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	AgentID     string   `json:"agentId,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
	UnreadCount int      `json:"unreadCount"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
}
