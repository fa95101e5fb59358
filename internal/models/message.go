package models

// Message is a single chat line. Timestamp is epoch milliseconds.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	Read           bool   `json:"read"`
}
