package storage

import "github.com/wuwenbin0122/supportdesk/internal/models"

// Fixed identities and the conversation linking them, seeded on first run.
const (
	AgentID            = "1"
	GuestID            = "2"
	SeedConversationID = "1"
	AgentEmail         = "agent@example.com"
	GuestEmail         = "guest@example.com"
)

func SeedUsers() []models.User {
	return []models.User{
		{ID: AgentID, Email: AgentEmail, Name: "Support Agent", Role: models.RoleAgent},
		{ID: GuestID, Email: GuestEmail, Name: "Guest User", Role: models.RoleUser},
	}
}

func SeedConversations(createdAt int64) []models.Conversation {
	return []models.Conversation{
		{
			ID:          SeedConversationID,
			UserID:      GuestID,
			AgentID:     AgentID,
			UnreadCount: 0,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		},
	}
}
