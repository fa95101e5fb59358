package models

// Session is the persisted auth record restoring identity across restarts.
type Session struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}
