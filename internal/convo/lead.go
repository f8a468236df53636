package convo

import "time"

// SnapshotVersion 为持久化快照的格式版本。
const SnapshotVersion = "1.0"

// Lead 为一组完整的潜在客户联系信息。
type Lead struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	// Interest 来自 ProjectInfo["interest"]，可为空。
	Interest string `json:"interest,omitempty"`
	// Message 为触发线索保存的那条用户消息。
	Message string `json:"message,omitempty"`
}

// LeadFromContext 从上下文构造线索。
func LeadFromContext(c *Context, message string) Lead {
	return Lead{
		SessionID: c.SessionID,
		Name:      c.UserInfo[FieldName],
		Email:     c.UserInfo[FieldEmail],
		Phone:     c.UserInfo[FieldPhone],
		Company:   c.UserInfo[FieldCompany],
		Interest:  c.ProjectInfo["interest"],
		Message:   message,
	}
}

// SessionMeta 为会话列表中的一项。
type SessionMeta struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	SavedAt      time.Time `json:"saved_at"`
	MessageCount int       `json:"message_count"`
	CurrentAgent AgentKind `json:"current_agent,omitempty"`
	Version      string    `json:"version"`
}
