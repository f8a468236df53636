package storage

import "time"

// SessionSnapshot 为一次会话上下文的持久化快照。
//
// 每个会话（SessionID）只保留最新一份快照，按 UserID 检索最近会话用于恢复对话。
// 上下文整体以 JSON 存放在 Payload 中，便于上下文结构演进时无需迁移表结构。
type SessionSnapshot struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// SessionID 为会话唯一标识，跨保存/加载保持不变。
	SessionID string `gorm:"size:64;not null;uniqueIndex"`
	// UserID 为用户标识，可为空（匿名会话）；与 SavedAt 组成联合索引用于查最新会话。
	UserID string `gorm:"size:128;index:idx_session_snapshots_user_saved,priority:1"`
	// Version 为快照格式版本。
	Version string `gorm:"size:16;not null"`
	// MessageCount/CurrentAgent 冗余存放，便于列表展示时无需解析 Payload。
	MessageCount int    `gorm:"not null"`
	CurrentAgent string `gorm:"size:64;index"`
	// Payload 为上下文 JSON。
	Payload string `gorm:"type:text;not null"`
	// SavedAt 为最近一次保存时间（UTC）。
	SavedAt time.Time `gorm:"not null;index;index:idx_session_snapshots_user_saved,priority:2"`
	// CreatedAt 为首次写入时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// Lead 为数据收集流程完成后保存的潜在客户。
type Lead struct {
	ID        uint64 `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;index"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255;not null;index"`
	Phone     string `gorm:"size:64;not null"`
	Company   string `gorm:"size:255;not null"`
	// Interest 为客户感兴趣的方向（来自项目信息，可选）。
	Interest string `gorm:"type:text"`
	// Message 为触发保存的那条用户消息。
	Message   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

// AuditRecord 记录一次模型调用及其结果，用于审计、追溯与后续分析。
//
// 一条审计记录对应一次文本生成（流式或非流式），Action 为调用方名称（例如 llm.stream/SalesAgent）。
// 提示词与输出以截断后的字符串存放，不追求完整留存。
type AuditRecord struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// TraceID 串联一轮对话中的所有调用。
	TraceID string `gorm:"size:64;index"`
	// Action 表示调用动作。
	Action string `gorm:"size:128;not null;index"`
	// ParamsJSON 存放调用入参（JSON 字符串）。
	ParamsJSON string `gorm:"type:text"`
	// ResultJSON 存放模型输出（截断）。
	ResultJSON string `gorm:"type:text"`
	// Status 为 running/success/failed。
	Status string `gorm:"size:32;not null;index"`
	// ErrorMessage 存放失败时的错误信息。
	ErrorMessage string `gorm:"type:text"`
	// StartedAt/FinishedAt 为调用起止时间，耗时可用 FinishedAt-StartedAt。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time `gorm:"index"`
	// CreatedAt 为记录写入数据库的时间，默认自动填充。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}
