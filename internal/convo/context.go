package convo

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wwwzy/SalesAgent/internal/sentiment"
)

// AgentKind 是 Agent 的唯一名称，同时作为上下文字段、历史记录与显式切换的关联键。
type AgentKind string

const (
	General        AgentKind = "GeneralAgent"
	Sales          AgentKind = "SalesAgent"
	Engineer       AgentKind = "EngineerAgent"
	DataCollection AgentKind = "DataCollectionAgent"
)

// Kinds 返回 Agent 的注册顺序。
func Kinds() []AgentKind {
	return []AgentKind{General, Sales, Engineer, DataCollection}
}

// DisplayName 去掉 "Agent" 后缀，用于面向用户的提示。
func (k AgentKind) DisplayName() string {
	return strings.TrimSuffix(string(k), "Agent")
}

var kindAliases = map[string]AgentKind{
	"generalagent":        General,
	"general":             General,
	"informacion":         General,
	"información":         General,
	"salesagent":          Sales,
	"sales":               Sales,
	"ventas":              Sales,
	"comercial":           Sales,
	"engineeragent":       Engineer,
	"engineer":            Engineer,
	"tecnico":             Engineer,
	"técnico":             Engineer,
	"ingeniero":           Engineer,
	"datacollectionagent": DataCollection,
	"datacollection":      DataCollection,
	"datos":               DataCollection,
	"contacto":            DataCollection,
}

// ParseAgentKind 接受完整名称（大小写不敏感）或西语别名。
func ParseAgentKind(s string) (AgentKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// 用户信息字段。
const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldPhone   = "phone"
	FieldCompany = "company"
)

// RequiredFields 为生成线索所需的全部字段，顺序即询问顺序。
func RequiredFields() []string {
	return []string{FieldName, FieldEmail, FieldPhone, FieldCompany}
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 为一条对话消息。
type Message struct {
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	Agent     AgentKind           `json:"agent,omitempty"`
	Sentiment *sentiment.Analysis `json:"sentiment,omitempty"`
	At        time.Time           `json:"at"`
}

// Selection 记录一次 Agent 选择决策。
type Selection struct {
	Agent        AgentKind `json:"agent"`
	Confidence   float64   `json:"confidence"`
	Reason       string    `json:"reason"`
	MessageIndex int       `json:"message_index"`
}

// SentimentRecord 记录一条用户消息的情感分析结果。
type SentimentRecord struct {
	Message      string             `json:"message"`
	Analysis     sentiment.Analysis `json:"analysis"`
	MessageIndex int                `json:"message_index"`
}

// Context 为单个会话的可变状态，同一时刻只由一个轮次持有。
type Context struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`

	Messages []Message `json:"messages"`

	CurrentAgent  AgentKind `json:"current_agent,omitempty"`
	PreviousAgent AgentKind `json:"previous_agent,omitempty"`

	// UserInfo 仅包含 name/email/phone/company，字段只增不删。
	UserInfo map[string]string `json:"user_info"`
	// ProjectInfo 保存技术/销售交接信息，例如上传文档、技术分析、预算。
	ProjectInfo map[string]string `json:"project_info"`

	SelectionHistory []Selection         `json:"agent_selection_history"`
	SentimentHistory []SentimentRecord   `json:"sentiment_history"`
	CurrentSentiment *sentiment.Analysis `json:"current_sentiment,omitempty"`

	MessageCount int `json:"message_count"`

	FormShown     bool `json:"form_shown"`
	FormActive    bool `json:"form_active"`
	FormCompleted bool `json:"form_completed"`
	LeadSaved     bool `json:"lead_saved"`

	PriceDiscussed        bool `json:"price_discussed"`
	ConfirmedPreviousInfo bool `json:"confirmed_previous_info"`

	// 强制切换标记，在下一轮结束时清除。
	// 上传文档后会在轮次之间设置，需要随快照保存。
	ForceEngineer bool `json:"force_engineer,omitempty"`
	ForceSales    bool `json:"force_sales,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New 创建一个新会话上下文。
func New(userID string) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID:   uuid.New().String(),
		UserID:      userID,
		UserInfo:    map[string]string{},
		ProjectInfo: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Reset 清空对话与 Agent 指针，保留 UserID 并生成新的 SessionID。
func (c *Context) Reset() {
	*c = *New(c.UserID)
}

// Normalize 为反序列化或手工构造的上下文补齐空集合。
func (c *Context) Normalize() {
	if c.UserInfo == nil {
		c.UserInfo = map[string]string{}
	}
	if c.ProjectInfo == nil {
		c.ProjectInfo = map[string]string{}
	}
	if c.SessionID == "" {
		c.SessionID = uuid.New().String()
	}
}

// AddUserMessage 追加一条用户消息并递增消息计数，返回消息下标。
func (c *Context) AddUserMessage(text string, a *sentiment.Analysis) int {
	c.Normalize()
	idx := len(c.Messages)
	c.Messages = append(c.Messages, Message{
		Role:      RoleUser,
		Content:   text,
		Sentiment: a,
		At:        time.Now().UTC(),
	})
	c.MessageCount++
	if a != nil {
		c.CurrentSentiment = a
		c.SentimentHistory = append(c.SentimentHistory, SentimentRecord{
			Message:      text,
			Analysis:     *a,
			MessageIndex: idx,
		})
	}
	c.UpdatedAt = time.Now().UTC()
	return idx
}

// AddAssistantMessage 追加一条助手消息。
func (c *Context) AddAssistantMessage(text string, agent AgentKind) {
	c.Messages = append(c.Messages, Message{
		Role:    RoleAssistant,
		Content: text,
		Agent:   agent,
		At:      time.Now().UTC(),
	})
	c.UpdatedAt = time.Now().UTC()
}

// SetCurrentAgent 切换当前 Agent；只有名称发生变化时才更新 PreviousAgent。
func (c *Context) SetCurrentAgent(k AgentKind) {
	if c.CurrentAgent == k {
		return
	}
	c.PreviousAgent = c.CurrentAgent
	c.CurrentAgent = k
}

// RecordSelection 追加一条选择记录，MessageIndex 指向最近一条消息。
func (c *Context) RecordSelection(k AgentKind, confidence float64, reason string) {
	c.SelectionHistory = append(c.SelectionHistory, Selection{
		Agent:        k,
		Confidence:   confidence,
		Reason:       reason,
		MessageIndex: len(c.Messages) - 1,
	})
}

// LastUserMessage 返回最近一条用户消息内容。
func (c *Context) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// HistoryWindow 返回当前用户消息之前最近 n 条消息。
func (c *Context) HistoryWindow(n int) []Message {
	msgs := c.Messages
	if len(msgs) > 0 && msgs[len(msgs)-1].Role == RoleUser {
		msgs = msgs[:len(msgs)-1]
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// SetUserField 写入用户字段；已有非空值不会被覆盖。返回是否写入。
func (c *Context) SetUserField(field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	c.Normalize()
	if strings.TrimSpace(c.UserInfo[field]) != "" {
		return false
	}
	c.UserInfo[field] = value
	return true
}

// HasUserInfo 表示是否已收集到任一用户字段。
func (c *Context) HasUserInfo() bool {
	for _, f := range RequiredFields() {
		if strings.TrimSpace(c.UserInfo[f]) != "" {
			return true
		}
	}
	return false
}

// MissingFields 按询问顺序返回尚未收集的字段。
func (c *Context) MissingFields() []string {
	var out []string
	for _, f := range RequiredFields() {
		if strings.TrimSpace(c.UserInfo[f]) == "" {
			out = append(out, f)
		}
	}
	return out
}

// CompleteForm 标记表单完成；完成后表单一定不处于激活状态。
func (c *Context) CompleteForm() {
	c.FormCompleted = true
	c.FormActive = false
}

// ClearOverrides 清除单轮强制切换标记。
func (c *Context) ClearOverrides() {
	c.ForceEngineer = false
	c.ForceSales = false
}

// Clone 深拷贝上下文，Agent 在副本上工作，流结束后再合并回会话。
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.SelectionHistory = append([]Selection(nil), c.SelectionHistory...)
	out.SentimentHistory = append([]SentimentRecord(nil), c.SentimentHistory...)
	out.UserInfo = cloneMap(c.UserInfo)
	out.ProjectInfo = cloneMap(c.ProjectInfo)
	if c.CurrentSentiment != nil {
		s := *c.CurrentSentiment
		out.CurrentSentiment = &s
	}
	return &out
}

// Merge 将 Agent 修改后的副本合并回当前上下文：
// UserInfo/ProjectInfo 按键合并（非空值生效），选择历史以副本为准。
func (c *Context) Merge(view *Context) {
	if view == nil {
		return
	}
	c.Normalize()
	for k, v := range view.UserInfo {
		if strings.TrimSpace(v) != "" {
			c.UserInfo[k] = v
		}
	}
	for k, v := range view.ProjectInfo {
		if v != "" {
			c.ProjectInfo[k] = v
		}
	}
	if len(view.Messages) >= len(c.Messages) {
		c.Messages = append([]Message(nil), view.Messages...)
	}
	c.SelectionHistory = append([]Selection(nil), view.SelectionHistory...)
	if len(view.SentimentHistory) >= len(c.SentimentHistory) {
		c.SentimentHistory = append([]SentimentRecord(nil), view.SentimentHistory...)
	}

	c.CurrentAgent = view.CurrentAgent
	c.PreviousAgent = view.PreviousAgent
	c.FormShown = c.FormShown || view.FormShown
	c.FormCompleted = c.FormCompleted || view.FormCompleted
	c.FormActive = view.FormActive && !c.FormCompleted
	c.LeadSaved = c.LeadSaved || view.LeadSaved
	c.PriceDiscussed = c.PriceDiscussed || view.PriceDiscussed
	c.ConfirmedPreviousInfo = c.ConfirmedPreviousInfo || view.ConfirmedPreviousInfo
	c.UpdatedAt = time.Now().UTC()
}

// Meta 返回会话元数据。
func (c *Context) Meta() SessionMeta {
	return SessionMeta{
		SessionID:    c.SessionID,
		UserID:       c.UserID,
		SavedAt:      c.UpdatedAt,
		MessageCount: c.MessageCount,
		CurrentAgent: c.CurrentAgent,
		Version:      SnapshotVersion,
	}
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
