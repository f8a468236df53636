package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wwwzy/SalesAgent/internal/convo"
)

// SessionStore 将 Storage 适配为会话上下文存储与线索落地。
type SessionStore struct {
	s *Storage
}

// NewSessionStore 创建适配器。
func NewSessionStore(s *Storage) *SessionStore {
	return &SessionStore{s: s}
}

type persistenceMetadata struct {
	LastSaved time.Time `json:"last_saved"`
	Version   string    `json:"version"`
}

type snapshotPayload struct {
	Context  *convo.Context      `json:"context"`
	Metadata persistenceMetadata `json:"_persistence_metadata"`
}

// Save 保存用户当前会话；同一 SessionID 覆盖旧快照。
func (st *SessionStore) Save(ctx context.Context, userID string, c *convo.Context) error {
	if st == nil || st.s == nil {
		return errors.New("storage not initialized")
	}
	if c == nil {
		return errors.New("context is nil")
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(snapshotPayload{
		Context:  c,
		Metadata: persistenceMetadata{LastSaved: now, Version: convo.SnapshotVersion},
	})
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	if userID == "" {
		userID = c.UserID
	}
	return st.s.SaveSessionSnapshot(ctx, &SessionSnapshot{
		SessionID:    c.SessionID,
		UserID:       userID,
		Version:      convo.SnapshotVersion,
		MessageCount: c.MessageCount,
		CurrentAgent: string(c.CurrentAgent),
		Payload:      string(payload),
		SavedAt:      now,
	})
}

// Load 加载用户最近的会话；没有记录时返回 nil, nil。
func (st *SessionStore) Load(ctx context.Context, userID string) (*convo.Context, error) {
	if st == nil || st.s == nil {
		return nil, errors.New("storage not initialized")
	}
	snap, err := st.s.LatestSessionSnapshot(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(snap)
}

// LoadSession 按 SessionID 加载会话。
func (st *SessionStore) LoadSession(ctx context.Context, sessionID string) (*convo.Context, error) {
	if st == nil || st.s == nil {
		return nil, errors.New("storage not initialized")
	}
	snap, err := st.s.GetSessionSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(snap)
}

// ListSessions 按保存时间倒序列出用户的会话。
func (st *SessionStore) ListSessions(ctx context.Context, userID string) ([]convo.SessionMeta, error) {
	if st == nil || st.s == nil {
		return nil, errors.New("storage not initialized")
	}
	snaps, err := st.s.QuerySessionSnapshots(ctx, SessionQuery{UserID: userID, Desc: true})
	if err != nil {
		return nil, err
	}
	out := make([]convo.SessionMeta, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, convo.SessionMeta{
			SessionID:    snap.SessionID,
			UserID:       snap.UserID,
			SavedAt:      snap.SavedAt,
			MessageCount: snap.MessageCount,
			CurrentAgent: convo.AgentKind(snap.CurrentAgent),
			Version:      snap.Version,
		})
	}
	return out, nil
}

// DeleteSession 删除指定会话。
func (st *SessionStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if st == nil || st.s == nil {
		return false, errors.New("storage not initialized")
	}
	return st.s.DeleteSessionSnapshot(ctx, sessionID)
}

// SaveLead 保存一条完整线索。
func (st *SessionStore) SaveLead(ctx context.Context, lead convo.Lead) error {
	if st == nil || st.s == nil {
		return errors.New("storage not initialized")
	}
	return st.s.InsertLead(ctx, &Lead{
		SessionID: lead.SessionID,
		Name:      lead.Name,
		Email:     lead.Email,
		Phone:     lead.Phone,
		Company:   lead.Company,
		Interest:  lead.Interest,
		Message:   lead.Message,
	})
}

func decodeSnapshot(snap *SessionSnapshot) (*convo.Context, error) {
	var p snapshotPayload
	if err := json.Unmarshal([]byte(snap.Payload), &p); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", snap.SessionID, err)
	}
	if p.Context == nil {
		return nil, fmt.Errorf("decode session %s: empty context", snap.SessionID)
	}
	if p.Context.SessionID == "" {
		p.Context.SessionID = snap.SessionID
	}
	p.Context.Normalize()
	return p.Context, nil
}
