package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/sentiment"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "salesagent.db")
	s, err := Open(ctx, Config{
		Path:      dbPath,
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionSnapshotUpsert(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	snap := &SessionSnapshot{
		SessionID:    "s-1",
		UserID:       "u-1",
		Version:      convo.SnapshotVersion,
		MessageCount: 1,
		CurrentAgent: string(convo.General),
		Payload:      `{"context":{}}`,
	}
	require.NoError(t, s.SaveSessionSnapshot(ctx, snap))

	snap2 := &SessionSnapshot{
		SessionID:    "s-1",
		UserID:       "u-1",
		Version:      convo.SnapshotVersion,
		MessageCount: 3,
		CurrentAgent: string(convo.Sales),
		Payload:      `{"context":{}}`,
		SavedAt:      time.Now().UTC().Add(time.Second),
	}
	require.NoError(t, s.SaveSessionSnapshot(ctx, snap2))

	n, err := s.CountSessionSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetSessionSnapshot(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
	assert.Equal(t, string(convo.Sales), got.CurrentAgent)

	_, err = s.GetSessionSnapshot(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSessionStoreRoundtrip(t *testing.T) {
	s := openTestStorage(t)
	st := NewSessionStore(s)
	ctx := context.Background()

	loaded, err := st.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	c := convo.New("u-1")
	a := sentiment.NewAnalyzer().Analyze("estoy muy contento")
	c.AddUserMessage("estoy muy contento", &a)
	c.AddAssistantMessage("¡Genial!", convo.General)
	c.SetCurrentAgent(convo.General)
	c.SetUserField(convo.FieldName, "Ana")
	c.ProjectInfo["interest"] = "call center"
	c.ForceSales = true
	require.NoError(t, st.Save(ctx, "u-1", c))

	loaded, err = st.Load(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, c.SessionID, loaded.SessionID)
	assert.Equal(t, "u-1", loaded.UserID)
	assert.Equal(t, convo.General, loaded.CurrentAgent)
	assert.Equal(t, "Ana", loaded.UserInfo[convo.FieldName])
	assert.Equal(t, "call center", loaded.ProjectInfo["interest"])
	assert.Len(t, loaded.Messages, 2)
	assert.Equal(t, sentiment.Alegria, loaded.Messages[0].Sentiment.Dominant)
	assert.Equal(t, 1, loaded.MessageCount)
	// 轮次之间设置的强制标记随快照恢复
	assert.True(t, loaded.ForceSales)
	assert.False(t, loaded.ForceEngineer)

	// 新会话成为最新
	c2 := convo.New("u-1")
	c2.AddUserMessage("hola", nil)
	require.NoError(t, st.Save(ctx, "u-1", c2))

	loaded, err = st.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, c2.SessionID, loaded.SessionID)

	metas, err := st.ListSessions(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, c2.SessionID, metas[0].SessionID)
	assert.Equal(t, convo.SnapshotVersion, metas[0].Version)
	assert.Equal(t, convo.General, metas[1].CurrentAgent)

	byID, err := st.LoadSession(ctx, c.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", byID.UserInfo[convo.FieldName])

	deleted, err := st.DeleteSession(ctx, c.SessionID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = st.DeleteSession(ctx, c.SessionID)
	require.NoError(t, err)
	assert.False(t, deleted)

	metas, err = st.ListSessions(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestSaveLead(t *testing.T) {
	s := openTestStorage(t)
	st := NewSessionStore(s)
	ctx := context.Background()

	require.NoError(t, st.SaveLead(ctx, convo.Lead{
		SessionID: "s-1",
		Name:      "Ana",
		Email:     "ana@ex.com",
		Phone:     "+34 600 000 000",
		Company:   "Acme",
		Interest:  "call center",
	}))

	n, err := s.CountLeads(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	leads, err := s.QueryLeads(ctx, LeadQuery{Email: "ana@ex.com"})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Acme", leads[0].Company)
	assert.Equal(t, "s-1", leads[0].SessionID)
}

func TestAuditRecordsLifecycle(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := &AuditRecord{
		TraceID:    "trace-1",
		Action:     "llm.stream/SalesAgent",
		ParamsJSON: `{"user":"hola"}`,
		Status:     "running",
		StartedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.InsertAuditRecord(ctx, rec))
	require.NotZero(t, rec.ID)

	status := "success"
	result := "Hola, ¿en qué puedo ayudarte?"
	finished := time.Now().UTC()
	require.NoError(t, s.UpdateAuditRecord(ctx, rec.ID, AuditUpdate{
		Status:     &status,
		ResultJSON: &result,
		FinishedAt: &finished,
	}))

	got, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "success", got[0].Status)
	assert.Equal(t, result, got[0].ResultJSON)

	err = s.UpdateAuditRecord(ctx, 9999, AuditUpdate{Status: &status})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteBeforeLimited(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveSessionSnapshot(ctx, &SessionSnapshot{
			SessionID: "old-" + string(rune('a'+i)),
			Version:   convo.SnapshotVersion,
			Payload:   "{}",
			SavedAt:   old,
		}))
		require.NoError(t, s.InsertAuditRecord(ctx, &AuditRecord{
			Action:    "llm.generate",
			Status:    "success",
			CreatedAt: old,
		}))
	}
	require.NoError(t, s.SaveSessionSnapshot(ctx, &SessionSnapshot{
		SessionID: "fresh",
		Version:   convo.SnapshotVersion,
		Payload:   "{}",
	}))
	require.NoError(t, s.InsertAuditRecord(ctx, &AuditRecord{Action: "llm.generate", Status: "success"}))

	before := time.Now().UTC().Add(-24 * time.Hour)

	n, err := s.DeleteSessionSnapshotsBeforeLimited(ctx, before, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = s.DeleteSessionSnapshotsBeforeLimited(ctx, before, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	count, err := s.CountSessionSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	n, err = s.DeleteAuditRecordsBeforeLimited(ctx, before, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	count, err = s.CountAuditRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteAuditRecordsKeepLatest(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertAuditRecord(ctx, &AuditRecord{Action: "llm.generate", Status: "success"}))
	}

	n, err := s.DeleteAuditRecordsKeepLatest(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := s.CountAuditRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestNilStorage(t *testing.T) {
	var s *Storage
	ctx := context.Background()

	assert.Error(t, s.Ping(ctx))
	_, err := s.CountLeads(ctx)
	assert.Error(t, err)
	assert.Error(t, NewSessionStore(nil).Save(ctx, "u", convo.New("u")))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{})
	assert.Error(t, err)

	s := openTestStorage(t)
	var mode string
	require.NoError(t, s.db.WithContext(ctx).Raw("PRAGMA journal_mode;").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, s.db.WithContext(ctx).Raw("PRAGMA busy_timeout;").Scan(&timeout).Error)
	assert.Equal(t, 5000, timeout)

	for _, m := range []any{&SessionSnapshot{}, &Lead{}, &AuditRecord{}} {
		assert.True(t, s.db.Migrator().HasTable(m))
	}
}
