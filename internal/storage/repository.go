package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	maxDeleteLimit     = 900
)

// SessionQuery 为会话快照的查询条件，零值字段不参与过滤。
type SessionQuery struct {
	// UserID 精确匹配用户。
	UserID string
	// CurrentAgent 精确匹配最后使用的 Agent。
	CurrentAgent string
	// From/To 过滤 SavedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	// Desc 按 SavedAt 倒序返回（优先返回最新会话）。
	Desc bool
}

// SaveSessionSnapshot 按 SessionID 插入或覆盖快照。
func (s *Storage) SaveSessionSnapshot(ctx context.Context, snap *SessionSnapshot) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if snap == nil {
		return errors.New("session snapshot is nil")
	}
	if snap.SessionID == "" {
		return errors.New("session id is required")
	}
	now := time.Now().UTC()
	if snap.SavedAt.IsZero() {
		snap.SavedAt = now
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "version", "message_count", "current_agent", "payload", "saved_at",
		}),
	}).Create(snap).Error
	if err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

// GetSessionSnapshot 按 SessionID 获取快照；不存在时返回 ErrNotFound。
func (s *Storage) GetSessionSnapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out []SessionSnapshot
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Limit(1).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("get session snapshot: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// LatestSessionSnapshot 返回用户最近保存的快照；不存在时返回 ErrNotFound。
func (s *Storage) LatestSessionSnapshot(ctx context.Context, userID string) (*SessionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out []SessionSnapshot
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("saved_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("latest session snapshot: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// QuerySessionSnapshots 按条件查询快照。
func (s *Storage) QuerySessionSnapshots(ctx context.Context, q SessionQuery) ([]SessionSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&SessionSnapshot{})
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.CurrentAgent != "" {
		db = db.Where("current_agent = ?", q.CurrentAgent)
	}
	if q.From != nil {
		db = db.Where("saved_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("saved_at <= ?", *q.To)
	}
	if q.Desc {
		db = db.Order("saved_at DESC").Order("id DESC")
	} else {
		db = db.Order("saved_at ASC").Order("id ASC")
	}
	db = db.Limit(limit)

	var out []SessionSnapshot
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query session snapshots: %w", err)
	}
	return out, nil
}

// DeleteSessionSnapshot 删除指定会话，返回是否删除了记录。
func (s *Storage) DeleteSessionSnapshot(ctx context.Context, sessionID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&SessionSnapshot{})
	if res.Error != nil {
		return false, fmt.Errorf("delete session snapshot: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteSessionSnapshotsBeforeLimited 分批删除 SavedAt 早于 before 的快照。
func (s *Storage) DeleteSessionSnapshotsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}

	limit = normalizeDeleteLimit(limit)

	var ids []uint64
	db := s.db.WithContext(ctx).Model(&SessionSnapshot{}).
		Select("id").
		Where("saved_at < ?", before).
		Order("id ASC").
		Limit(limit)
	if err := db.Find(&ids).Error; err != nil {
		return 0, fmt.Errorf("select session snapshot ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&SessionSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete session snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountSessionSnapshots 返回快照总数。
func (s *Storage) CountSessionSnapshots(ctx context.Context) (int64, error) {
	return s.count(ctx, &SessionSnapshot{}, "session snapshots")
}

// LeadQuery 为线索查询条件。
type LeadQuery struct {
	SessionID string
	Email     string
	// From/To 过滤 CreatedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	// Desc 按 CreatedAt 倒序返回。
	Desc bool
}

// InsertLead 保存一条线索。
func (s *Storage) InsertLead(ctx context.Context, lead *Lead) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if lead == nil {
		return errors.New("lead is nil")
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(lead).Error; err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// QueryLeads 按条件查询线索。
func (s *Storage) QueryLeads(ctx context.Context, q LeadQuery) ([]Lead, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&Lead{})
	if q.SessionID != "" {
		db = db.Where("session_id = ?", q.SessionID)
	}
	if q.Email != "" {
		db = db.Where("email = ?", q.Email)
	}
	if q.From != nil {
		db = db.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("created_at <= ?", *q.To)
	}
	if q.Desc {
		db = db.Order("created_at DESC").Order("id DESC")
	} else {
		db = db.Order("created_at ASC").Order("id ASC")
	}
	db = db.Limit(limit)

	var out []Lead
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	return out, nil
}

// CountLeads 返回线索总数。
func (s *Storage) CountLeads(ctx context.Context) (int64, error) {
	return s.count(ctx, &Lead{}, "leads")
}

// AuditQuery 用于查询审计记录的过滤条件。
//
// 设计原则：
//   - 所有字段都是“可选过滤条件”，零值表示不参与过滤。
//   - 时间范围使用 CreatedAt（写入时间），用于“最近 N 次调用/某段时间内发生了什么”这类审计检索。
type AuditQuery struct {
	// TraceID 精确匹配一轮对话。
	TraceID string
	// Action 精确匹配动作名。
	Action string
	// Status 精确匹配执行状态（例如 running/success/failed）。
	Status string
	// From/To 过滤 CreatedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	// Desc 按 CreatedAt 倒序返回（优先返回最新记录）。
	Desc bool
}

func (s *Storage) InsertAuditRecord(ctx context.Context, rec *AuditRecord) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if rec == nil {
		return errors.New("audit record is nil")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Storage) QueryAuditRecords(ctx context.Context, q AuditQuery) ([]AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&AuditRecord{})
	if q.TraceID != "" {
		db = db.Where("trace_id = ?", q.TraceID)
	}
	if q.Action != "" {
		db = db.Where("action = ?", q.Action)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.From != nil {
		db = db.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("created_at <= ?", *q.To)
	}
	if q.Desc {
		db = db.Order("created_at DESC").Order("id DESC")
	} else {
		db = db.Order("created_at ASC").Order("id ASC")
	}
	db = db.Limit(limit)

	var out []AuditRecord
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return out, nil
}

// AuditUpdate 为审计记录的部分更新，nil 字段不更新。
type AuditUpdate struct {
	Status       *string
	ResultJSON   *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (s *Storage) UpdateAuditRecord(ctx context.Context, id uint64, up AuditUpdate) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}

	updates := make(map[string]interface{})
	if up.Status != nil {
		updates["status"] = *up.Status
	}
	if up.ResultJSON != nil {
		updates["result_json"] = *up.ResultJSON
	}
	if up.ErrorMessage != nil {
		updates["error_message"] = *up.ErrorMessage
	}
	if up.FinishedAt != nil {
		updates["finished_at"] = *up.FinishedAt
	}

	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&AuditRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update audit record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gormNotFoundError("audit record", id)
	}
	return nil
}

// DeleteAuditRecordsBeforeLimited 分批删除 CreatedAt 早于 before 的审计记录。
func (s *Storage) DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}

	limit = normalizeDeleteLimit(limit)

	var ids []uint64
	db := s.db.WithContext(ctx).Model(&AuditRecord{}).
		Select("id").
		Where("created_at < ?", before).
		Order("id ASC").
		Limit(limit)
	if err := db.Find(&ids).Error; err != nil {
		return 0, fmt.Errorf("select audit record ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&AuditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete audit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAuditRecordsKeepLatest 只保留最新的 keep 条审计记录。
func (s *Storage) DeleteAuditRecordsKeepLatest(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	if keep < 0 {
		keep = 0
	}

	var keepIDs []uint64
	err := s.db.WithContext(ctx).Model(&AuditRecord{}).
		Select("id").
		Order("id DESC").
		Limit(keep).
		Find(&keepIDs).Error
	if err != nil {
		return 0, fmt.Errorf("select latest audit record ids: %w", err)
	}

	db := s.db.WithContext(ctx)
	if len(keepIDs) > 0 {
		db = db.Where("id NOT IN ?", keepIDs)
	} else {
		db = db.Where("1 = 1")
	}
	res := db.Delete(&AuditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete audit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountAuditRecords 返回审计记录总数。
func (s *Storage) CountAuditRecords(ctx context.Context) (int64, error) {
	return s.count(ctx, &AuditRecord{}, "audit records")
}

func (s *Storage) count(ctx context.Context, model interface{}, name string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}

func normalizeDeleteLimit(v int) int {
	if v <= 0 {
		return defaultDeleteLimit
	}
	if v > maxDeleteLimit {
		return maxDeleteLimit
	}
	return v
}

type notFoundError struct {
	Entity string
	ID     uint64
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

func (e notFoundError) Is(target error) bool { return target == ErrNotFound }

func gormNotFoundError(entity string, id uint64) error {
	return notFoundError{Entity: entity, ID: id}
}
