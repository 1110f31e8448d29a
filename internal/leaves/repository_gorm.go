//go:build gorm

package leaves

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMRepository is an alternate Repository implementation built behind
// the "gorm" build tag, exercising gorm.io/gorm + gorm.io/driver/postgres
// the way the teacher's own repository_gorm.go siblings do for its
// highest-traffic write paths. The teacher shards by schema-per-tenant
// (database.TenantDB(db, schemaName)); this module keeps every tenant in
// one shared schema with a tenant_id column instead, so every query here
// filters on tenant_id rather than switching search_path.
type GORMRepository struct {
	db *gorm.DB
}

// NewGORMRepository constructs a GORMRepository over db.
func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

type leaveRequestModel struct {
	ID           uuid.UUID `gorm:"column:id;primaryKey"`
	TenantID     uuid.UUID `gorm:"column:tenant_id"`
	TeacherID    uuid.UUID `gorm:"column:teacher_id"`
	TeacherName  string    `gorm:"column:teacher_name"`
	TeacherEmail string    `gorm:"column:teacher_email"`

	LeaveType string `gorm:"column:leave_type"`
	Reason    string `gorm:"column:reason"`

	LeaveDate time.Time  `gorm:"column:leave_date"`
	EndDate   *time.Time `gorm:"column:end_date"`
	StartTime *string    `gorm:"column:start_time"`
	EndTime   *string    `gorm:"column:end_time"`

	Status       string     `gorm:"column:status"`
	AdminComment *string    `gorm:"column:admin_comment"`
	ReviewedBy   *string    `gorm:"column:reviewed_by"`
	ReviewedAt   *time.Time `gorm:"column:reviewed_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`

	AttachmentRequired       bool       `gorm:"column:attachment_required"`
	AttachmentStatus         string     `gorm:"column:attachment_status"`
	AttachmentPath           *string    `gorm:"column:attachment_path"`
	AttachmentOriginalName   *string    `gorm:"column:attachment_original_name"`
	AttachmentUploadedAt     *time.Time `gorm:"column:attachment_uploaded_at"`
	AttachmentDueAt          *time.Time `gorm:"column:attachment_due_at"`
	AttachmentReminderCount  int        `gorm:"column:attachment_reminder_count"`
	AttachmentLastReminderAt *time.Time `gorm:"column:attachment_last_reminder_at"`
	AttachmentExportPath     *string    `gorm:"column:attachment_export_path"`
	AttachmentExportedAt     *time.Time `gorm:"column:attachment_exported_at"`
}

func (leaveRequestModel) TableName() string { return "leave_requests" }

type leaveMessageModel struct {
	ID        uuid.UUID `gorm:"column:id;primaryKey"`
	LeaveID   uuid.UUID `gorm:"column:leave_id"`
	Sender    string    `gorm:"column:sender"`
	Body      string    `gorm:"column:body"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (leaveMessageModel) TableName() string { return "leave_messages" }

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}

func modelToRequest(m leaveRequestModel) Request {
	return Request{
		ID:           m.ID,
		TenantID:     m.TenantID,
		TeacherID:    m.TeacherID,
		TeacherName:  m.TeacherName,
		TeacherEmail: m.TeacherEmail,
		LeaveType:    Type(m.LeaveType),
		Reason:       m.Reason,
		LeaveDate:    m.LeaveDate,
		EndDate:      derefTime(m.EndDate),
		StartTime:    derefString(m.StartTime),
		EndTime:      derefString(m.EndTime),
		Status:       Status(m.Status),
		AdminComment: derefString(m.AdminComment),
		ReviewedBy:   derefString(m.ReviewedBy),
		ReviewedAt:   derefTime(m.ReviewedAt),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,

		AttachmentRequired:       m.AttachmentRequired,
		AttachmentStatus:         AttachmentStatus(m.AttachmentStatus),
		AttachmentPath:           derefString(m.AttachmentPath),
		AttachmentOriginalName:   derefString(m.AttachmentOriginalName),
		AttachmentUploadedAt:     derefTime(m.AttachmentUploadedAt),
		AttachmentDueAt:          derefTime(m.AttachmentDueAt),
		AttachmentReminderCount:  m.AttachmentReminderCount,
		AttachmentLastReminderAt: derefTime(m.AttachmentLastReminderAt),
		AttachmentExportPath:     derefString(m.AttachmentExportPath),
		AttachmentExportedAt:     derefTime(m.AttachmentExportedAt),
	}
}

func requestToModel(r Request) leaveRequestModel {
	return leaveRequestModel{
		ID:           r.ID,
		TenantID:     r.TenantID,
		TeacherID:    r.TeacherID,
		TeacherName:  r.TeacherName,
		TeacherEmail: r.TeacherEmail,
		LeaveType:    string(r.LeaveType),
		Reason:       r.Reason,
		LeaveDate:    r.LeaveDate,
		EndDate:      timeOrNil(r.EndDate),
		StartTime:    ptrOrNil(r.StartTime),
		EndTime:      ptrOrNil(r.EndTime),
		Status:       string(r.Status),
		AdminComment: ptrOrNil(r.AdminComment),
		ReviewedBy:   ptrOrNil(r.ReviewedBy),
		ReviewedAt:   timeOrNil(r.ReviewedAt),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,

		AttachmentRequired:       r.AttachmentRequired,
		AttachmentStatus:         string(r.AttachmentStatus),
		AttachmentPath:           ptrOrNil(r.AttachmentPath),
		AttachmentOriginalName:   ptrOrNil(r.AttachmentOriginalName),
		AttachmentUploadedAt:     timeOrNil(r.AttachmentUploadedAt),
		AttachmentDueAt:          timeOrNil(r.AttachmentDueAt),
		AttachmentReminderCount:  r.AttachmentReminderCount,
		AttachmentLastReminderAt: timeOrNil(r.AttachmentLastReminderAt),
		AttachmentExportPath:     ptrOrNil(r.AttachmentExportPath),
		AttachmentExportedAt:     timeOrNil(r.AttachmentExportedAt),
	}
}

func (g *GORMRepository) Insert(ctx context.Context, r Request) error {
	model := requestToModel(r)
	return g.db.WithContext(ctx).Create(&model).Error
}

func (g *GORMRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (Request, error) {
	var m leaveRequestModel
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	return modelToRequest(m), nil
}

// GetForUpdate locks the row with SELECT ... FOR UPDATE via gorm's locking
// clause, the same row-lock-for-the-transaction contract
// repository_postgres.go's pgx version documents.
func (g *GORMRepository) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Request, error) {
	var m leaveRequestModel
	err := g.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	return modelToRequest(m), nil
}

func (g *GORMRepository) Update(ctx context.Context, r Request) error {
	model := requestToModel(r)
	result := g.db.WithContext(ctx).
		Model(&leaveRequestModel{}).
		Where("tenant_id = ? AND id = ?", r.TenantID, r.ID).
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GORMRepository) FindPending(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time) (Request, bool, error) {
	var m leaveRequestModel
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND teacher_id = ? AND leave_date = ? AND status = ?", tenantID, teacherID, leaveDate, string(StatusPending)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Request{}, false, nil
	}
	if err != nil {
		return Request{}, false, err
	}
	return modelToRequest(m), true, nil
}

func (g *GORMRepository) ListPendingSickWithMissingAttachment(ctx context.Context, tenantID uuid.UUID) ([]Request, error) {
	var models []leaveRequestModel
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND leave_type = ? AND status = ? AND attachment_required = ? AND attachment_status = ?",
			tenantID, string(TypeSick), string(StatusPending), true, string(AttachmentMissing)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]Request, len(models))
	for i, m := range models {
		out[i] = modelToRequest(m)
	}
	return out, nil
}

func (g *GORMRepository) ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Request, error) {
	var models []leaveRequestModel
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND leave_date <= ? AND COALESCE(end_date, leave_date) >= ?", tenantID, to, from).
		Order("leave_date, created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]Request, len(models))
	for i, m := range models {
		out[i] = modelToRequest(m)
	}
	return out, nil
}

func (g *GORMRepository) InsertMessage(ctx context.Context, m Message) error {
	model := leaveMessageModel{ID: m.ID, LeaveID: m.LeaveID, Sender: m.Sender, Body: m.Body, CreatedAt: m.CreatedAt}
	return g.db.WithContext(ctx).Create(&model).Error
}

func (g *GORMRepository) ListMessages(ctx context.Context, tenantID, leaveID uuid.UUID) ([]Message, error) {
	var models []leaveMessageModel
	err := g.db.WithContext(ctx).
		Joins("JOIN leave_requests lr ON lr.id = leave_messages.leave_id").
		Where("lr.tenant_id = ? AND leave_messages.leave_id = ?", tenantID, leaveID).
		Order("leave_messages.created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(models))
	for i, m := range models {
		out[i] = Message{ID: m.ID, LeaveID: m.LeaveID, Sender: m.Sender, Body: m.Body, CreatedAt: m.CreatedAt}
	}
	return out, nil
}

func (g *GORMRepository) RecordWindowAttempt(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time, reasonPreview string) error {
	preview := reasonPreview
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return g.db.WithContext(ctx).Exec(
		`INSERT INTO leave_window_attempts (id, tenant_id, teacher_id, leave_date, attempted_at, reason_preview)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New(), tenantID, teacherID, leaveDate, time.Now().UTC(), preview,
	).Error
}

func (g *GORMRepository) RecordReminderEvent(ctx context.Context, tenantID, leaveID uuid.UUID, event string, occurredAt time.Time) error {
	return g.db.WithContext(ctx).Exec(
		`INSERT INTO leave_reminder_log (id, tenant_id, leave_id, event, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New(), tenantID, leaveID, event, occurredAt,
	).Error
}
