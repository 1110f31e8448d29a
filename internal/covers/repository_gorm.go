//go:build gorm

package covers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMRepository is an alternate Repository implementation built behind
// the "gorm" build tag, the cover-assignment sibling of
// internal/leaves/repository_gorm.go — see that file's doc comment for the
// shared-schema-by-tenant-id rationale.
type GORMRepository struct {
	db *gorm.DB
}

// NewGORMRepository constructs a GORMRepository over db.
func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

type coverAssignmentModel struct {
	ID               uuid.UUID `gorm:"column:id;primaryKey"`
	TenantID         uuid.UUID `gorm:"column:tenant_id"`
	Date             time.Time `gorm:"column:date"`
	SlotKey          string    `gorm:"column:slot_key"`
	RequestID        uuid.UUID `gorm:"column:request_id"`
	AbsentTeacherID  uuid.UUID `gorm:"column:absent_teacher_id"`
	AbsentName       string    `gorm:"column:absent_name"`
	AbsentEmail      string    `gorm:"column:absent_email"`
	CoverTeacherID   uuid.UUID `gorm:"column:cover_teacher_id"`
	CoverName        string    `gorm:"column:cover_name"`
	CoverEmail       string    `gorm:"column:cover_email"`
	ClassSubject     string    `gorm:"column:class_subject"`
	ClassGrade       string    `gorm:"column:class_grade"`
	ClassDetails     string    `gorm:"column:class_details"`
	PeriodLabel      string    `gorm:"column:period_label"`
	PeriodRaw        string    `gorm:"column:period_raw"`
	ClassTime        string    `gorm:"column:class_time"`
	CoverFreePeriods int       `gorm:"column:cover_free_periods"`
	CoverScheduled   int       `gorm:"column:cover_scheduled"`
	CoverMaxPeriods  int       `gorm:"column:cover_max_periods"`
	DayLabel         string    `gorm:"column:day_label"`
	CoverAssignedAt  time.Time `gorm:"column:cover_assigned_at"`
}

func (coverAssignmentModel) TableName() string { return "cover_assignments" }

type excludedTeacherModel struct {
	TenantID  uuid.UUID `gorm:"column:tenant_id"`
	TeacherID uuid.UUID `gorm:"column:teacher_id"`
}

func (excludedTeacherModel) TableName() string { return "excluded_teachers" }

type coverGapModel struct {
	ID         uuid.UUID `gorm:"column:id;primaryKey"`
	TenantID   uuid.UUID `gorm:"column:tenant_id"`
	RequestID  uuid.UUID `gorm:"column:request_id"`
	Date       time.Time `gorm:"column:date"`
	SlotKey    string    `gorm:"column:slot_key"`
	Reason     string    `gorm:"column:reason"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
}

func (coverGapModel) TableName() string { return "cover_gaps" }

func modelToAssignment(m coverAssignmentModel) Assignment {
	return Assignment{
		ID:               m.ID,
		TenantID:         m.TenantID,
		Date:             m.Date,
		SlotKey:          m.SlotKey,
		RequestID:        m.RequestID,
		AbsentTeacherID:  m.AbsentTeacherID,
		AbsentName:       m.AbsentName,
		AbsentEmail:      m.AbsentEmail,
		CoverTeacherID:   m.CoverTeacherID,
		CoverName:        m.CoverName,
		CoverEmail:       m.CoverEmail,
		ClassSubject:     m.ClassSubject,
		ClassGrade:       m.ClassGrade,
		ClassDetails:     m.ClassDetails,
		PeriodLabel:      m.PeriodLabel,
		PeriodRaw:        m.PeriodRaw,
		ClassTime:        m.ClassTime,
		CoverFreePeriods: m.CoverFreePeriods,
		CoverScheduled:   m.CoverScheduled,
		CoverMaxPeriods:  m.CoverMaxPeriods,
		DayLabel:         m.DayLabel,
		CoverAssignedAt:  m.CoverAssignedAt,
	}
}

func assignmentToModel(a Assignment) coverAssignmentModel {
	return coverAssignmentModel{
		ID:               a.ID,
		TenantID:         a.TenantID,
		Date:             a.Date,
		SlotKey:          a.SlotKey,
		RequestID:        a.RequestID,
		AbsentTeacherID:  a.AbsentTeacherID,
		AbsentName:       a.AbsentName,
		AbsentEmail:      a.AbsentEmail,
		CoverTeacherID:   a.CoverTeacherID,
		CoverName:        a.CoverName,
		CoverEmail:       a.CoverEmail,
		ClassSubject:     a.ClassSubject,
		ClassGrade:       a.ClassGrade,
		ClassDetails:     a.ClassDetails,
		PeriodLabel:      a.PeriodLabel,
		PeriodRaw:        a.PeriodRaw,
		ClassTime:        a.ClassTime,
		CoverFreePeriods: a.CoverFreePeriods,
		CoverScheduled:   a.CoverScheduled,
		CoverMaxPeriods:  a.CoverMaxPeriods,
		DayLabel:         a.DayLabel,
		CoverAssignedAt:  a.CoverAssignedAt,
	}
}

func (g *GORMRepository) ExistingSlotKeys(ctx context.Context, tenantID, requestID uuid.UUID, date time.Time) (map[string]bool, error) {
	var keys []string
	err := g.db.WithContext(ctx).
		Model(&coverAssignmentModel{}).
		Where("tenant_id = ? AND request_id = ? AND date = ?", tenantID, requestID, date).
		Pluck("slot_key", &keys).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

func (g *GORMRepository) Insert(ctx context.Context, a Assignment) error {
	model := assignmentToModel(a)
	return g.db.WithContext(ctx).Create(&model).Error
}

func (g *GORMRepository) CoversForTeacherOnDate(ctx context.Context, tenantID, teacherID uuid.UUID, date time.Time) (int, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&coverAssignmentModel{}).
		Where("tenant_id = ? AND cover_teacher_id = ? AND date = ?", tenantID, teacherID, date).
		Count(&count).Error
	return int(count), err
}

func (g *GORMRepository) ListExcludedTeachers(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]bool, error) {
	var models []excludedTeacherModel
	if err := g.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool, len(models))
	for _, m := range models {
		out[m.TeacherID] = true
	}
	return out, nil
}

// Update applies a restricted column patch. fields has already been
// filtered to EditableFields by the Engine, so the column names driving
// this map are trusted the same way repository_postgres.go's version
// trusts them for its raw SET clause.
func (g *GORMRepository) Update(ctx context.Context, tenantID, assignmentID uuid.UUID, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	updates := make(map[string]any, len(fields))
	for col, val := range fields {
		updates[col] = val
	}
	result := g.db.WithContext(ctx).
		Model(&coverAssignmentModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, assignmentID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (g *GORMRepository) RecordGap(ctx context.Context, gap GapReport) error {
	model := coverGapModel{
		ID:        uuid.New(),
		TenantID:  gap.TenantID,
		RequestID: gap.RequestID,
		Date:      gap.Date,
		SlotKey:   gap.SlotKey,
		Reason:    gap.Reason,
	}
	return g.db.WithContext(ctx).Create(&model).Error
}

func (g *GORMRepository) ListGaps(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]GapReport, error) {
	var models []coverGapModel
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND date >= ? AND date <= ?", tenantID, from, to).
		Order("date, slot_key").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]GapReport, len(models))
	for i, m := range models {
		out[i] = GapReport{
			TenantID:  m.TenantID,
			RequestID: m.RequestID,
			Date:      m.Date,
			SlotKey:   m.SlotKey,
			Reason:    m.Reason,
		}
	}
	return out, nil
}

func (g *GORMRepository) ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Assignment, error) {
	var models []coverAssignmentModel
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND date >= ? AND date <= ?", tenantID, from, to).
		Order("date, slot_key").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]Assignment, len(models))
	for i, m := range models {
		out[i] = modelToAssignment(m)
	}
	return out, nil
}
