// Package leaves implements the leave-request lifecycle: submission with
// field validation and the sick-leave forbidden-window check, the
// attachment state machine, messaging, admin review, and the reminder/
// auto-invalidation sweep. It ports leave_bp.py's TeacherExcuse workflow.
package leaves

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schoolsuite/absence-cover-duty/internal/attachments"
	"github.com/schoolsuite/absence-cover-duty/internal/clock"
	"github.com/schoolsuite/absence-cover-duty/internal/sideeffect"
)

// Type is the kind of leave being requested.
type Type string

const (
	TypeSick        Type = "sickleave"
	TypeConference  Type = "conference_offsite"
	TypeTraining    Type = "training_offsite"
	TypeEarlyLeave  Type = "early_leave_request"
)

var validTypes = map[Type]bool{
	TypeSick: true, TypeConference: true, TypeTraining: true, TypeEarlyLeave: true,
}

// timedTypes require both a start and end time on the same day.
var timedTypes = map[Type]bool{TypeConference: true, TypeTraining: true}

// Status is a leave request's review state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusInvalid  Status = "invalid"
)

// AttachmentStatus tracks the sick-leave document's state independently of
// the leave's own review status.
type AttachmentStatus string

const (
	AttachmentNotRequired AttachmentStatus = "not_required"
	AttachmentMissing     AttachmentStatus = "missing"
	AttachmentSubmitted   AttachmentStatus = "submitted"
	AttachmentApproved    AttachmentStatus = "approved"
	AttachmentDeclined    AttachmentStatus = "declined"
)

const attachmentDueDays = 5
const reminderLimit = 5
const reminderInterval = 24 * time.Hour

// Request is a leave request row.
type Request struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	TeacherID   uuid.UUID
	TeacherName string
	TeacherEmail string

	LeaveType Type
	Reason    string

	LeaveDate time.Time
	EndDate   time.Time
	StartTime string // "HH:MM", required for conference/training, optional start bound for early leave
	EndTime   string // "HH:MM", required for conference/training

	Status       Status
	AdminComment string
	ReviewedBy   string
	ReviewedAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	AttachmentRequired        bool
	AttachmentStatus          AttachmentStatus
	AttachmentPath            string
	AttachmentOriginalName    string
	AttachmentUploadedAt      time.Time
	AttachmentDueAt           time.Time
	AttachmentReminderCount   int
	AttachmentLastReminderAt  time.Time
	AttachmentExportPath      string
	AttachmentExportedAt      time.Time
}

// NormalizedEndDate returns EndDate if set, else LeaveDate.
func (r Request) NormalizedEndDate() time.Time {
	if r.EndDate.IsZero() {
		return r.LeaveDate
	}
	return r.EndDate
}

// Message is one entry in a leave's teacher/admin conversation thread.
type Message struct {
	ID        uuid.UUID
	LeaveID   uuid.UUID
	Sender    string // "teacher" or "admin"
	Body      string
	CreatedAt time.Time
}

// Sentinel validation/state errors, checked with errors.Is by callers and
// HTTP handlers alike.
var (
	ErrInvalidLeaveType       = errors.New("leaves: invalid leave type")
	ErrMissingReason          = errors.New("leaves: reason is required")
	ErrInvalidDate            = errors.New("leaves: invalid date")
	ErrEndBeforeStart         = errors.New("leaves: end date before leave date")
	ErrLeaveDateInPast        = errors.New("leaves: leave date is in the past")
	ErrMissingTimeWindow      = errors.New("leaves: start and end time are required for this leave type")
	ErrEndTimeBeforeStart     = errors.New("leaves: end time must be after start time")
	ErrForbiddenWindow        = errors.New("leaves: sick leave cannot be submitted during the 05:30-08:00 window")
	ErrDuplicatePending       = errors.New("leaves: a pending request already exists for this date")
	ErrNotPending             = errors.New("leaves: request is not pending")
	ErrNotSickLeave           = errors.New("leaves: operation only valid for sick leave")
	ErrAttachmentRequired     = errors.New("leaves: sick leave attachment is required to approve")
	ErrNotSuperAdmin          = errors.New("leaves: caller is not a super admin")
	ErrMessagingClosed        = errors.New("leaves: request is no longer open for messages")
)

// SubmitInput is the teacher-supplied payload for a new leave request.
type SubmitInput struct {
	TeacherID    uuid.UUID
	TeacherName  string
	TeacherEmail string
	LeaveType    Type
	Reason       string
	LeaveDate    time.Time
	EndDate      time.Time // zero means "same as LeaveDate"
	StartTime    string
	EndTime      string

	Attachment         *StagedAttachment // nil if none supplied at submission time
	ShareRecipients    []string
}

// StagedAttachment is an attachment already read into memory by the caller
// (HTTP handler), ready to hand to the attachment store.
type StagedAttachment struct {
	Reader       AttachmentReader
	DeclaredSize int64
	OriginalName string
}

// AttachmentReader is the minimal io.Reader contract Save needs; kept as its
// own name so callers don't need to import io just for this field.
type AttachmentReader interface {
	Read(p []byte) (n int, err error)
}

// Repository is the persistence boundary for leave requests and messages.
// Mutations that must observe a consistent snapshot (review, no-document
// acknowledgement, attachment upload) read the row through GetForUpdate.
type Repository interface {
	Insert(ctx context.Context, r Request) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (Request, error)
	GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (Request, error)
	Update(ctx context.Context, r Request) error
	FindPending(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time) (Request, bool, error)
	ListPendingSickWithMissingAttachment(ctx context.Context, tenantID uuid.UUID) ([]Request, error)
	ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Request, error)
	InsertMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, tenantID, leaveID uuid.UUID) ([]Message, error)
	RecordWindowAttempt(ctx context.Context, tenantID, teacherID uuid.UUID, leaveDate time.Time, reasonPreview string) error
	RecordReminderEvent(ctx context.Context, tenantID, leaveID uuid.UUID, event string, occurredAt time.Time) error
}

// Notifier is the subset of internal/notify's Service the engine depends on.
type Notifier interface {
	Send(ctx context.Context, to NotifyRecipients, subject, html, profile string) error
}

// NotifyRecipients mirrors notify.Recipients without importing the notify
// package directly, keeping leaves decoupled from notify's HTTP/SMTP
// transport details.
type NotifyRecipients struct {
	To  []string
	CC  []string
	BCC []string
}

// Archiver is the subset of internal/drive's Archiver the engine depends on.
type Archiver interface {
	Archive(ctx context.Context, leave ArchiveRecord) (ArchiveResultRecord, error)
	Delete(ctx context.Context, path string) error
}

// ArchiveRecord and ArchiveResultRecord mirror the drive package's shapes,
// decoupling leaves from drive's concrete types the same way Notifier does
// for notify.
type ArchiveRecord struct {
	RequestID            uuid.UUID
	TeacherName          string
	LeaveDate            time.Time
	AttachmentPath       string
	AttachmentExt        string
	AttachmentExportPath string
	ShareRecipients      []string
}

type ArchiveResultRecord struct {
	ExportPath string
}

// WebhookEmitter fires the leave-approval webhook. Only Submit calls it —
// the only call site leave_bp.py's own `_send_leave_approval_webhook` has
// (fired once, unconditionally, at `new_request`); it is never called again
// on review, acknowledgement, or auto-invalidation.
type WebhookEmitter interface {
	EmitLeaveStateChange(ctx context.Context, r Request) error
}

// Engine implements the leave request lifecycle.
type Engine struct {
	repo        Repository
	attachments *attachments.Store
	notifier    Notifier
	archiver    Archiver
	webhook     WebhookEmitter
	adminEmails func(ctx context.Context, tenantID uuid.UUID) ([]string, error)
	gradeEmails func(ctx context.Context, tenantID uuid.UUID, grade string) ([]string, error)
}

// NewEngine constructs an Engine. adminEmails and gradeEmails resolve the
// recipient lists for the admin broadcast and the per-grade sick-leave
// alert respectively; either may be nil to disable that notification path.
func NewEngine(
	repo Repository,
	store *attachments.Store,
	notifier Notifier,
	archiver Archiver,
	webhook WebhookEmitter,
	adminEmails func(ctx context.Context, tenantID uuid.UUID) ([]string, error),
	gradeEmails func(ctx context.Context, tenantID uuid.UUID, grade string) ([]string, error),
) *Engine {
	return &Engine{
		repo: repo, attachments: store, notifier: notifier, archiver: archiver,
		webhook: webhook, adminEmails: adminEmails, gradeEmails: gradeEmails,
	}
}

func parseHHMM(value string) (hour, minute int, ok bool) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// validate enforces every field-level rule from the submission contract.
func validate(in SubmitInput, now time.Time) error {
	if !validTypes[in.LeaveType] {
		return ErrInvalidLeaveType
	}
	if strings.TrimSpace(in.Reason) == "" {
		return ErrMissingReason
	}
	if in.LeaveDate.IsZero() {
		return ErrInvalidDate
	}
	end := in.EndDate
	if end.IsZero() {
		end = in.LeaveDate
	}
	if end.Before(in.LeaveDate) {
		return ErrEndBeforeStart
	}
	if clock.StartOfCivilDay(in.LeaveDate).Before(clock.StartOfCivilDay(now)) {
		return ErrLeaveDateInPast
	}
	if timedTypes[in.LeaveType] {
		sh, sm, sok := parseHHMM(in.StartTime)
		eh, em, eok := parseHHMM(in.EndTime)
		if !sok || !eok {
			return ErrMissingTimeWindow
		}
		if eh < sh || (eh == sh && em <= sm) {
			return ErrEndTimeBeforeStart
		}
	}
	if in.LeaveType == TypeSick && clock.InSickLeaveForbiddenWindow(now, in.LeaveDate) {
		return ErrForbiddenWindow
	}
	return nil
}

// Submit validates, stages any supplied attachment, persists the request,
// and fires the best-effort side effects (admin broadcast, teacher
// receipt, archive enqueue, webhook emission) described in §4.6.
func (e *Engine) Submit(ctx context.Context, tenantID uuid.UUID, in SubmitInput) (Request, []sideeffect.Result[string], error) {
	now := clock.Now()
	if err := validate(in, now); err != nil {
		if in.LeaveType == TypeSick && errors.Is(err, ErrForbiddenWindow) {
			_ = e.repo.RecordWindowAttempt(ctx, tenantID, in.TeacherID, in.LeaveDate, in.Reason)
		}
		return Request{}, nil, err
	}

	if existing, found, err := e.repo.FindPending(ctx, tenantID, in.TeacherID, in.LeaveDate); err != nil {
		return Request{}, nil, fmt.Errorf("leaves: check duplicate pending: %w", err)
	} else if found {
		_ = existing
		return Request{}, nil, ErrDuplicatePending
	}

	r := Request{
		ID: uuid.New(), TenantID: tenantID, TeacherID: in.TeacherID,
		TeacherName: in.TeacherName, TeacherEmail: in.TeacherEmail,
		LeaveType: in.LeaveType, Reason: in.Reason,
		LeaveDate: in.LeaveDate, EndDate: in.EndDate,
		StartTime: in.StartTime, EndTime: in.EndTime,
		Status: StatusPending, CreatedAt: now.UTC(), UpdatedAt: now.UTC(),
		AttachmentRequired: in.LeaveType == TypeSick,
	}

	if r.AttachmentRequired {
		if in.Attachment != nil {
			staged, err := e.attachments.Save(in.Attachment.Reader, in.Attachment.DeclaredSize, in.Attachment.OriginalName)
			if err != nil {
				return Request{}, nil, fmt.Errorf("leaves: stage attachment: %w", err)
			}
			r.AttachmentStatus = AttachmentSubmitted
			r.AttachmentPath = staged.RelativePath
			r.AttachmentOriginalName = staged.OriginalName
			r.AttachmentUploadedAt = now.UTC()
		} else {
			r.AttachmentStatus = AttachmentMissing
			r.AttachmentDueAt = now.UTC().AddDate(0, 0, attachmentDueDays)
		}
	} else {
		r.AttachmentStatus = AttachmentNotRequired
	}

	if err := e.repo.Insert(ctx, r); err != nil {
		return Request{}, nil, fmt.Errorf("leaves: insert: %w", err)
	}

	results := e.afterSubmit(ctx, tenantID, r)
	return r, results, nil
}

// afterSubmit fires every best-effort side effect attached to a fresh
// submission, collecting each as an explicit sideeffect.Result instead of
// propagating failures back into the caller's transaction.
func (e *Engine) afterSubmit(ctx context.Context, tenantID uuid.UUID, r Request) []sideeffect.Result[string] {
	var results []sideeffect.Result[string]

	results = append(results, e.notifyAdminBroadcast(ctx, tenantID, r, "New absence request"))
	results = append(results, e.notifyTeacher(ctx, r, "Absence request received", "We received your request."))

	if r.AttachmentPath != "" {
		results = append(results, e.runArchive(ctx, r))
	}

	if e.webhook != nil {
		if err := e.webhook.EmitLeaveStateChange(ctx, r); err != nil {
			results = append(results, sideeffect.Fail[string](fmt.Errorf("leave-approval webhook: %w", err)))
		} else {
			results = append(results, sideeffect.Ok("leave-approval webhook sent"))
		}
	}

	return results
}

func (e *Engine) notifyAdminBroadcast(ctx context.Context, tenantID uuid.UUID, r Request, subject string) sideeffect.Result[string] {
	if e.notifier == nil || e.adminEmails == nil {
		return sideeffect.Ok("admin broadcast skipped: not configured")
	}
	recipients, err := e.adminEmails(ctx, tenantID)
	if err != nil {
		return sideeffect.Fail[string](fmt.Errorf("resolve admin recipients: %w", err))
	}
	if len(recipients) == 0 {
		return sideeffect.Ok("admin broadcast skipped: no recipients")
	}
	html := fmt.Sprintf("<div><h2>%s</h2><p>Teacher: %s</p><p>Dates: %s</p></div>",
		subject, r.TeacherName, dateRangeLabel(r))
	if err := e.notifier.Send(ctx, NotifyRecipients{To: recipients}, subject+": "+r.TeacherName, html, "absence"); err != nil {
		return sideeffect.Fail[string](err)
	}
	return sideeffect.Ok("admin broadcast sent")
}

func (e *Engine) notifyTeacher(ctx context.Context, r Request, subject, lead string) sideeffect.Result[string] {
	if e.notifier == nil || r.TeacherEmail == "" {
		return sideeffect.Ok("teacher notification skipped: no email")
	}
	html := fmt.Sprintf("<div><h2>%s</h2><p>%s</p><p>Dates: %s</p></div>", subject, lead, dateRangeLabel(r))
	if err := e.notifier.Send(ctx, NotifyRecipients{To: []string{r.TeacherEmail}}, subject, html, "absence"); err != nil {
		return sideeffect.Fail[string](err)
	}
	return sideeffect.Ok("teacher notification sent")
}

func (e *Engine) runArchive(ctx context.Context, r Request) sideeffect.Result[string] {
	if e.archiver == nil {
		return sideeffect.Ok("archive skipped: not configured")
	}
	ext := extOf(r.AttachmentOriginalName)
	result, err := e.archiver.Archive(ctx, ArchiveRecord{
		RequestID: r.ID, TeacherName: r.TeacherName, LeaveDate: r.LeaveDate,
		AttachmentPath: r.AttachmentPath, AttachmentExt: ext,
		AttachmentExportPath: r.AttachmentExportPath, ShareRecipients: nil,
	})
	if err != nil {
		return sideeffect.Fail[string](err)
	}
	r.AttachmentExportPath = result.ExportPath
	r.AttachmentExportedAt = clock.Now().UTC()
	if err := e.repo.Update(ctx, r); err != nil {
		return sideeffect.Fail[string](fmt.Errorf("persist archive result: %w", err))
	}
	return sideeffect.Ok("archived to " + result.ExportPath)
}

func extOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx:])
}

func dateRangeLabel(r Request) string {
	end := r.NormalizedEndDate()
	if end.Equal(r.LeaveDate) {
		return r.LeaveDate.Format("02 Jan 2006")
	}
	return fmt.Sprintf("%s - %s", r.LeaveDate.Format("02 Jan 2006"), end.Format("02 Jan 2006"))
}

// UploadAttachment replaces a sick-leave request's attachment after
// submission: deletes any prior export (best-effort), deletes the prior
// local file, stages the new one, and re-archives.
func (e *Engine) UploadAttachment(ctx context.Context, tenantID, leaveID uuid.UUID, in StagedAttachment) (Request, []sideeffect.Result[string], error) {
	r, err := e.repo.GetForUpdate(ctx, tenantID, leaveID)
	if err != nil {
		return Request{}, nil, fmt.Errorf("leaves: get for update: %w", err)
	}
	if r.LeaveType != TypeSick {
		return Request{}, nil, ErrNotSickLeave
	}

	var results []sideeffect.Result[string]
	if r.AttachmentExportPath != "" && e.archiver != nil {
		if err := e.archiver.Delete(ctx, r.AttachmentExportPath); err != nil {
			results = append(results, sideeffect.Fail[string](fmt.Errorf("delete stale export: %w", err)))
		} else {
			results = append(results, sideeffect.Ok("stale export removed"))
		}
	}
	if r.AttachmentPath != "" {
		_ = e.attachments.Delete(r.AttachmentPath)
	}

	staged, err := e.attachments.Save(in.Reader, in.DeclaredSize, in.OriginalName)
	if err != nil {
		return Request{}, nil, fmt.Errorf("leaves: stage attachment: %w", err)
	}

	now := clock.Now().UTC()
	r.AttachmentPath = staged.RelativePath
	r.AttachmentOriginalName = staged.OriginalName
	r.AttachmentStatus = AttachmentSubmitted
	r.AttachmentUploadedAt = now
	if r.AttachmentDueAt.IsZero() {
		r.AttachmentDueAt = now.AddDate(0, 0, attachmentDueDays)
	}
	r.UpdatedAt = now

	if err := e.repo.Update(ctx, r); err != nil {
		return Request{}, nil, fmt.Errorf("leaves: persist attachment: %w", err)
	}

	results = append(results, e.runArchive(ctx, r))
	return r, results, nil
}

// AcknowledgeNoDocument lets a teacher withdraw a pending sick leave when
// they cannot supply a document, short-circuiting the reminder cycle.
func (e *Engine) AcknowledgeNoDocument(ctx context.Context, tenantID, leaveID uuid.UUID, teacherName string) (Request, error) {
	r, err := e.repo.GetForUpdate(ctx, tenantID, leaveID)
	if err != nil {
		return Request{}, err
	}
	if r.Status != StatusPending || r.LeaveType != TypeSick {
		return Request{}, ErrNotPending
	}
	now := clock.Now().UTC()
	r.Status = StatusInvalid
	r.AttachmentStatus = AttachmentDeclined
	r.ReviewedBy = teacherName
	r.ReviewedAt = now
	r.UpdatedAt = now
	if err := e.repo.Update(ctx, r); err != nil {
		return Request{}, fmt.Errorf("leaves: persist acknowledgement: %w", err)
	}
	return r, nil
}

// ReviewInput is an admin's decision on a pending leave request.
type ReviewInput struct {
	Status                   Status
	AdminComment             string
	ReviewedBy               string
	IsSuperAdmin             bool
	OverrideMissingAttachment bool
}

// Review applies an admin decision: super-admin only, updates attachment
// status in lockstep with the new review status, refuses approving a
// sickleave with no attachment unless explicitly overridden, and fires the
// teacher status email / grade alert best-effort side effects. No webhook
// fires here — see WebhookEmitter.
func (e *Engine) Review(ctx context.Context, tenantID, leaveID uuid.UUID, in ReviewInput) (Request, []sideeffect.Result[string], error) {
	if !in.IsSuperAdmin {
		return Request{}, nil, ErrNotSuperAdmin
	}
	r, err := e.repo.GetForUpdate(ctx, tenantID, leaveID)
	if err != nil {
		return Request{}, nil, err
	}

	if in.Status == StatusApproved && r.LeaveType == TypeSick && r.AttachmentPath == "" {
		if !in.OverrideMissingAttachment {
			return Request{}, nil, ErrAttachmentRequired
		}
	}

	now := clock.Now().UTC()
	r.Status = in.Status
	r.AdminComment = in.AdminComment
	r.ReviewedBy = in.ReviewedBy
	r.ReviewedAt = now
	r.UpdatedAt = now

	if r.AttachmentRequired {
		switch in.Status {
		case StatusApproved:
			r.AttachmentStatus = AttachmentApproved
		case StatusRejected, StatusInvalid:
			r.AttachmentStatus = AttachmentDeclined
		default:
			if r.AttachmentPath != "" {
				r.AttachmentStatus = AttachmentSubmitted
			} else {
				r.AttachmentStatus = AttachmentMissing
			}
		}
	}

	if err := e.repo.Update(ctx, r); err != nil {
		return Request{}, nil, fmt.Errorf("leaves: persist review: %w", err)
	}

	var results []sideeffect.Result[string]
	if in.Status != StatusPending {
		results = append(results, e.notifyTeacher(ctx, r, fmt.Sprintf("Absence request %s", in.Status), "Your request status has changed."))
	}
	if in.Status == StatusApproved && r.LeaveType == TypeSick && e.gradeEmails != nil {
		recipients, err := e.gradeEmails(ctx, tenantID, r.TeacherName)
		if err != nil {
			results = append(results, sideeffect.Fail[string](fmt.Errorf("resolve grade recipients: %w", err)))
		} else if len(recipients) > 0 && e.notifier != nil {
			html := fmt.Sprintf("<p>Sick leave approved for %s</p>", r.TeacherName)
			if err := e.notifier.Send(ctx, NotifyRecipients{To: recipients}, "Sick Leave Approved", html, "absence"); err != nil {
				results = append(results, sideeffect.Fail[string](err))
			} else {
				results = append(results, sideeffect.Ok("grade alert sent"))
			}
		}
	}

	return r, results, nil
}

// PostMessage appends a message while the request is open (status=pending)
// and notifies the other side best-effort.
func (e *Engine) PostMessage(ctx context.Context, tenantID, leaveID uuid.UUID, sender, body string) (Message, sideeffect.Result[string], error) {
	r, err := e.repo.Get(ctx, tenantID, leaveID)
	if err != nil {
		return Message{}, sideeffect.Result[string]{}, err
	}
	if r.Status != StatusPending {
		return Message{}, sideeffect.Result[string]{}, ErrMessagingClosed
	}

	m := Message{ID: uuid.New(), LeaveID: leaveID, Sender: sender, Body: body, CreatedAt: clock.Now().UTC()}
	if err := e.repo.InsertMessage(ctx, m); err != nil {
		return Message{}, sideeffect.Result[string]{}, fmt.Errorf("leaves: insert message: %w", err)
	}

	var result sideeffect.Result[string]
	if sender == "teacher" {
		result = e.notifyAdminBroadcast(ctx, tenantID, r, "New message on absence request")
	} else {
		result = e.notifyTeacher(ctx, r, "New admin message on absence request", body)
	}
	return m, result, nil
}

// RunReminderSweep scans every pending sickleave with a missing attachment,
// auto-invalidating past-deadline requests and sending reminder emails for
// the rest, per §4.6. A failure processing one leave is logged by the
// caller (returned in its ReminderOutcome) and never aborts the scan.
func (e *Engine) RunReminderSweep(ctx context.Context, tenantID uuid.UUID) ([]ReminderOutcome, error) {
	candidates, err := e.repo.ListPendingSickWithMissingAttachment(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("leaves: list reminder candidates: %w", err)
	}

	now := clock.Now().UTC()
	var outcomes []ReminderOutcome
	for _, r := range candidates {
		outcome, err := e.processReminderCandidate(ctx, tenantID, r, now)
		outcome.Err = err
		outcomes = append(outcomes, outcome)

		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		default:
		}
	}
	return outcomes, nil
}

// ReminderOutcome records what the sweep did for one leave request.
type ReminderOutcome struct {
	LeaveID uuid.UUID
	Action  string // "invalidated", "reminded", "skipped"
	Err     error
}

func (e *Engine) processReminderCandidate(ctx context.Context, tenantID uuid.UUID, r Request, now time.Time) (ReminderOutcome, error) {
	deadline := r.AttachmentDueAt
	if deadline.IsZero() {
		deadline = r.CreatedAt.AddDate(0, 0, attachmentDueDays)
	}

	if !now.Before(deadline) {
		r.Status = StatusInvalid
		r.AttachmentStatus = AttachmentDeclined
		r.AdminComment = strings.TrimSpace(r.AdminComment + " Automatically marked invalid after 5 days without a sick leave document.")
		r.ReviewedBy = "System"
		r.ReviewedAt = now
		r.UpdatedAt = now
		if err := e.repo.Update(ctx, r); err != nil {
			return ReminderOutcome{LeaveID: r.ID, Action: "invalidated"}, err
		}
		e.notifyTeacher(ctx, r, "Absence request invalid", "Automatically marked invalid after 5 days without a sick leave document.")
		_ = e.repo.RecordReminderEvent(ctx, tenantID, r.ID, "auto_invalidated", now)
		return ReminderOutcome{LeaveID: r.ID, Action: "invalidated"}, nil
	}

	lastReminder := r.AttachmentLastReminderAt
	if lastReminder.IsZero() {
		lastReminder = r.CreatedAt
	}
	if r.AttachmentReminderCount < reminderLimit && now.Sub(lastReminder) >= reminderInterval {
		result := e.notifyTeacher(ctx, r, "Reminder: sick leave document required", "Please upload your sick leave document.")
		if !result.OK() {
			return ReminderOutcome{LeaveID: r.ID, Action: "reminder_failed"}, result.Err
		}
		r.AttachmentReminderCount++
		r.AttachmentLastReminderAt = now
		r.UpdatedAt = now
		if err := e.repo.Update(ctx, r); err != nil {
			return ReminderOutcome{LeaveID: r.ID, Action: "reminded"}, err
		}
		_ = e.repo.RecordReminderEvent(ctx, tenantID, r.ID, "reminder_sent", now)
		return ReminderOutcome{LeaveID: r.ID, Action: "reminded"}, nil
	}

	return ReminderOutcome{LeaveID: r.ID, Action: "skipped"}, nil
}

// ListMessages returns a leave's conversation thread in chronological order.
func (e *Engine) ListMessages(ctx context.Context, tenantID, leaveID uuid.UUID) ([]Message, error) {
	return e.repo.ListMessages(ctx, tenantID, leaveID)
}

// Get returns a single leave request by id.
func (e *Engine) Get(ctx context.Context, tenantID, leaveID uuid.UUID) (Request, error) {
	return e.repo.Get(ctx, tenantID, leaveID)
}

// ListForDateRange returns leave requests overlapping [from, to], for the
// admin review queue and calendar views.
func (e *Engine) ListForDateRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Request, error) {
	return e.repo.ListForDateRange(ctx, tenantID, from, to)
}
