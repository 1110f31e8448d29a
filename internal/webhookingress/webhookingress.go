// Package webhookingress receives the leave-approval webhook fired by the
// leave-request service (C7) on admin approval, persists a local record of
// it, optionally forwards a derived payload downstream, and drives cover
// assignment (C8) for the approved leave. Grounded on
// original_source/flask_app.py's external_leave_approvals route and
// original_source/covers_service.py's CoversManager.record_leave.
package webhookingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolsuite/absence-cover-duty/internal/covers"
	"github.com/schoolsuite/absence-cover-duty/internal/directory"
	"github.com/schoolsuite/absence-cover-duty/internal/sideeffect"
)

// ForwardStatus is the state of the downstream forward attempt for a
// received record.
type ForwardStatus string

const (
	ForwardPending ForwardStatus = "pending"
	ForwardSent    ForwardStatus = "sent"
	ForwardFailed  ForwardStatus = "failed"
)

var (
	// ErrInvalidSecret is returned when a configured secret header doesn't
	// match the caller's.
	ErrInvalidSecret = errors.New("webhookingress: missing or invalid secret")
	// ErrMissingFields is returned when the payload lacks request_id,
	// teacher, or both leave date fields.
	ErrMissingFields = errors.New("webhookingress: payload missing required fields")
)

// InboundTeacher is the nested "teacher" object the payload may carry
// alongside the flat "email"/"teacher_name" fields.
type InboundTeacher struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// InboundPayload is the JSON body of POST /external/leave-approvals, per §6.
type InboundPayload struct {
	RequestID    string         `json:"request_id"`
	ExcuseID     int            `json:"excuse_id"`
	Email        string         `json:"email"`
	TeacherName  string         `json:"teacher_name"`
	Teacher      InboundTeacher `json:"teacher"`
	LeaveType    string         `json:"leave_type"`
	LeaveStart   string         `json:"leave_start"`
	LeaveDate    string         `json:"leave_date"`
	LeaveEnd     string         `json:"leave_end"`
	SubmittedAt  string         `json:"submitted_at"`
	Status       string         `json:"status"`
	Reason       string         `json:"reason"`
	AdminComment string         `json:"admin_comment"`
	GeneratedAt  string         `json:"generated_at"`
}

// Record is the persisted, normalized form of one received webhook call,
// keyed by (tenant, request_id) — the Go analogue of covers_service.py's
// per-date JSON entry, now a row instead of a list member.
type Record struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	RequestID      string
	TeacherName    string
	TeacherEmail   string
	LeaveType      string
	LeaveStart     time.Time
	LeaveEnd       time.Time
	Status         string
	Reason         string
	AdminComment   string
	SubmittedAt    time.Time
	RecordedAt     time.Time
	ForwardStatus  ForwardStatus
	ForwardedAt    time.Time
	ForwardDetail  string
	RawPayload     string
}

// ForwardLogEntry is one row of WebhookForwardLog, §3's supplemented entity:
// one row per downstream POST attempt, independent of the Record it came
// from so a history of retries survives even though Record only keeps the
// latest attempt.
type ForwardLogEntry struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	RequestID  string
	AttemptAt  time.Time
	Status     ForwardStatus
	HTTPStatus int
	Detail     string
}

// Repository is the persistence boundary for received records and forward
// attempts.
type Repository interface {
	Upsert(ctx context.Context, r Record) (Record, error)
	FindByRequestID(ctx context.Context, tenantID uuid.UUID, requestID string) (Record, bool, error)
	InsertForwardLog(ctx context.Context, entry ForwardLogEntry) error
	// ListApproved returns every approved record for tenantID, for the
	// on-demand backfill pass (§4.7's "iterate all persisted approved leaves
	// without assignments"). Backfill relies on AssignForLeave's own
	// (date, request_id, slot_key) dedupe rather than this query filtering
	// out leaves that already have assignments, so a plain "all approved"
	// list is sufficient and the call stays idempotent either way.
	ListApproved(ctx context.Context, tenantID uuid.UUID) ([]Record, error)
}

// ForwardPayload is the derived payload POSTed to COVERS_FORWARD_URL,
// mirroring covers_service.py's _forward_leave_entry payload shape.
type ForwardPayload struct {
	RequestID   string
	Teacher     string
	TeacherEmail string
	LeaveType   string
	LeaveStart  string
	LeaveEnd    string
	Status      string
	Reason      string
	SubmittedAt string
	NotifiedAt  string
}

// ForwardResult is the outcome of one downstream POST attempt.
type ForwardResult struct {
	Status     ForwardStatus
	HTTPStatus int
	Detail     string
}

// Forwarder posts a derived payload downstream. A nil Forwarder (no
// COVERS_FORWARD_URL configured) means forwarding is disabled; Engine skips
// the call entirely rather than asking the Forwarder to no-op, mirroring
// covers_service.py's _should_forward short-circuit on an unset URL.
type Forwarder interface {
	Forward(ctx context.Context, payload ForwardPayload) ForwardResult
}

// CoverAssigner is the C8 boundary: Engine drives cover assignment for the
// newly-recorded leave once it has resolved the absent teacher's identity.
type CoverAssigner interface {
	AssignForLeave(ctx context.Context, tenantID uuid.UUID, leave covers.LeaveForAssignment) ([]covers.Assignment, error)
}

// Engine validates, persists, and reacts to inbound leave-approval webhooks.
type Engine struct {
	repo      Repository
	directory *directory.Service
	forwarder Forwarder // nil disables forwarding
	assigner  CoverAssigner
	secret    string // required X-Leave-Webhook-Secret value; empty disables the check
	log       zerolog.Logger
}

// NewEngine constructs an Engine. forwarder may be nil to disable downstream
// forwarding; secret may be empty to disable the header check, matching
// flask_app.py's "if LEAVE_WEBHOOK_SECRET:" guard.
func NewEngine(repo Repository, dir *directory.Service, forwarder Forwarder, assigner CoverAssigner, secret string, log zerolog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		directory: dir,
		forwarder: forwarder,
		assigner:  assigner,
		secret:    secret,
		log:       log.With().Str("component", "webhookingress").Logger(),
	}
}

// CheckSecret reports whether providedSecret satisfies the configured
// header requirement. Called by the HTTP handler before Record, per
// flask_app.py checking the header ahead of JSON parsing.
func (e *Engine) CheckSecret(providedSecret string) bool {
	if e.secret == "" {
		return true
	}
	return providedSecret == e.secret
}

// Outcome is what Record reports back to the HTTP handler.
type Outcome struct {
	TeacherName string
	LeaveDate   string
}

// Record validates and upserts an inbound payload, forwards it downstream
// when eligible, and synchronously drives C8 for the approved leave. The
// forward attempt and the C8 invocation are both best-effort: a failure in
// either is logged and recorded but never turns a successful upsert into an
// error response, matching flask_app.py's "record, then log-and-continue"
// shape (the route never fails the webhook over a forwarding error).
func (e *Engine) Record(ctx context.Context, tenantID uuid.UUID, payload InboundPayload) (Outcome, error) {
	record, err := e.normalize(tenantID, payload)
	if err != nil {
		return Outcome{}, err
	}

	existing, found, err := e.repo.FindByRequestID(ctx, tenantID, record.RequestID)
	if err != nil {
		return Outcome{}, fmt.Errorf("webhookingress: find existing record: %w", err)
	}
	if found {
		record.ForwardStatus = existing.ForwardStatus
		record.ForwardedAt = existing.ForwardedAt
		record.ForwardDetail = existing.ForwardDetail
	}

	if e.shouldForward(record) {
		e.forward(ctx, tenantID, &record).Log(e.log, "forward leave entry")
	}

	stored, err := e.repo.Upsert(ctx, record)
	if err != nil {
		return Outcome{}, fmt.Errorf("webhookingress: upsert record: %w", err)
	}

	e.assignCovers(ctx, tenantID, stored).Log(e.log, "assign covers for approved leave")

	return Outcome{TeacherName: stored.TeacherName, LeaveDate: stored.LeaveStart.Format("2006-01-02")}, nil
}

// shouldForward mirrors covers_service.py's _should_forward: forwarding is
// disabled, the leave isn't approved, or it was already sent.
func (e *Engine) shouldForward(r Record) bool {
	if e.forwarder == nil {
		return false
	}
	if strings.ToLower(strings.TrimSpace(r.Status)) != "approved" {
		return false
	}
	return r.ForwardStatus != ForwardSent
}

func (e *Engine) forward(ctx context.Context, tenantID uuid.UUID, record *Record) sideeffect.Result[string] {
	result := e.forwarder.Forward(ctx, ForwardPayload{
		RequestID:    record.RequestID,
		Teacher:      record.TeacherName,
		TeacherEmail: record.TeacherEmail,
		LeaveType:    record.LeaveType,
		LeaveStart:   record.LeaveStart.Format("2006-01-02"),
		LeaveEnd:     record.LeaveEnd.Format("2006-01-02"),
		Status:       record.Status,
		Reason:       record.Reason,
		SubmittedAt:  record.SubmittedAt.Format(time.RFC3339),
		NotifiedAt:   time.Now().UTC().Format(time.RFC3339),
	})

	now := time.Now().UTC()
	record.ForwardStatus = result.Status
	record.ForwardedAt = now
	record.ForwardDetail = result.Detail

	logErr := e.repo.InsertForwardLog(ctx, ForwardLogEntry{
		ID:         uuid.New(),
		TenantID:   tenantID,
		RequestID:  record.RequestID,
		AttemptAt:  now,
		Status:     result.Status,
		HTTPStatus: result.HTTPStatus,
		Detail:     result.Detail,
	})
	if logErr != nil {
		return sideeffect.Fail[string](fmt.Errorf("record forward log: %w", logErr))
	}
	if result.Status != ForwardSent {
		return sideeffect.Fail[string](fmt.Errorf("forward attempt: %s", result.Detail))
	}
	return sideeffect.Ok(result.Detail)
}

// assignCovers resolves the absent teacher by email and drives C8. A leave
// that isn't approved, or a teacher unknown to the directory, is logged and
// skipped rather than treated as an error — the webhook's job is to record
// the leave; cover assignment is a downstream convenience.
func (e *Engine) assignCovers(ctx context.Context, tenantID uuid.UUID, record Record) sideeffect.Result[string] {
	if e.assigner == nil {
		return sideeffect.Ok("assignment disabled")
	}
	if strings.ToLower(strings.TrimSpace(record.Status)) != "approved" {
		return sideeffect.Ok("leave not approved, skipping assignment")
	}

	teacher, err := e.directory.TeacherByEmail(ctx, tenantID, record.TeacherEmail)
	if err != nil {
		return sideeffect.Fail[string](fmt.Errorf("resolve teacher %q: %w", record.TeacherEmail, err))
	}

	requestID, err := stableRequestUUID(record.RequestID)
	if err != nil {
		return sideeffect.Fail[string](err)
	}

	assignments, err := e.assigner.AssignForLeave(ctx, tenantID, covers.LeaveForAssignment{
		RequestID:   requestID,
		TeacherID:   teacher.ID,
		TeacherName: teacher.Name,
		LeaveStart:  record.LeaveStart,
		LeaveEnd:    record.LeaveEnd,
	})
	if err != nil {
		return sideeffect.Fail[string](err)
	}
	return sideeffect.Ok(fmt.Sprintf("%d cover assignments", len(assignments)))
}

// BackfillSummary reports how many approved leaves were reprocessed and how
// many produced an error, for the caller (admin endpoint or a periodic job)
// to log or surface.
type BackfillSummary struct {
	Considered int
	Assigned   int
	Failed     int
}

// Backfill implements §4.7's on-demand backfill: it re-runs C8 for every
// persisted approved leave. AssignForLeave's unique (date, request_id,
// slot_key) constraint means leaves that already have assignments are a
// no-op, so this never duplicates an existing CoverAssignment; a failure on
// one leave is logged and does not abort the rest, mirroring the reminder
// sweep's per-row isolation in internal/leaves.
func (e *Engine) Backfill(ctx context.Context, tenantID uuid.UUID) (BackfillSummary, error) {
	records, err := e.repo.ListApproved(ctx, tenantID)
	if err != nil {
		return BackfillSummary{}, fmt.Errorf("webhookingress: list approved records: %w", err)
	}

	summary := BackfillSummary{Considered: len(records)}
	for _, record := range records {
		result := e.assignCovers(ctx, tenantID, record)
		result.Log(e.log, "backfill cover assignment")
		if result.Err != nil {
			summary.Failed++
			continue
		}
		summary.Assigned++
	}
	return summary, nil
}

// stableRequestUUID derives a deterministic UUID from the webhook's string
// request_id (e.g. "req-482"), since covers.LeaveForAssignment keys off a
// uuid.UUID but the upstream leave service's request ids are opaque
// strings, not UUIDs.
func stableRequestUUID(requestID string) (uuid.UUID, error) {
	if requestID == "" {
		return uuid.UUID{}, ErrMissingFields
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("webhookingress:request:"+requestID)), nil
}

// normalize validates payload and builds the Record to persist, porting
// covers_service.py's _normalize_payload/_normalize_payload_dates.
func (e *Engine) normalize(tenantID uuid.UUID, payload InboundPayload) (Record, error) {
	teacherName := firstNonEmpty(payload.TeacherName, payload.Teacher.Name)
	if payload.RequestID == "" || teacherName == "" {
		return Record{}, ErrMissingFields
	}
	if payload.LeaveStart == "" && payload.LeaveDate == "" {
		return Record{}, ErrMissingFields
	}

	leaveStart := normalizeDate(firstNonEmpty(payload.LeaveStart, payload.LeaveDate))
	leaveEnd := leaveStart
	if payload.LeaveEnd != "" {
		leaveEnd = normalizeDate(payload.LeaveEnd)
	}

	submittedAt := normalizeDateTime(payload.SubmittedAt)

	rawPayload := ""
	if encoded, err := json.Marshal(payload); err == nil {
		rawPayload = string(encoded)
	}

	return Record{
		ID:            uuid.New(),
		TenantID:      tenantID,
		RequestID:     payload.RequestID,
		TeacherName:   teacherName,
		TeacherEmail:  firstNonEmpty(payload.Email, payload.Teacher.Email),
		LeaveType:     payload.LeaveType,
		LeaveStart:    leaveStart,
		LeaveEnd:      leaveEnd,
		Status:        payload.Status,
		Reason:        payload.Reason,
		AdminComment:  payload.AdminComment,
		SubmittedAt:   submittedAt,
		RecordedAt:    time.Now().UTC(),
		ForwardStatus: ForwardPending,
		RawPayload:    rawPayload,
	}, nil
}

var dateLayouts = []string{"2006-01-02", "02-01-2006", "01/02/2006", time.RFC3339}

// normalizeDate parses raw against ISO, dd-mm-YYYY, then mm/dd/YYYY,
// falling back to today (UTC) on total failure, per SPEC_FULL.md §4.9 and
// covers_service.py's _normalize_date.
func normalizeDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return truncateToDate(t)
		}
	}
	return truncateToDate(time.Now().UTC())
}

func normalizeDateTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t
	}
	return time.Now().UTC()
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
