package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/schoolsuite/absence-cover-duty/internal/drive"
	"github.com/schoolsuite/absence-cover-duty/internal/leaves"
	"github.com/schoolsuite/absence-cover-duty/internal/notify"
)

// notifierAdapter satisfies leaves.Notifier over a concrete notify.Service,
// translating leaves' decoupled NotifyRecipients into notify.Recipients.
type notifierAdapter struct {
	svc     *notify.Service
	profile string
}

func (a notifierAdapter) Send(ctx context.Context, to leaves.NotifyRecipients, subject, html, profile string) error {
	if profile == "" {
		profile = a.profile
	}
	return a.svc.Send(ctx, notify.Recipients{To: to.To, CC: to.CC, BCC: to.BCC}, subject, html, profile)
}

// archiverAdapter satisfies leaves.Archiver over a concrete drive.Archiver.
type archiverAdapter struct {
	archiver *drive.Archiver
}

func (a archiverAdapter) Archive(ctx context.Context, leave leaves.ArchiveRecord) (leaves.ArchiveResultRecord, error) {
	result, err := a.archiver.Archive(ctx, drive.LeaveRecord{
		RequestID:            leave.RequestID,
		TeacherName:          leave.TeacherName,
		LeaveDate:            leave.LeaveDate,
		AttachmentPath:       leave.AttachmentPath,
		AttachmentExt:        leave.AttachmentExt,
		AttachmentExportPath: leave.AttachmentExportPath,
		ShareRecipients:      leave.ShareRecipients,
	})
	if err != nil {
		return leaves.ArchiveResultRecord{}, err
	}
	return leaves.ArchiveResultRecord{ExportPath: result.ExportPath}, nil
}

func (a archiverAdapter) Delete(ctx context.Context, path string) error {
	return a.archiver.Delete(ctx, path)
}

// leaveStateWebhookEmitter satisfies leaves.WebhookEmitter by POSTing a
// derived payload to an external subscriber — the downstream sibling of
// the POST /external/leave-approvals endpoint internal/webhookingress
// exposes, for deployments that run leave-request management and cover
// scheduling as separate services. An empty url disables the call entirely,
// the same optional-dependency convention internal/webhookingress.Forwarder
// documents for COVERS_FORWARD_URL.
type leaveStateWebhookEmitter struct {
	url        string
	secret     string
	httpClient *http.Client
	log        zerolog.Logger
}

func newLeaveStateWebhookEmitter(url, secret string, timeout time.Duration, log zerolog.Logger) *leaveStateWebhookEmitter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &leaveStateWebhookEmitter{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "leave-state-webhook").Logger(),
	}
}

type leaveStateWebhookPayload struct {
	RequestID    string `json:"request_id"`
	TeacherName  string `json:"teacher_name"`
	TeacherEmail string `json:"teacher_email"`
	LeaveType    string `json:"leave_type"`
	LeaveStart   string `json:"leave_start"`
	LeaveEnd     string `json:"leave_end"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	AdminComment string `json:"admin_comment"`
	SubmittedAt  string `json:"submitted_at"`
}

func (e *leaveStateWebhookEmitter) EmitLeaveStateChange(ctx context.Context, r leaves.Request) error {
	if e == nil || e.url == "" {
		return nil
	}
	payload := leaveStateWebhookPayload{
		RequestID:    r.ID.String(),
		TeacherName:  r.TeacherName,
		TeacherEmail: r.TeacherEmail,
		LeaveType:    string(r.LeaveType),
		LeaveStart:   r.LeaveDate.Format("2006-01-02"),
		LeaveEnd:     r.NormalizedEndDate().Format("2006-01-02"),
		Status:       string(r.Status),
		Reason:       r.Reason,
		AdminComment: r.AdminComment,
		SubmittedAt:  r.CreatedAt.Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("leave state webhook: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("leave state webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.secret != "" {
		req.Header.Set("X-Leave-Webhook-Secret", e.secret)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("leave state webhook: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("leave state webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// absenceLookup satisfies covers.AbsenceLookup over the leaves Postgres
// repository's underlying table — the cover engine needs only the set of
// teacher emails already absent on a date, not the full request shape.
type absenceLookup struct {
	pool *pgxpool.Pool
}

func (a absenceLookup) AbsentEmailsOnDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (map[string]bool, error) {
	const q = `
		SELECT teacher_email FROM leave_requests
		WHERE tenant_id = $1 AND status = 'approved' AND leave_date <= $2 AND end_date >= $2`
	rows, err := a.pool.Query(ctx, q, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("absence lookup: query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("absence lookup: scan: %w", err)
		}
		out[email] = true
	}
	return out, rows.Err()
}
