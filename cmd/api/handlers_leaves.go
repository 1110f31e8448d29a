package main

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schoolsuite/absence-cover-duty/internal/leaves"
)

type submitLeaveRequest struct {
	TeacherID       string   `json:"teacher_id"`
	TeacherName     string   `json:"teacher_name"`
	TeacherEmail    string   `json:"teacher_email"`
	LeaveType       string   `json:"leave_type"`
	Reason          string   `json:"reason"`
	LeaveDate       string   `json:"leave_date"`
	EndDate         string   `json:"end_date,omitempty"`
	StartTime       string   `json:"start_time,omitempty"`
	EndTime         string   `json:"end_time,omitempty"`
	ShareRecipients []string `json:"share_recipients,omitempty"`
}

func parseCivilDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// SubmitLeave handles POST /tenants/{tenantID}/leaves.
func (h *Handlers) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var in submitLeaveRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	teacherID, err := uuid.Parse(in.TeacherID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	leaveDate, err := parseCivilDate(in.LeaveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	endDate, err := parseCivilDate(in.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	submitted, results, err := h.leaves.Submit(r.Context(), tenantID, leaves.SubmitInput{
		TeacherID: teacherID, TeacherName: in.TeacherName, TeacherEmail: in.TeacherEmail,
		LeaveType: leaves.Type(in.LeaveType), Reason: in.Reason,
		LeaveDate: leaveDate, EndDate: endDate,
		StartTime: in.StartTime, EndTime: in.EndTime,
		ShareRecipients: in.ShareRecipients,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, res := range results {
		res.Log(h.log, "leave submission side effect")
	}
	writeJSON(w, http.StatusCreated, submitted)
}

// UploadLeaveAttachment handles POST /tenants/{tenantID}/leaves/{leaveID}/attachment.
func (h *Handlers) UploadLeaveAttachment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	leaveID, ok := pathUUID(w, r, "leaveID")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(12 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("attachment")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	updated, results, err := h.leaves.UploadAttachment(r.Context(), tenantID, leaveID, leaves.StagedAttachment{
		Reader: file, DeclaredSize: header.Size, OriginalName: header.Filename,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, res := range results {
		res.Log(h.log, "attachment upload side effect")
	}
	writeJSON(w, http.StatusOK, updated)
}

// DownloadLeaveAttachment handles GET /tenants/{tenantID}/leaves/{leaveID}/attachment.
func (h *Handlers) DownloadLeaveAttachment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	leaveID, ok := pathUUID(w, r, "leaveID")
	if !ok {
		return
	}

	req, err := h.leaves.Get(r.Context(), tenantID, leaveID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req.AttachmentPath == "" {
		writeError(w, http.StatusNotFound, leaves.ErrNotFound)
		return
	}

	f, err := h.attachments.Open(req.AttachmentPath)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(req.AttachmentOriginalName))
	if ct := mime.TypeByExtension(ext); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+req.AttachmentOriginalName+"\"")
	_, _ = io.Copy(w, f)
}

// AcknowledgeNoDocument handles POST /tenants/{tenantID}/leaves/{leaveID}/acknowledge-no-document.
func (h *Handlers) AcknowledgeNoDocument(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	leaveID, ok := pathUUID(w, r, "leaveID")
	if !ok {
		return
	}
	claims, ok := currentClaims(w, r)
	if !ok {
		return
	}

	updated, err := h.leaves.AcknowledgeNoDocument(r.Context(), tenantID, leaveID, claims.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type reviewLeaveRequest struct {
	Status                    string `json:"status"`
	AdminComment              string `json:"admin_comment,omitempty"`
	OverrideMissingAttachment bool   `json:"override_missing_attachment,omitempty"`
}

// ReviewLeave handles POST /tenants/{tenantID}/leaves/{leaveID}/review.
func (h *Handlers) ReviewLeave(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	leaveID, ok := pathUUID(w, r, "leaveID")
	if !ok {
		return
	}
	claims, ok := currentClaims(w, r)
	if !ok {
		return
	}

	var in reviewLeaveRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reviewed, results, err := h.leaves.Review(r.Context(), tenantID, leaveID, leaves.ReviewInput{
		Status:                    leaves.Status(in.Status),
		AdminComment:              in.AdminComment,
		ReviewedBy:                claims.Email,
		IsSuperAdmin:              claims.Role == "admin",
		OverrideMissingAttachment: in.OverrideMissingAttachment,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, res := range results {
		res.Log(h.log, "leave review side effect")
	}
	writeJSON(w, http.StatusOK, reviewed)
}

type postMessageRequest struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

// PostLeaveMessage handles POST /tenants/{tenantID}/leaves/{leaveID}/messages.
func (h *Handlers) PostLeaveMessage(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	leaveID, ok := pathUUID(w, r, "leaveID")
	if !ok {
		return
	}

	var in postMessageRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, result, err := h.leaves.PostMessage(r.Context(), tenantID, leaveID, in.Sender, in.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result.Log(h.log, "leave message side effect")
	writeJSON(w, http.StatusCreated, msg)
}

// ListLeaveMessages handles GET /tenants/{tenantID}/leaves/{leaveID}/messages.
func (h *Handlers) ListLeaveMessages(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	leaveID, ok := pathUUID(w, r, "leaveID")
	if !ok {
		return
	}
	msgs, err := h.leaves.ListMessages(r.Context(), tenantID, leaveID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// ListLeaves handles GET /tenants/{tenantID}/leaves?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handlers) ListLeaves(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	from, err := parseCivilDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseCivilDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if to.IsZero() {
		to = from
	}

	reqs, err := h.leaves.ListForDateRange(r.Context(), tenantID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// RunReminderSweep handles POST /tenants/{tenantID}/leaves/reminder-sweep,
// an admin-triggered on-demand run of the same sweep the scheduler fires
// daily.
func (h *Handlers) RunReminderSweep(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	outcomes, err := h.leaves.RunReminderSweep(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}
