package drive

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schoolsuite/absence-cover-duty/internal/clock"
)

// AttachmentSource supplies the on-disk bytes of a staged attachment.
type AttachmentSource interface {
	ReadAttachment(ctx context.Context, relPath string) ([]byte, error)
}

// LeaveRecord is the subset of a leave request the archiver needs.
type LeaveRecord struct {
	RequestID            uuid.UUID
	TeacherName          string
	LeaveDate            time.Time
	AttachmentPath       string
	AttachmentExt        string
	AttachmentExportPath string
	ShareRecipients      []string
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)

func sanitizeTeacherName(name string) string {
	cleaned := nonAlphanumeric.ReplaceAllString(name, "_")
	if cleaned == "" {
		return "teacher"
	}
	return cleaned
}

// Archiver ties a drive Client, attachment source, and folder-naming
// convention into the single archive-a-leave operation spec.md describes.
type Archiver struct {
	client *Client
	source AttachmentSource
	log    zerolog.Logger
}

// NewArchiver constructs an Archiver.
func NewArchiver(client *Client, source AttachmentSource, log zerolog.Logger) *Archiver {
	return &Archiver{client: client, source: source, log: log.With().Str("component", "drive-archiver").Logger()}
}

// ArchiveResult is what the caller persists back onto the LeaveRequest.
type ArchiveResult struct {
	ExportPath string
}

// Archive runs the full archive sequence for leave L: ensure the half-month
// window folder exists, remove any stale previous export, upload the
// attachment (simple or chunked depending on size), and share with any
// configured recipients. Each step's failure leaves prior state
// consistent — the caller logs and continues; a partially-completed
// archive never corrupts L's existing attachment_export_path until the
// new upload has actually succeeded.
func (a *Archiver) Archive(ctx context.Context, leave LeaveRecord) (ArchiveResult, error) {
	window := clock.WindowFor(leave.LeaveDate)
	folderName := window.FolderName()

	if _, err := a.client.EnsureFolder(ctx, folderName); err != nil {
		return ArchiveResult{}, fmt.Errorf("drive: ensure folder %s: %w", folderName, err)
	}

	destFilename := fmt.Sprintf("%s-%s-REQ%s%s",
		sanitizeTeacherName(leave.TeacherName),
		leave.LeaveDate.Format("2006-01-02"),
		leave.RequestID.String(),
		leave.AttachmentExt,
	)

	if leave.AttachmentExportPath != "" && leave.AttachmentExportPath != folderName+"/"+destFilename {
		if err := a.client.DeleteItemByPath(ctx, leave.AttachmentExportPath); err != nil {
			a.log.Warn().Err(err).Str("path", leave.AttachmentExportPath).Msg("best-effort delete of stale export failed")
		}
	}

	content, err := a.source.ReadAttachment(ctx, leave.AttachmentPath)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("drive: read staged attachment: %w", err)
	}

	uploaded, err := a.client.Upload(ctx, folderName, destFilename, content)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("drive: upload: %w", err)
	}

	if len(leave.ShareRecipients) > 0 {
		if err := a.client.Share(ctx, uploaded.ItemID, leave.ShareRecipients); err != nil {
			a.log.Warn().Err(err).Msg("best-effort share of archived attachment failed")
		}
	}

	return ArchiveResult{ExportPath: folderName + "/" + destFilename}, nil
}

// Delete removes a previously archived export by its stored path.
func (a *Archiver) Delete(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	return a.client.DeleteItemByPath(ctx, path)
}
