// Package attachments stages sick-leave documents on the local filesystem
// under sanitized, collision-resistant names before the drive archiver (see
// internal/drive) picks them up. Naming and write-then-rename is plain
// os/io — no pack example touches local file staging, so this is the one
// place the ambient stack intentionally falls back to the standard library.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxUploadSize is the hard cap on a staged attachment.
const maxUploadSize = 10 * 1024 * 1024 // 10 MB

// allowedExtensions is the accepted attachment extension set, without dots.
var allowedExtensions = map[string]bool{
	"pdf": true, "jpg": true, "jpeg": true, "png": true,
	"heic": true, "doc": true, "docx": true,
}

var (
	// ErrEmptyFilename is returned when the supplied original filename is blank.
	ErrEmptyFilename = errors.New("attachments: filename is empty")
	// ErrUnsupportedExtension is returned when the extension is not in the allow-list.
	ErrUnsupportedExtension = errors.New("attachments: unsupported file extension")
	// ErrTooLarge is returned when the payload exceeds maxUploadSize.
	ErrTooLarge = errors.New("attachments: file exceeds the 10 MB limit")
)

// Store stages sick-leave attachments under a root directory.
type Store struct {
	root string
}

// NewStore constructs a Store rooted at root (created if missing).
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "uploads", "sickleave"), 0o755); err != nil {
		return nil, fmt.Errorf("attachments: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Staged describes a successfully staged attachment.
type Staged struct {
	RelativePath string
	OriginalName string
}

// Save validates and stages an attachment read from r, with a declared
// size and original filename. It writes to a temp file in the destination
// directory then renames atomically, so a reader never observes a torn
// file.
func (s *Store) Save(r io.Reader, declaredSize int64, originalName string) (Staged, error) {
	originalName = strings.TrimSpace(originalName)
	if originalName == "" {
		return Staged{}, ErrEmptyFilename
	}
	if declaredSize > maxUploadSize {
		return Staged{}, ErrTooLarge
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if !allowedExtensions[ext] {
		return Staged{}, ErrUnsupportedExtension
	}

	dir := filepath.Join(s.root, "uploads", "sickleave")
	filename := fmt.Sprintf("%s_%s.%s", time.Now().UTC().Format("20060102150405"), uuid.New().String(), ext)
	finalPath := filepath.Join(dir, filename)

	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return Staged{}, fmt.Errorf("attachments: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	written, err := io.CopyN(tmp, r, maxUploadSize+1)
	closeErr := tmp.Close()
	if err != nil && err != io.EOF {
		return Staged{}, fmt.Errorf("attachments: write staged file: %w", err)
	}
	if closeErr != nil {
		return Staged{}, fmt.Errorf("attachments: close staged file: %w", closeErr)
	}
	if written > maxUploadSize {
		return Staged{}, ErrTooLarge
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Staged{}, fmt.Errorf("attachments: finalize staged file: %w", err)
	}

	relPath := filepath.Join("uploads", "sickleave", filename)
	return Staged{RelativePath: relPath, OriginalName: originalName}, nil
}

// Delete removes a previously staged attachment by its relative path.
// Deletion is idempotent: a missing file is not an error. relPath is
// refused if it attempts to escape the store root.
func (s *Store) Delete(relPath string) error {
	if relPath == "" {
		return nil
	}
	full, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("attachments: delete %s: %w", relPath, err)
	}
	return nil
}

// Open opens a previously staged attachment for reading, e.g. for the
// drive archiver to upload.
func (s *Store) Open(relPath string) (*os.File, error) {
	full, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// ReadAttachment reads a previously staged attachment into memory, for the
// drive archiver's upload step (internal/drive.AttachmentSource).
func (s *Store) ReadAttachment(ctx context.Context, relPath string) ([]byte, error) {
	f, err := s.Open(relPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// resolve joins relPath onto the store root and refuses any path that
// escapes it (no "..", no absolute paths).
func (s *Store) resolve(relPath string) (string, error) {
	cleaned := filepath.Clean(relPath)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("attachments: refusing path outside store root: %q", relPath)
	}
	full := filepath.Join(s.root, cleaned)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("attachments: refusing path outside store root: %q", relPath)
	}
	return full, nil
}
