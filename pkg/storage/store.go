// Package storage persists uploaded intake images and hands back opaque
// reference strings that stages receive in place of the image bytes.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
)

// ErrTooLarge is returned when an image exceeds the per-file size limit.
var ErrTooLarge = errors.New("image exceeds maximum upload size")

// ArtifactStore saves the images of an upload batch and returns references
// to them. Remove discards a whole batch.
type ArtifactStore interface {
	Save(uploadID string, index int, filename string, r io.Reader) (string, error)
	Remove(uploadID string) error
}

// FileStore writes images below a root directory as
// <root>/<uploadID>/image_<index>_<filename>.
type FileStore struct {
	root     string
	maxBytes int64
}

// NewFileStore returns a store rooted at root. maxBytes <= 0 disables the
// per-image size limit.
func NewFileStore(root string, maxBytes int64) *FileStore {
	return &FileStore{root: root, maxBytes: maxBytes}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName strips directories and replaces characters outside a
// conservative set so client filenames never escape the upload directory.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		return "upload"
	}
	return name
}

// Save implements ArtifactStore. The image is staged in a pending file and
// only renamed into place once fully written and synced, so a reference
// never points at a partial image.
func (s *FileStore) Save(uploadID string, index int, filename string, r io.Reader) (string, error) {
	if uploadID == "" || sanitizeName(uploadID) != uploadID {
		return "", fmt.Errorf("invalid upload id %q", uploadID)
	}
	dir := filepath.Join(s.root, uploadID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	dest := filepath.Join(dir, fmt.Sprintf("image_%d_%s", index, sanitizeName(filename)))

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	if err := writeAtomic(dest, src, s.maxBytes); err != nil {
		return "", err
	}
	return dest, nil
}

// Remove deletes every image saved under uploadID.
func (s *FileStore) Remove(uploadID string) error {
	if uploadID == "" || sanitizeName(uploadID) != uploadID {
		return fmt.Errorf("invalid upload id %q", uploadID)
	}
	return os.RemoveAll(filepath.Join(s.root, uploadID))
}

func writeAtomic(dest string, r io.Reader, maxBytes int64) error {
	pending, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("failed to create pending upload file: %w", err)
	}
	// No-op once the file was committed.
	defer func() { _ = pending.Cleanup() }()

	n, err := io.Copy(pending, r)
	if err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return ErrTooLarge
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to commit image: %w", err)
	}
	return nil
}
