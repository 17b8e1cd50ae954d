package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
)

// Store persists uploaded bytes on the local filesystem under
// <root>/<date-shard>/<job-id>/<filename>. Handles are paths relative to
// the root, so the root can move without invalidating records.
type Store struct {
	root   string
	logger arbor.ILogger
}

// NewStore creates the blob store, ensuring the root directory exists
func NewStore(logger arbor.ILogger, root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("blob store root directory is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// Put atomically writes data and returns the handle and SHA-256 hash.
// The write goes to a temp file in the target directory, then renames.
func (s *Store) Put(ctx context.Context, jobID, filename string, data []byte) (string, string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	shard := time.Now().UTC().Format("2006-01-02")
	relDir := filepath.Join(shard, jobID)
	dir := filepath.Join(s.root, relDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	handle := filepath.ToSlash(filepath.Join(relDir, filename))
	final := filepath.Join(dir, filename)

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", "", fmt.Errorf("failed to commit blob: %w", err)
	}

	s.logger.Debug().
		Str("handle", handle).
		Int("size", len(data)).
		Msg("Blob stored")
	return handle, hash, nil
}

// Get reads the bytes for a handle
func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	path, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob and its job directory. Idempotent: deleting a
// missing handle succeeds.
func (s *Store) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	path, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	// Drop the per-job directory if it is now empty
	os.Remove(filepath.Dir(path))

	s.logger.Debug().Str("handle", handle).Msg("Blob deleted")
	return nil
}

// resolve maps a handle to an absolute path, rejecting traversal attempts
func (s *Store) resolve(handle string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(handle))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob handle %q", handle)
	}
	return filepath.Join(s.root, clean), nil
}
