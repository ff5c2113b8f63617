package render

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore persists rendered artifacts and hands back opaque refs.
type BlobStore interface {
	Put(data []byte) (ref string, err error)
	Get(ref string) ([]byte, error)
}

// FileBlobStore stores blobs on disk, content-addressed by SHA-256 so
// re-rendering identical content is a no-op write.
type FileBlobStore struct {
	dir string
}

// NewFileBlobStore creates the backing directory if needed.
func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileBlobStore{dir: dir}, nil
}

// Put writes data and returns its content-addressed ref.
func (s *FileBlobStore) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:]) + ".pdf"

	path := filepath.Join(s.dir, ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	// Write through a temp file so a partially written blob is never
	// visible under its final ref.
	tmp, err := os.CreateTemp(s.dir, "blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish blob: %w", err)
	}
	return ref, nil
}

// Get reads a blob back by ref.
func (s *FileBlobStore) Get(ref string) ([]byte, error) {
	if filepath.Base(ref) != ref {
		return nil, fmt.Errorf("invalid blob ref %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", ref, err)
	}
	return data, nil
}
