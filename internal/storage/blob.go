// Package storage holds the blob storage collaborator that keeps the
// uploaded EPUB/PDF binaries and cover images.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// URLPrefix is where stored blobs are served from.
const URLPrefix = "/blobs/"

// BlobStore is the storage collaborator boundary. Save returns the URL
// the blob will be served under; Delete is invoked during purge.
type BlobStore interface {
	Save(name string, r io.Reader) (string, error)
	Delete(url string) error
}

// LocalBlobStore keeps blobs on the local disk under a configured root
// directory and serves them under /blobs/.
type LocalBlobStore struct {
	root string
	log  zerolog.Logger
}

func NewLocalBlobStore(root string, log zerolog.Logger) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalBlobStore{root: root, log: log}, nil
}

// Root returns the directory blobs are stored under, for static serving.
func (s *LocalBlobStore) Root() string {
	return s.root
}

// Save writes the blob under a uuid-prefixed object name so uploads can
// never collide or overwrite each other.
func (s *LocalBlobStore) Save(name string, r io.Reader) (string, error) {
	object := uuid.New().String() + "-" + sanitizeName(name)
	path := filepath.Join(s.root, object)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create blob file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write blob: %w", err)
	}

	return URLPrefix + object, nil
}

// Delete removes the blob behind the URL. Unknown URLs are an error for
// the caller to log; deleting an already-missing blob is a no-op.
func (s *LocalBlobStore) Delete(url string) error {
	object, ok := strings.CutPrefix(url, URLPrefix)
	if !ok || object == "" || strings.Contains(object, "/") {
		return fmt.Errorf("not a local blob url: %q", url)
	}
	err := os.Remove(filepath.Join(s.root, object))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func sanitizeName(name string) string {
	base := filepath.Base(name)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		}
		return '_'
	}, base)
	if base == "" || base == "." {
		return "blob"
	}
	return base
}
