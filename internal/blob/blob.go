package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store keeps evidence files on local disk under a root directory.
type Store struct {
	Root string
}

func New(workspace string) Store {
	return Store{Root: filepath.Join(workspace, ".govline", "blobs")}
}

func (s Store) path(id string) string {
	return filepath.Join(s.Root, id)
}

// Put writes a blob and returns its storage key.
func (s Store) Put(id string, r io.Reader) (string, error) {
	if strings.ContainsAny(id, "/\\") || id == "" {
		return "", fmt.Errorf("invalid blob id %q", id)
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(s.path(id))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(s.path(id))
		return "", err
	}
	return id, nil
}

// Open returns a reader for a stored blob.
func (s Store) Open(id string) (io.ReadCloser, error) {
	if strings.ContainsAny(id, "/\\") || id == "" {
		return nil, fmt.Errorf("invalid blob id %q", id)
	}
	return os.Open(s.path(id))
}

// Delete removes a stored blob. Missing blobs are not an error.
func (s Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
