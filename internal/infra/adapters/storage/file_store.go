package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
)

var _ adapter.BlobStore = (*FileStore)(nil)

// FileStore keeps blobs under a local directory. Each blob has a sidecar
// holding its content type, metadata and visibility.
type FileStore struct {
	root    string
	baseURL string
}

type sidecar struct {
	ContentType string            `json:"contentType"`
	Meta        map[string]string `json:"meta,omitempty"`
	Public      bool              `json:"public"`
}

func NewFileStore(root, publicBaseURL string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("file store: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{root: root, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *FileStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", domain.Invalid("key", "empty blob key")
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := writeAtomic(p, data); err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	return s.writeSidecar(p, sidecar{ContentType: contentType, Meta: meta})
}

func (s *FileStore) MakePublic(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	sc, err := s.readSidecar(p)
	if err != nil {
		return err
	}
	sc.Public = true
	return s.writeSidecar(p, sc)
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

// IsPublic reports whether MakePublic was called for key.
func (s *FileStore) IsPublic(key string) bool {
	p, err := s.path(key)
	if err != nil {
		return false
	}
	sc, err := s.readSidecar(p)
	return err == nil && sc.Public
}

func (s *FileStore) PublicURL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (s *FileStore) readSidecar(p string) (sidecar, error) {
	var sc sidecar
	b, err := os.ReadFile(p + ".meta.json")
	if errors.Is(err, fs.ErrNotExist) {
		return sc, domain.ErrNotFound
	}
	if err != nil {
		return sc, err
	}
	return sc, json.Unmarshal(b, &sc)
}

func (s *FileStore) writeSidecar(p string, sc sidecar) error {
	b, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return writeAtomic(p+".meta.json", b)
}

func writeAtomic(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
