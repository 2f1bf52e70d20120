package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"eyecare-bot/internal/domain/port"
)

// DiskBlobStore хранилище картинок на локальном диске. URL строится от
// публичной базы и раздаётся HTTP-сервером. Схема пути:
// images/{folder}/{owner}/{uuid}.jpg
type DiskBlobStore struct {
	root    string
	baseURL string
}

// NewDiskBlobStore создаёт хранилище в каталоге root.
func NewDiskBlobStore(root, baseURL string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &DiskBlobStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Put сохраняет данные и возвращает URL для чтения.
func (s *DiskBlobStore) Put(ctx context.Context, data []byte, folder, ownerID string) (string, error) {
	_ = ctx
	rel := path.Join("images", folder, ownerID, uuid.NewString()+".jpg")
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return s.baseURL + "/" + rel, nil
}

// Get читает данные по URL, выданному Put.
func (s *DiskBlobStore) Get(ctx context.Context, url string) ([]byte, error) {
	_ = ctx
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil, fmt.Errorf("url %q is outside this store", url)
	}
	rel = path.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, fmt.Errorf("url %q escapes media root", url)
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Root каталог с медиафайлами (для раздачи HTTP-сервером).
func (s *DiskBlobStore) Root() string {
	return s.root
}

// Проверка реализации интерфейса
var _ port.BlobStore = (*DiskBlobStore)(nil)
