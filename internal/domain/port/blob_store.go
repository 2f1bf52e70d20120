package port

import "context"

// BlobStore интерфейс хранилища картинок (оригиналы, кропы, тепловые карты)
type BlobStore interface {
	// Put сохраняет данные и возвращает URL для последующего чтения
	Put(ctx context.Context, data []byte, folder, ownerID string) (string, error)

	// Get читает данные по URL, выданному Put
	Get(ctx context.Context, url string) ([]byte, error)
}
