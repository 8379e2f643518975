package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS хранит объекты в bucket Google Cloud Storage.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS создаёт клиента GCS. Пустой credentialsFile означает
// Application Default Credentials (или STORAGE_EMULATOR_HOST).
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать клиента GCS: %w", err)
	}
	return NewGCSWithClient(client, bucket), nil
}

// NewGCSWithClient оборачивает готовый клиент.
func NewGCSWithClient(client *storage.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

// Close закрывает клиента.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Put реализует Store.
func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	obj := g.client.Bucket(g.bucket).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = meta

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", fmt.Errorf("не удалось записать gs://%s/%s: %w", g.bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("не удалось завершить запись gs://%s/%s: %w", g.bucket, key, err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucket, key), nil
}

// Exists реализует Store.
func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("не удалось проверить gs://%s/%s: %w", g.bucket, key, err)
	}
	return true, nil
}

// Delete реализует Store.
func (g *GCS) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("не удалось удалить gs://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

// SignedURL реализует Store: V4 подпись, метод GET.
func (g *GCS) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ok, err := g.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	u, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("не удалось подписать gs://%s/%s: %w", g.bucket, key, err)
	}
	return u, nil
}
