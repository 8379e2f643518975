package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/storage"
)

// newTestGCS использует эмулятор GCS (например fake-gcs-server).
func newTestGCS(t *testing.T) *GCS {
	t.Helper()

	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := storage.NewClient(ctx)
	if err != nil {
		t.Fatalf("failed to create GCS client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	bucket := fmt.Sprintf("photoingest-test-%d", time.Now().UnixNano())
	if err := client.Bucket(bucket).Create(ctx, "test-project", nil); err != nil {
		t.Logf("note: bucket creation returned: %v", err)
	}

	return NewGCSWithClient(client, bucket)
}

func TestGCS_PutExistsDelete(t *testing.T) {
	g := newTestGCS(t)
	ctx := context.Background()
	key := "optimized/photos/2025/09/11/a.jpg"

	if ok, err := g.Exists(ctx, key); err != nil || ok {
		t.Fatalf("Exists() before Put = %v, %v", ok, err)
	}

	loc, err := g.Put(ctx, key, []byte("webp"), "image/webp", map[string]string{"asset": "1"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if loc != "gs://"+g.bucket+"/"+key {
		t.Errorf("Put() location = %q", loc)
	}

	if ok, err := g.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists() after Put = %v, %v", ok, err)
	}

	attrs, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if attrs.ContentType != "image/webp" || attrs.Metadata["asset"] != "1" {
		t.Errorf("attrs = %s %v", attrs.ContentType, attrs.Metadata)
	}

	if err := g.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := g.Delete(ctx, key); err != nil {
		t.Errorf("Delete() of missing object = %v", err)
	}
	if _, err := g.SignedURL(ctx, key, time.Minute); !errors.Is(err, ErrNotFound) {
		t.Errorf("SignedURL() for missing object = %v, want ErrNotFound", err)
	}
}
