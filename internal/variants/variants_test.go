package variants

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artemshloyda/photoingest/internal/objectstore"
)

type stubCodec struct {
	fail bool
}

func (c stubCodec) Optimize(ctx context.Context, data []byte) ([]byte, error) {
	if c.fail {
		return nil, errors.New("decode failed")
	}
	return []byte("opt:" + string(data)), nil
}

func (c stubCodec) Thumbnail(ctx context.Context, data []byte) ([]byte, error) {
	return []byte("thumb:" + string(data)), nil
}

func (c stubCodec) Name() string { return "stub" }

// flakyStore отказывает в записи ключей с заданным префиксом.
type flakyStore struct {
	objectstore.Store
	failPut    string
	failDelete string
}

func (s *flakyStore) Put(ctx context.Context, key string, data []byte, ct string, meta map[string]string) (string, error) {
	if s.failPut != "" && strings.HasPrefix(key, s.failPut) {
		return "", errors.New("quota exceeded")
	}
	return s.Store.Put(ctx, key, data, ct, meta)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.failDelete != "" && strings.HasPrefix(key, s.failDelete) {
		return errors.New("permission denied")
	}
	return s.Store.Delete(ctx, key)
}

func newLocal(t *testing.T) *objectstore.Local {
	t.Helper()
	l, err := objectstore.NewLocal(t.TempDir(), "secret")
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func exists(t *testing.T, s objectstore.Store, key string) bool {
	t.Helper()
	ok, err := s.Exists(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func TestUpload_AllVariants(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)
	g := New(store, stubCodec{}, nil)
	key := "photos/2025/09/11/2025-09-11_ab12cd.jpg"

	keys, err := g.Upload(ctx, key, []byte("raw"), "image/jpeg", map[string]string{"checksum": "c1"}, DefaultOptions())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	want := Keys{
		Original:  "originals/" + key,
		Optimized: "optimized/" + key,
		Thumbnail: "thumbs/" + key,
	}
	if *keys != want {
		t.Errorf("Upload() = %+v, want %+v", *keys, want)
	}

	info, err := store.Stat(ctx, want.Optimized)
	if err != nil {
		t.Fatal(err)
	}
	if info.ContentType != "image/webp" || info.Size != int64(len("opt:raw")) || info.Metadata["checksum"] != "c1" {
		t.Errorf("optimized object = %+v", info)
	}
	info, err = store.Stat(ctx, want.Original)
	if err != nil {
		t.Fatal(err)
	}
	if info.ContentType != "image/jpeg" {
		t.Errorf("original content type = %s", info.ContentType)
	}

	ok, err := g.Exists(ctx, key, DefaultOptions())
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v", ok, err)
	}
}

func TestUpload_Flags(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)
	g := New(store, stubCodec{}, nil)
	key := "posts/untitled/a_ab12cd.jpg"
	opts := Options{PreserveOriginals: false, GenerateThumbnails: false}

	keys, err := g.Upload(ctx, key, []byte("raw"), "image/jpeg", nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	if keys.Original != "" || keys.Thumbnail != "" || keys.Optimized != "optimized/"+key {
		t.Errorf("Upload() = %+v", keys)
	}
	if exists(t, store, "originals/"+key) || exists(t, store, "thumbs/"+key) {
		t.Error("disabled variants must not be written")
	}

	if opts.Primary() != KindOptimized {
		t.Errorf("Primary() = %s, want optimized", opts.Primary())
	}
	ok, err := g.Exists(ctx, key, opts)
	if err != nil || !ok {
		t.Errorf("Exists() with optimized primary = %v, %v", ok, err)
	}
	ok, _ = g.Exists(ctx, key, DefaultOptions())
	if ok {
		t.Error("Exists() with original primary should be false")
	}
}

func TestUpload_CodecFailureWritesNothing(t *testing.T) {
	store := newLocal(t)
	g := New(store, stubCodec{fail: true}, nil)

	if _, err := g.Upload(context.Background(), "a/b.jpg", []byte("raw"), "image/jpeg", nil, DefaultOptions()); err == nil {
		t.Fatal("Upload() should fail when codec fails")
	}
	objects, _, err := store.Usage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if objects != 0 {
		t.Errorf("objects after failed upload = %d, want 0", objects)
	}
}

func TestUpload_PartialWriteRollsBack(t *testing.T) {
	local := newLocal(t)
	store := &flakyStore{Store: local, failPut: "thumbs/"}
	g := New(store, stubCodec{}, nil)

	if _, err := g.Upload(context.Background(), "a/b.jpg", []byte("raw"), "image/jpeg", nil, DefaultOptions()); err == nil {
		t.Fatal("Upload() should fail when a write fails")
	}
	if exists(t, local, "originals/a/b.jpg") || exists(t, local, "optimized/a/b.jpg") {
		t.Error("written variants should be rolled back")
	}
}

func TestUpload_InvalidKey(t *testing.T) {
	g := New(newLocal(t), stubCodec{}, nil)
	if _, err := g.Upload(context.Background(), "../x.jpg", []byte("raw"), "image/jpeg", nil, DefaultOptions()); err == nil {
		t.Error("Upload() should reject invalid keys")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	g := New(local, stubCodec{}, nil)
	key := "tags/sea/20250911_ab12cd.jpg"

	if _, err := g.Upload(ctx, key, []byte("raw"), "image/jpeg", nil, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if err := g.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	for _, kind := range Kinds() {
		if exists(t, local, Key(kind, key)) {
			t.Errorf("%s still exists after Delete()", kind)
		}
	}

	if err := g.Delete(ctx, key); err != nil {
		t.Errorf("Delete() of missing variants = %v, want nil", err)
	}
}

func TestDelete_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	key := "a/b.jpg"
	if _, err := New(local, stubCodec{}, nil).Upload(ctx, key, []byte("raw"), "image/jpeg", nil, DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	g := New(&flakyStore{Store: local, failDelete: "optimized/"}, stubCodec{}, nil)
	err := g.Delete(ctx, key)
	if err == nil || !strings.Contains(err.Error(), "optimized") {
		t.Fatalf("Delete() error = %v, want optimized failure", err)
	}
	if exists(t, local, "originals/"+key) || exists(t, local, "thumbs/"+key) {
		t.Error("other variants should still be deleted")
	}
	if !exists(t, local, "optimized/"+key) {
		t.Error("failed variant is not rolled back and should remain")
	}
}

func TestSignedURLs(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	g := New(local, stubCodec{}, nil)
	key := "photos/2025/09/11/x.jpg"

	if _, err := g.SignedURLs(ctx, key, time.Minute); !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("SignedURLs() with no variants = %v, want ErrNotFound", err)
	}

	opts := Options{PreserveOriginals: true, GenerateThumbnails: false}
	if _, err := g.Upload(ctx, key, []byte("raw"), "image/jpeg", nil, opts); err != nil {
		t.Fatal(err)
	}

	urls, err := g.SignedURLs(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("SignedURLs() error = %v", err)
	}
	if len(urls) != 2 {
		t.Errorf("SignedURLs() = %v, want original and optimized only", urls)
	}
	if _, ok := urls[KindThumbnail]; ok {
		t.Error("absent thumbnail should be omitted")
	}
	for kind, u := range urls {
		if got, err := local.VerifySignedURL(u); err != nil || got != Key(kind, key) {
			t.Errorf("%s URL verifies as %q, %v", kind, got, err)
		}
	}
}
