package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artemshloyda/photoingest/internal/config"
	"github.com/artemshloyda/photoingest/internal/converter"
	"github.com/artemshloyda/photoingest/internal/objectstore"
	"github.com/artemshloyda/photoingest/internal/storage"
	"github.com/artemshloyda/photoingest/internal/variants"
)

// memStore - хранилище состояния в памяти.
type memStore struct {
	mu      sync.Mutex
	folders map[string]*storage.Folder
	assets  []storage.Asset
	jobs    map[string]*storage.ImportJob
	nextID  int64

	// failCreateAsset отказывает в записи изображений.
	failCreateAsset bool

	// writes - снимки всех записей счётчиков задач в порядке вызова.
	writes []counterWrite
}

// counterWrite - одна запись счётчиков через UpdateJob.
type counterWrite struct {
	jobID    string
	counters storage.Counters
	finished bool
}

func newMemStore() *memStore {
	return &memStore{
		folders: make(map[string]*storage.Folder),
		jobs:    make(map[string]*storage.ImportJob),
	}
}

func (m *memStore) UpsertFolderByPath(ctx context.Context, path string) (*storage.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = strings.Trim(path, "/")
	if path == "" {
		return nil, errors.New("empty path")
	}
	var parent *int64
	parts := strings.Split(path, "/")
	var f *storage.Folder
	for i := range parts {
		p := strings.Join(parts[:i+1], "/")
		existing, ok := m.folders[p]
		if !ok {
			m.nextID++
			existing = &storage.Folder{ID: m.nextID, Path: p, Name: parts[i], ParentID: parent, CreatedAt: time.Now()}
			m.folders[p] = existing
		}
		id := existing.ID
		parent = &id
		f = existing
	}
	cp := *f
	return &cp, nil
}

func (m *memStore) FindAssetsByChecksum(ctx context.Context, checksum string) ([]storage.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Asset
	for _, a := range m.assets {
		if a.Checksum == checksum {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) FindAssetByKey(ctx context.Context, key string) (*storage.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.assets) - 1; i >= 0; i-- {
		if m.assets[i].StorageKey == key {
			a := m.assets[i]
			return &a, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) CreateAsset(ctx context.Context, a *storage.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateAsset {
		return errors.New("database is locked")
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	m.assets = append(m.assets, *a)
	return nil
}

func (m *memStore) DeleteAsset(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assets {
		if a.ID == id {
			m.assets = append(m.assets[:i], m.assets[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memStore) CreateJob(ctx context.Context, job *storage.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) UpdateJob(ctx context.Context, id string, u storage.JobUpdate) (*storage.ImportJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Counters != nil {
		job.Counters = *u.Counters
		m.writes = append(m.writes, counterWrite{jobID: id, counters: *u.Counters, finished: u.FinishedAt != nil})
	}
	if u.Total != nil {
		job.Total = *u.Total
	}
	if u.Log != nil {
		job.Log = *u.Log
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		job.StartedAt = &t
	}
	if u.FinishedAt != nil {
		t := *u.FinishedAt
		job.FinishedAt = &t
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) FindJob(ctx context.Context, id string) (*storage.ImportJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListJobs(ctx context.Context, limit int) ([]storage.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]storage.ImportJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *memStore) RecoverInterruptedJobs(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *memStore) GetStats(ctx context.Context) (*storage.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &storage.Stats{Jobs: int64(len(m.jobs)), Assets: int64(len(m.assets)), Folders: int64(len(m.folders))}, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) assetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assets)
}

// counterWrites возвращает записи счётчиков задачи jobID.
func (m *memStore) counterWrites(jobID string) []counterWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []counterWrite
	for _, w := range m.writes {
		if w.jobID == jobID {
			out = append(out, w)
		}
	}
	return out
}

// panicVariants передаёт вызовы в Generator и паникует на n-й загрузке.
type panicVariants struct {
	*variants.Generator

	mu      sync.Mutex
	uploads int
	panicAt int
}

func (p *panicVariants) Upload(ctx context.Context, key string, data []byte, contentType string, meta map[string]string, opts variants.Options) (*variants.Keys, error) {
	p.mu.Lock()
	p.uploads++
	n := p.uploads
	p.mu.Unlock()
	if n == p.panicAt {
		panic("upload buffer corrupted")
	}
	return p.Generator.Upload(ctx, key, data, contentType, meta, opts)
}

// stubCodec возвращает байты без перекодирования. Содержимое с "corrupt"
// считается повреждённым.
type stubCodec struct{}

func (stubCodec) Optimize(ctx context.Context, data []byte) ([]byte, error) {
	if strings.Contains(string(data), "corrupt") {
		return nil, errors.New("image: unknown format")
	}
	return data, nil
}

func (stubCodec) Thumbnail(ctx context.Context, data []byte) ([]byte, error) {
	return data, nil
}

func (stubCodec) Name() string { return "stub" }

// blockingCodec блокируется до закрытия release или отмены ctx.
type blockingCodec struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingCodec() *blockingCodec {
	return &blockingCodec{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingCodec) Optimize(ctx context.Context, data []byte) ([]byte, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingCodec) Thumbnail(ctx context.Context, data []byte) ([]byte, error) {
	return data, nil
}

func (b *blockingCodec) Name() string { return "blocking" }

// countingObserver считает события прогресса.
type countingObserver struct {
	mu    sync.Mutex
	total int64

	created int
	skipped int
	deduped int
	failed  int

	// onIncrement вызывается после каждого созданного файла.
	onIncrement func()
}

func (o *countingObserver) SetTotal(total int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.total = total
}

func (o *countingObserver) Increment() {
	o.mu.Lock()
	o.created++
	hook := o.onIncrement
	o.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (o *countingObserver) IncrementSkipped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func (o *countingObserver) IncrementDeduped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deduped++
}

func (o *countingObserver) IncrementFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}

// env - окружение теста координатора.
type env struct {
	cfg     *config.Config
	store   *memStore
	objects *objectstore.Local
	coord   *Coordinator
}

func newEnv(t *testing.T, codec converter.Codec) *env {
	t.Helper()

	objects, err := objectstore.NewLocal(filepath.Join(t.TempDir(), "objects"), "test-secret")
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.FlushEvery = 2
	cfg.CustomStrategy.Folder = "flat"
	cfg.CustomStrategy.Filename = "${basename}.${ext}"

	store := newMemStore()
	gen := variants.New(objects, codec, nil)
	return &env{
		cfg:     cfg,
		store:   store,
		objects: objects,
		coord:   New(cfg, store, gen, nil),
	}
}

// objectCount возвращает количество объектов в хранилище.
func (e *env) objectCount(t *testing.T) int {
	t.Helper()
	n, _, err := e.objects.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	return n
}

// runJob создаёт и выполняет задачу синхронно.
func (e *env) runJob(t *testing.T, ctx context.Context, opts JobOptions, obs Observer) *storage.ImportJob {
	t.Helper()
	job, err := e.coord.CreateJob(context.Background(), &opts)
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	final, err := e.coord.Run(ctx, job.ID, &opts, obs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return final
}

// writeFiles создаёт файлы с содержимым в root.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
