// Package importer выполняет задачи импорта: сканирование источника,
// дедупликацию, загрузку вариантов и запись в БД, по одному файлу за раз.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artemshloyda/photoingest/internal/config"
	"github.com/artemshloyda/photoingest/internal/metadata"
	"github.com/artemshloyda/photoingest/internal/organize"
	"github.com/artemshloyda/photoingest/internal/scanner"
	"github.com/artemshloyda/photoingest/internal/storage"
	"github.com/artemshloyda/photoingest/internal/variants"
)

// Variants - операции с вариантами, нужные координатору.
type Variants interface {
	Upload(ctx context.Context, storageKey string, data []byte, contentType string, meta map[string]string, opts variants.Options) (*variants.Keys, error)
	Exists(ctx context.Context, storageKey string, opts variants.Options) (bool, error)
	Delete(ctx context.Context, storageKey string) error
}

// Observer получает прогресс задачи. Реализуется progress.Bar.
type Observer interface {
	SetTotal(total int64)
	Increment()
	IncrementSkipped()
	IncrementDeduped()
	IncrementFailed()
}

// Outcome - итог обработки одного файла.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeSkipped
	OutcomeDeduped
	OutcomeError
)

// ScanOnlyMessage - строка журнала задачи SCAN_ONLY.
const ScanOnlyMessage = "scan-only: ничего не записано"

// contentTypes - MIME-типы оригиналов по расширению.
var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

func contentTypeFor(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Coordinator выполняет задачи импорта.
type Coordinator struct {
	store     storage.Store
	variants  Variants
	scanner   *scanner.Scanner
	extractor *metadata.Extractor
	limiter   *MemoryLimiter
	custom    organize.CustomTemplates
	strategy  string
	flush     int
	logger    *slog.Logger
}

// New создаёт Coordinator. Хранилище и варианты создаются вызывающим
// и передаются явно.
func New(cfg *config.Config, store storage.Store, vars Variants, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	flush := cfg.FlushEvery
	if flush <= 0 {
		flush = 10
	}
	return &Coordinator{
		store:     store,
		variants:  vars,
		scanner:   scanner.New(cfg.Extensions, logger),
		extractor: metadata.NewExtractor(logger),
		limiter:   NewMemoryLimiter(cfg.MaxMemoryMB),
		custom:    cfg.CustomStrategy,
		strategy:  cfg.DefaultStrategy,
		flush:     flush,
		logger:    logger,
	}
}

// Store возвращает хранилище состояния.
func (c *Coordinator) Store() storage.Store {
	return c.store
}

// CreateJob создаёт запись задачи в статусе PENDING. Если параметры
// некорректны, задача сразу переводится в FAILED с текстом ошибки и
// возвращается вместе с ошибкой, оборачивающей ErrInvalidConfig.
func (c *Coordinator) CreateJob(ctx context.Context, opts *JobOptions) (*storage.ImportJob, error) {
	opts.Normalize()
	if opts.Strategy == "" {
		opts.Strategy = c.strategy
	}

	job := &storage.ImportJob{
		ID:         uuid.NewString(),
		SourcePath: opts.SourcePath,
		Mode:       opts.Mode,
		Status:     storage.StatusPending,
		Config:     opts.JSON(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("не удалось создать задачу: %w", err)
	}

	if err := c.validate(opts); err != nil {
		failed, ferr := c.finish(ctx, job.ID, storage.StatusFailed, storage.Counters{}, err.Error())
		if ferr != nil {
			return job, errors.Join(err, ferr)
		}
		return failed, err
	}

	return job, nil
}

func (c *Coordinator) validate(opts *JobOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, _, err := organize.Resolve(opts.Strategy, c.custom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// run - состояние одной выполняемой задачи.
type run struct {
	job         *storage.ImportJob
	opts        *JobOptions
	strategy    organize.Strategy
	variantOpts variants.Options
	counters    storage.Counters
	log         jobLog
	observer    Observer

	// seenChecksums и seenKeys заменяют БД и хранилище в режиме SCAN_ONLY.
	seenChecksums map[string]bool
	seenKeys      map[string]bool
}

// Run выполняет задачу до терминального статуса и возвращает итоговую запись.
// Отмена ctx между файлами переводит задачу в CANCELLED. Паника при обработке
// переводит задачу в FAILED с уже накопленными счётчиками и журналом.
func (c *Coordinator) Run(ctx context.Context, jobID string, opts *JobOptions, obs Observer) (final *storage.ImportJob, err error) {
	if obs == nil {
		obs = noopObserver{}
	}

	job, err := c.store.FindJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	r := &run{
		job:           job,
		opts:          opts,
		variantOpts:   opts.VariantOptions(),
		observer:      obs,
		seenChecksums: make(map[string]bool),
		seenKeys:      make(map[string]bool),
	}
	logger := c.logger.With("job", jobID)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("паника при выполнении задачи", "panic", p, "processed", r.counters.Processed())
			r.log.add("внутренняя ошибка: %v", p)
			final, err = c.finish(ctx, jobID, storage.StatusFailed, r.counters, r.log.String())
			if err == nil {
				err = fmt.Errorf("%w: %v", ErrInternal, p)
			}
		}
	}()

	if ctx.Err() != nil {
		r.log.add("отменено до начала обработки")
		return c.finish(ctx, jobID, storage.StatusCancelled, r.counters, r.log.String())
	}

	strategy, fellBack, err := organize.Resolve(opts.Strategy, c.custom)
	if err != nil {
		return c.finish(ctx, jobID, storage.StatusFailed, r.counters, err.Error())
	}
	if fellBack {
		r.log.add("неизвестная стратегия %q, используется %s", opts.Strategy, strategy.Name())
		logger.Warn("неизвестная стратегия, используется date_based", "strategy", opts.Strategy)
	}
	r.strategy = strategy
	r.variantOpts.GenerateThumbnails = r.variantOpts.GenerateThumbnails && strategy.GenerateThumbnails
	r.variantOpts.PreserveOriginals = r.variantOpts.PreserveOriginals && strategy.PreserveOriginals
	if strategy.Uses(organize.TokenSlug) && opts.Slug == "" {
		r.log.add("slug не задан, в путях используется %q", organize.FallbackUntitled)
	}

	running := storage.StatusRunning
	started := time.Now().UTC()
	if _, err := c.store.UpdateJob(context.WithoutCancel(ctx), jobID, storage.JobUpdate{Status: &running, StartedAt: &started}); err != nil {
		return c.finish(ctx, jobID, storage.StatusFailed, r.counters, err.Error())
	}
	logger.Info("задача запущена",
		"source", opts.SourcePath,
		"mode", opts.Mode,
		"strategy", strategy.Name(),
		"thumbnails", r.variantOpts.GenerateThumbnails,
		"originals", r.variantOpts.PreserveOriginals,
		"memory_limit", c.limiter.MaxMemory())

	files, err := c.scanner.List(ctx, opts.SourcePath)
	if err != nil {
		if ctx.Err() != nil {
			r.log.add("отменено во время сканирования")
			return c.finish(ctx, jobID, storage.StatusCancelled, r.counters, r.log.String())
		}
		r.log.add("не удалось просканировать источник: %v", err)
		return c.finish(ctx, jobID, storage.StatusFailed, r.counters, r.log.String())
	}

	total := int64(len(files))
	r.log.add("найдено файлов: %d", total)
	if _, err := c.store.UpdateJob(ctx, jobID, storage.JobUpdate{Total: &total}); err != nil {
		logger.Warn("не удалось сохранить количество файлов", "error", err)
	}
	obs.SetTotal(total)

	status := storage.StatusDone
	for _, f := range files {
		if ctx.Err() != nil {
			status = storage.StatusCancelled
			break
		}

		outcome, err := c.processFile(ctx, r, f)
		if err != nil && ctx.Err() != nil {
			// Файл прерван отменой и не учитывается
			status = storage.StatusCancelled
			break
		}
		c.record(r, f, outcome, err, logger)

		if r.counters.Processed()%int64(c.flush) == 0 {
			c.flushCounters(ctx, r, logger)
		}
	}

	switch status {
	case storage.StatusCancelled:
		r.log.add("отменено: обработано %d из %d", r.counters.Processed(), total)
	default:
		if opts.Mode == storage.ModeScanOnly {
			r.log.add(ScanOnlyMessage)
		}
	}
	r.log.add("создано: %d, пропущено: %d, дубликатов: %d, ошибок: %d",
		r.counters.Created, r.counters.Skipped, r.counters.Deduped, r.counters.Errors)

	logger.Info("задача завершена",
		"status", status,
		"created", r.counters.Created,
		"skipped", r.counters.Skipped,
		"deduped", r.counters.Deduped,
		"errors", r.counters.Errors)

	return c.finish(ctx, jobID, status, r.counters, r.log.String())
}

// record учитывает итог файла в счётчиках, журнале и наблюдателе.
func (c *Coordinator) record(r *run, f scanner.File, outcome Outcome, err error, logger *slog.Logger) {
	switch outcome {
	case OutcomeCreated:
		r.counters.Created++
		r.observer.Increment()
	case OutcomeSkipped:
		r.counters.Skipped++
		r.observer.IncrementSkipped()
		logger.Debug("ключ уже существует, файл пропущен", "path", f.Path)
	case OutcomeDeduped:
		r.counters.Deduped++
		r.observer.IncrementDeduped()
		logger.Debug("дубликат по контрольной сумме", "path", f.Path)
	case OutcomeError:
		r.counters.Errors++
		r.observer.IncrementFailed()
		r.log.addError(err)
		logger.Warn("ошибка обработки файла", "path", f.Path, "error", err)
	}
}

func (c *Coordinator) flushCounters(ctx context.Context, r *run, logger *slog.Logger) {
	counters := r.counters
	log := r.log.String()
	if _, err := c.store.UpdateJob(ctx, r.job.ID, storage.JobUpdate{Counters: &counters, Log: &log}); err != nil {
		logger.Warn("не удалось сохранить прогресс", "error", err)
	}
}

// abort переводит задачу в FAILED, не трогая сохранённые счётчики.
// Строка line дописывается к сохранённому журналу.
func (c *Coordinator) abort(ctx context.Context, jobID, line string) (*storage.ImportJob, error) {
	ctx = context.WithoutCancel(ctx)
	job, err := c.store.FindJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать задачу %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	status := storage.StatusFailed
	log := storage.AppendLog(job.Log, line)
	finished := time.Now().UTC()
	job, err = c.store.UpdateJob(ctx, jobID, storage.JobUpdate{
		Status:     &status,
		Log:        &log,
		FinishedAt: &finished,
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось завершить задачу %s: %w", jobID, err)
	}
	return job, nil
}

// finish переводит задачу в терминальный статус. Запись выполняется и
// после отмены ctx.
func (c *Coordinator) finish(ctx context.Context, jobID string, status storage.JobStatus, counters storage.Counters, log string) (*storage.ImportJob, error) {
	ctx = context.WithoutCancel(ctx)
	finished := time.Now().UTC()
	job, err := c.store.UpdateJob(ctx, jobID, storage.JobUpdate{
		Status:     &status,
		Counters:   &counters,
		Log:        &log,
		FinishedAt: &finished,
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось завершить задачу %s: %w", jobID, err)
	}
	return job, nil
}

// processFile обрабатывает один файл. Ошибка возвращается вместе с OutcomeError.
func (c *Coordinator) processFile(ctx context.Context, r *run, f scanner.File) (Outcome, error) {
	fail := func(stage Stage, err error) (Outcome, error) {
		return OutcomeError, &FileError{Path: f.Path, Stage: stage, Err: err}
	}

	release, err := c.limiter.Acquire(ctx, f.Size)
	if err != nil {
		return fail(StageRead, err)
	}
	defer release()

	// 1. Байты и контрольная сумма
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fail(StageRead, err)
	}
	checksum := scanner.Checksum(data)

	// 2. Дедупликация
	if r.opts.Deduplicate {
		existing, err := c.store.FindAssetsByChecksum(ctx, checksum)
		if err != nil {
			return fail(StageDedup, err)
		}
		if len(existing) > 0 || r.seenChecksums[checksum] {
			return OutcomeDeduped, nil
		}
	}

	// 3. Метаданные
	meta := c.extractor.Extract(data, f.Path, f.ModTime)
	meta.Checksum = checksum
	if len(r.opts.Tags) > 0 {
		meta.Tags = r.opts.Tags
	}
	if r.opts.Slug != "" {
		meta.Slug = r.opts.Slug
	}

	// 4. Ключ хранения
	folderPath := organize.GenerateFolderPath(meta, r.strategy)
	key := organize.GenerateStorageKey(meta, r.strategy)

	// 5. Коллизия ключа
	exists, err := c.variants.Exists(ctx, key, r.variantOpts)
	if err != nil {
		return fail(StageExists, err)
	}
	if exists || r.seenKeys[key] {
		return OutcomeSkipped, nil
	}

	if r.opts.Mode == storage.ModeScanOnly {
		r.seenChecksums[checksum] = r.opts.Deduplicate
		r.seenKeys[key] = true
		return OutcomeCreated, nil
	}

	// 6. Варианты
	objMeta := map[string]string{
		"checksum":     checksum,
		"capture_date": meta.CaptureDate.UTC().Format(time.RFC3339),
		"camera":       meta.Camera,
		"lens":         meta.Lens,
		"source_name":  meta.OriginalName,
	}
	if _, err := c.variants.Upload(ctx, key, data, contentTypeFor(meta.Ext), objMeta, r.variantOpts); err != nil {
		return fail(StageUpload, err)
	}

	// 7-8. Папка и запись изображения
	if err := c.persist(ctx, r, meta, folderPath, key); err != nil {
		// Варианты без записи в БД не остаются
		if derr := c.variants.Delete(context.WithoutCancel(ctx), key); derr != nil {
			c.logger.Warn("не удалось удалить варианты после ошибки", "key", key, "error", derr)
		}
		return fail(StagePersist, err)
	}

	// 9. Перенос исходника
	if r.opts.Mode == storage.ModeIngestMove {
		dst := filepath.Join(r.opts.ProcessedRoot(), filepath.FromSlash(key))
		if err := moveFile(f.Path, dst, c.logger); err != nil {
			return fail(StageMove, err)
		}
	}

	// 10. Создан
	return OutcomeCreated, nil
}

func (c *Coordinator) persist(ctx context.Context, r *run, meta *metadata.AssetMetadata, folderPath, key string) error {
	folder, err := c.store.UpsertFolderByPath(ctx, folderPath)
	if err != nil {
		return err
	}

	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	asset := &storage.Asset{
		FolderID:     folder.ID,
		StorageKey:   key,
		Checksum:     meta.Checksum,
		Title:        strings.TrimSuffix(meta.OriginalName, filepath.Ext(meta.OriginalName)),
		Category:     r.opts.categoryFor(tags),
		OriginalName: meta.OriginalName,
		Ext:          meta.Ext,
		CaptureDate:  meta.CaptureDate.UTC(),
		DateSource:   string(meta.DateSource),
		Camera:       meta.Camera,
		Lens:         meta.Lens,
		Width:        meta.Width,
		Height:       meta.Height,
		Tags:         tags,
		ShortID:      meta.ShortID,
		JobID:        r.job.ID,
	}
	return c.store.CreateAsset(ctx, asset)
}

type noopObserver struct{}

func (noopObserver) SetTotal(int64)    {}
func (noopObserver) Increment()        {}
func (noopObserver) IncrementSkipped() {}
func (noopObserver) IncrementDeduped() {}
func (noopObserver) IncrementFailed()  {}

/*
Возможные расширения:
- Повторная попытка загрузки при временных ошибках хранилища
- Блокировка по checksum между задачами
*/
