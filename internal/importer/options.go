package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artemshloyda/photoingest/internal/config"
	"github.com/artemshloyda/photoingest/internal/scanner"
	"github.com/artemshloyda/photoingest/internal/storage"
	"github.com/artemshloyda/photoingest/internal/variants"
)

// DefaultCategory - категория изображения без явной категории и тегов.
const DefaultCategory = "imported"

// JobOptions - параметры одной задачи импорта.
type JobOptions struct {
	// SourcePath - корень сканирования (обязателен, должен быть директорией).
	SourcePath string `json:"sourcePath"`

	// Mode - режим задачи.
	Mode storage.Mode `json:"mode"`

	// Strategy - имя стратегии организации; неизвестное имя даёт date_based.
	Strategy string `json:"organizationStrategy"`

	// Deduplicate - проверять контрольную сумму перед импортом.
	Deduplicate bool `json:"deduplicate"`

	// GenerateThumbnails - создавать миниатюры.
	GenerateThumbnails bool `json:"generateThumbnails"`

	// PreserveOriginals - сохранять оригиналы.
	PreserveOriginals bool `json:"preserveOriginals"`

	// Tags, Category и Slug применяются ко всем файлам задачи.
	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`
	Slug     string   `json:"slug,omitempty"`
}

// DefaultJobOptions возвращает параметры по умолчанию для источника.
func DefaultJobOptions(cfg *config.Config, source string) JobOptions {
	return JobOptions{
		SourcePath:         source,
		Mode:               storage.ModeIngestCopy,
		Strategy:           cfg.DefaultStrategy,
		Deduplicate:        true,
		GenerateThumbnails: true,
		PreserveOriginals:  true,
	}
}

// Normalize приводит путь к абсолютному, режим к каноническому виду и чистит теги.
func (o *JobOptions) Normalize() {
	if o.SourcePath != "" {
		if abs, err := filepath.Abs(o.SourcePath); err == nil {
			o.SourcePath = abs
		}
	}

	tags := make([]string, 0, len(o.Tags))
	for _, t := range o.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	o.Tags = tags
	if m, err := storage.ParseMode(string(o.Mode)); err == nil {
		o.Mode = m
	}
	o.Category = strings.TrimSpace(o.Category)
	o.Slug = strings.TrimSpace(o.Slug)
}

// Validate проверяет параметры. Ошибка оборачивает ErrInvalidConfig.
func (o *JobOptions) Validate() error {
	if o.SourcePath == "" {
		return fmt.Errorf("%w: не указан путь к источнику", ErrInvalidConfig)
	}

	info, err := os.Stat(o.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: источник недоступен: %v", ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: источник не является директорией: %s", ErrInvalidConfig, o.SourcePath)
	}

	if _, err := storage.ParseMode(string(o.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// VariantOptions возвращает флаги вариантов.
func (o *JobOptions) VariantOptions() variants.Options {
	return variants.Options{
		PreserveOriginals:  o.PreserveOriginals,
		GenerateThumbnails: o.GenerateThumbnails,
	}
}

// ProcessedRoot возвращает директорию-соседа для INGEST_MOVE: <parent>/<root>.processed.
func (o *JobOptions) ProcessedRoot() string {
	root := filepath.Clean(o.SourcePath)
	return filepath.Join(filepath.Dir(root), filepath.Base(root)+scanner.ProcessedSuffix)
}

// categoryFor возвращает явную категорию, иначе первый тег, иначе DefaultCategory.
func (o *JobOptions) categoryFor(tags []string) string {
	if o.Category != "" {
		return o.Category
	}
	if len(tags) > 0 {
		return tags[0]
	}
	return DefaultCategory
}

// JSON сериализует параметры для записи задачи.
func (o *JobOptions) JSON() string {
	data, err := json.Marshal(o)
	if err != nil {
		return "{}"
	}
	return string(data)
}
