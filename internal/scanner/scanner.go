// Package scanner отвечает за обход директорий с изображениями и хэширование содержимого.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultExtensions - расширения, которые принимает импорт (lowercase, без точки).
var DefaultExtensions = []string{"jpg", "jpeg", "png", "tiff", "tif", "webp"}

// ProcessedSuffix - суффикс директории-соседа, куда переносятся импортированные файлы.
// Она лежит рядом с корнем импорта, а не внутри него.
const ProcessedSuffix = ".processed"

// File представляет найденный файл.
type File struct {
	// Path - абсолютный путь к файлу.
	Path string

	// RelPath - относительный путь от корня сканирования.
	RelPath string

	// Size - размер файла в байтах.
	Size int64

	// ModTime - время модификации по данным файловой системы.
	ModTime time.Time
}

// Scanner рекурсивно обходит директорию и отбирает изображения по расширению.
type Scanner struct {
	extensions map[string]bool
	logger     *slog.Logger
}

// New создаёт Scanner. Пустой список расширений означает DefaultExtensions.
func New(extensions []string, logger *slog.Logger) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}

	set := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	return &Scanner{extensions: set, logger: logger}
}

// HasExtension проверяет, поддерживается ли расширение файла.
func (s *Scanner) HasExtension(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return s.extensions[ext]
}

// Scan запускает обход root и отправляет найденные файлы в канал.
// Оба канала закрываются после завершения обхода. Ошибка чтения самого root
// отправляется в канал ошибок и прекращает обход.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan File, <-chan error) {
	files := make(chan File, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		if err := s.walk(ctx, root, func(f File) error {
			select {
			case files <- f:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}); err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// List собирает все файлы root в срез в порядке обхода (depth-first, лексикографически).
func (s *Scanner) List(ctx context.Context, root string) ([]File, error) {
	var out []File
	err := s.walk(ctx, root, func(f File) error {
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, root string, emit func(File) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("не удалось получить абсолютный путь %s: %w", root, err)
	}

	// Корень должен читаться, иначе задача невыполнима
	if _, err := os.ReadDir(absRoot); err != nil {
		return fmt.Errorf("не удалось прочитать директорию %s: %w", absRoot, err)
	}

	return filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if path == absRoot {
				return err
			}
			s.logger.Warn("не удалось прочитать путь при сканировании", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		// Пропускаем macOS metadata файлы (._*)
		if strings.HasPrefix(d.Name(), "._") {
			return nil
		}

		if !s.HasExtension(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("не удалось получить info", "path", path, "error", err)
			return nil
		}

		relPath, _ := filepath.Rel(absRoot, path)

		return emit(File{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// Checksum возвращает sha256 (hex) от содержимого.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ComputeSHA256 вычисляет sha256 хэш файла потоково.
func ComputeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("не удалось открыть файл: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("не удалось прочитать файл: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

/*
Возможные расширения:
- Защита от циклов через symlink (сейчас WalkDir не заходит в symlink-директории)
- Поддержка exclude-паттернов
*/
