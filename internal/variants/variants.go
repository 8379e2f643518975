// Package variants сохраняет производные варианты изображения (оригинал,
// оптимизированная копия, миниатюра) и выдаёт на них временные ссылки.
package variants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artemshloyda/photoingest/internal/converter"
	"github.com/artemshloyda/photoingest/internal/objectstore"
)

// Kind - вид варианта.
type Kind string

const (
	KindOriginal  Kind = "original"
	KindOptimized Kind = "optimized"
	KindThumbnail Kind = "thumbnail"
)

// Kinds возвращает все виды в порядке записи.
func Kinds() []Kind {
	return []Kind{KindOriginal, KindOptimized, KindThumbnail}
}

// Prefix возвращает префикс ключа варианта.
func (k Kind) Prefix() string {
	switch k {
	case KindOriginal:
		return "originals/"
	case KindOptimized:
		return "optimized/"
	case KindThumbnail:
		return "thumbs/"
	}
	return ""
}

// Key возвращает ключ объекта варианта для ключа хранения.
func Key(kind Kind, storageKey string) string {
	return kind.Prefix() + storageKey
}

// Options - флаги стратегии, влияющие на набор вариантов.
type Options struct {
	// PreserveOriginals - сохранять оригинал. Без него основным вариантом
	// становится оптимизированная копия.
	PreserveOriginals bool

	// GenerateThumbnails - создавать миниатюру.
	GenerateThumbnails bool
}

// DefaultOptions - все три варианта.
func DefaultOptions() Options {
	return Options{PreserveOriginals: true, GenerateThumbnails: true}
}

// Primary возвращает вид варианта, по которому проверяется существование.
func (o Options) Primary() Kind {
	if o.PreserveOriginals {
		return KindOriginal
	}
	return KindOptimized
}

// Keys - ключи записанных вариантов; пустая строка, если вариант не создавался.
type Keys struct {
	Original  string
	Optimized string
	Thumbnail string
}

// Generator строит и сохраняет варианты.
type Generator struct {
	store  objectstore.Store
	codec  converter.Codec
	logger *slog.Logger
}

// New создаёт Generator.
func New(store objectstore.Store, codec converter.Codec, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{store: store, codec: codec, logger: logger}
}

// Upload кодирует варианты и записывает их под originals/, optimized/ и thumbs/.
// Кодирование выполняется до первой записи: ошибка декодирования не оставляет
// объектов. Если запись одного варианта не удалась, уже записанные удаляются.
func (g *Generator) Upload(ctx context.Context, storageKey string, data []byte, contentType string, meta map[string]string, opts Options) (*Keys, error) {
	if err := objectstore.ValidateKey(storageKey); err != nil {
		return nil, err
	}

	optimized, err := g.codec.Optimize(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("оптимизированная копия: %w", err)
	}

	var thumb []byte
	if opts.GenerateThumbnails {
		thumb, err = g.codec.Thumbnail(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("миниатюра: %w", err)
		}
	}

	type pending struct {
		kind        Kind
		data        []byte
		contentType string
		dst         *string
	}
	keys := &Keys{}
	var writes []pending
	if opts.PreserveOriginals {
		writes = append(writes, pending{KindOriginal, data, contentType, &keys.Original})
	}
	writes = append(writes, pending{KindOptimized, optimized, converter.ContentTypeWebP, &keys.Optimized})
	if opts.GenerateThumbnails {
		writes = append(writes, pending{KindThumbnail, thumb, converter.ContentTypeWebP, &keys.Thumbnail})
	}

	var written []string
	for _, w := range writes {
		key := Key(w.kind, storageKey)
		if _, err := g.store.Put(ctx, key, w.data, w.contentType, meta); err != nil {
			g.rollback(written)
			return nil, fmt.Errorf("запись %s: %w", key, err)
		}
		written = append(written, key)
		*w.dst = key
	}

	g.logger.Debug("варианты записаны",
		"key", storageKey,
		"original_bytes", len(data),
		"optimized_bytes", len(optimized),
		"thumbnail_bytes", len(thumb),
		"codec", g.codec.Name())

	return keys, nil
}

// rollback удаляет уже записанные варианты при сбое. Использует отдельный
// контекст, чтобы отмена задачи не оставила мусор.
func (g *Generator) rollback(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := g.store.Delete(ctx, key); err != nil {
			g.logger.Warn("не удалось откатить вариант", "key", key, "error", err)
		}
	}
}

// Exists проверяет основной вариант ключа хранения.
func (g *Generator) Exists(ctx context.Context, storageKey string, opts Options) (bool, error) {
	return g.store.Exists(ctx, Key(opts.Primary(), storageKey))
}

// Delete удаляет все три варианта. Удаление продолжается после ошибок,
// ошибки объединяются; отката нет.
func (g *Generator) Delete(ctx context.Context, storageKey string) error {
	var errs []error
	for _, kind := range Kinds() {
		if err := g.store.Delete(ctx, Key(kind, storageKey)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// SignedURLs возвращает ссылки на существующие варианты. Отсутствующие пропускаются;
// если нет ни одного, возвращается objectstore.ErrNotFound.
func (g *Generator) SignedURLs(ctx context.Context, storageKey string, ttl time.Duration) (map[Kind]string, error) {
	urls := make(map[Kind]string, 3)
	for _, kind := range Kinds() {
		u, err := g.store.SignedURL(ctx, Key(kind, storageKey), ttl)
		if errors.Is(err, objectstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		urls[kind] = u
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrNotFound, storageKey)
	}
	return urls, nil
}
