// Package watcher следит за директорией-источником и сообщает о пачках
// новых изображений, после которых нужно запускать импорт.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/artemshloyda/photoingest/internal/scanner"
)

// DefaultSettle - пауза без событий, после которой пачка считается готовой.
const DefaultSettle = 2 * time.Second

// Batch - набор файлов, появившихся с момента предыдущей пачки.
type Batch struct {
	// Paths - абсолютные пути, отсортированные.
	Paths []string

	// At - время формирования пачки.
	At time.Time
}

// Watcher следит за деревом директорий через fsnotify.
type Watcher struct {
	root    string
	scanner *scanner.Scanner
	logger  *slog.Logger

	// watcher - fsnotify watcher.
	watcher *fsnotify.Watcher

	// settle - пауза без событий, нужная, чтобы файлы успели дописаться.
	settle time.Duration

	// pending - файлы текущей пачки; lastEvent - время последнего события.
	mu        sync.Mutex
	pending   map[string]struct{}
	lastEvent time.Time
}

// New создаёт Watcher для корня root. Расширения берутся из sc.
func New(root string, sc *scanner.Scanner, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь %s: %w", root, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}

	return &Watcher{
		root:    abs,
		scanner: sc,
		logger:  logger,
		watcher: w,
		settle:  DefaultSettle,
		pending: make(map[string]struct{}),
	}, nil
}

// SetSettle устанавливает паузу формирования пачки.
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Watch начинает слежение. Канал закрывается при отмене ctx.
func (w *Watcher) Watch(ctx context.Context) (<-chan Batch, error) {
	if err := w.addRecursive(w.root); err != nil {
		_ = w.watcher.Close()
		return nil, err
	}

	batches := make(chan Batch, 16)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		w.processPending(ctx, batches)
	}()
	go func() {
		wg.Wait()
		close(batches)
	}()

	return batches, nil
}

// skipDir возвращает true для скрытых директорий.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".")
}

// addRecursive добавляет директорию и поддиректории в watcher.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("не удалось прочитать", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
			}
		}
		return nil
	})
}

// collect добавляет в пачку изображения, уже лежащие в новой директории:
// они могли появиться до подписки на неё.
func (w *Watcher) collect(ctx context.Context, dir string) {
	files, errs := w.scanner.Scan(ctx, dir)
	for f := range files {
		w.markPending(f.Path)
	}
	if err := <-errs; err != nil && ctx.Err() == nil {
		w.logger.Warn("не удалось просканировать новую директорию", "path", dir, "error", err)
	}
}

func (w *Watcher) markPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	w.lastEvent = time.Now()
}

// processEvents обрабатывает события fsnotify.
func (w *Watcher) processEvents(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ошибка watcher", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	// Только создание, запись и перенос внутрь дерева
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Has(fsnotify.Create) && !skipDir(filepath.Base(event.Name)) {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("не удалось следить за директорией", "path", event.Name, "error", err)
				return
			}
			w.collect(ctx, event.Name)
		}
		return
	}

	if strings.HasPrefix(filepath.Base(event.Name), ".") || !w.scanner.HasExtension(event.Name) {
		return
	}

	w.markPending(event.Name)
}

// processPending отправляет пачку, когда события затихли на settle.
func (w *Watcher) processPending(ctx context.Context, batches chan<- Batch) {
	tick := w.settle / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, ok := w.takeSettled(time.Now())
			if !ok {
				continue
			}
			select {
			case batches <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// takeSettled забирает накопленные файлы, если с последнего события прошло settle.
func (w *Watcher) takeSettled(now time.Time) (Batch, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 || now.Sub(w.lastEvent) < w.settle {
		return Batch{}, false
	}

	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.pending = make(map[string]struct{})

	return Batch{Paths: paths, At: now}, true
}

// Root возвращает абсолютный путь корня.
func (w *Watcher) Root() string {
	return w.root
}
