// Package storage содержит модели и хранилища состояния импорта: SQLite и PostgreSQL.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Mode определяет режим задачи импорта.
type Mode string

const (
	// ModeScanOnly - только отчёт: ничего не записывается.
	ModeScanOnly Mode = "SCAN_ONLY"
	// ModeIngestMove - импорт с перемещением исходника в <root>.processed.
	ModeIngestMove Mode = "INGEST_MOVE"
	// ModeIngestCopy - импорт, исходник остаётся на месте.
	ModeIngestCopy Mode = "INGEST_COPY"
)

// ParseMode разбирает режим без учёта регистра ("ingest_copy", "scan-only").
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch m {
	case ModeScanOnly, ModeIngestMove, ModeIngestCopy:
		return m, nil
	}
	return "", fmt.Errorf("неизвестный режим: %q (доступны: SCAN_ONLY, INGEST_MOVE, INGEST_COPY)", s)
}

// JobStatus определяет статус задачи импорта.
type JobStatus string

const (
	// StatusPending - задача создана, обработка не началась.
	StatusPending JobStatus = "PENDING"
	// StatusRunning - идёт обработка файлов.
	StatusRunning JobStatus = "RUNNING"
	// StatusDone - все файлы обработаны (ошибки по файлам допустимы).
	StatusDone JobStatus = "DONE"
	// StatusFailed - ошибка уровня задачи.
	StatusFailed JobStatus = "FAILED"
	// StatusCancelled - задача отменена.
	StatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal возвращает true для DONE, FAILED и CANCELLED.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Counters - счётчики задачи. Не убывают во время выполнения.
type Counters struct {
	Created int64 `json:"created"`
	Skipped int64 `json:"skipped"`
	Deduped int64 `json:"deduped"`
	Errors  int64 `json:"errors"`
}

// Processed возвращает количество обработанных файлов.
func (c Counters) Processed() int64 {
	return c.Created + c.Skipped + c.Deduped + c.Errors
}

// ImportJob - запись задачи импорта.
type ImportJob struct {
	// ID - UUID задачи.
	ID string

	// SourcePath - корень сканирования.
	SourcePath string

	// Mode - режим задачи.
	Mode Mode

	// Status - текущий статус.
	Status JobStatus

	// Counters - счётчики.
	Counters

	// Total - количество найденных файлов (0 до окончания сканирования).
	Total int64

	// Log - человекочитаемый журнал.
	Log string

	// Config - параметры задачи в JSON.
	Config string

	// CreatedAt - время создания.
	CreatedAt time.Time

	// StartedAt - время перехода в RUNNING.
	StartedAt *time.Time

	// FinishedAt - время перехода в терминальный статус.
	FinishedAt *time.Time
}

// JobUpdate - изменяемые поля задачи; nil означает "не менять".
type JobUpdate struct {
	Status     *JobStatus
	Counters   *Counters
	Total      *int64
	Log        *string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Folder - узел дерева папок.
type Folder struct {
	ID        int64
	Path      string
	Name      string
	ParentID  *int64
	CreatedAt time.Time
}

// Asset - запись импортированного изображения.
type Asset struct {
	ID           int64
	FolderID     int64
	StorageKey   string
	Checksum     string
	Title        string
	Category     string
	OriginalName string
	Ext          string
	CaptureDate  time.Time
	DateSource   string
	Camera       string
	Lens         string
	Width        int
	Height       int
	Tags         []string
	ShortID      string
	JobID        string
	CreatedAt    time.Time
}

// Stats - сводная статистика хранилища.
type Stats struct {
	Jobs         int64
	JobsByStatus map[JobStatus]int64
	Assets       int64
	Folders      int64
}

// folderChain возвращает пути всех предков и самой папки: "a/b/c" -> a, a/b, a/b/c.
func folderChain(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("пустой путь папки")
	}
	parts := strings.Split(path, "/")
	chain := make([]string, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("некорректный путь папки: %q", path)
		}
		chain = append(chain, strings.Join(parts[:i+1], "/"))
	}
	return chain, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

/*
Возможные расширения:
- Альбомы как отдельная сущность поверх папок
- Размер вариантов в байтах для статистики
*/
