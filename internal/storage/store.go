package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound возвращается, когда запись не найдена.
var ErrNotFound = errors.New("запись не найдена")

// InterruptedMessage - строка журнала задач, прерванных аварийным завершением.
const InterruptedMessage = "прервано при предыдущем запуске"

// Store - контракт хранилища состояния импорта.
type Store interface {
	// UpsertFolderByPath возвращает папку по пути, создавая её и всех предков.
	UpsertFolderByPath(ctx context.Context, path string) (*Folder, error)

	// FindAssetsByChecksum возвращает все изображения с контрольной суммой.
	FindAssetsByChecksum(ctx context.Context, checksum string) ([]Asset, error)

	// FindAssetByKey возвращает изображение по ключу хранения.
	FindAssetByKey(ctx context.Context, storageKey string) (*Asset, error)

	// CreateAsset создаёт запись изображения, заполняя ID и CreatedAt.
	CreateAsset(ctx context.Context, a *Asset) error

	// DeleteAsset удаляет запись изображения.
	DeleteAsset(ctx context.Context, id int64) error

	// CreateJob создаёт задачу; статус должен быть PENDING.
	CreateJob(ctx context.Context, job *ImportJob) error

	// UpdateJob применяет изменения и возвращает обновлённую задачу.
	UpdateJob(ctx context.Context, id string, u JobUpdate) (*ImportJob, error)

	// FindJob возвращает задачу или ErrNotFound.
	FindJob(ctx context.Context, id string) (*ImportJob, error)

	// ListJobs возвращает задачи, новые первыми. limit <= 0 - без ограничения.
	ListJobs(ctx context.Context, limit int) ([]ImportJob, error)

	// RecoverInterruptedJobs переводит RUNNING и PENDING задачи в FAILED.
	RecoverInterruptedJobs(ctx context.Context) (int64, error)

	// GetStats возвращает сводную статистику.
	GetStats(ctx context.Context) (*Stats, error)

	// Close освобождает соединения.
	Close() error
}

// Open открывает хранилище по строке подключения: postgres:// URL или путь к SQLite.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(ctx, dsn)
	}
	return New(dsn)
}

// AppendLog добавляет строку к журналу через перевод строки.
func AppendLog(log, line string) string {
	if log == "" {
		return line
	}
	return log + "\n" + line
}
