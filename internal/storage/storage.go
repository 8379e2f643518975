package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage реализует Store поверх SQLite.
type Storage struct {
	db *sql.DB
}

// New создаёт новое подключение к SQLite и выполняет миграции.
func New(dbPath string) (*Storage, error) {
	// Создаём директорию для БД, если не существует
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	// Открываем/создаём БД с параметрами для concurrent доступа
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite не поддерживает concurrent writes
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *Storage) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Storage) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// UpsertFolderByPath реализует Store.
func (s *Storage) UpsertFolderByPath(ctx context.Context, path string) (*Folder, error) {
	chain, err := folderChain(path)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось начать транзакцию: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(time.Now())
	var folder Folder
	var parentID *int64

	for _, p := range chain {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO folders (path, name, parent_id, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(path) DO NOTHING`,
			p, lastSegment(p), parentID, now)
		if err != nil {
			return nil, fmt.Errorf("не удалось создать папку %s: %w", p, err)
		}

		var parent sql.NullInt64
		var created int64
		folder = Folder{}
		err = tx.QueryRowContext(ctx,
			`SELECT id, path, name, parent_id, created_at FROM folders WHERE path = ?`, p).
			Scan(&folder.ID, &folder.Path, &folder.Name, &parent, &created)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать папку %s: %w", p, err)
		}
		if parent.Valid {
			folder.ParentID = &parent.Int64
		}
		folder.CreatedAt = fromMillis(created)

		id := folder.ID
		parentID = &id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("не удалось зафиксировать папку %s: %w", path, err)
	}
	return &folder, nil
}

const assetColumns = `id, folder_id, storage_key, checksum, title, category, original_name, ext,
	capture_date, date_source, camera, lens, width, height, tags, short_id, job_id, created_at`

func scanAsset(row interface{ Scan(...any) error }) (*Asset, error) {
	var a Asset
	var capture, created int64
	var tags string
	err := row.Scan(&a.ID, &a.FolderID, &a.StorageKey, &a.Checksum, &a.Title, &a.Category,
		&a.OriginalName, &a.Ext, &capture, &a.DateSource, &a.Camera, &a.Lens,
		&a.Width, &a.Height, &tags, &a.ShortID, &a.JobID, &created)
	if err != nil {
		return nil, err
	}
	a.CaptureDate = fromMillis(capture)
	a.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("повреждены теги изображения %d: %w", a.ID, err)
	}
	return &a, nil
}

// FindAssetsByChecksum реализует Store.
func (s *Storage) FindAssetsByChecksum(ctx context.Context, checksum string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM images WHERE checksum = ? ORDER BY id`, checksum)
	if err != nil {
		return nil, fmt.Errorf("не удалось найти изображения по checksum: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать изображение: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// FindAssetByKey реализует Store.
func (s *Storage) FindAssetByKey(ctx context.Context, storageKey string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM images WHERE storage_key = ? ORDER BY id DESC LIMIT 1`, storageKey)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: изображение %s", ErrNotFound, storageKey)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось найти изображение %s: %w", storageKey, err)
	}
	return a, nil
}

// CreateAsset реализует Store.
func (s *Storage) CreateAsset(ctx context.Context, a *Asset) error {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать теги: %w", err)
	}

	a.CreatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO images (folder_id, storage_key, checksum, title, category, original_name, ext,
		                     capture_date, date_source, camera, lens, width, height, tags, short_id, job_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FolderID, a.StorageKey, a.Checksum, a.Title, a.Category, a.OriginalName, a.Ext,
		toMillis(a.CaptureDate), a.DateSource, a.Camera, a.Lens, a.Width, a.Height,
		string(tagsJSON), a.ShortID, a.JobID, toMillis(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("не удалось создать запись изображения: %w", err)
	}

	a.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("не удалось получить ID изображения: %w", err)
	}
	return nil
}

// DeleteAsset реализует Store.
func (s *Storage) DeleteAsset(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("не удалось удалить изображение %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: изображение %d", ErrNotFound, id)
	}
	return nil
}

// CreateJob реализует Store.
func (s *Storage) CreateJob(ctx context.Context, job *ImportJob) error {
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.Config == "" {
		job.Config = "{}"
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_jobs (id, source_path, mode, status, created, skipped, deduped, errors,
		                          total, log, config, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourcePath, job.Mode, job.Status,
		job.Created, job.Skipped, job.Deduped, job.Errors, job.Total,
		job.Log, job.Config, toMillis(job.CreatedAt), nullMillis(job.StartedAt), nullMillis(job.FinishedAt))
	if err != nil {
		return fmt.Errorf("не удалось создать задачу: %w", err)
	}
	return nil
}

// UpdateJob реализует Store.
func (s *Storage) UpdateJob(ctx context.Context, id string, u JobUpdate) (*ImportJob, error) {
	var sets []string
	var args []any

	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.Counters != nil {
		sets = append(sets, "created = ?", "skipped = ?", "deduped = ?", "errors = ?")
		args = append(args, u.Counters.Created, u.Counters.Skipped, u.Counters.Deduped, u.Counters.Errors)
	}
	if u.Total != nil {
		sets = append(sets, "total = ?")
		args = append(args, *u.Total)
	}
	if u.Log != nil {
		sets = append(sets, "log = ?")
		args = append(args, *u.Log)
	}
	if u.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, toMillis(*u.StartedAt))
	}
	if u.FinishedAt != nil {
		sets = append(sets, "finished_at = ?")
		args = append(args, toMillis(*u.FinishedAt))
	}

	if len(sets) > 0 {
		args = append(args, id)
		result, err := s.db.ExecContext(ctx,
			`UPDATE import_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("не удалось обновить задачу %s: %w", id, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("%w: задача %s", ErrNotFound, id)
		}
	}

	return s.FindJob(ctx, id)
}

const jobColumns = `id, source_path, mode, status, created, skipped, deduped, errors,
	total, log, config, created_at, started_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (*ImportJob, error) {
	var j ImportJob
	var created int64
	var started, finished sql.NullInt64
	err := row.Scan(&j.ID, &j.SourcePath, &j.Mode, &j.Status,
		&j.Created, &j.Skipped, &j.Deduped, &j.Errors,
		&j.Total, &j.Log, &j.Config, &created, &started, &finished)
	if err != nil {
		return nil, err
	}
	j.CreatedAt = fromMillis(created)
	j.StartedAt = fromNullMillis(started)
	j.FinishedAt = fromNullMillis(finished)
	return &j, nil
}

// FindJob реализует Store.
func (s *Storage) FindJob(ctx context.Context, id string) (*ImportJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: задача %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать задачу %s: %w", id, err)
	}
	return job, nil
}

// ListJobs реализует Store.
func (s *Storage) ListJobs(ctx context.Context, limit int) ([]ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить список задач: %w", err)
	}
	defer rows.Close()

	jobs := []ImportJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать задачу: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// RecoverInterruptedJobs реализует Store.
// Вызывается при старте для очистки после аварийного завершения.
func (s *Storage) RecoverInterruptedJobs(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs
		 SET status = ?,
		     log = CASE WHEN log = '' THEN ? ELSE log || char(10) || ? END,
		     finished_at = ?
		 WHERE status IN (?, ?)`,
		StatusFailed, InterruptedMessage, InterruptedMessage, toMillis(time.Now()),
		StatusRunning, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("не удалось восстановить прерванные задачи: %w", err)
	}
	return result.RowsAffected()
}

// GetStats реализует Store.
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{JobsByStatus: make(map[JobStatus]int64)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM import_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить статистику задач: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status JobStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st.JobsByStatus[status] = n
		st.Jobs += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&st.Assets); err != nil {
		return nil, fmt.Errorf("не удалось посчитать изображения: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders`).Scan(&st.Folders); err != nil {
		return nil, fmt.Errorf("не удалось посчитать папки: %w", err)
	}
	return st, nil
}

/*
Возможные расширения:
- Экспорт статистики в JSON
- Очистка старых задач
- Постраничный вывод изображений папки
*/
