package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres реализует Store поверх PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres подключается к PostgreSQL и выполняет миграции.
func NewPostgres(ctx context.Context, dbURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{pool: pool}
	for i, m := range pgMigrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			pool.Close()
			return nil, fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return p, nil
}

// Close закрывает пул соединений.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// UpsertFolderByPath реализует Store.
func (p *Postgres) UpsertFolderByPath(ctx context.Context, path string) (*Folder, error) {
	chain, err := folderChain(path)
	if err != nil {
		return nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var folder Folder
	var parentID *int64
	for _, fp := range chain {
		_, err := tx.Exec(ctx,
			`INSERT INTO folders (path, name, parent_id) VALUES ($1, $2, $3)
			 ON CONFLICT (path) DO NOTHING`,
			fp, lastSegment(fp), parentID)
		if err != nil {
			return nil, fmt.Errorf("не удалось создать папку %s: %w", fp, err)
		}

		folder = Folder{}
		err = tx.QueryRow(ctx,
			`SELECT id, path, name, parent_id, created_at FROM folders WHERE path = $1`, fp).
			Scan(&folder.ID, &folder.Path, &folder.Name, &folder.ParentID, &folder.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать папку %s: %w", fp, err)
		}

		id := folder.ID
		parentID = &id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &folder, nil
}

func scanPgAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.FolderID, &a.StorageKey, &a.Checksum, &a.Title, &a.Category,
		&a.OriginalName, &a.Ext, &a.CaptureDate, &a.DateSource, &a.Camera, &a.Lens,
		&a.Width, &a.Height, &a.Tags, &a.ShortID, &a.JobID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAssetsByChecksum реализует Store.
func (p *Postgres) FindAssetsByChecksum(ctx context.Context, checksum string) ([]Asset, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+assetColumns+` FROM images WHERE checksum = $1 ORDER BY id`, checksum)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanPgAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// FindAssetByKey реализует Store.
func (p *Postgres) FindAssetByKey(ctx context.Context, storageKey string) (*Asset, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM images WHERE storage_key = $1 ORDER BY id DESC LIMIT 1`, storageKey)
	a, err := scanPgAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: изображение %s", ErrNotFound, storageKey)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось найти изображение %s: %w", storageKey, err)
	}
	return a, nil
}

// CreateAsset реализует Store.
func (p *Postgres) CreateAsset(ctx context.Context, a *Asset) error {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO images (folder_id, storage_key, checksum, title, category, original_name, ext,
		                     capture_date, date_source, camera, lens, width, height, tags, short_id, job_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id, created_at`,
		a.FolderID, a.StorageKey, a.Checksum, a.Title, a.Category, a.OriginalName, a.Ext,
		a.CaptureDate, a.DateSource, a.Camera, a.Lens, a.Width, a.Height,
		tags, a.ShortID, a.JobID).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("не удалось создать запись изображения: %w", err)
	}
	return nil
}

// DeleteAsset реализует Store.
func (p *Postgres) DeleteAsset(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("не удалось удалить изображение %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: изображение %d", ErrNotFound, id)
	}
	return nil
}

// CreateJob реализует Store.
func (p *Postgres) CreateJob(ctx context.Context, job *ImportJob) error {
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.Config == "" {
		job.Config = "{}"
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO import_jobs (id, source_path, mode, status, created, skipped, deduped, errors,
		                          total, log, config, created_at, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		job.ID, job.SourcePath, string(job.Mode), string(job.Status),
		job.Created, job.Skipped, job.Deduped, job.Errors, job.Total,
		job.Log, job.Config, job.CreatedAt, job.StartedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("не удалось создать задачу: %w", err)
	}
	return nil
}

// UpdateJob реализует Store.
func (p *Postgres) UpdateJob(ctx context.Context, id string, u JobUpdate) (*ImportJob, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Counters != nil {
		add("created", u.Counters.Created)
		add("skipped", u.Counters.Skipped)
		add("deduped", u.Counters.Deduped)
		add("errors", u.Counters.Errors)
	}
	if u.Total != nil {
		add("total", *u.Total)
	}
	if u.Log != nil {
		add("log", *u.Log)
	}
	if u.StartedAt != nil {
		add("started_at", *u.StartedAt)
	}
	if u.FinishedAt != nil {
		add("finished_at", *u.FinishedAt)
	}

	if len(sets) > 0 {
		args = append(args, id)
		query := fmt.Sprintf(`UPDATE import_jobs SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
		tag, err := p.pool.Exec(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("не удалось обновить задачу %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: задача %s", ErrNotFound, id)
		}
	}

	return p.FindJob(ctx, id)
}

func scanPgJob(row pgx.Row) (*ImportJob, error) {
	var j ImportJob
	var mode, status string
	err := row.Scan(&j.ID, &j.SourcePath, &mode, &status,
		&j.Created, &j.Skipped, &j.Deduped, &j.Errors,
		&j.Total, &j.Log, &j.Config, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	j.Mode = Mode(mode)
	j.Status = JobStatus(status)
	return &j, nil
}

// FindJob реализует Store.
func (p *Postgres) FindJob(ctx context.Context, id string) (*ImportJob, error) {
	job, err := scanPgJob(p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: задача %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать задачу %s: %w", id, err)
	}
	return job, nil
}

// ListJobs реализует Store.
func (p *Postgres) ListJobs(ctx context.Context, limit int) ([]ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []ImportJob{}
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// RecoverInterruptedJobs реализует Store.
func (p *Postgres) RecoverInterruptedJobs(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE import_jobs
		 SET status = $1,
		     log = CASE WHEN log = '' THEN $2 ELSE log || E'\n' || $2 END,
		     finished_at = now()
		 WHERE status IN ($3, $4)`,
		string(StatusFailed), InterruptedMessage, string(StatusRunning), string(StatusPending))
	if err != nil {
		return 0, fmt.Errorf("не удалось восстановить прерванные задачи: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetStats реализует Store.
func (p *Postgres) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{JobsByStatus: make(map[JobStatus]int64)}

	rows, err := p.pool.Query(ctx, `SELECT status, COUNT(*) FROM import_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query job stats: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		st.JobsByStatus[JobStatus(status)] = n
		st.Jobs += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = p.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM images), (SELECT COUNT(*) FROM folders)`).
		Scan(&st.Assets, &st.Folders)
	if err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}
	return st, nil
}
