package storage

// migrations содержит SQL-миграции SQLite в порядке выполнения.
var migrations = []string{
	// Миграция 1: Дерево папок
	`CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		parent_id INTEGER REFERENCES folders(id),
		created_at INTEGER NOT NULL
	);`,

	// Миграция 2: Импортированные изображения
	`CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder_id INTEGER NOT NULL REFERENCES folders(id),
		storage_key TEXT NOT NULL,
		checksum TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		original_name TEXT NOT NULL,
		ext TEXT NOT NULL,
		capture_date INTEGER NOT NULL,
		date_source TEXT NOT NULL,
		camera TEXT NOT NULL DEFAULT '',
		lens TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '[]',
		short_id TEXT NOT NULL,
		job_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);`,

	// Миграция 3: Индекс контрольных сумм для дедупликации.
	// Не уникальный: проверка и вставка не атомарны между задачами.
	`CREATE INDEX IF NOT EXISTS ix_images_checksum ON images (checksum);`,

	// Миграция 4: Поиск по ключу хранения
	`CREATE INDEX IF NOT EXISTS ix_images_storage_key ON images (storage_key);`,

	// Миграция 5: Задачи импорта
	`CREATE TABLE IF NOT EXISTS import_jobs (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		created INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		deduped INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		log TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		finished_at INTEGER
	);`,

	// Миграция 6: Индексы задач
	`CREATE INDEX IF NOT EXISTS ix_import_jobs_created ON import_jobs (created_at);`,
	`CREATE INDEX IF NOT EXISTS ix_import_jobs_status ON import_jobs (status);`,

	// Миграция 7: Таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 8: Запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// pgMigrations содержит SQL-миграции PostgreSQL.
var pgMigrations = []string{
	`CREATE TABLE IF NOT EXISTS folders (
		id BIGSERIAL PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		parent_id BIGINT REFERENCES folders(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,

	`CREATE TABLE IF NOT EXISTS images (
		id BIGSERIAL PRIMARY KEY,
		folder_id BIGINT NOT NULL REFERENCES folders(id),
		storage_key TEXT NOT NULL,
		checksum TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		original_name TEXT NOT NULL,
		ext TEXT NOT NULL,
		capture_date TIMESTAMPTZ NOT NULL,
		date_source TEXT NOT NULL,
		camera TEXT NOT NULL DEFAULT '',
		lens TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		tags TEXT[] NOT NULL DEFAULT '{}',
		short_id TEXT NOT NULL,
		job_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,

	`CREATE INDEX IF NOT EXISTS ix_images_checksum ON images (checksum);`,
	`CREATE INDEX IF NOT EXISTS ix_images_storage_key ON images (storage_key);`,

	`CREATE TABLE IF NOT EXISTS import_jobs (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		created BIGINT NOT NULL DEFAULT 0,
		skipped BIGINT NOT NULL DEFAULT 0,
		deduped BIGINT NOT NULL DEFAULT 0,
		errors BIGINT NOT NULL DEFAULT 0,
		total BIGINT NOT NULL DEFAULT 0,
		log TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	);`,

	`CREATE INDEX IF NOT EXISTS ix_import_jobs_created ON import_jobs (created_at);`,
	`CREATE INDEX IF NOT EXISTS ix_import_jobs_status ON import_jobs (status);`,
}

// GetMigrations возвращает список SQL-миграций SQLite.
func GetMigrations() []string {
	return migrations
}

/*
Возможные расширения:
- Поддержка отката миграций (down migrations)
- Уникальный индекс checksum с обработкой конфликта вставки
*/
