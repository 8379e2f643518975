// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны - если не указаны, используются значения по умолчанию.
type FileConfig struct {
	// Database - путь к SQLite или URL PostgreSQL.
	Database string `yaml:"database,omitempty"`

	// Store - настройки объектного хранилища.
	Store *StoreConfig `yaml:"store,omitempty"`

	// Processing - настройки обработки.
	Processing *ProcessingConfig `yaml:"processing,omitempty"`

	// Strategies - настройки стратегий организации.
	Strategies *StrategiesConfig `yaml:"strategies,omitempty"`

	// Logging - настройки логирования.
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// StoreConfig содержит настройки объектного хранилища.
type StoreConfig struct {
	// Backend - local или gcs.
	Backend string `yaml:"backend,omitempty"`

	// Dir - корень локального хранилища.
	Dir string `yaml:"dir,omitempty"`

	// Bucket - имя GCS bucket.
	Bucket string `yaml:"bucket,omitempty"`

	// CredentialsFile - ключ сервисного аккаунта GCS.
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// SigningSecret - секрет подписи URL локального хранилища.
	SigningSecret string `yaml:"signing_secret,omitempty"`

	// URLTTL - время жизни подписанных URL ("15m", "1h").
	URLTTL string `yaml:"url_ttl,omitempty"`
}

// ProcessingConfig содержит настройки обработки.
type ProcessingConfig struct {
	// Workers - сколько задач импорта выполняется одновременно.
	Workers int `yaml:"workers,omitempty"`

	// MaxMemoryMB - ограничение памяти.
	MaxMemoryMB int `yaml:"max_memory_mb,omitempty"`

	// FlushEvery - период сохранения счётчиков задачи (в файлах).
	FlushEvery int `yaml:"flush_every,omitempty"`

	// Codec - native или vips.
	Codec string `yaml:"codec,omitempty"`

	// VipsPath - путь к бинарнику vips.
	VipsPath string `yaml:"vips_path,omitempty"`

	// VipsTimeout - таймаут на один вызов vips, например "2m".
	VipsTimeout string `yaml:"vips_timeout,omitempty"`

	// Preset - пресет вариантов (web, hq, compact).
	Preset string `yaml:"preset,omitempty"`

	// Extensions - список расширений входных файлов.
	Extensions []string `yaml:"extensions,omitempty"`

	// NoProgress - отключить прогресс-бар.
	NoProgress bool `yaml:"no_progress,omitempty"`
}

// StrategiesConfig содержит настройки стратегий организации.
type StrategiesConfig struct {
	// Default - стратегия по умолчанию.
	Default string `yaml:"default,omitempty"`

	// Custom - шаблоны стратегии custom.
	Custom *CustomStrategyConfig `yaml:"custom,omitempty"`
}

// CustomStrategyConfig содержит шаблоны стратегии custom.
type CustomStrategyConfig struct {
	Folder   string `yaml:"folder,omitempty"`
	Filename string `yaml:"filename,omitempty"`

	// NoThumbnails и NoOriginals отключают варианты для этой стратегии.
	NoThumbnails bool `yaml:"no_thumbnails,omitempty"`
	NoOriginals  bool `yaml:"no_originals,omitempty"`
}

// LoggingConfig содержит настройки логирования.
type LoggingConfig struct {
	// File - путь к JSON логу.
	File string `yaml:"file,omitempty"`

	// Level - DEBUG, INFO, WARN, ERROR.
	Level string `yaml:"level,omitempty"`
}

// DefaultConfigPaths возвращает список путей для поиска конфигурационного файла.
// Поиск выполняется в следующем порядке:
// 1. ./photoingest.yaml (текущая директория)
// 2. ./photoingest.yml
// 3. ~/.config/photoingest/config.yaml
// 4. ~/.config/photoingest/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"photoingest.yaml",
		"photoingest.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "photoingest", "config.yaml"),
			filepath.Join(home, ".config", "photoingest", "config.yml"),
		)
	}

	return paths
}

// LoadFromFile загружает конфигурацию из указанного файла.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// FindAndLoadConfig ищет и загружает конфигурационный файл из стандартных путей.
// Если configPath указан явно, использует только его.
// Возвращает nil, nil если файл не найден.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("файл конфигурации не найден: %s", configPath)
		}
		return fc, configPath, nil
	}

	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}

	return nil, "", nil
}

// ApplyToConfig применяет настройки из файла к основной конфигурации.
// CLI флаги имеют приоритет над файлом конфигурации, поэтому
// эта функция должна вызываться до применения CLI флагов.
func (fc *FileConfig) ApplyToConfig(cfg *Config) error {
	if fc == nil {
		return nil
	}

	if fc.Database != "" {
		cfg.Database = fc.Database
	}

	if s := fc.Store; s != nil {
		if s.Backend != "" {
			cfg.Store = StoreBackend(s.Backend)
		}
		if s.Dir != "" {
			cfg.StoreDir = s.Dir
		}
		if s.Bucket != "" {
			cfg.Bucket = s.Bucket
		}
		if s.CredentialsFile != "" {
			cfg.CredentialsFile = s.CredentialsFile
		}
		if s.SigningSecret != "" {
			cfg.SigningSecret = s.SigningSecret
		}
		if s.URLTTL != "" {
			ttl, err := time.ParseDuration(s.URLTTL)
			if err != nil {
				return fmt.Errorf("store.url_ttl: %w", err)
			}
			cfg.URLTTL = ttl
		}
	}

	if p := fc.Processing; p != nil {
		if p.Workers > 0 {
			cfg.Workers = p.Workers
		}
		if p.MaxMemoryMB > 0 {
			cfg.MaxMemoryMB = p.MaxMemoryMB
		}
		if p.FlushEvery > 0 {
			cfg.FlushEvery = p.FlushEvery
		}
		if p.Codec != "" {
			cfg.Codec = Codec(p.Codec)
		}
		if p.VipsPath != "" {
			cfg.VipsPath = p.VipsPath
		}
		if p.VipsTimeout != "" {
			d, err := time.ParseDuration(p.VipsTimeout)
			if err != nil {
				return fmt.Errorf("processing.vips_timeout: %w", err)
			}
			cfg.VipsTimeout = d
		}
		if p.Preset != "" {
			cfg.Preset = p.Preset
			cfg.ApplyPreset(p.Preset)
		}
		if len(p.Extensions) > 0 {
			cfg.Extensions = p.Extensions
		}
		if p.NoProgress {
			cfg.NoProgress = true
		}
	}

	if st := fc.Strategies; st != nil {
		if st.Default != "" {
			cfg.DefaultStrategy = st.Default
		}
		if st.Custom != nil {
			cfg.CustomStrategy.Folder = st.Custom.Folder
			cfg.CustomStrategy.Filename = st.Custom.Filename
			cfg.CustomStrategy.NoThumbnails = st.Custom.NoThumbnails
			cfg.CustomStrategy.NoOriginals = st.Custom.NoOriginals
		}
	}

	if l := fc.Logging; l != nil {
		if l.File != "" {
			cfg.LogFile = l.File
		}
		if l.Level != "" {
			cfg.LogLevel = ParseLogLevel(l.Level)
		}
	}

	return nil
}

// GenerateExampleConfig генерирует пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# PhotoIngest Configuration File
# Все параметры опциональны - если не указаны, используются значения по умолчанию.
# CLI флаги имеют приоритет над этим файлом.

# Путь к SQLite базе или URL PostgreSQL
database: "~/.local/share/photoingest/state.sqlite"

store:
  # Бэкенд: local или gcs
  backend: local
  # Корень локального хранилища
  dir: "./objects"
  # GCS bucket (для backend: gcs)
  bucket: ""
  # Ключ сервисного аккаунта (по умолчанию Application Default Credentials)
  credentials_file: ""
  # Секрет подписи file:// URL локального хранилища
  signing_secret: ""
  # Время жизни подписанных URL
  url_ttl: 15m

processing:
  # Сколько задач импорта выполняется одновременно
  workers: 2
  # Ограничение памяти в МБ (0 = без ограничения)
  max_memory_mb: 0
  # Как часто сохранять счётчики задачи (в файлах)
  flush_every: 10
  # Кодек: native или vips
  codec: native
  # Путь к бинарнику vips (по умолчанию автопоиск)
  vips_path: ""
  # Таймаут на один вызов vips
  vips_timeout: 5m
  # Пресет вариантов: web, hq, compact
  preset: web
  # Расширения входных файлов (без точки)
  extensions:
    - jpg
    - jpeg
    - png
    - tiff
    - tif
    - webp

strategies:
  # date_based, post_based, tag_based, custom
  default: date_based
  custom:
    # Токены: ${YYYY} ${MM} ${DD} ${HH} ${mm} ${ss} ${slug} ${shortId}
    #         ${camera} ${lens} ${ext} ${basename} ${primaryTag}
    folder: "gear/${camera}/${YYYY}"
    filename: "${YYYY}${MM}${DD}_${shortId}.${ext}"
    # Не создавать миниатюры и не сохранять оригиналы для этой стратегии
    no_thumbnails: false
    no_originals: false

logging:
  # JSON лог (PHOTOINGEST_LOG_FILE)
  file: ""
  # DEBUG, INFO, WARN, ERROR (PHOTOINGEST_LOG_LEVEL)
  level: INFO
`
}

/*
Возможные расширения:
- Добавить поддержку TOML формата
- Добавить команду 'config init' для генерации конфига
- Добавить поддержку переменных окружения внутри значений
*/
