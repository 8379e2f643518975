// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artemshloyda/photoingest/internal/organize"
	"github.com/artemshloyda/photoingest/internal/scanner"
)

// StoreBackend определяет бэкенд объектного хранилища.
type StoreBackend string

const (
	// StoreLocal - локальная директория.
	StoreLocal StoreBackend = "local"
	// StoreGCS - Google Cloud Storage.
	StoreGCS StoreBackend = "gcs"
)

// Codec определяет реализацию перекодирования изображений.
type Codec string

const (
	// CodecNative - чистый Go (imaging + libwebp).
	CodecNative Codec = "native"
	// CodecVips - внешний бинарник vips.
	CodecVips Codec = "vips"
)

// Config содержит все настройки приложения.
type Config struct {
	// Database - путь к SQLite базе или URL PostgreSQL (postgres://...).
	Database string

	// Store - бэкенд объектного хранилища.
	Store StoreBackend

	// StoreDir - корень локального хранилища.
	StoreDir string

	// Bucket - имя GCS bucket.
	Bucket string

	// CredentialsFile - JSON ключ сервисного аккаунта GCS (опционально).
	CredentialsFile string

	// SigningSecret - секрет подписи URL локального хранилища.
	SigningSecret string

	// URLTTL - время жизни подписанных URL.
	URLTTL time.Duration

	// Codec - реализация перекодирования.
	Codec Codec

	// VipsPath - путь к vips бинарнику (опционально).
	VipsPath string

	// VipsTimeout - таймаут на один вызов vips.
	VipsTimeout time.Duration

	// Preset - профиль вариантов (web, hq, compact).
	Preset string

	// Variants - параметры вариантов, заполняются из Preset.
	Variants VariantPreset

	// Extensions - расширения входных файлов (без точки, lowercase).
	Extensions []string

	// Workers - сколько задач импорта может выполняться одновременно.
	Workers int

	// MaxMemoryMB - ограничение памяти на все задачи (0 = без ограничения).
	MaxMemoryMB int

	// FlushEvery - через сколько файлов сохранять счётчики задачи.
	FlushEvery int

	// DefaultStrategy - стратегия организации по умолчанию.
	DefaultStrategy string

	// CustomStrategy - шаблоны стратегии custom.
	CustomStrategy organize.CustomTemplates

	// LogFile - путь к JSON логу.
	LogFile string

	// LogLevel - уровень логирования.
	LogLevel slog.Level

	// Verbose - подробный вывод.
	Verbose bool

	// NoProgress - отключить прогресс-бар.
	NoProgress bool
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Database:        filepath.Join(dataDir, "state.sqlite"),
		Store:           StoreLocal,
		StoreDir:        filepath.Join(dataDir, "objects"),
		URLTTL:          15 * time.Minute,
		Codec:           CodecNative,
		VipsTimeout:     5 * time.Minute,
		Preset:          string(PresetWeb),
		Variants:        Presets[PresetWeb],
		Extensions:      append([]string(nil), scanner.DefaultExtensions...),
		Workers:         2,
		FlushEvery:      10,
		DefaultStrategy: string(organize.KindDateBased),
		LogFile:         getEnv("PHOTOINGEST_LOG_FILE", filepath.Join(os.TempDir(), "photoingest.log")),
		LogLevel:        ParseLogLevel(getEnv("PHOTOINGEST_LOG_LEVEL", "INFO")),
	}
}

// defaultDataDir возвращает ~/.local/share/photoingest или ./.photoingest.
func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "photoingest")
	}
	return ".photoingest"
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("не указана база данных (--db)")
	}
	switch c.Store {
	case StoreLocal:
		if c.StoreDir == "" {
			return fmt.Errorf("не указана директория хранилища (--store-dir)")
		}
	case StoreGCS:
		if c.Bucket == "" {
			return fmt.Errorf("для хранилища gcs нужен --bucket")
		}
	default:
		return fmt.Errorf("неизвестное хранилище: %s (доступны: local, gcs)", c.Store)
	}
	if c.Codec != CodecNative && c.Codec != CodecVips {
		return fmt.Errorf("неизвестный кодек: %s (доступны: native, vips)", c.Codec)
	}
	if c.VipsTimeout <= 0 {
		return fmt.Errorf("таймаут vips должен быть положительным")
	}
	if c.Workers < 1 {
		return fmt.Errorf("количество воркеров должно быть >= 1, получено: %d", c.Workers)
	}
	if c.FlushEvery < 1 {
		return fmt.Errorf("flush_every должен быть >= 1, получено: %d", c.FlushEvery)
	}
	if c.URLTTL <= 0 {
		return fmt.Errorf("время жизни URL должно быть положительным")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("не указаны расширения входных файлов")
	}
	if c.Preset != "" && !c.ApplyPreset(c.Preset) {
		return fmt.Errorf("неизвестный пресет: %s (доступны: %s)", c.Preset, strings.Join(ValidPresets(), ", "))
	}
	if err := c.Variants.Validate(); err != nil {
		return err
	}
	if _, err := organize.Builtin(organize.KindCustom, c.CustomStrategy); err != nil {
		return fmt.Errorf("стратегия custom: %w", err)
	}
	return nil
}

// IsPostgres возвращает true, если Database указывает на PostgreSQL.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.Database, "postgres://") || strings.HasPrefix(c.Database, "postgresql://")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ParseLogLevel разбирает уровень логирования, по умолчанию INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

/*
Возможные расширения:
- Поддержка S3 как третьего бэкенда хранилища
- Отдельные пресеты для разных стратегий
*/
