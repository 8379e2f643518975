// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/config"
	"github.com/artemshloyda/photoingest/internal/converter"
	"github.com/artemshloyda/photoingest/internal/importer"
	"github.com/artemshloyda/photoingest/internal/objectstore"
	"github.com/artemshloyda/photoingest/internal/storage"
	"github.com/artemshloyda/photoingest/internal/variants"
	"github.com/artemshloyda/photoingest/internal/vipsfinder"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// globalFlags - флаги, общие для всех команд.
type globalFlags struct {
	configPath  string
	db          string
	store       string
	storeDir    string
	bucket      string
	codec       string
	vipsPath    string
	preset      string
	workers     int
	logFile     string
	logLevel    string
	verbose     bool
	noProgress  bool
	profilesDir string
}

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "photoingest",
		Short: "Импорт фотографий в организованное хранилище",
		Long: `PhotoIngest - CLI для импорта фотографий из директории в объектное хранилище.

Каждый файл проверяется на дубликаты по SHA-256, получает ключ по стратегии
организации (по дате, по посту, по тегу или по шаблону) и сохраняется в трёх
вариантах: оригинал, оптимизированная копия и миниатюра. Повторный запуск
на том же источнике ничего не дублирует.

Примеры:
  # Импортировать директорию с копированием
  photoingest import --source ./camera

  # Импорт с перемещением исходников в ./camera.processed
  photoingest import --source ./camera --mode ingest_move --strategy post_based --slug trip

  # Только отчёт: что было бы импортировано
  photoingest import --source ./camera --mode scan_only

  # Следить за директорией и импортировать новые файлы
  photoingest watch --source ./inbox

  # Хранилище в GCS, состояние в PostgreSQL
  photoingest import --source ./camera --store gcs --bucket photos --db postgres://localhost/photos`,
		SilenceUsage: true,
	}

	g.bind(rootCmd)

	rootCmd.AddCommand(newImportCmd(g))
	rootCmd.AddCommand(newWatchCmd(g))
	rootCmd.AddCommand(newJobsCmd(g))
	rootCmd.AddCommand(newAssetCmd(g))
	rootCmd.AddCommand(newProfilesCmd(g))
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newStatsCmd(g))
	rootCmd.AddCommand(newHashCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// bind регистрирует глобальные флаги как persistent флаги cmd.
func (g *globalFlags) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Путь к YAML файлу конфигурации")
	flags.StringVar(&g.db, "db", "", "Путь к SQLite базе или URL PostgreSQL")
	flags.StringVar(&g.store, "store", "", "Хранилище: local или gcs")
	flags.StringVar(&g.storeDir, "store-dir", "", "Корень локального хранилища")
	flags.StringVar(&g.bucket, "bucket", "", "Имя GCS bucket")
	flags.StringVar(&g.codec, "codec", "", "Кодек: native или vips")
	flags.StringVar(&g.vipsPath, "vips-path", "", "Путь к бинарнику vips")
	flags.StringVar(&g.preset, "preset", "", "Пресет вариантов: web, hq, compact")
	flags.IntVar(&g.workers, "workers", 0, "Сколько задач выполняется одновременно")
	flags.StringVar(&g.logFile, "log-file", "", "Путь к JSON логу")
	flags.StringVar(&g.logLevel, "log-level", "", "Уровень логирования: DEBUG, INFO, WARN, ERROR")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "Подробный вывод")
	flags.BoolVar(&g.noProgress, "no-progress", false, "Отключить прогресс-бар")
	flags.StringVar(&g.profilesDir, "profiles-dir", "", "Директория профилей импорта")
}

// loadConfig собирает конфигурацию: значения по умолчанию, файл, затем флаги.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	fc, _, err := config.FindAndLoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := fc.ApplyToConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("db") {
		cfg.Database = g.db
	}
	if changed("store") {
		cfg.Store = config.StoreBackend(g.store)
	}
	if changed("store-dir") {
		cfg.StoreDir = g.storeDir
	}
	if changed("bucket") {
		cfg.Bucket = g.bucket
	}
	if changed("codec") {
		cfg.Codec = config.Codec(g.codec)
	}
	if changed("vips-path") {
		cfg.VipsPath = g.vipsPath
	}
	if changed("preset") {
		cfg.Preset = g.preset
	}
	if changed("workers") {
		cfg.Workers = g.workers
	}
	if changed("log-file") {
		cfg.LogFile = g.logFile
	}
	if changed("log-level") {
		cfg.LogLevel = config.ParseLogLevel(g.logLevel)
	}
	if changed("verbose") {
		cfg.Verbose = g.verbose
	}
	if changed("no-progress") {
		cfg.NoProgress = g.noProgress
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}
	return cfg, nil
}

// profileStore возвращает хранилище профилей из --profiles-dir или по умолчанию.
func (g *globalFlags) profileStore() (*config.ProfileStore, error) {
	if g.profilesDir != "" {
		return &config.ProfileStore{Dir: g.profilesDir}, nil
	}
	return config.DefaultProfileStore()
}

// app - собранные зависимости одного запуска команды.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store    storage.Store
	objects  objectstore.Store
	local    *objectstore.Local
	variants *variants.Generator

	coord      *importer.Coordinator
	dispatcher *importer.Dispatcher

	closers []func() error
}

// openApp открывает базу и объектное хранилище.
func (g *globalFlags) openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel, cfg.Verbose)
	a := &app{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	ctx := cmd.Context()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("не удалось инициализировать БД: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	switch cfg.Store {
	case config.StoreGCS:
		gcs, err := objectstore.NewGCS(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			a.close()
			return nil, err
		}
		a.objects = gcs
		a.closers = append(a.closers, gcs.Close)
	default:
		local, err := objectstore.NewLocal(cfg.StoreDir, cfg.SigningSecret)
		if err != nil {
			a.close()
			return nil, err
		}
		a.objects = local
		a.local = local
	}

	a.variants = variants.New(a.objects, nil, logger)
	logger.Debug("конфигурация загружена", "db", cfg.Database, "store", cfg.Store, "codec", cfg.Codec)

	return a, nil
}

// startImporter создаёт кодек, координатор и диспетчер. Задачи, оставшиеся
// RUNNING или PENDING после аварийного завершения, переводятся в FAILED.
func (a *app) startImporter(ctx context.Context, out func(format string, args ...any)) error {
	recovered, err := a.store.RecoverInterruptedJobs(ctx)
	if err != nil {
		a.logger.Warn("не удалось восстановить прерванные задачи", "error", err)
	} else if recovered > 0 {
		out("🧹 Прервано задач при предыдущем запуске: %d\n", recovered)
	}

	codec, err := a.newCodec(ctx, out)
	if err != nil {
		return err
	}

	a.variants = variants.New(a.objects, codec, a.logger)
	a.coord = importer.New(a.cfg, a.store, a.variants, a.logger)
	a.dispatcher = importer.NewDispatcher(ctx, a.coord, a.cfg.Workers, a.logger)
	a.closers = append(a.closers, func() error {
		a.dispatcher.Close()
		return nil
	})
	return nil
}

// newCodec создаёт кодек из конфигурации; для vips ищет бинарник.
func (a *app) newCodec(ctx context.Context, out func(format string, args ...any)) (converter.Codec, error) {
	if a.cfg.Codec != config.CodecVips {
		return converter.New(a.cfg, "")
	}

	vipsInfo, err := vipsfinder.NewFinder(a.cfg.VipsPath).Find()
	if err != nil {
		return nil, err
	}
	out("📦 Найден vips: %s (версия %s)\n", vipsInfo.Path, vipsInfo.Version)
	if !vipsInfo.AtLeast(vipsfinder.MinVersion) {
		a.logger.Warn("версия vips ниже рекомендуемой", "version", vipsInfo.Version, "min", vipsfinder.MinVersion)
	}

	codec, err := converter.New(a.cfg, vipsInfo.Path)
	if err != nil {
		return nil, err
	}
	if v, ok := codec.(*converter.Vips); ok {
		if err := v.CheckHealth(ctx); err != nil {
			return nil, err
		}
	}
	return codec, nil
}

// close освобождает ресурсы в обратном порядке открытия.
func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn("ошибка при закрытии", "error", err)
	}
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "photoingest %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}

/*
Возможные расширения:
- Команда retry для повторного запуска FAILED задач
- Команда export для выгрузки записей изображений в JSON
*/
