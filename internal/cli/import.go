package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/config"
	"github.com/artemshloyda/photoingest/internal/importer"
	"github.com/artemshloyda/photoingest/internal/progress"
	"github.com/artemshloyda/photoingest/internal/storage"
)

// jobFlags - флаги параметров задачи, общие для import и watch.
type jobFlags struct {
	source       string
	mode         string
	strategy     string
	noDedup      bool
	noThumbnails bool
	noOriginals  bool
	tags         []string
	category     string
	slug         string
	profile      string
}

func bindJobFlags(cmd *cobra.Command) *jobFlags {
	f := &jobFlags{}
	flags := cmd.Flags()
	flags.StringVar(&f.source, "source", "", "Директория с исходными изображениями")
	flags.StringVar(&f.mode, "mode", "ingest_copy", "Режим: ingest_copy, ingest_move или scan_only")
	flags.StringVar(&f.strategy, "strategy", "", "Стратегия: date_based, post_based, tag_based, custom")
	flags.BoolVar(&f.noDedup, "no-dedup", false, "Не проверять дубликаты по контрольной сумме")
	flags.BoolVar(&f.noThumbnails, "no-thumbnails", false, "Не создавать миниатюры")
	flags.BoolVar(&f.noOriginals, "no-originals", false, "Не сохранять оригиналы")
	flags.StringSliceVar(&f.tags, "tags", nil, "Теги через запятую")
	flags.StringVar(&f.category, "category", "", "Категория изображений")
	flags.StringVar(&f.slug, "slug", "", "Slug для стратегии post_based")
	flags.StringVar(&f.profile, "profile", "", "Загрузить параметры из сохранённого профиля")
	return f
}

// options собирает параметры задачи: умолчания, профиль, затем явные флаги.
func (f *jobFlags) options(cmd *cobra.Command, cfg *config.Config, g *globalFlags) (importer.JobOptions, error) {
	opts := importer.DefaultJobOptions(cfg, "")

	if f.profile != "" {
		profiles, err := g.profileStore()
		if err != nil {
			return opts, err
		}
		p, err := profiles.Load(f.profile)
		if err != nil {
			return opts, err
		}
		if err := applyProfile(&opts, p); err != nil {
			return opts, fmt.Errorf("профиль '%s': %w", f.profile, err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("source") || opts.SourcePath == "" {
		opts.SourcePath = f.source
	}
	if changed("mode") || opts.Mode == "" {
		mode, err := storage.ParseMode(f.mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	if changed("strategy") {
		opts.Strategy = f.strategy
	}
	if changed("no-dedup") {
		opts.Deduplicate = !f.noDedup
	}
	if changed("no-thumbnails") {
		opts.GenerateThumbnails = !f.noThumbnails
	}
	if changed("no-originals") {
		opts.PreserveOriginals = !f.noOriginals
	}
	if changed("tags") {
		opts.Tags = f.tags
	}
	if changed("category") {
		opts.Category = f.category
	}
	if changed("slug") {
		opts.Slug = f.slug
	}

	if opts.SourcePath == "" {
		return opts, fmt.Errorf("укажите директорию источника через --source")
	}
	return opts, nil
}

// applyProfile переносит заданные поля профиля в параметры задачи.
func applyProfile(opts *importer.JobOptions, p *config.ImportProfile) error {
	if p.Source != "" {
		opts.SourcePath = p.Source
	}
	if p.Mode != "" {
		mode, err := storage.ParseMode(p.Mode)
		if err != nil {
			return err
		}
		opts.Mode = mode
	}
	if p.Strategy != "" {
		opts.Strategy = p.Strategy
	}
	if p.Deduplicate != nil {
		opts.Deduplicate = *p.Deduplicate
	}
	if p.Thumbnails != nil {
		opts.GenerateThumbnails = *p.Thumbnails
	}
	if p.Originals != nil {
		opts.PreserveOriginals = *p.Originals
	}
	if len(p.Tags) > 0 {
		opts.Tags = append([]string(nil), p.Tags...)
	}
	if p.Category != "" {
		opts.Category = p.Category
	}
	if p.Slug != "" {
		opts.Slug = p.Slug
	}
	return nil
}

// profileFromOptions возвращает профиль, полностью описывающий параметры задачи.
func profileFromOptions(opts importer.JobOptions) *config.ImportProfile {
	dedup := opts.Deduplicate
	thumbs := opts.GenerateThumbnails
	originals := opts.PreserveOriginals
	return &config.ImportProfile{
		Source:      opts.SourcePath,
		Mode:        string(opts.Mode),
		Strategy:    opts.Strategy,
		Deduplicate: &dedup,
		Thumbnails:  &thumbs,
		Originals:   &originals,
		Tags:        opts.Tags,
		Category:    opts.Category,
		Slug:        opts.Slug,
	}
}

// newImportCmd создаёт команду import.
func newImportCmd(g *globalFlags) *cobra.Command {
	var saveProfile string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Импортировать директорию",
		Long: `Запускает задачу импорта и ждёт её завершения.

Ctrl-C отменяет задачу: текущий файл дообрабатывается, задача получает
статус CANCELLED, уже импортированные файлы остаются.

Примеры:
  photoingest import --source ./camera
  photoingest import --source ./camera --tags travel,italy --category travel
  photoingest import --source ./camera --save-profile camera
  photoingest import --profile camera`,
	}
	jf := bindJobFlags(cmd)
	cmd.Flags().StringVar(&saveProfile, "save-profile", "", "Сохранить параметры задачи как профиль")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		startTime := time.Now()
		out := cmd.OutOrStdout()
		printf := func(format string, args ...any) { fmt.Fprintf(out, format, args...) }

		a, err := g.openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		opts, err := jf.options(cmd, a.cfg, g)
		if err != nil {
			return err
		}

		if saveProfile != "" {
			profiles, err := g.profileStore()
			if err != nil {
				return err
			}
			saved := opts
			saved.Normalize()
			path, err := profiles.Save(saveProfile, profileFromOptions(saved))
			if err != nil {
				return err
			}
			printf("💾 Профиль '%s' сохранён: %s\n", saveProfile, path)
		}

		if err := a.startImporter(cmd.Context(), printf); err != nil {
			return err
		}

		bar := progress.New(progress.Options{
			Description: "Импорт",
			Disabled:    a.cfg.NoProgress,
			Writer:      cmd.ErrOrStderr(),
		})

		job, err := a.dispatcher.Submit(cmd.Context(), opts, bar)
		if err != nil {
			if job != nil {
				printJob(out, job)
			}
			return err
		}

		printf("🚀 Запуск импорта:\n")
		printf("   Задача: %s\n", job.ID)
		printf("   Источник: %s\n", job.SourcePath)
		printf("   Режим: %s\n", job.Mode)
		printf("   Хранилище: %s\n", a.cfg.Store)
		printf("\n")

		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		finished := make(chan struct{})
		go func() {
			<-sigCtx.Done()
			select {
			case <-finished:
				return
			default:
			}
			bar.WriteMessage("\n⚠️  Получен сигнал завершения, отменяем задачу...\n")
			_ = a.dispatcher.Cancel(job.ID)
		}()

		final, err := a.dispatcher.Wait(context.WithoutCancel(cmd.Context()), job.ID)
		close(finished)
		stop()
		bar.Finish()
		if err != nil {
			return fmt.Errorf("не удалось получить результат задачи: %w", err)
		}

		printf("\n")
		printJob(out, final)
		printf("   Время: %s\n", time.Since(startTime).Round(time.Millisecond))

		return jobResultError(final)
	}

	return cmd
}

// jobResultError возвращает ошибку для задач, завершившихся не полностью успешно.
func jobResultError(job *storage.ImportJob) error {
	switch job.Status {
	case storage.StatusFailed:
		return fmt.Errorf("задача %s завершилась с ошибкой", job.ID)
	case storage.StatusCancelled:
		return fmt.Errorf("задача %s отменена", job.ID)
	}
	if job.Errors > 0 {
		return fmt.Errorf("завершено с %d ошибками", job.Errors)
	}
	return nil
}

// printJob выводит сводку задачи.
func printJob(out io.Writer, job *storage.ImportJob) {
	fmt.Fprintf(out, "📊 Задача %s: %s %s\n", job.ID, statusIcon(job.Status), job.Status)
	fmt.Fprintf(out, "   Источник: %s\n", job.SourcePath)
	fmt.Fprintf(out, "   Режим: %s\n", job.Mode)
	fmt.Fprintf(out, "   Найдено: %d\n", job.Total)
	fmt.Fprintf(out, "   Создано: %d\n", job.Created)
	fmt.Fprintf(out, "   Пропущено: %d\n", job.Skipped)
	fmt.Fprintf(out, "   Дубликатов: %d\n", job.Deduped)
	fmt.Fprintf(out, "   Ошибок: %d\n", job.Errors)
	if job.StartedAt != nil && job.FinishedAt != nil {
		fmt.Fprintf(out, "   Длительность: %s\n", job.FinishedAt.Sub(*job.StartedAt).Round(time.Millisecond))
	}
}

// printJobLog выводит журнал задачи с отступом.
func printJobLog(out io.Writer, job *storage.ImportJob) {
	if job.Log == "" {
		return
	}
	fmt.Fprintln(out, "📝 Журнал:")
	for _, line := range strings.Split(job.Log, "\n") {
		fmt.Fprintf(out, "   %s\n", line)
	}
}

func statusIcon(s storage.JobStatus) string {
	switch s {
	case storage.StatusDone:
		return "✅"
	case storage.StatusFailed:
		return "❌"
	case storage.StatusCancelled:
		return "⚠️"
	case storage.StatusRunning:
		return "⏳"
	default:
		return "🕒"
	}
}
