package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/scanner"
	"github.com/artemshloyda/photoingest/internal/watcher"
)

// newWatchCmd создаёт команду watch.
func newWatchCmd(g *globalFlags) *cobra.Command {
	var (
		settle  time.Duration
		initial bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Следить за директорией и импортировать новые файлы",
		Long: `Следит за директорией источника через fsnotify. Когда новые файлы
перестают появляться на время --settle, запускается задача импорта всего
источника: уже импортированные файлы пропускаются как дубликаты.

Задачи выполняются по одной. Ctrl-C отменяет текущую задачу и завершает слежение.

Примеры:
  photoingest watch --source ./inbox
  photoingest watch --source ./inbox --mode ingest_move --settle 5s`,
	}
	jf := bindJobFlags(cmd)
	cmd.Flags().DurationVar(&settle, "settle", watcher.DefaultSettle, "Пауза без новых файлов перед запуском импорта")
	cmd.Flags().BoolVar(&initial, "initial", true, "Импортировать уже существующие файлы при старте")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
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
		opts.Normalize()
		if err := opts.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.startImporter(ctx, printf); err != nil {
			return err
		}

		w, err := watcher.New(opts.SourcePath, scanner.New(a.cfg.Extensions, a.logger), a.logger)
		if err != nil {
			return err
		}
		w.SetSettle(settle)

		batches, err := w.Watch(ctx)
		if err != nil {
			return err
		}

		printf("👀 Слежение за %s (пауза %s, режим %s)\n", w.Root(), settle, opts.Mode)
		printf("   Ctrl-C для остановки\n\n")

		runJob := func(reason string) error {
			job, err := a.dispatcher.Submit(ctx, opts, nil)
			if err != nil {
				return err
			}
			printf("🚀 %s: задача %s\n", reason, job.ID)

			final, err := a.dispatcher.Wait(context.WithoutCancel(ctx), job.ID)
			if err != nil {
				return fmt.Errorf("не удалось получить результат задачи: %w", err)
			}
			printf("   %s %s: создано %d, пропущено %d, дубликатов %d, ошибок %d\n",
				statusIcon(final.Status), final.Status, final.Created, final.Skipped, final.Deduped, final.Errors)
			return nil
		}

		if initial {
			if err := runJob("Начальный импорт"); err != nil {
				return err
			}
		}

		for batch := range batches {
			a.logger.Info("новые файлы", "count", len(batch.Paths), "root", w.Root())
			if err := runJob(fmt.Sprintf("Новых файлов: %d", len(batch.Paths))); err != nil {
				if ctx.Err() != nil {
					break
				}
				a.logger.Error("не удалось запустить импорт", "error", err)
			}
		}

		printf("\n⚠️  Слежение остановлено\n")
		return nil
	}

	return cmd
}
