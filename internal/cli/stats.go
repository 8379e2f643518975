package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/config"
	"github.com/artemshloyda/photoingest/internal/scanner"
	"github.com/artemshloyda/photoingest/internal/storage"
)

// newStatsCmd создаёт команду stats.
func newStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Показать статистику базы и хранилища",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.store.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("не удалось получить статистику: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📊 Статистика базы данных:\n")
			fmt.Fprintf(out, "   Изображений: %d\n", stats.Assets)
			fmt.Fprintf(out, "   Папок: %d\n", stats.Folders)
			fmt.Fprintf(out, "   Задач: %d\n", stats.Jobs)
			for _, s := range []storage.JobStatus{
				storage.StatusPending, storage.StatusRunning, storage.StatusDone,
				storage.StatusFailed, storage.StatusCancelled,
			} {
				if n := stats.JobsByStatus[s]; n > 0 {
					fmt.Fprintf(out, "     %s %s: %d\n", statusIcon(s), s, n)
				}
			}

			if a.local != nil {
				objects, size, err := a.local.Usage(cmd.Context())
				if err != nil {
					return fmt.Errorf("не удалось подсчитать объём хранилища: %w", err)
				}
				fmt.Fprintf(out, "💾 Локальное хранилище %s:\n", a.local.Dir())
				fmt.Fprintf(out, "   Объектов: %d\n", objects)
				fmt.Fprintf(out, "   Объём: %s\n", formatBytes(size))
			} else {
				fmt.Fprintf(out, "💾 Хранилище: gcs://%s\n", a.cfg.Bucket)
			}

			return nil
		},
	}
}

// formatBytes форматирует байты в человекочитаемый формат.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// newHashCmd создаёт команду hash: контрольная сумма, по которой ищутся дубликаты.
func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [file...]",
		Short: "Показать SHA-256 файлов",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				sum, err := scanner.ComputeSHA256(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, path)
			}
			return nil
		},
	}
}

// newConfigCmd создаёт команду config.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Файл конфигурации",
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Вывести пример конфигурации",
		RunE: func(cmd *cobra.Command, args []string) error {
			example := config.GenerateExampleConfig()
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), example)
				return nil
			}
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("файл уже существует: %s", output)
			}
			if err := os.WriteFile(output, []byte(example), 0644); err != nil {
				return fmt.Errorf("не удалось записать конфигурацию: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Конфигурация записана в %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "", "Записать в файл вместо stdout")

	cmd.AddCommand(initCmd)
	return cmd
}
