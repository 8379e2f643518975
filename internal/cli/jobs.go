package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/storage"
)

// newJobsCmd создаёт команду для просмотра задач импорта.
func newJobsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Просмотр задач импорта",
	}

	cmd.AddCommand(newJobsListCmd(g))
	cmd.AddCommand(newJobsShowCmd(g))

	return cmd
}

func newJobsListCmd(g *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Показать последние задачи",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			jobs, err := a.store.ListJobs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("не удалось получить список задач: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "Задачи не найдены.")
				return nil
			}

			fmt.Fprintf(out, "📋 Задачи (%d):\n\n", len(jobs))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tСТАТУС\tРЕЖИМ\tСОЗДАНА\tСОЗДАНО\tПРОПУЩЕНО\tДУБЛИ\tОШИБКИ\tИСТОЧНИК")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					j.ID, j.Status, j.Mode, j.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					j.Created, j.Skipped, j.Deduped, j.Errors, j.SourcePath)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Сколько задач показать (0 = все)")
	return cmd
}

func newJobsShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Показать задачу и её журнал",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := a.store.FindJob(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("задача '%s' не найдена", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printJob(out, job)
			fmt.Fprintf(out, "   Создана: %s\n", job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if job.Config != "" {
				fmt.Fprintf(out, "   Параметры: %s\n", job.Config)
			}
			printJobLog(out, job)
			return nil
		},
	}
}
