package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/config"
)

// newProfilesCmd создаёт команду для управления профилями импорта.
func newProfilesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Управление сохранёнными профилями импорта",
		Long: `Управление сохранёнными профилями импорта.

Профили хранятся в ~/.config/photoingest/profiles/ и содержат параметры
задачи: источник, режим, стратегию, флаги и теги.

Примеры:
  # Сохранить параметры задачи как профиль
  photoingest import --source ./camera --strategy post_based --slug trip --save-profile trip

  # Запустить импорт по профилю
  photoingest import --profile trip

  # Список профилей
  photoingest profiles list

  # Удалить профиль
  photoingest profiles delete trip`,
	}

	cmd.AddCommand(newProfilesListCmd(g))
	cmd.AddCommand(newProfilesDeleteCmd(g))
	cmd.AddCommand(newProfilesShowCmd(g))

	return cmd
}

func newProfilesListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Показать список сохранённых профилей",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.profileStore()
			if err != nil {
				return err
			}
			profiles, err := store.List()
			if err != nil {
				return fmt.Errorf("ошибка получения списка профилей: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(profiles) == 0 {
				fmt.Fprintln(out, "Профили не найдены.")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Сохраните профиль командой:")
				fmt.Fprintln(out, "  photoingest import --source ./camera --save-profile camera")
				return nil
			}

			fmt.Fprintf(out, "📦 Сохранённые профили (%d):\n\n", len(profiles))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ИМЯ\tРЕЖИМ\tСТРАТЕГИЯ\tИСТОЧНИК")
			fmt.Fprintln(w, "---\t-----\t---------\t--------")

			for _, p := range profiles {
				mode, strategy, source := "-", "-", "-"
				if p.Profile != nil {
					mode = orDash(p.Profile.Mode)
					strategy = orDash(p.Profile.Strategy)
					source = orDash(p.Profile.Source)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, mode, strategy, source)
			}
			return w.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newProfilesDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Удалить профиль",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			store, err := g.profileStore()
			if err != nil {
				return err
			}

			if err := store.Delete(name); err != nil {
				if errors.Is(err, config.ErrProfileNotFound) {
					return fmt.Errorf("профиль '%s' не найден", name)
				}
				return fmt.Errorf("ошибка удаления профиля: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Профиль '%s' удалён\n", name)
			return nil
		},
	}
}

func newProfilesShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Показать содержимое профиля",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			store, err := g.profileStore()
			if err != nil {
				return err
			}

			p, err := store.Load(name)
			if err != nil {
				return err
			}
			path, _ := store.Path(name)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📦 Профиль: %s\n", name)
			fmt.Fprintf(out, "📁 Путь: %s\n\n", path)

			if p.Source != "" {
				fmt.Fprintf(out, "  source: %s\n", p.Source)
			}
			if p.Mode != "" {
				fmt.Fprintf(out, "  mode: %s\n", p.Mode)
			}
			if p.Strategy != "" {
				fmt.Fprintf(out, "  strategy: %s\n", p.Strategy)
			}
			if p.Deduplicate != nil {
				fmt.Fprintf(out, "  deduplicate: %t\n", *p.Deduplicate)
			}
			if p.Thumbnails != nil {
				fmt.Fprintf(out, "  thumbnails: %t\n", *p.Thumbnails)
			}
			if p.Originals != nil {
				fmt.Fprintf(out, "  originals: %t\n", *p.Originals)
			}
			if len(p.Tags) > 0 {
				fmt.Fprintf(out, "  tags: %s\n", strings.Join(p.Tags, ", "))
			}
			if p.Category != "" {
				fmt.Fprintf(out, "  category: %s\n", p.Category)
			}
			if p.Slug != "" {
				fmt.Fprintf(out, "  slug: %s\n", p.Slug)
			}

			return nil
		},
	}
}

/*
Возможные расширения:
- Добавить команду 'profiles export' для экспорта в файл
- Добавить команду 'profiles copy' для копирования профиля
*/
