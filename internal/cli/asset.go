package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/objectstore"
	"github.com/artemshloyda/photoingest/internal/storage"
	"github.com/artemshloyda/photoingest/internal/variants"
)

// newAssetCmd создаёт команду для работы с импортированными изображениями.
func newAssetCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Импортированные изображения",
	}

	cmd.AddCommand(newAssetShowCmd(g))
	cmd.AddCommand(newAssetURLsCmd(g))
	cmd.AddCommand(newAssetDeleteCmd(g))
	cmd.AddCommand(newAssetVerifyCmd(g))

	return cmd
}

// findAsset ищет изображение по ключу хранения.
func findAsset(cmd *cobra.Command, a *app, key string) (*storage.Asset, error) {
	asset, err := a.store.FindAssetByKey(cmd.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("изображение с ключом '%s' не найдено", key)
	}
	return asset, err
}

func newAssetShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show [key]",
		Short: "Показать запись изображения",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			asset, err := findAsset(cmd, a, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🖼  %s\n", asset.StorageKey)
			fmt.Fprintf(out, "   Название: %s\n", asset.Title)
			fmt.Fprintf(out, "   Исходный файл: %s\n", asset.OriginalName)
			fmt.Fprintf(out, "   Категория: %s\n", asset.Category)
			fmt.Fprintf(out, "   Дата съёмки: %s (%s)\n", asset.CaptureDate.Format(time.RFC3339), asset.DateSource)
			if asset.Camera != "" {
				fmt.Fprintf(out, "   Камера: %s\n", asset.Camera)
			}
			if asset.Lens != "" {
				fmt.Fprintf(out, "   Объектив: %s\n", asset.Lens)
			}
			if asset.Width > 0 {
				fmt.Fprintf(out, "   Размер: %dx%d\n", asset.Width, asset.Height)
			}
			if len(asset.Tags) > 0 {
				fmt.Fprintf(out, "   Теги: %s\n", strings.Join(asset.Tags, ", "))
			}
			fmt.Fprintf(out, "   SHA-256: %s\n", asset.Checksum)
			fmt.Fprintf(out, "   Задача: %s\n", asset.JobID)

			if a.local == nil {
				return nil
			}
			fmt.Fprintln(out, "   Варианты:")
			for _, kind := range variants.Kinds() {
				info, err := a.local.Stat(cmd.Context(), variants.Key(kind, asset.StorageKey))
				if errors.Is(err, objectstore.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "     %s: %s, %s\n", kind, formatBytes(info.Size), info.ContentType)
			}
			return nil
		},
	}
}

func newAssetURLsCmd(g *globalFlags) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "urls [key]",
		Short: "Выдать подписанные ссылки на варианты",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			asset, err := findAsset(cmd, a, args[0])
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("ttl") {
				ttl = a.cfg.URLTTL
			}
			urls, err := a.variants.SignedURLs(cmd.Context(), asset.StorageKey, ttl)
			if err != nil {
				return fmt.Errorf("не удалось подписать ссылки: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🔗 %s (действительны %s):\n", asset.StorageKey, ttl)
			for _, kind := range variants.Kinds() {
				if u, ok := urls[kind]; ok {
					fmt.Fprintf(out, "   %s: %s\n", kind, u)
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "Время жизни ссылок")
	return cmd
}

func newAssetDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [key]",
		Short: "Удалить изображение и его варианты",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			asset, err := findAsset(cmd, a, args[0])
			if err != nil {
				return err
			}

			if err := a.variants.Delete(cmd.Context(), asset.StorageKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
				return fmt.Errorf("не удалось удалить варианты: %w", err)
			}
			if err := a.store.DeleteAsset(cmd.Context(), asset.ID); err != nil {
				return fmt.Errorf("не удалось удалить запись: %w", err)
			}

			a.logger.Info("изображение удалено", "key", asset.StorageKey, "id", asset.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Изображение '%s' удалено\n", asset.StorageKey)
			return nil
		},
	}
}

func newAssetVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [url]",
		Short: "Проверить подписанную ссылку локального хранилища",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if a.local == nil {
				return fmt.Errorf("проверка ссылок доступна только для локального хранилища")
			}
			key, err := a.local.VerifySignedURL(args[0])
			if err != nil {
				return fmt.Errorf("ссылка недействительна: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Ссылка действительна: %s\n", key)
			return nil
		},
	}
}
