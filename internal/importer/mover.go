package importer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// moveFile переносит src в dst. Сначала os.Rename, при ошибке (другое
// устройство) копирование и удаление. Существующий dst не перезаписывается.
func moveFile(src, dst string, logger *slog.Logger) error {
	dstDir := filepath.Dir(dst)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dstDir, err)
	}

	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("файл назначения уже существует: %s", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("не удалось проверить %s: %w", dst, err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	logger.Debug("rename не удался, копируем и удаляем",
		"src", src, "dst", dst, "error", err,
	)

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return err
	}

	return os.Remove(src)
}

// copyFile копирует src в dst с сохранением прав доступа.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("не удалось открыть исходный файл: %w", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("не удалось получить информацию о файле: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("не удалось создать файл назначения: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("ошибка копирования: %w", err)
	}

	return dstFile.Close()
}
