// Package config содержит конфигурацию приложения.
package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger создаёт логгер с двумя выходами: текст в stderr и JSON в файл.
// Без verbose в stderr попадают только WARN и выше, чтобы не мешать прогресс-бару.
// Возвращает логгер и функцию закрытия файла.
func SetupLogger(logFile string, level slog.Level, verbose bool) (*slog.Logger, func() error) {
	stderrLevel := slog.LevelWarn
	if verbose {
		stderrLevel = level
	}
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel})

	if logFile == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	if dir := filepath.Dir(logFile); dir != "" {
		_ = os.MkdirAll(dir, 0755)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := slog.New(stderrHandler)
		logger.Error("не удалось открыть лог-файл, пишем только в stderr", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))

	return logger, file.Close
}

// SetupLoggerWithWriters создаёт логгер с произвольными writer'ами (для тестов).
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
