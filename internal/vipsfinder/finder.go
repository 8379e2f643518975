// Package vipsfinder отвечает за поиск бинарника vips в системе.
package vipsfinder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// EnvVar - переменная окружения с путём к vips.
const EnvVar = "PHOTOINGEST_VIPS"

// MinVersion - минимальная версия vips с параметром effort у webpsave.
const MinVersion = "8.12"

// VipsInfo содержит информацию о найденном vips.
type VipsInfo struct {
	// Path - абсолютный путь к бинарнику vips.
	Path string

	// Version - версия vips (например, "8.14.2").
	Version string
}

// Finder ищет бинарник vips.
type Finder struct {
	// CustomPath - пользовательский путь к vips (из конфигурации).
	CustomPath string

	// EnvVar - имя переменной окружения для пути к vips.
	EnvVar string

	// lookPath позволяет подменить поиск в PATH в тестах.
	lookPath func(string) (string, error)
}

// NewFinder создаёт новый Finder.
func NewFinder(customPath string) *Finder {
	return &Finder{
		CustomPath: customPath,
		EnvVar:     EnvVar,
		lookPath:   exec.LookPath,
	}
}

// Find ищет vips в следующем порядке:
// 1. CustomPath (если задан)
// 2. Переменная окружения PHOTOINGEST_VIPS
// 3. PATH
// 4. Рядом с исполняемым файлом в ./bin/<os-arch>/vips
//
// Найденный vips должен быть не старее MinVersion.
func (f *Finder) Find() (*VipsInfo, error) {
	var candidates []string

	if f.CustomPath != "" {
		candidates = append(candidates, f.CustomPath)
	}

	if envPath := os.Getenv(f.EnvVar); envPath != "" {
		candidates = append(candidates, envPath)
	}

	if f.lookPath != nil {
		if pathVips, err := f.lookPath("vips"); err == nil {
			candidates = append(candidates, pathVips)
		}
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		candidates = append(candidates,
			filepath.Join(execDir, "bin", platformDir, vipsBinaryName()),
			filepath.Join(execDir, "bin", vipsBinaryName()),
		)
	}

	var lastErr error
	for _, path := range candidates {
		info, err := f.checkVips(path)
		if err != nil {
			lastErr = err
			continue
		}
		if !info.AtLeast(MinVersion) {
			lastErr = fmt.Errorf("%s: версия %s старее %s", info.Path, info.Version, MinVersion)
			continue
		}
		return info, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("кандидатов нет")
	}
	return nil, fmt.Errorf("vips не найден (%v). Проверьте:\n"+
		"  1. Установлен ли vips >= %s (apt install libvips-tools / brew install vips)\n"+
		"  2. Установлена ли переменная окружения %s\n"+
		"  3. Указан ли processing.vips_path в конфигурации\n"+
		"  4. Находится ли vips рядом с утилитой в ./bin/<os-arch>/", lastErr, MinVersion, f.EnvVar)
}

// checkVips проверяет, является ли путь рабочим vips.
func (f *Finder) checkVips(path string) (*VipsInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("файл не найден: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, absPath, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить vips --version: %w", err)
	}

	return &VipsInfo{
		Path:    absPath,
		Version: parseVersion(string(output)),
	}, nil
}

// parseVersion извлекает версию из вывода "vips --version".
// Пример вывода: "vips-8.14.2" или "vips-8.15.1-Tue Jan 9 2024".
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	output = strings.TrimPrefix(output, "vips-")
	output = strings.TrimPrefix(output, "vips ")

	if i := strings.IndexAny(output, " -\n"); i >= 0 {
		output = output[:i]
	}
	return output
}

// AtLeast сравнивает версию vips с минимальной ("8.12" или "8.12.1").
// Нечисловые компоненты считаются нулём.
func (v *VipsInfo) AtLeast(min string) bool {
	have := versionParts(v.Version)
	want := versionParts(min)
	for i := range want {
		var h int
		if i < len(have) {
			h = have[i]
		}
		if h != want[i] {
			return h > want[i]
		}
	}
	return true
}

func versionParts(v string) []int {
	fields := strings.Split(v, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		parts[i], _ = strconv.Atoi(f)
	}
	return parts
}

// vipsBinaryName возвращает имя бинарника vips для текущей ОС.
func vipsBinaryName() string {
	if runtime.GOOS == "windows" {
		return "vips.exe"
	}
	return "vips"
}

/*
Возможные расширения:
- Кэширование результата поиска
- Автоматическое скачивание portable vips
*/
