package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/artemshloyda/photoingest/internal/config"
)

// Vips реализует Codec через внешний бинарник vips.
type Vips struct {
	// vipsPath - путь к бинарнику vips.
	vipsPath string

	// params - параметры вариантов.
	params config.VariantPreset

	// timeout - таймаут на один вызов vips.
	timeout time.Duration
}

// NewVips создаёт Vips кодек.
func NewVips(vipsPath string, params config.VariantPreset) *Vips {
	return &Vips{
		vipsPath: vipsPath,
		params:   params,
		timeout:  5 * time.Minute,
	}
}

// SetTimeout устанавливает таймаут на один вызов vips.
func (v *Vips) SetTimeout(d time.Duration) {
	v.timeout = d
}

// Name возвращает "vips".
func (v *Vips) Name() string {
	return string(config.CodecVips)
}

// Optimize реализует Codec: vips thumbnail с --size down не увеличивает изображение.
func (v *Vips) Optimize(ctx context.Context, data []byte) ([]byte, error) {
	dim := strconv.Itoa(v.params.MaxDimension)
	return v.run(ctx, data, v.params.Quality,
		dim, "--height", dim, "--size", "down")
}

// Thumbnail реализует Codec: --crop centre заполняет квадрат с обрезкой.
func (v *Vips) Thumbnail(ctx context.Context, data []byte) ([]byte, error) {
	size := strconv.Itoa(v.params.ThumbSize)
	return v.run(ctx, data, v.params.ThumbQuality,
		size, "--height", size, "--crop", "centre")
}

// run пишет исходник во временную директорию, вызывает
// "vips thumbnail src out.webp[Q=..,effort=..,strip] args..." и читает результат.
func (v *Vips) run(ctx context.Context, data []byte, quality int, args ...string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "photoingest-vips-*")
	if err != nil {
		return nil, fmt.Errorf("не удалось создать временную директорию: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	srcPath := filepath.Join(tmpDir, "src")
	if err := os.WriteFile(srcPath, data, 0600); err != nil {
		return nil, fmt.Errorf("не удалось записать исходник: %w", err)
	}

	dstPath := filepath.Join(tmpDir, "out.webp")
	outWithParams := fmt.Sprintf("%s[Q=%d,effort=%d,strip]", dstPath, quality, v.params.Effort)

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmdArgs := append([]string{"thumbnail", srcPath, outWithParams}, args...)
	cmd := exec.CommandContext(ctx, v.vipsPath, cmdArgs...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errMsg := err.Error()
		if stderr.Len() > 0 {
			errMsg = fmt.Sprintf("%s: %s", errMsg, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("vips thumbnail failed: %s", errMsg)
	}

	out, err := os.ReadFile(dstPath)
	if err != nil {
		return nil, fmt.Errorf("vips не создал результат: %w", err)
	}
	return out, nil
}

// CheckHealth проверяет работоспособность vips.
func (v *Vips) CheckHealth(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, v.vipsPath, "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("vips не работает: %w", err)
	}
	return nil
}

/*
Возможные расширения:
- Поддержка VIPS_OPENCL для GPU ускорения
- Передача исходника через stdin ("[descriptor=0]") без временного файла
*/
