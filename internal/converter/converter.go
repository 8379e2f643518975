// Package converter строит производные варианты изображения: оптимизированную
// WebP копию и квадратную WebP миниатюру.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"

	// Декодеры входных форматов.
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/artemshloyda/photoingest/internal/config"
)

// ContentTypeWebP - MIME тип всех производных вариантов.
const ContentTypeWebP = "image/webp"

// Codec перекодирует исходные байты в производные варианты.
type Codec interface {
	// Optimize вписывает изображение в MaxDimension без увеличения и кодирует в WebP.
	Optimize(ctx context.Context, data []byte) ([]byte, error)

	// Thumbnail масштабирует и обрезает по центру до ThumbSize x ThumbSize.
	Thumbnail(ctx context.Context, data []byte) ([]byte, error)

	// Name возвращает имя реализации для логов.
	Name() string
}

// Native реализует Codec на чистом Go: imaging для ресайза, libwebp для кодирования.
type Native struct {
	params config.VariantPreset
}

// NewNative создаёт Native кодек с параметрами пресета.
func NewNative(params config.VariantPreset) *Native {
	return &Native{params: params}
}

// Name возвращает "native".
func (n *Native) Name() string {
	return string(config.CodecNative)
}

// Optimize реализует Codec.
func (n *Native) Optimize(ctx context.Context, data []byte) ([]byte, error) {
	img, err := decode(ctx, data)
	if err != nil {
		return nil, err
	}

	img = FitWithin(img, n.params.MaxDimension)

	return encodeWebP(ctx, img, n.params.Quality, n.params.Effort)
}

// Thumbnail реализует Codec.
func (n *Native) Thumbnail(ctx context.Context, data []byte) ([]byte, error) {
	img, err := decode(ctx, data)
	if err != nil {
		return nil, err
	}

	size := n.params.ThumbSize
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	return encodeWebP(ctx, thumb, n.params.ThumbQuality, n.params.Effort)
}

// FitWithin уменьшает изображение так, чтобы длинная сторона была не больше limit.
// Изображения, которые уже помещаются, возвращаются без изменений.
func FitWithin(img image.Image, limit int) image.Image {
	b := img.Bounds()
	if b.Dx() <= limit && b.Dy() <= limit {
		return img
	}
	return imaging.Fit(img, limit, limit, imaging.Lanczos)
}

func decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("не удалось декодировать изображение: %w", err)
	}
	return img, nil
}

func encodeWebP(ctx context.Context, img image.Image, quality, effort int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return nil, fmt.Errorf("не удалось создать параметры webp: %w", err)
	}
	options.Method = effort

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("не удалось закодировать webp: %w", err)
	}
	return buf.Bytes(), nil
}

// New возвращает Codec по имени из конфигурации. Для vips путь к бинарнику обязателен.
func New(cfg *config.Config, vipsPath string) (Codec, error) {
	switch cfg.Codec {
	case config.CodecNative, "":
		return NewNative(cfg.Variants), nil
	case config.CodecVips:
		if vipsPath == "" {
			return nil, fmt.Errorf("кодек vips требует путь к бинарнику")
		}
		v := NewVips(vipsPath, cfg.Variants)
		if cfg.VipsTimeout > 0 {
			v.SetTimeout(cfg.VipsTimeout)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("неизвестный кодек: %s", cfg.Codec)
	}
}

/*
Возможные расширения:
- AVIF как дополнительный формат вариантов
- Сохранение ICC профиля в оптимизированной копии
*/
