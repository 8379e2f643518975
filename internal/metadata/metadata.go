// Package metadata извлекает метаданные съёмки (EXIF) из байтов изображения.
package metadata

import (
	"bytes"
	"crypto/rand"
	"errors"
	"image"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	// Регистрация декодеров для image.DecodeConfig
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// exifTimeLayout - формат даты в EXIF.
const exifTimeLayout = "2006:01:02 15:04:05"

// DateSource указывает, откуда взята дата съёмки.
type DateSource string

const (
	// DateFromExifOriginal - поле DateTimeOriginal.
	DateFromExifOriginal DateSource = "exif_original"
	// DateFromExifDateTime - общее поле DateTime (время изменения).
	DateFromExifDateTime DateSource = "exif_datetime"
	// DateFromModTime - время модификации файла.
	DateFromModTime DateSource = "mtime"
)

// AssetMetadata - временная запись о файле, из которой строятся ключ хранилища и запись в БД.
type AssetMetadata struct {
	// OriginalName - исходное имя файла с расширением.
	OriginalName string

	// Basename - имя файла без расширения.
	Basename string

	// Ext - расширение в нижнем регистре без точки.
	Ext string

	// CaptureDate - дата съёмки (встроенная или производная).
	CaptureDate time.Time

	// DateSource - источник CaptureDate.
	DateSource DateSource

	// Camera - производитель и модель камеры.
	Camera string

	// Lens - модель объектива.
	Lens string

	// Tags - набор тегов.
	Tags []string

	// Slug - необязательный slug (для стратегии post_based).
	Slug string

	// ShortID - короткий случайный идентификатор.
	ShortID string

	// Checksum - sha256 содержимого.
	Checksum string

	// Width и Height - размеры изображения (0, если не удалось определить).
	Width  int
	Height int
}

// PrimaryTag возвращает первый тег или пустую строку.
func (m *AssetMetadata) PrimaryTag() string {
	if len(m.Tags) == 0 {
		return ""
	}
	return m.Tags[0]
}

// Extractor читает метаданные из байтов файла.
type Extractor struct {
	logger *slog.Logger

	// newID генерирует короткий идентификатор; подменяется в тестах.
	newID func() string
}

// NewExtractor создаёт Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger, newID: ShortID}
}

// Extract возвращает метаданные с best-effort датой, камерой и объективом.
// Ошибки разбора не фатальны: поля остаются пустыми. Повреждённый EXIF
// пишется в лог предупреждением, отсутствующий - на уровне DEBUG.
func (e *Extractor) Extract(data []byte, path string, modTime time.Time) *AssetMetadata {
	name := filepath.Base(path)
	ext := filepath.Ext(name)

	meta := &AssetMetadata{
		OriginalName: name,
		Basename:     strings.TrimSuffix(name, ext),
		Ext:          strings.ToLower(strings.TrimPrefix(ext, ".")),
		ShortID:      e.newID(),
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		meta.Width = cfg.Width
		meta.Height = cfg.Height
	}

	x, err := exif.Decode(bytes.NewReader(data))
	switch {
	case err == nil:
		e.fillFromExif(meta, x, path)
	case missingExif(err):
		// Для PNG/WebP и JPEG без APP1 это нормальная ситуация
		e.logger.Debug("EXIF отсутствует", "path", path)
	case x != nil && !exif.IsCriticalError(err):
		e.logger.Debug("EXIF прочитан частично", "path", path, "error", err)
		e.fillFromExif(meta, x, path)
	default:
		e.logger.Warn("повреждён EXIF", "path", path, "error", err)
	}

	if meta.CaptureDate.IsZero() {
		meta.CaptureDate = modTime
		meta.DateSource = DateFromModTime
	}

	return meta
}

// missingExif возвращает true, если ошибка exif.Decode означает отсутствие
// APP1 сегмента с EXIF, а не его повреждение.
func missingExif(err error) bool {
	return errors.Is(err, io.EOF) || strings.Contains(err.Error(), "failed to find exif intro marker")
}

func (e *Extractor) fillFromExif(meta *AssetMetadata, x *exif.Exif, path string) {
	if t, ok := exifTime(x, exif.DateTimeOriginal); ok {
		meta.CaptureDate = t
		meta.DateSource = DateFromExifOriginal
	} else if t, ok := exifTime(x, exif.DateTime); ok {
		meta.CaptureDate = t
		meta.DateSource = DateFromExifDateTime
	}

	meta.Camera = cameraName(exifString(x, exif.Make), exifString(x, exif.Model))

	meta.Lens = exifString(x, exif.LensModel)

	e.logger.Debug("EXIF прочитан", "path", path, "date_source", meta.DateSource, "camera", meta.Camera)
}

// cameraName склеивает марку и модель. Многие производители дублируют марку
// в модели ("Canon" + "Canon EOS R5"), такой дубль отбрасывается.
func cameraName(vendor, model string) string {
	switch {
	case vendor == "":
		return model
	case model == "":
		return vendor
	case strings.HasPrefix(strings.ToLower(model), strings.ToLower(vendor)):
		return model
	default:
		return vendor + " " + model
	}
}

func exifTime(x *exif.Exif, field exif.FieldName) (time.Time, bool) {
	s := exifString(x, field)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(exifTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func exifString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

const shortIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// ShortIDLength - длина короткого идентификатора.
const ShortIDLength = 6

// ShortID возвращает случайный идентификатор из 6 символов base-36.
func ShortID() string {
	var b strings.Builder
	b.Grow(ShortIDLength)
	base := big.NewInt(int64(len(shortIDAlphabet)))
	for i := 0; i < ShortIDLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			n = big.NewInt(time.Now().UnixNano() % int64(len(shortIDAlphabet)))
		}
		b.WriteByte(shortIDAlphabet[n.Int64()])
	}
	return b.String()
}
