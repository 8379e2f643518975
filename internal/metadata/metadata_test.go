package metadata

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// tiffEntry - запись IFD для сборки тестового EXIF.
type tiffEntry struct {
	tag   uint16
	typ   uint16
	value string // ASCII значение (type 2)
	long  uint32 // LONG значение (type 4)
}

// buildExif собирает little-endian TIFF блок: IFD0 с Make/Model и указателем
// на Exif IFD с DateTimeOriginal и LensModel.
func buildExif(vendor, model, dateOriginal, lens string) []byte {
	const ifd0Off = 8
	ifd0 := []tiffEntry{
		{tag: 0x010F, typ: 2, value: vendor},
		{tag: 0x0110, typ: 2, value: model},
		{tag: 0x8769, typ: 4},
	}
	exifIFD := []tiffEntry{
		{tag: 0x9003, typ: 2, value: dateOriginal},
		{tag: 0xA434, typ: 2, value: lens},
	}

	exifOff := ifd0Off + 2 + len(ifd0)*12 + 4
	dataOff := exifOff + 2 + len(exifIFD)*12 + 4
	ifd0[2].long = uint32(exifOff)

	var data bytes.Buffer
	le := binary.LittleEndian

	writeIFD := func(buf *bytes.Buffer, entries []tiffEntry) {
		_ = binary.Write(buf, le, uint16(len(entries)))
		for _, e := range entries {
			_ = binary.Write(buf, le, e.tag)
			_ = binary.Write(buf, le, e.typ)
			if e.typ == 4 {
				_ = binary.Write(buf, le, uint32(1))
				_ = binary.Write(buf, le, e.long)
				continue
			}
			val := e.value + "\x00"
			_ = binary.Write(buf, le, uint32(len(val)))
			_ = binary.Write(buf, le, uint32(dataOff+data.Len()))
			data.WriteString(val)
		}
		_ = binary.Write(buf, le, uint32(0))
	}

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, le, uint16(42))
	_ = binary.Write(&out, le, uint32(ifd0Off))
	writeIFD(&out, ifd0)
	writeIFD(&out, exifIFD)
	out.Write(data.Bytes())
	return out.Bytes()
}

// jpegWithExif кодирует маленький JPEG и вставляет APP1 сегмент после SOI.
func jpegWithExif(t *testing.T, tiff []byte) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, img, nil); err != nil {
		t.Fatal(err)
	}
	raw := enc.Bytes()

	payload := append([]byte("Exif\x00\x00"), tiff...)
	var out bytes.Buffer
	out.Write(raw[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(raw[2:])
	return out.Bytes()
}

func newTestExtractor() *Extractor {
	e := NewExtractor(nil)
	e.newID = func() string { return "ab12cd" }
	return e
}

func TestExtract_ExifFields(t *testing.T) {
	data := jpegWithExif(t, buildExif("Canon", "Canon EOS R5", "2025:09:11 14:30:05", "RF24-105mm F4L"))
	mtime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	meta := newTestExtractor().Extract(data, "/photos/IMG_0001.JPG", mtime)

	if meta.DateSource != DateFromExifOriginal {
		t.Errorf("DateSource = %v, want %v", meta.DateSource, DateFromExifOriginal)
	}
	got := meta.CaptureDate
	if got.Year() != 2025 || got.Month() != time.September || got.Day() != 11 ||
		got.Hour() != 14 || got.Minute() != 30 || got.Second() != 5 {
		t.Errorf("CaptureDate = %v, want 2025-09-11 14:30:05", got)
	}
	if meta.Camera != "Canon EOS R5" {
		t.Errorf("Camera = %q, want %q", meta.Camera, "Canon EOS R5")
	}
	if meta.Lens != "RF24-105mm F4L" {
		t.Errorf("Lens = %q, want %q", meta.Lens, "RF24-105mm F4L")
	}
	if meta.Basename != "IMG_0001" || meta.Ext != "jpg" || meta.OriginalName != "IMG_0001.JPG" {
		t.Errorf("name fields = %q/%q/%q", meta.OriginalName, meta.Basename, meta.Ext)
	}
	if meta.ShortID != "ab12cd" {
		t.Errorf("ShortID = %q, want ab12cd", meta.ShortID)
	}
	if meta.Width != 16 || meta.Height != 8 {
		t.Errorf("size = %dx%d, want 16x8", meta.Width, meta.Height)
	}
}

func TestExtract_FallsBackToModTime(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	mtime := time.Date(2021, 6, 15, 8, 0, 0, 0, time.UTC)
	meta := newTestExtractor().Extract(buf.Bytes(), "scan.png", mtime)

	if !meta.CaptureDate.Equal(mtime) {
		t.Errorf("CaptureDate = %v, want %v", meta.CaptureDate, mtime)
	}
	if meta.DateSource != DateFromModTime {
		t.Errorf("DateSource = %v, want %v", meta.DateSource, DateFromModTime)
	}
	if meta.Camera != "" || meta.Lens != "" {
		t.Errorf("Camera/Lens should be empty, got %q/%q", meta.Camera, meta.Lens)
	}
}

func TestExtract_GarbageIsNotFatal(t *testing.T) {
	mtime := time.Date(2019, 3, 3, 3, 3, 3, 0, time.UTC)
	meta := newTestExtractor().Extract([]byte("definitely not an image"), "broken.jpg", mtime)

	if meta == nil {
		t.Fatal("Extract() returned nil")
	}
	if !meta.CaptureDate.Equal(mtime) {
		t.Errorf("CaptureDate = %v, want mtime", meta.CaptureDate)
	}
	if meta.Width != 0 {
		t.Errorf("Width = %d, want 0", meta.Width)
	}
}

func TestExtract_ExifLogLevels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		data     []byte
		wantWarn bool
		wantMsg  string
	}{
		{name: "png without exif", data: pngBuf.Bytes(), wantMsg: "EXIF отсутствует"},
		{name: "plain bytes", data: []byte("definitely not an image"), wantMsg: "EXIF отсутствует"},
		{name: "corrupt tiff block", data: jpegWithExif(t, []byte("garbage!")), wantWarn: true, wantMsg: "повреждён EXIF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			e := NewExtractor(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
			e.Extract(tt.data, "img.jpg", time.Now())

			out := logs.String()
			if got := strings.Contains(out, "level=WARN"); got != tt.wantWarn {
				t.Errorf("WARN logged = %v, want %v:\n%s", got, tt.wantWarn, out)
			}
			if !strings.Contains(out, tt.wantMsg) {
				t.Errorf("log missing %q:\n%s", tt.wantMsg, out)
			}
		})
	}
}

func TestCameraName(t *testing.T) {
	tests := []struct {
		vendor, model, want string
	}{
		{"", "", ""},
		{"SONY", "", "SONY"},
		{"", "ILCE-7M3", "ILCE-7M3"},
		{"SONY", "ILCE-7M3", "SONY ILCE-7M3"},
		{"Canon", "Canon EOS R5", "Canon EOS R5"},
		{"NIKON CORPORATION", "NIKON Z 6", "NIKON CORPORATION NIKON Z 6"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := cameraName(tt.vendor, tt.model); got != tt.want {
				t.Errorf("cameraName(%q, %q) = %q, want %q", tt.vendor, tt.model, got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := ShortID()
		if len(id) != ShortIDLength {
			t.Fatalf("ShortID() = %q, want length %d", id, ShortIDLength)
		}
		if strings.Trim(id, shortIDAlphabet) != "" {
			t.Fatalf("ShortID() = %q contains non base-36 characters", id)
		}
		seen[id] = true
	}
	// 36^6 вариантов: 100 генераций практически не дают коллизий
	if len(seen) < 99 {
		t.Errorf("too many collisions: %d unique of 100", len(seen))
	}
}

func TestPrimaryTag(t *testing.T) {
	m := &AssetMetadata{}
	if m.PrimaryTag() != "" {
		t.Error("PrimaryTag() on empty tags should be empty")
	}
	m.Tags = []string{"travel", "sea"}
	if m.PrimaryTag() != "travel" {
		t.Errorf("PrimaryTag() = %q, want travel", m.PrimaryTag())
	}
}
