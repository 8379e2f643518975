// Package config содержит конфигурацию приложения.
package config

import "fmt"

// Preset определяет профиль производных вариантов.
type Preset string

const (
	// PresetWeb - по умолчанию: оптимизированная копия до 2048px, качество 85; миниатюра 300px, качество 80.
	PresetWeb Preset = "web"
	// PresetHQ - высокое качество: до 4096px, качество 92; миниатюра 400px.
	PresetHQ Preset = "hq"
	// PresetCompact - экономия места: до 1280px, качество 75; миниатюра 200px.
	PresetCompact Preset = "compact"
)

// VariantPreset содержит параметры оптимизированной копии и миниатюры.
type VariantPreset struct {
	// MaxDimension - предел длинной стороны оптимизированной копии.
	MaxDimension int
	// Quality - качество WebP оптимизированной копии (1-100).
	Quality int
	// Effort - компромисс скорость/размер кодировщика (0-6).
	Effort int
	// ThumbSize - сторона квадратной миниатюры.
	ThumbSize int
	// ThumbQuality - качество WebP миниатюры (1-100).
	ThumbQuality int
}

// Validate проверяет диапазоны параметров.
func (p VariantPreset) Validate() error {
	if p.MaxDimension < 1 {
		return fmt.Errorf("max_dimension должен быть >= 1, получено: %d", p.MaxDimension)
	}
	if p.ThumbSize < 1 {
		return fmt.Errorf("thumb_size должен быть >= 1, получено: %d", p.ThumbSize)
	}
	if p.Quality < 1 || p.Quality > 100 || p.ThumbQuality < 1 || p.ThumbQuality > 100 {
		return fmt.Errorf("качество должно быть от 1 до 100, получено: %d/%d", p.Quality, p.ThumbQuality)
	}
	if p.Effort < 0 || p.Effort > 6 {
		return fmt.Errorf("effort должен быть от 0 до 6, получено: %d", p.Effort)
	}
	return nil
}

// Presets содержит все доступные пресеты.
var Presets = map[Preset]VariantPreset{
	PresetWeb: {
		MaxDimension: 2048,
		Quality:      85,
		Effort:       4,
		ThumbSize:    300,
		ThumbQuality: 80,
	},
	PresetHQ: {
		MaxDimension: 4096,
		Quality:      92,
		Effort:       5,
		ThumbSize:    400,
		ThumbQuality: 85,
	},
	PresetCompact: {
		MaxDimension: 1280,
		Quality:      75,
		Effort:       4,
		ThumbSize:    200,
		ThumbQuality: 70,
	},
}

// ApplyPreset применяет пресет к конфигурации.
// Возвращает true, если пресет был применён.
func (c *Config) ApplyPreset(preset string) bool {
	p, ok := Presets[Preset(preset)]
	if !ok {
		return false
	}

	c.Preset = preset
	c.Variants = p
	return true
}

// ValidPresets возвращает список доступных пресетов.
func ValidPresets() []string {
	return []string{
		string(PresetWeb),
		string(PresetHQ),
		string(PresetCompact),
	}
}
