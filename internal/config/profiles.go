// Package config содержит конфигурацию приложения.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrProfileNotFound возвращается, когда профиль не существует.
var ErrProfileNotFound = errors.New("профиль не найден")

// ImportProfile - сохранённые параметры задачи импорта.
// Указатели на bool позволяют отличить "не задано" от false.
type ImportProfile struct {
	Source      string   `yaml:"source,omitempty"`
	Mode        string   `yaml:"mode,omitempty"`
	Strategy    string   `yaml:"strategy,omitempty"`
	Deduplicate *bool    `yaml:"deduplicate,omitempty"`
	Thumbnails  *bool    `yaml:"thumbnails,omitempty"`
	Originals   *bool    `yaml:"originals,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Category    string   `yaml:"category,omitempty"`
	Slug        string   `yaml:"slug,omitempty"`
}

// SavedProfile - профиль вместе с его именем и путём к файлу.
type SavedProfile struct {
	// Name - имя профиля.
	Name string
	// Path - путь к файлу профиля.
	Path string
	// Profile - содержимое; nil, если файл не разобрался.
	Profile *ImportProfile
}

// ProfileStore хранит профили импорта как YAML файлы в директории.
type ProfileStore struct {
	Dir string
}

// DefaultProfileStore возвращает хранилище в ~/.config/photoingest/profiles.
func DefaultProfileStore() (*ProfileStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить домашнюю директорию: %w", err)
	}
	return &ProfileStore{Dir: filepath.Join(homeDir, ".config", "photoingest", "profiles")}, nil
}

// Path возвращает путь к файлу профиля по имени.
func (s *ProfileStore) Path(name string) (string, error) {
	safeName := sanitizeProfileName(name)
	if safeName == "" {
		return "", fmt.Errorf("некорректное имя профиля: %q", name)
	}
	return filepath.Join(s.Dir, safeName+".yaml"), nil
}

// sanitizeProfileName оставляет буквы, цифры, дефисы и подчёркивания.
func sanitizeProfileName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Save сохраняет профиль, перезаписывая существующий.
func (s *ProfileStore) Save(name string, p *ImportProfile) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("не удалось создать директорию профилей: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("не удалось сериализовать профиль: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("не удалось сохранить профиль: %w", err)
	}
	return path, nil
}

// Load загружает профиль по имени.
func (s *ProfileStore) Load(name string) (*ImportProfile, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return nil, fmt.Errorf("не удалось прочитать профиль '%s': %w", name, err)
	}

	var p ImportProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ошибка парсинга профиля '%s': %w", name, err)
	}
	return &p, nil
}

// List возвращает все профили, отсортированные по имени.
func (s *ProfileStore) List() ([]SavedProfile, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SavedProfile{}, nil
		}
		return nil, fmt.Errorf("не удалось прочитать директорию профилей: %w", err)
	}

	var profiles []SavedProfile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		profileName := strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		p, _ := s.Load(profileName)

		profiles = append(profiles, SavedProfile{
			Name:    profileName,
			Path:    filepath.Join(s.Dir, name),
			Profile: p,
		})
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})

	return profiles, nil
}

// Delete удаляет профиль.
func (s *ProfileStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return fmt.Errorf("не удалось удалить профиль: %w", err)
	}
	return nil
}

/*
Возможные расширения:
- Описание и теги у профилей
- Наследование профилей (extends)
*/
