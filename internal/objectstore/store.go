// Package objectstore реализует хранилище объектов по ключу: локальную
// директорию и Google Cloud Storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound возвращается, когда объекта с ключом нет.
var ErrNotFound = errors.New("объект не найден")

// Store - хранилище объектов.
type Store interface {
	// Put сохраняет объект и возвращает его адрес (file://..., gs://...).
	// Существующий объект с тем же ключом перезаписывается.
	Put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error)

	// Exists проверяет наличие объекта.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete удаляет объект. Отсутствие объекта ошибкой не считается.
	Delete(ctx context.Context, key string) error

	// SignedURL возвращает ссылку с ограниченным сроком действия.
	// Для отсутствующего объекта возвращает ErrNotFound.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ValidateKey проверяет ключ: непустой, относительный, без сегментов "." и "..".
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("пустой ключ объекта")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("некорректный ключ объекта: %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("некорректный ключ объекта: %q", key)
		}
	}
	return nil
}
