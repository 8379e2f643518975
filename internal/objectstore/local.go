package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// metaDir - служебная директория с метаданными объектов.
	metaDir = ".meta"
	// keyFile - файл с автоматически созданным секретом подписи.
	keyFile = ".signing-key"
)

// ObjectInfo - метаданные объекта локального хранилища.
type ObjectInfo struct {
	Key         string            `json:"key"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Created     time.Time         `json:"created"`
}

// Local хранит объекты в директории: dir/<key>, метаданные в dir/.meta/<key>.json.
type Local struct {
	// dir - абсолютный путь корня хранилища.
	dir string

	// secret - ключ HMAC для подписанных URL.
	secret []byte

	// now позволяет подменить время в тестах.
	now func() time.Time
}

// NewLocal создаёт локальное хранилище. Пустой secret означает, что секрет
// читается из dir/.signing-key, а при его отсутствии создаётся.
func NewLocal(dir, secret string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища: %w", err)
	}

	l := &Local{dir: abs, now: time.Now}
	if secret != "" {
		l.secret = []byte(secret)
		return l, nil
	}

	l.secret, err = loadOrCreateSecret(filepath.Join(abs, keyFile))
	if err != nil {
		return nil, err
	}
	return l, nil
}

func loadOrCreateSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		return data, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("не удалось прочитать секрет подписи: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("не удалось сгенерировать секрет подписи: %w", err)
	}
	secret := []byte(hex.EncodeToString(buf))
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("не удалось сохранить секрет подписи: %w", err)
	}
	return secret, nil
}

// Dir возвращает корень хранилища.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) objectPath(key string) string {
	return filepath.Join(l.dir, filepath.FromSlash(key))
}

func (l *Local) metaPath(key string) string {
	return filepath.Join(l.dir, metaDir, filepath.FromSlash(key)+".json")
}

// Put реализует Store. Запись атомарна: временный файл, затем rename.
func (l *Local) Put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := l.objectPath(key)
	if err := writeAtomic(dst, data); err != nil {
		return "", fmt.Errorf("не удалось записать объект %s: %w", key, err)
	}

	info := ObjectInfo{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Metadata:    meta,
		Created:     l.now().UTC(),
	}
	sidecar, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("не удалось сериализовать метаданные %s: %w", key, err)
	}
	if err := writeAtomic(l.metaPath(key), sidecar); err != nil {
		return "", fmt.Errorf("не удалось записать метаданные %s: %w", key, err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}).String(), nil
}

func writeAtomic(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Exists реализует Store.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	info, err := os.Stat(l.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Delete реализует Store.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(l.objectPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("не удалось удалить объект %s: %w", key, err)
	}
	if err := os.Remove(l.metaPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("не удалось удалить метаданные %s: %w", key, err)
	}
	return nil
}

// Stat возвращает метаданные объекта из служебной директории.
func (l *Local) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	var info ObjectInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("повреждены метаданные %s: %w", key, err)
	}
	return &info, nil
}

// SignedURL реализует Store: file:// URL с параметрами expires и signature
// (HMAC-SHA256 от "<key>\n<expires>").
func (l *Local) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ok, err := l.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	expires := l.now().Add(ttl).Unix()
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(l.objectPath(key)),
		RawQuery: url.Values{
			"expires":   {strconv.FormatInt(expires, 10)},
			"signature": {l.sign(key, expires)},
		}.Encode(),
	}
	return u.String(), nil
}

func (l *Local) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Ошибки проверки подписанных URL.
var (
	ErrURLExpired   = errors.New("срок действия ссылки истёк")
	ErrBadSignature = errors.New("неверная подпись ссылки")
)

// VerifySignedURL проверяет ссылку, выданную SignedURL, и возвращает ключ объекта.
func (l *Local) VerifySignedURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: схема %q", ErrBadSignature, u.Scheme)
	}

	rel, err := filepath.Rel(l.dir, filepath.FromSlash(u.Path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: путь вне хранилища", ErrBadSignature)
	}
	key := filepath.ToSlash(rel)

	q := u.Query()
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: expires", ErrBadSignature)
	}
	want := l.sign(key, expires)
	if !hmac.Equal([]byte(want), []byte(q.Get("signature"))) {
		return "", ErrBadSignature
	}
	if l.now().Unix() > expires {
		return "", ErrURLExpired
	}
	return key, nil
}

// Usage возвращает количество объектов и их суммарный размер.
// Служебные файлы не учитываются.
func (l *Local) Usage(ctx context.Context) (objects int, size int64, err error) {
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if name == metaDir {
				return filepath.SkipDir
			}
			return nil
		}
		if name == keyFile || strings.HasPrefix(name, ".put-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects++
		size += info.Size()
		return nil
	})
	return objects, size, err
}

/*
Возможные расширения:
- Удаление пустых директорий после Delete
- Отдача объектов по HTTP с проверкой подписи
*/
