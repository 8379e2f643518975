package importer

import (
	"context"
	"sync"
)

// memoryFactor - оценка пикового потребления памяти относительно размера файла:
// исходные байты, декодированное изображение и буфер кодировщика.
const memoryFactor = 3

// MemoryLimiter ограничивает суммарную память, зарезервированную
// одновременно выполняемыми задачами.
type MemoryLimiter struct {
	// maxBytes - ограничение в байтах.
	maxBytes int64

	// mu защищает reserved и wake.
	mu sync.Mutex

	// reserved - текущий объём резервирований.
	reserved int64

	// wake закрывается при каждом освобождении, чтобы разбудить ожидающих.
	wake chan struct{}
}

// NewMemoryLimiter создаёт MemoryLimiter.
// maxMemoryMB - ограничение в мегабайтах (0 = без ограничения).
func NewMemoryLimiter(maxMemoryMB int) *MemoryLimiter {
	if maxMemoryMB <= 0 {
		return &MemoryLimiter{}
	}
	return &MemoryLimiter{
		maxBytes: int64(maxMemoryMB) * 1024 * 1024,
		wake:     make(chan struct{}),
	}
}

// Acquire резервирует память под файл размера fileSize и блокируется,
// пока резерв не станет доступен. Файл больше лимита проходит, только когда
// других резервирований нет. Возвращает функцию освобождения.
func (ml *MemoryLimiter) Acquire(ctx context.Context, fileSize int64) (release func(), err error) {
	if !ml.IsEnabled() {
		return func() {}, nil
	}

	need := fileSize * memoryFactor
	for {
		ml.mu.Lock()
		if ml.reserved == 0 || ml.reserved+need <= ml.maxBytes {
			ml.reserved += need
			ml.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() { ml.release(need) })
			}, nil
		}
		wake := ml.wake
		ml.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

func (ml *MemoryLimiter) release(n int64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.reserved -= n
	close(ml.wake)
	ml.wake = make(chan struct{})
}

// IsEnabled возвращает true, если ограничение включено.
func (ml *MemoryLimiter) IsEnabled() bool {
	return ml != nil && ml.maxBytes > 0
}

// Reserved возвращает текущий объём резервирований в байтах.
func (ml *MemoryLimiter) Reserved() int64 {
	if !ml.IsEnabled() {
		return 0
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.reserved
}

// MaxMemory возвращает ограничение в байтах.
func (ml *MemoryLimiter) MaxMemory() int64 {
	if ml == nil {
		return 0
	}
	return ml.maxBytes
}
