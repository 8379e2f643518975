// Package progress показывает прогресс задачи импорта в терминале.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Counts - счётчики, накопленные прогресс-баром.
type Counts struct {
	Created int64
	Skipped int64
	Deduped int64
	Failed  int64
}

// Done возвращает количество обработанных файлов.
func (c Counts) Done() int64 {
	return c.Created + c.Skipped + c.Deduped + c.Failed
}

// Bar - прогресс-бар задачи импорта с ETA. Безопасен для использования
// из горутины задачи и из CLI одновременно.
type Bar struct {
	bar *progressbar.ProgressBar

	// mu защищает bar и counts.
	mu sync.Mutex

	disabled    bool
	description string
	total       int64
	counts      Counts
	startTime   time.Time
	writer      io.Writer
}

// Options содержит настройки прогресс-бара.
type Options struct {
	// Description - подпись слева от полосы.
	Description string

	// Disabled - не рисовать полосу (только итоговые сообщения).
	Disabled bool

	// Writer - куда выводить (по умолчанию os.Stderr).
	Writer io.Writer
}

// New создаёт прогресс-бар. Полоса появляется после SetTotal, когда
// становится известно количество файлов.
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	description := opts.Description
	if description == "" {
		description = "Импорт"
	}

	return &Bar{
		disabled:    opts.Disabled,
		description: description,
		startTime:   time.Now(),
		writer:      writer,
	}
}

func (b *Bar) newProgressBar(total int64) *progressbar.ProgressBar {
	writer := b.writer
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("файл"),
		progressbar.OptionSetDescription(b.description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]▓[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(writer)
		}),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// SetTotal задаёт количество файлов и создаёт полосу.
func (b *Bar) SetTotal(total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = total
	if b.disabled || total <= 0 {
		return
	}
	if b.bar == nil {
		b.bar = b.newProgressBar(total)
		return
	}
	b.bar.ChangeMax64(total)
}

func (b *Bar) step(counter *int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	*counter++
	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// Increment отмечает созданный файл.
func (b *Bar) Increment() { b.step(&b.counts.Created) }

// IncrementSkipped отмечает файл с уже существующим ключом.
func (b *Bar) IncrementSkipped() { b.step(&b.counts.Skipped) }

// IncrementDeduped отмечает дубликат по контрольной сумме.
func (b *Bar) IncrementDeduped() { b.step(&b.counts.Deduped) }

// IncrementFailed отмечает файл с ошибкой.
func (b *Bar) IncrementFailed() { b.step(&b.counts.Failed) }

// Finish завершает полосу.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Counts возвращает текущие счётчики.
func (b *Bar) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Total возвращает количество файлов, заданное SetTotal.
func (b *Bar) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Duration возвращает время с начала задачи.
func (b *Bar) Duration() time.Duration {
	return time.Since(b.startTime)
}

// IsDisabled возвращает true, если полоса отключена.
func (b *Bar) IsDisabled() bool {
	return b.disabled
}

// WriteMessage выводит сообщение, временно скрывая полосу.
func (b *Bar) WriteMessage(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Clear()
	}

	fmt.Fprintf(b.writer, format, args...)

	if b.bar != nil {
		_ = b.bar.RenderBlank()
	}
}

/*
Возможные расширения:
- Отдельные полосы для нескольких задач watch-режима
- Скорость в байтах в секунду
*/
