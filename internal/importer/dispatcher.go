package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/artemshloyda/photoingest/internal/storage"
)

// DefaultWorkers - количество одновременно выполняемых задач по умолчанию.
const DefaultWorkers = 2

// task - задача в очереди диспетчера.
type task struct {
	jobID    string
	opts     *JobOptions
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	// done закрывается после перехода задачи в терминальный статус.
	done chan struct{}
}

// QueueStats содержит статистику очереди.
type QueueStats struct {
	Queued  int
	Running int

	// MemoryReserved и MemoryLimit - резерв памяти под файлы в работе и его предел в байтах.
	MemoryReserved int64
	MemoryLimit    int64
}

// Dispatcher выполняет задачи в фоне: очередь плюс N воркеров.
// Каждая задача выполняется последовательно, разные задачи - параллельно.
// У каждой задачи свой context, Cancel отменяет его.
type Dispatcher struct {
	ctx     context.Context
	coord   *Coordinator
	workers int
	logger  *slog.Logger

	queue chan *task
	wg    sync.WaitGroup

	// mu защищает tasks, running и closed.
	mu      sync.Mutex
	tasks   map[string]*task
	running map[string]bool
	closed  bool
}

// NewDispatcher создаёт диспетчер и запускает воркеров.
// Контекст ctx родительский для всех задач: его отмена отменяет их.
func NewDispatcher(ctx context.Context, coord *Coordinator, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		ctx:     ctx,
		coord:   coord,
		workers: workers,
		logger:  logger,
		queue:   make(chan *task, 1024),
		tasks:   make(map[string]*task),
		running: make(map[string]bool),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(workerID int) {
			defer d.wg.Done()
			d.worker(ctx, workerID)
		}(i)
	}

	return d
}

// Submit создаёт задачу и ставит её в очередь. Возвращает запись задачи
// сразу, не дожидаясь выполнения. Некорректные параметры дают задачу в
// статусе FAILED и ошибку ErrInvalidConfig.
func (d *Dispatcher) Submit(ctx context.Context, opts JobOptions, obs Observer) (*storage.ImportJob, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrDispatcherClosed
	}

	job, err := d.coord.CreateJob(ctx, &opts)
	if err != nil {
		return job, err
	}

	taskCtx, cancel := context.WithCancel(d.ctx)
	t := &task{
		jobID:    job.ID,
		opts:     &opts,
		observer: obs,
		ctx:      taskCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		cancel()
		return nil, ErrDispatcherClosed
	}
	select {
	case d.queue <- t:
	default:
		cancel()
		return nil, fmt.Errorf("очередь задач переполнена")
	}
	d.tasks[job.ID] = t

	d.logger.Debug("задача поставлена в очередь", "job", job.ID, "source", opts.SourcePath)
	return job, nil
}

// Cancel отменяет задачу в очереди или в работе. Задача переходит в
// CANCELLED после текущего файла.
func (d *Dispatcher) Cancel(jobID string) error {
	d.mu.Lock()
	t, ok := d.tasks[jobID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	t.cancel()
	return nil
}

// Wait блокируется до завершения задачи и возвращает её итоговую запись.
// Задачи, неизвестные диспетчеру, читаются из хранилища.
func (d *Dispatcher) Wait(ctx context.Context, jobID string) (*storage.ImportJob, error) {
	d.mu.Lock()
	t, ok := d.tasks[jobID]
	d.mu.Unlock()

	if ok {
		select {
		case <-t.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job, err := d.coord.Store().FindJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Stats возвращает количество задач в очереди и в работе.
func (d *Dispatcher) Stats() QueueStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return QueueStats{
		Queued:         len(d.tasks) - len(d.running),
		Running:        len(d.running),
		MemoryReserved: d.coord.limiter.Reserved(),
		MemoryLimit:    d.coord.limiter.MaxMemory(),
	}
}

// Close перестаёт принимать задачи, отменяет оставшиеся и ждёт воркеров.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, t := range d.tasks {
		t.cancel()
	}
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// worker забирает задачи из очереди до её закрытия.
func (d *Dispatcher) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case t, ok := <-d.queue:
			if !ok {
				return
			}
			d.execute(t, id)
		}
	}
}

// drain завершает оставшиеся в очереди задачи как отменённые до закрытия очереди.
func (d *Dispatcher) drain() {
	for t := range d.queue {
		t.cancel()
		d.execute(t, -1)
	}
}

// execute выполняет задачу. Паника вне обработки файлов переводит задачу
// в FAILED с сохранёнными счётчиками.
func (d *Dispatcher) execute(t *task, workerID int) {
	d.mu.Lock()
	d.running[t.jobID] = true
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("паника при выполнении задачи", "job", t.jobID, "panic", r)
			if _, err := d.coord.abort(t.ctx, t.jobID, fmt.Sprintf("внутренняя ошибка: %v", r)); err != nil {
				d.logger.Error("не удалось завершить задачу после паники", "job", t.jobID, "error", err)
			}
		}

		t.cancel()
		d.mu.Lock()
		delete(d.running, t.jobID)
		delete(d.tasks, t.jobID)
		d.mu.Unlock()
		close(t.done)

		st := d.Stats()
		d.logger.Debug("воркер освободился",
			"worker", workerID,
			"job", t.jobID,
			"queued", st.Queued,
			"running", st.Running,
			"memory_reserved", st.MemoryReserved)
	}()

	d.logger.Debug("воркер взял задачу", "worker", workerID, "job", t.jobID)
	if _, err := d.coord.Run(t.ctx, t.jobID, t.opts, t.observer); err != nil {
		d.logger.Error("задача завершилась с ошибкой", "job", t.jobID, "error", err)
	}
}
