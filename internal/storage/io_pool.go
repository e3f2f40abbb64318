package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped — задача отправлена в остановленный пул
var ErrPoolStopped = errors.New("пул I/O воркеров остановлен")

// ioPool выполняет операции хранения на выделенных воркерах,
// чтобы блокирующие fsync-вызовы не попадали в потоки симуляции.
type ioPool struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func newIOPool(workers int) *ioPool {
	if workers <= 0 {
		workers = 1
	}

	p := &ioPool{
		tasks: make(chan func(), workers*16),
		quit:  make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *ioPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			task()
		}
	}
}

// submit ставит задачу в очередь. При заполненной очереди блокируется
// (back-pressure), уважая отмену контекста.
func (p *ioPool) submit(ctx context.Context, task func()) error {
	// Отправка в буферизованный канал может пройти и после остановки,
	// поэтому quit проверяется до постановки в очередь
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop останавливает воркеров. Задачи, оставшиеся в очереди, не выполняются.
func (p *ioPool) stop() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
