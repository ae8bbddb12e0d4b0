package worker

import (
	"context"
	"log"
	"sync"
)

// workerPool is a fixed set of goroutines fed through an unbuffered channel,
// so a send blocks until some worker is idle.
type workerPool struct {
	size    int
	handler Handler
	tasks   chan Task
	wg      sync.WaitGroup
}

func newWorkerPool(size int, handler Handler) *workerPool {
	return &workerPool{
		size:    size,
		handler: handler,
		tasks:   make(chan Task),
	}
}

func (p *workerPool) start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *workerPool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		debugLog("[worker-%d] start %s/%s", id, task.TenantID, task.DocumentType)
		if err := p.handler(ctx, task); err != nil {
			log.Printf("worker: %s/%s failed: %v", task.TenantID, task.DocumentType, err)
			continue
		}
		debugLog("[worker-%d] done %s/%s", id, task.TenantID, task.DocumentType)
	}
}

func (p *workerPool) stop() {
	close(p.tasks)
	p.wg.Wait()
}
