package worker

import (
	"container/list"
	"context"
	"errors"
	"log"
	"sync"
)

// ErrDispatcherBusy is returned by Submit when the intake queue is full.
var ErrDispatcherBusy = errors.New("dispatcher queue is full")

// Task asks for one background synthesis.
type Task struct {
	TenantID     string
	DocumentType string
	Force        bool
}

// Handler runs a task on a worker goroutine.
type Handler func(ctx context.Context, task Task) error

type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

type tenantQueue struct {
	tasks    []Task
	enqueued bool
}

// Dispatcher serves tenants round-robin so one tenant's refresh cannot starve the others.
type Dispatcher struct {
	pool   *workerPool
	intake chan Task

	mu        sync.Mutex
	queues    map[string]*tenantQueue // pending tasks per tenant
	ready     *list.List              // LRU queue of tenant ids with pending work
	positions map[string]*list.Element
	pending   map[Task]struct{}
}

func NewDispatcher(handler Handler, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Dispatcher{
		pool:      newWorkerPool(cfg.Workers, handler),
		intake:    make(chan Task, cfg.QueueSize),
		queues:    make(map[string]*tenantQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pending:   make(map[Task]struct{}),
	}
}

// Submit queues task without blocking. A task identical to one still waiting is
// accepted and dropped.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[task]; ok {
		debugLog("[dispatcher] %s/%s already pending", task.TenantID, task.DocumentType)
		return nil
	}
	select {
	case d.intake <- task:
		d.pending[task] = struct{}{}
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// CancelTenant drops every task of the tenant that has not reached a worker yet.
func (d *Dispatcher) CancelTenant(tenantID string) int {
	d.drainIntake()

	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queues[tenantID]
	if q == nil {
		return 0
	}
	for _, task := range q.tasks {
		delete(d.pending, task)
	}
	dropped := len(q.tasks)
	delete(d.queues, tenantID)
	if elem, ok := d.positions[tenantID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, tenantID)
	}
	return dropped
}

// Run dispatches until ctx is done, then waits for running tasks to return.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.pool.start(ctx)
	defer d.pool.stop()

	for {
		d.drainIntake()
		task, ok := d.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case task := <-d.intake:
				d.enqueue(task)
			}
			continue
		}
		debugLog("[dispatcher] assign %s/%s", task.TenantID, task.DocumentType)
		select {
		case <-ctx.Done():
			log.Printf("worker: dispatcher stopped with %s/%s still queued", task.TenantID, task.DocumentType)
			return nil
		case d.pool.tasks <- task:
		}
	}
}

// drainIntake moves everything waiting in the intake channel into the tenant queues.
func (d *Dispatcher) drainIntake() {
	for {
		select {
		case task := <-d.intake:
			d.enqueue(task)
		default:
			return
		}
	}
}

func (d *Dispatcher) enqueue(task Task) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[task]; !ok {
		// cancelled while in the intake channel
		return
	}
	q := d.queues[task.TenantID]
	if q == nil {
		q = &tenantQueue{}
		d.queues[task.TenantID] = q
	}
	q.tasks = append(q.tasks, task)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[task.TenantID] = d.ready.PushBack(task.TenantID)
}

// next pops the head task of the least recently served tenant.
func (d *Dispatcher) next() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Task{}, false
	}
	tenantID := elem.Value.(string)
	q := d.queues[tenantID]
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	if len(q.tasks) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, tenantID)
		delete(d.queues, tenantID)
	} else {
		d.ready.MoveToBack(elem)
	}
	delete(d.pending, task)
	return task, true
}
