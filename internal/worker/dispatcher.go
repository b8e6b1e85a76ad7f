package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrDispatcherBusy is returned when the intake queue is full.
var ErrDispatcherBusy = errors.New("dispatcher busy")

// Task is a unit of work owned by one session. Tasks of the same owner run
// in submission order; owners take turns.
type Task interface {
	Owner() string
	Run()
}

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

type ownerQueue struct {
	tasks    []Task
	enqueued bool
}

type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Task // intake for outer tasks
	quit     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	queues    map[string]*ownerQueue // task queue for each owner
	ready     *list.List             // LRU queue storing owners
	positions map[string]*list.Element
}

// NewDispatcher starts a dispatcher with its worker pool.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := newDispatcher(cfg)
	d.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout, d.quit)
	// warm up workers
	d.pool.warmUp(cfg.MinWorkers)
	go d.run()
	return d
}

func newDispatcher(cfg DispatcherConfig) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		queues:    make(map[string]*ownerQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		jobQueue:  make(chan Task, queueSize),
		quit:      make(chan struct{}),
	}
}

// Submit hands a task to the dispatcher without blocking.
func (d *Dispatcher) Submit(task Task) error {
	select {
	case <-d.quit:
		return errors.New("dispatcher stopped")
	default:
	}
	select {
	case d.jobQueue <- task:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Stop ends dispatching. Running tasks finish; queued ones are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.quit) })
}

func (d *Dispatcher) run() {
	for {
		// dispatch one task of the owner in front of the LRU queue
		if task, ok := d.next(); ok {
			if !d.dispatch(task) {
				return
			}
			// if we have a new task, enqueue it and its owner
			select {
			case task := <-d.jobQueue: // non-congestion
				d.enqueue(task)
			default:
			}
			continue
		}
		select {
		case task := <-d.jobQueue: // force congestion
			d.enqueue(task)
		case <-d.quit:
			return
		}
	}
}

// CancelOwner drops every queued task of owner. A running task is not affected.
func (d *Dispatcher) CancelOwner(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, owner)
	if elem, ok := d.positions[owner]; ok {
		d.ready.Remove(elem)
		delete(d.positions, owner)
	}
}

func (d *Dispatcher) enqueue(task Task) {
	owner := task.Owner()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[owner]
	if q == nil {
		q = &ownerQueue{}
		d.queues[owner] = q
	}
	q.tasks = append(q.tasks, task)
	if q.enqueued {
		// owner already queued, keep its turn
		return
	}
	q.enqueued = true
	elem := d.ready.PushBack(owner)
	d.positions[owner] = elem
}

// next pops the front owner's oldest task and moves the owner to the back.
func (d *Dispatcher) next() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return nil, false
	}
	owner := elem.Value.(string)
	q := d.queues[owner]
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	if len(q.tasks) == 0 {
		// last task of this owner, owner leaves the queue
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, owner)
		delete(d.queues, owner)
	} else {
		d.ready.MoveToBack(elem)
	}
	return task, true
}

func (d *Dispatcher) dispatch(task Task) bool {
	workerChan, ok := d.pool.acquire()
	if !ok {
		return false
	}
	debugLog("[dispatcher] assign task for owner %s to worker-%d", task.Owner(), d.pool.workerID(workerChan))
	workerChan <- job{task: task}
	return true
}
