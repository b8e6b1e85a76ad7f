package worker

import (
	"sync"
	"time"
)

type job struct {
	task Task
	stop bool
}

type workerMeta struct {
	id        int
	ch        chan job
	lastUsed  time.Time
	enqueued  bool // is in the idle queue
	discarded bool // is targeted as delete
}

type jobChannelPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	metadata map[chan job]*workerMeta
	min      int
	max      int
	running  int
	nextID   int
	closed   bool
	expiry   time.Duration
	quit     <-chan struct{}
}

const defaultWorkerIdle = 30 * time.Second

func newJobChannelPool(minWorkers, maxWorkers int, idle time.Duration, quit <-chan struct{}) *jobChannelPool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	if minWorkers < 0 {
		minWorkers = 0
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	p := &jobChannelPool{
		metadata: make(map[chan job]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
		quit:     quit,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.purgeStaleWorkers()
	return p
}

// warmUp starts n idle workers.
func (p *jobChannelPool) warmUp(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n && p.running < p.max; i++ {
		meta := p.startWorkerLocked()
		meta.enqueued = true
		meta.lastUsed = time.Now()
		p.idle = append(p.idle, meta)
	}
}

// startWorkerLocked registers and starts a worker; the caller owns its first job.
func (p *jobChannelPool) startWorkerLocked() *workerMeta {
	p.nextID++
	meta := &workerMeta{id: p.nextID, ch: make(chan job)}
	p.metadata[meta.ch] = meta
	p.running++
	newWorker(p, meta.ch).start()
	return meta
}

// acquire gets an idle worker, or spawns a new one while under max.
// It returns false once the pool is closed.
func (p *jobChannelPool) acquire() (chan job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return nil, false
		}
		if meta := p.popIdleLocked(); meta != nil {
			return meta.ch, true
		}
		if p.running < p.max {
			return p.startWorkerLocked().ch, true
		}
		p.cond.Wait()
	}
}

// release puts a worker back into the idle queue. It returns false when the
// worker should exit instead.
func (p *jobChannelPool) release(ch chan job) bool {
	p.mu.Lock()
	meta, ok := p.metadata[ch]
	if !ok || meta.discarded {
		p.mu.Unlock()
		return false
	}
	if p.closed {
		delete(p.metadata, ch)
		meta.discarded = true
		p.running--
		p.mu.Unlock()
		p.cond.Broadcast()
		return false
	}
	if meta.enqueued {
		p.mu.Unlock()
		return true
	}
	meta.enqueued = true
	meta.lastUsed = time.Now()
	p.idle = append(p.idle, meta)
	p.mu.Unlock()
	p.cond.Signal()
	return true
}

// retire deletes a worker.
func (p *jobChannelPool) retire(ch chan job) {
	p.mu.Lock()
	if meta, ok := p.metadata[ch]; ok {
		delete(p.metadata, ch)
		meta.discarded = true
		if p.running > 0 {
			p.running--
		}
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *jobChannelPool) workerID(ch chan job) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if meta, ok := p.metadata[ch]; ok {
		return meta.id
	}
	return 0
}

// popIdleLocked checks if the pool has an idle worker and returns it.
func (p *jobChannelPool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

func (p *jobChannelPool) stats() (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, len(p.idle)
}

// purgeStaleWorkers calls shutdownExpired when expiry time comes.
func (p *jobChannelPool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.shutdownExpired()
		case <-p.quit:
			p.shutdown()
			return
		}
	}
}

// shutdownExpired retires idle workers past expiry, keeping at least min.
func (p *jobChannelPool) shutdownExpired() {
	var stale []*workerMeta
	now := time.Now()

	p.mu.Lock()
	if len(p.idle) == 0 || p.running <= p.min {
		p.mu.Unlock()
		return
	}
	remaining := p.idle[:0] // keep the original array
	for _, meta := range p.idle {
		if meta.discarded {
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running-len(stale) > p.min {
			meta.discarded = true
			meta.enqueued = false
			stale = append(stale, meta)
			continue
		}
		remaining = append(remaining, meta)
	}
	p.idle = remaining
	p.mu.Unlock()

	for _, meta := range stale {
		meta.ch <- job{stop: true}
	}
}

// shutdown stops idle workers and wakes any blocked acquire.
func (p *jobChannelPool) shutdown() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	for _, meta := range idle {
		meta.discarded = true
	}
	p.mu.Unlock()
	p.cond.Broadcast()
	for _, meta := range idle {
		meta.ch <- job{stop: true}
	}
}
