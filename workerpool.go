package g2rpc

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// task is one unit of dispatch work: running a single call's handler to
// completion. Submit blocks the calling stream goroutine until fn
// returns, so the worker pool only changes which goroutine runs fn, not
// the request/response ordering on the stream.
type task struct {
	fn   func()
	done chan struct{}
}

// worker is a reused goroutine that executes tasks handed to it by a
// workerPool, avoiding a goroutine spin-up/tear-down per call when the
// server is under steady load.
type worker struct {
	tasks chan task
	quit  chan struct{}
	pool  *workerPool
	id    int
}

func newWorker(id int, pool *workerPool) *worker {
	return &worker{
		tasks: make(chan task),
		quit:  make(chan struct{}),
		pool:  pool,
		id:    id,
	}
}

func (w *worker) start() {
	go func() {
		for {
			select {
			case t := <-w.tasks:
				t.fn()
				close(t.done)
				if w.id < len(w.pool.workerLoads) {
					atomic.AddInt32(&w.pool.workerLoads[w.id], -1)
				}
			case <-w.quit:
				return
			}
		}
	}()
}

func (w *worker) stop() {
	close(w.quit)
}

// poolMetrics records the load seen by a workerPool between adjustment
// ticks, driving both the emergency quickScaleUp path and the steady
// adjustWorkerCount tick.
type poolMetrics struct {
	queueUsage  float64
	idleWorkers float64
}

// workerPool is a bounded, dynamically-sized set of workers that calls
// are dispatched onto instead of running one goroutine per HTTP/2
// stream. It grows quickly under a burst and shrinks slowly once load
// subsides.
type workerPool struct {
	minWorkers     int
	maxWorkers     int
	currentWorkers int32
	taskQueue      chan task
	workers        []*worker
	workerLoads    []int32
	metrics        poolMetrics
	adjustInterval time.Duration
	adjustThreshold float64

	mu   sync.RWMutex
	quit chan struct{}
}

func newWorkerPool(minWorkers, maxWorkers, queueSize int, adjustInterval time.Duration) *workerPool {
	if adjustInterval <= 0 {
		adjustInterval = 5 * time.Second
	}
	p := &workerPool{
		minWorkers:      minWorkers,
		maxWorkers:      maxWorkers,
		currentWorkers:  int32(minWorkers),
		taskQueue:       make(chan task, queueSize),
		workers:         make([]*worker, 0, maxWorkers),
		workerLoads:     make([]int32, maxWorkers),
		adjustInterval:  adjustInterval,
		adjustThreshold: 0.8,
		quit:            make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		w := newWorker(i, p)
		p.workers = append(p.workers, w)
		w.start()
	}

	go p.adjustWorkers()
	go p.dispatch()

	return p
}

// submit hands fn to the pool and blocks until it has run to
// completion.
func (p *workerPool) submit(fn func()) {
	t := task{fn: fn, done: make(chan struct{})}
	p.taskQueue <- t
	<-t.done
}

// dispatch pulls queued tasks and hands each to the least-loaded
// worker, falling back to handleOverload when that worker cannot take
// the task at once.
func (p *workerPool) dispatch() {
	for t := range p.taskQueue {
		idx := p.selectWorker()
		if idx >= 0 {
			p.mu.RLock()
			if idx < len(p.workers) {
				w := p.workers[idx]
				select {
				case w.tasks <- t:
					atomic.AddInt32(&p.workerLoads[idx], 1)
					p.mu.RUnlock()
					continue
				default:
				}
			}
			p.mu.RUnlock()
		}
		p.handleOverload(t)
	}
}

// selectWorker picks the least-loaded worker from the load counters
// maintained alongside dispatch.
func (p *workerPool) selectWorker() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.workers) == 0 {
		return -1
	}

	minLoad := int32(math.MaxInt32)
	selected := -1
	for i, load := range p.workerLoads {
		if i >= len(p.workers) {
			break
		}
		if load < minLoad {
			minLoad = load
			selected = i
		}
	}
	return selected
}

// handleOverload runs when the selected worker could not take the task
// at once: it may trigger an emergency scale-up, then tries
// every worker once more before falling back to an unpooled goroutine
// so a task is never silently dropped.
func (p *workerPool) handleOverload(t task) {
	if p.metrics.queueUsage > p.adjustThreshold {
		p.quickScaleUp()
	}

	p.mu.RLock()
	for i, w := range p.workers {
		select {
		case w.tasks <- t:
			atomic.AddInt32(&p.workerLoads[i], 1)
			p.mu.RUnlock()
			return
		default:
		}
	}
	p.mu.RUnlock()

	go func() {
		t.fn()
		close(t.done)
	}()
}

// quickScaleUp is the emergency response to sustained queue pressure:
// it grows the pool by 20% immediately, bounded by maxWorkers, rather
// than waiting for the next adjustWorkers tick.
func (p *workerPool) quickScaleUp() {
	current := int(atomic.LoadInt32(&p.currentWorkers))
	if current >= p.maxWorkers {
		return
	}
	target := int(float64(current) * 1.2)
	if target <= current {
		target = current + 1
	}
	if target > p.maxWorkers {
		target = p.maxWorkers
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := current; i < target; i++ {
		w := newWorker(i, p)
		p.workers = append(p.workers, w)
		w.start()
		atomic.AddInt32(&p.currentWorkers, 1)
	}
}

// adjustWorkers periodically refreshes load metrics and reconciles the
// worker count against them.
func (p *workerPool) adjustWorkers() {
	ticker := time.NewTicker(p.adjustInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.updateMetrics()
			p.adjustWorkerCount()
		case <-p.quit:
			return
		}
	}
}

func (p *workerPool) updateMetrics() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	queueLen := len(p.taskQueue)
	queueCap := cap(p.taskQueue)
	if queueCap > 0 {
		p.metrics.queueUsage = float64(queueLen) / float64(queueCap)
	}

	var totalLoad int32
	for i := range p.workerLoads {
		if i < len(p.workers) {
			totalLoad += atomic.LoadInt32(&p.workerLoads[i])
		}
	}
	if len(p.workers) > 0 {
		p.metrics.idleWorkers = 1.0 - float64(totalLoad)/float64(len(p.workers))
	}
}

// adjustWorkerCount is the steady-state counterpart to quickScaleUp: a
// gentler +/-20% nudge toward the load observed at the last tick,
// clamped to [minWorkers, maxWorkers].
func (p *workerPool) adjustWorkerCount() {
	current := int(atomic.LoadInt32(&p.currentWorkers))
	target := current

	if p.metrics.queueUsage > p.adjustThreshold && p.metrics.idleWorkers < 0.2 {
		target = int(float64(current) * 1.2)
	} else if p.metrics.queueUsage < 0.2 && p.metrics.idleWorkers > 0.8 {
		target = int(float64(current) * 0.8)
	}

	if target < p.minWorkers {
		target = p.minWorkers
	} else if target > p.maxWorkers {
		target = p.maxWorkers
	}
	if target == current {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if target > current {
		for i := current; i < target; i++ {
			w := newWorker(i, p)
			p.workers = append(p.workers, w)
			w.start()
			atomic.AddInt32(&p.currentWorkers, 1)
		}
	} else {
		for i := current - 1; i >= target; i-- {
			if i < len(p.workers) {
				p.workers[i].stop()
				p.workers = p.workers[:i]
				atomic.AddInt32(&p.currentWorkers, -1)
			}
		}
	}
}

// stop shuts down every worker and the dispatch/adjust goroutines.
func (p *workerPool) stop() {
	close(p.quit)
	p.mu.Lock()
	for _, w := range p.workers {
		w.stop()
	}
	p.mu.Unlock()
	close(p.taskQueue)
}
