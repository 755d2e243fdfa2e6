// Package workerpool implements a bounded, elastic pool of CPU workers that
// run image-transform tasks off the request thread. It is the concurrency
// gate for the (comparatively expensive) codec libraries on the
// optimize/batch-optimize path: the orchestrator submits tasks and awaits
// futures. The blur-placeholder handler calls the transformer directly and
// does not go through the pool.
package workerpool

import (
	"errors"
	"sync"
	"time"
)

// ErrPoolShutdown is returned by Submit/SubmitMany once the pool has been
// shut down.
var ErrPoolShutdown = errors.New("workerpool: pool is shut down")

// ErrQueueFull is returned by Submit when the queue depth has reached the
// configured ceiling.
var ErrQueueFull = errors.New("workerpool: queue is full")

// Task is a unit of work: bytes in, options in, result out. The transformer
// package's Optimize/Convert/etc. are the intended callees.
type Task struct {
	Bytes        []byte
	Options      interface{}
	OriginalName string
	Run          func(bytes []byte, options interface{}) ([]byte, error)
}

// Result is the outcome of running a Task.
type Result struct {
	Bytes         []byte
	OriginalSize  int
	OptimizedSize int
	OriginalName  string
	Success       bool
	Err           error
}

// Future resolves to a Result once its task completes.
type Future struct {
	done chan Result
}

// Get blocks until the task completes and returns its Result.
func (f *Future) Get() Result {
	return <-f.done
}

// Stats is a snapshot of the pool's current load.
type Stats struct {
	QueueDepth   int
	ActiveThread int
	MinThreads   int
	MaxThreads   int
}

// Config configures a Pool.
type Config struct {
	MinThreads    int
	MaxThreads    int
	IdleTimeoutMs int
	QueueCeiling  int
}

// DefaultConfig mirrors the documented defaults: 4 worker threads, a 5s
// idle timeout and a 10,000-task queue ceiling as backpressure.
func DefaultConfig() Config {
	return Config{
		MinThreads:    1,
		MaxThreads:    4,
		IdleTimeoutMs: 5000,
		QueueCeiling:  10000,
	}
}

type job struct {
	task Task
	done chan Result
}

// Pool is a FIFO worker pool. Any idle worker may pull from the shared
// queue; workers above MinThreads exit after IdleTimeoutMs of inactivity
// and are respawned on demand up to MaxThreads.
type Pool struct {
	cfg Config

	mu       sync.Mutex
	queue    chan job
	active   int
	shutdown bool
	wg       sync.WaitGroup
}

// New creates a Pool and starts MinThreads workers.
func New(cfg Config) *Pool {
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = 4
	}
	if cfg.MinThreads <= 0 {
		cfg.MinThreads = 1
	}
	if cfg.MinThreads > cfg.MaxThreads {
		cfg.MinThreads = cfg.MaxThreads
	}
	if cfg.IdleTimeoutMs <= 0 {
		cfg.IdleTimeoutMs = 5000
	}
	if cfg.QueueCeiling <= 0 {
		cfg.QueueCeiling = 10000
	}

	p := &Pool{cfg: cfg, queue: make(chan job, cfg.QueueCeiling)}
	for i := 0; i < cfg.MinThreads; i++ {
		p.spawnWorker(true)
	}
	return p
}

// Submit enqueues task and returns a Future for its result. Returns
// ErrPoolShutdown after Shutdown, or ErrQueueFull once the queue depth
// reaches the configured ceiling.
func (p *Pool) Submit(task Task) (*Future, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrPoolShutdown
	}
	if len(p.queue) >= p.cfg.QueueCeiling {
		p.mu.Unlock()
		return nil, ErrQueueFull
	}
	if p.active < p.cfg.MaxThreads {
		p.spawnWorker(false)
	}
	p.mu.Unlock()

	done := make(chan Result, 1)
	p.queue <- job{task: task, done: done}
	return &Future{done: done}, nil
}

// SubmitMany submits every task and returns a Future whose Get blocks until
// all of them have completed (success or failure), returning results in
// the same order as tasks.
func (p *Pool) SubmitMany(tasks []Task) (*ManyFuture, error) {
	futures := make([]*Future, 0, len(tasks))
	for _, t := range tasks {
		f, err := p.Submit(t)
		if err != nil {
			return nil, err
		}
		futures = append(futures, f)
	}
	return &ManyFuture{futures: futures}, nil
}

// ManyFuture resolves to the positional results of a SubmitMany call.
type ManyFuture struct {
	futures []*Future
}

// Get blocks until every task completes and returns results positionally.
func (m *ManyFuture) Get() []Result {
	results := make([]Result, len(m.futures))
	for i, f := range m.futures {
		results[i] = f.Get()
	}
	return results
}

// Stats reports the pool's current queue depth and active thread count.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueDepth:   len(p.queue),
		ActiveThread: p.active,
		MinThreads:   p.cfg.MinThreads,
		MaxThreads:   p.cfg.MaxThreads,
	}
}

// Shutdown stops accepting new submissions and drains in-flight work.
// Queued-but-not-started tasks are cancelled: their futures resolve with
// Success=false and ErrPoolShutdown. Workers exit once the queue closes and
// they finish any task already pulled.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
cancelQueued:
	for {
		select {
		case j := <-p.queue:
			j.done <- Result{OriginalSize: len(j.task.Bytes), OriginalName: j.task.OriginalName, Success: false, Err: ErrPoolShutdown}
		default:
			break cancelQueued
		}
	}
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) spawnWorker(core bool) {
	p.active++
	p.wg.Add(1)
	go p.runWorker(core)
}

func (p *Pool) runWorker(core bool) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	idle := time.Duration(p.cfg.IdleTimeoutMs) * time.Millisecond
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			j.done <- runTask(j.task)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		case <-timer.C:
			if core {
				timer.Reset(idle)
				continue
			}
			return
		}
	}
}

func runTask(t Task) Result {
	if t.Run == nil {
		return Result{OriginalSize: len(t.Bytes), OriginalName: t.OriginalName, Success: false, Err: errors.New("workerpool: task has no Run function")}
	}
	out, err := t.Run(t.Bytes, t.Options)
	if err != nil {
		return Result{OriginalSize: len(t.Bytes), OriginalName: t.OriginalName, Success: false, Err: err}
	}
	return Result{
		Bytes:         out,
		OriginalSize:  len(t.Bytes),
		OptimizedSize: len(out),
		OriginalName:  t.OriginalName,
		Success:       true,
	}
}
