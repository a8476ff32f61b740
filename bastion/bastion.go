// Package bastion is the background job collaborator: a handler registry and
// a buffered dispatch loop. CreateJob is fire and forget; a full queue drops
// the job rather than blocking the caller.
package bastion

import (
	"log/slog"
	"sync"
	"time"
)

type Job struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
	Created time.Time      `json:"created"`
}

type HandlerFunc func(job Job) error

type Bastion struct {
	log      *slog.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	jobs     chan Job
	done     chan struct{}
	wg       sync.WaitGroup
}

func New(log *slog.Logger, queueSize int) *Bastion {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Bastion{
		log:      log,
		handlers: make(map[string]HandlerFunc),
		jobs:     make(chan Job, queueSize),
		done:     make(chan struct{}),
	}
}

// Handle registers the handler for a job type. Last registration wins.
func (b *Bastion) Handle(jobType string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[jobType] = fn
}

// CreateJob enqueues one job. Never blocks: when the queue is full the job is
// dropped and logged.
func (b *Bastion) CreateJob(jobType string, payload map[string]any) {
	job := Job{Type: jobType, Payload: payload, Created: time.Now()}
	select {
	case b.jobs <- job:
	default:
		b.log.Warn("job queue full, dropping job", "type", jobType)
	}
}

// Start runs the dispatch loop until Stop.
func (b *Bastion) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case job := <-b.jobs:
				b.dispatch(job)
			case <-b.done:
				return
			}
		}
	}()
}

// Stop drains nothing; queued jobs not yet dispatched are discarded.
func (b *Bastion) Stop() {
	close(b.done)
	b.wg.Wait()
}

func (b *Bastion) dispatch(job Job) {
	b.mu.RLock()
	fn, ok := b.handlers[job.Type]
	b.mu.RUnlock()
	if !ok {
		b.log.Warn("no handler for job", "type", job.Type)
		return
	}
	if err := fn(job); err != nil {
		b.log.Error("job failed", "type", job.Type, "error", err)
	}
}
