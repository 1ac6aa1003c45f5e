// Package jobs runs admin index operations in the background and keeps their
// outcome around for polling.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

var (
	// ErrNotFound is returned for unknown or evicted job ids
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("job registry stopped")
)

// Status of a job
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
)

// Func is the work of a job. Its result is exposed as Job.Result.
type Func func(ctx context.Context) (interface{}, error)

// Job is a snapshot of a background operation
type Job struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Entity     string      `json:"entity,omitempty"`
	Status     Status      `json:"status"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Done reports whether the job has finished
func (j Job) Done() bool {
	return j.Status == Succeeded || j.Status == Failed
}

type entry struct {
	job  Job
	fn   Func
	done chan struct{}
}

// DefaultHistory is the number of jobs kept for polling
const DefaultHistory = 100

// Registry runs jobs one at a time, in submission order, and remembers the
// most recent ones
type Registry struct {
	ctx     context.Context
	history int

	mu     sync.Mutex
	jobs   map[string]*entry
	order  []string
	queue  chan *entry
	closed bool // set by drain; no job is queued afterwards
	idle   chan struct{}
}

// NewRegistry starts the worker. Jobs run with ctx; once it is canceled the
// registry refuses new jobs and fails the queued ones.
func NewRegistry(ctx context.Context, history int) *Registry {
	if history <= 0 {
		history = DefaultHistory
	}
	r := &Registry{
		ctx:     ctx,
		history: history,
		jobs:    make(map[string]*entry),
		queue:   make(chan *entry, history),
		idle:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Submit queues fn and returns the pending job
func (r *Registry) Submit(kind, entity string, fn Func) (Job, error) {
	if err := r.ctx.Err(); err != nil {
		return Job{}, fmt.Errorf("%w: %w", ErrStopped, err)
	}

	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Kind:      kind,
			Entity:    entity,
			Status:    Pending,
			CreatedAt: time.Now().UTC(),
		},
		fn:   fn,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Job{}, fmt.Errorf("%w: %w", ErrStopped, r.ctx.Err())
	}
	select {
	case r.queue <- e:
	default:
		return Job{}, ErrQueueFull
	}
	r.jobs[e.job.ID] = e
	r.order = append(r.order, e.job.ID)
	r.evict()
	return e.job, nil
}

// evict drops the oldest finished jobs beyond the history size. mu must be held.
func (r *Registry) evict() {
	for len(r.order) > r.history {
		evicted := false
		for i, id := range r.order {
			if r.jobs[id].job.Done() {
				delete(r.jobs, id)
				r.order = append(r.order[:i], r.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// Get returns a snapshot of the job with the given id
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return e.job, nil
}

// List returns the remembered jobs, newest first
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]Job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		jobs = append(jobs, r.jobs[r.order[i]].job)
	}
	return jobs
}

// Wait blocks until the job finishes or ctx is done
func (r *Registry) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return Job{}, ErrNotFound
	}

	select {
	case <-e.done:
		return r.Get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Done is closed once the registry stopped and every queued job finished
func (r *Registry) Done() <-chan struct{} {
	return r.idle
}

func (r *Registry) run() {
	defer close(r.idle)

	for {
		select {
		case <-r.ctx.Done():
			r.drain()
			return
		case e := <-r.queue:
			r.execute(e)
		}
	}
}

// drain closes the registry and fails every job still queued
func (r *Registry) drain() {
	var pending []*entry
	r.mu.Lock()
	r.closed = true
	for len(r.queue) > 0 {
		pending = append(pending, <-r.queue)
	}
	r.mu.Unlock()

	for _, e := range pending {
		r.finish(e, nil, fmt.Errorf("%w: %w", ErrStopped, r.ctx.Err()))
	}
}

func (r *Registry) execute(e *entry) {
	r.mu.Lock()
	e.job.Status = Running
	id, kind, entity := e.job.ID, e.job.Kind, e.job.Entity
	r.mu.Unlock()

	ctx := log.With(r.ctx, log.KV{K: "job_id", V: id}, log.KV{K: "job", V: kind})
	if entity != "" {
		ctx = log.With(ctx, log.KV{K: "entity", V: entity})
	}
	log.Info(ctx, log.KV{K: "msg", V: "job started"})

	result, err := r.call(ctx, e.fn)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "job failed"})
	} else {
		log.Info(ctx, log.KV{K: "msg", V: "job succeeded"})
	}
	r.finish(e, result, err)
}

func (r *Registry) call(ctx context.Context, fn Func) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Registry) finish(e *entry, result interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	e.job.FinishedAt = &now
	if err != nil {
		e.job.Status = Failed
		e.job.Error = err.Error()
	} else {
		e.job.Status = Succeeded
		e.job.Result = result
	}
	close(e.done)
	r.evict()
}
