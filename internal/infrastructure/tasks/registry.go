// Package tasks implements the single-process background task system: a FIFO
// in-memory queue drained by a fixed pool of workers, with per-task status,
// progress and result capture. State is lost on restart by design.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
	"github.com/mvribeiro/protesto-backoffice/internal/observability/metrics"
)

type record struct {
	status     domain.TaskStatus
	fn         ports.TaskFunc
	enqueuedAt time.Time
}

type Registry struct {
	log     *slog.Logger
	metrics *metrics.TaskMetrics

	workers      int
	historyLimit int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	tasks   map[string]*record
	stopped bool
}

func NewRegistry(workers, historyLimit int, log *slog.Logger, m *metrics.TaskMetrics) *Registry {
	if workers < 1 {
		workers = 1
	}
	r := &Registry{
		log:          log,
		metrics:      m,
		workers:      workers,
		historyLimit: historyLimit,
		tasks:        make(map[string]*record),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start launches the worker pool. Workers exit when ctx is cancelled or Stop
// is called; in-flight tasks are not awaited.
func (r *Registry) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		go r.workerLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		r.Stop()
	}()
}

// Stop signals workers to quit after their current task. Best-effort: it does
// not wait for in-flight tasks.
func (r *Registry) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Enqueue registers a task and returns its id immediately.
func (r *Registry) Enqueue(description string, fn ports.TaskFunc) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.tasks[id] = &record{
		status: domain.TaskStatus{
			ID:          id,
			Description: description,
			State:       domain.TaskPending,
		},
		fn:         fn,
		enqueuedAt: time.Now().UTC(),
	}
	r.queue = append(r.queue, id)
	r.pruneLocked()
	r.mu.Unlock()

	r.cond.Signal()
	return id
}

func (r *Registry) Status(id string) (domain.TaskStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return domain.TaskStatus{}, false
	}
	return rec.status, true
}

// List returns task statuses ordered by start time descending, tasks that
// never started last. A zero limit means no limit.
func (r *Registry) List(state domain.TaskState, limit int) []domain.TaskStatus {
	r.mu.Lock()
	out := make([]domain.TaskStatus, 0, len(r.tasks))
	for _, rec := range r.tasks {
		if state != "" && rec.status.State != state {
			continue
		}
		out = append(out, rec.status)
	}
	r.mu.Unlock()

	sortByStartDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListActive returns pending and running tasks.
func (r *Registry) ListActive() []domain.TaskStatus {
	r.mu.Lock()
	out := make([]domain.TaskStatus, 0)
	for _, rec := range r.tasks {
		if rec.status.State == domain.TaskPending || rec.status.State == domain.TaskRunning {
			out = append(out, rec.status)
		}
	}
	r.mu.Unlock()

	sortByStartDesc(out)
	return out
}

// UpdateProgress is callable from inside a task body.
func (r *Registry) UpdateProgress(id string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.tasks[id]; ok {
		rec.status.Progress = percent
	}
}

func (r *Registry) workerLoop(ctx context.Context) {
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.stopped {
			r.cond.Wait()
		}
		if r.stopped {
			r.mu.Unlock()
			return
		}
		id := r.queue[0]
		r.queue = r.queue[1:]
		rec := r.tasks[id]

		now := time.Now().UTC()
		rec.status.State = domain.TaskRunning
		rec.status.StartTime = &now
		lag := now.Sub(rec.enqueuedAt)
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.TaskStarted(lag)
		}
		r.runTask(ctx, id, rec)
	}
}

func (r *Registry) runTask(ctx context.Context, id string, rec *record) {
	start := time.Now()
	err := r.invoke(ctx, id, rec.fn)

	end := time.Now().UTC()
	r.mu.Lock()
	rec.status.EndTime = &end
	if err != nil {
		rec.status.State = domain.TaskFailed
		rec.status.Error = err.Error()
	} else {
		rec.status.State = domain.TaskCompleted
		rec.status.Progress = 100
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TaskFinished(time.Since(start), err)
	}
	if err != nil {
		r.log.Error("task_failed", "task_id", id, "description", rec.status.Description, "error", err)
		return
	}
	r.log.Info("task_completed", "task_id", id, "description", rec.status.Description)
}

// invoke shields the worker loop from panics in task bodies: a panic fails
// the task and the worker keeps draining the queue.
func (r *Registry) invoke(ctx context.Context, id string, fn ports.TaskFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panic: %v", p)
		}
	}()
	return fn(ctx, func(percent int) {
		r.UpdateProgress(id, percent)
	})
}

// pruneLocked drops the oldest finished tasks once the registry exceeds its
// history limit. Pending and running tasks are never pruned.
func (r *Registry) pruneLocked() {
	if r.historyLimit <= 0 || len(r.tasks) <= r.historyLimit {
		return
	}

	finished := make([]*record, 0)
	for _, rec := range r.tasks {
		if rec.status.State == domain.TaskCompleted || rec.status.State == domain.TaskFailed {
			finished = append(finished, rec)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return endOrZero(finished[i]).Before(endOrZero(finished[j]))
	})

	excess := len(r.tasks) - r.historyLimit
	for i := 0; i < len(finished) && excess > 0; i++ {
		delete(r.tasks, finished[i].status.ID)
		excess--
	}
}

func endOrZero(rec *record) time.Time {
	if rec.status.EndTime != nil {
		return *rec.status.EndTime
	}
	return time.Time{}
}

func sortByStartDesc(tasks []domain.TaskStatus) {
	sort.SliceStable(tasks, func(i, j int) bool {
		si, sj := tasks[i].StartTime, tasks[j].StartTime
		switch {
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return si.After(*sj)
		}
	})
}
