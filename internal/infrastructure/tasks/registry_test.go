package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

func testRegistry(t *testing.T, workers, historyLimit int) *Registry {
	t.Helper()
	r := NewRegistry(workers, historyLimit, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	t.Cleanup(cancel)
	return r
}

func waitForState(t *testing.T, r *Registry, id string, want domain.TaskState) domain.TaskStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, ok := r.Status(id); ok && st.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, _ := r.Status(id)
	t.Fatalf("task %s state = %s, want %s", id, st.State, want)
	return domain.TaskStatus{}
}

func TestEnqueueRunsTask(t *testing.T) {
	r := testRegistry(t, 1, 0)

	done := make(chan struct{})
	id := r.Enqueue("demo", func(ctx context.Context, progress func(int)) error {
		progress(40)
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("task body never ran")
	}

	st := waitForState(t, r, id, domain.TaskCompleted)
	if st.Progress != 100 {
		t.Fatalf("progress = %d, want 100 on completion", st.Progress)
	}
	if st.StartTime == nil || st.EndTime == nil {
		t.Fatalf("expected start and end times, got %v / %v", st.StartTime, st.EndTime)
	}
	if st.Error != "" {
		t.Fatalf("error = %q, want empty", st.Error)
	}
}

func TestTaskErrorIsCaptured(t *testing.T) {
	r := testRegistry(t, 1, 0)

	id := r.Enqueue("boom", func(ctx context.Context, progress func(int)) error {
		return errors.New("file unreadable")
	})

	st := waitForState(t, r, id, domain.TaskFailed)
	if st.Error != "file unreadable" {
		t.Fatalf("error = %q, want %q", st.Error, "file unreadable")
	}
}

func TestTaskPanicFailsTask(t *testing.T) {
	r := testRegistry(t, 1, 0)

	id := r.Enqueue("panicky", func(ctx context.Context, progress func(int)) error {
		panic("nil map write")
	})
	st := waitForState(t, r, id, domain.TaskFailed)
	if st.Error != "task panic: nil map write" {
		t.Fatalf("error = %q, want panic message", st.Error)
	}

	// The worker survives the panic and keeps draining the queue.
	next := r.Enqueue("after", func(ctx context.Context, progress func(int)) error {
		return nil
	})
	waitForState(t, r, next, domain.TaskCompleted)
}

func TestUpdateProgressClamps(t *testing.T) {
	r := NewRegistry(1, 0, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	id := r.Enqueue("idle", func(ctx context.Context, progress func(int)) error { return nil })

	r.UpdateProgress(id, 150)
	if st, _ := r.Status(id); st.Progress != 100 {
		t.Fatalf("progress = %d, want clamped to 100", st.Progress)
	}
	r.UpdateProgress(id, -5)
	if st, _ := r.Status(id); st.Progress != 0 {
		t.Fatalf("progress = %d, want clamped to 0", st.Progress)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	r := NewRegistry(1, 0, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if _, ok := r.Status("missing"); ok {
		t.Fatalf("expected unknown task to report !ok")
	}
}

func TestListOrdersByStartDescending(t *testing.T) {
	r := testRegistry(t, 1, 0)

	release := make(chan struct{})
	first := r.Enqueue("first", func(ctx context.Context, progress func(int)) error {
		<-release
		return nil
	})
	waitForState(t, r, first, domain.TaskRunning)

	second := r.Enqueue("second", func(ctx context.Context, progress func(int)) error {
		return nil
	})
	close(release)
	waitForState(t, r, first, domain.TaskCompleted)
	waitForState(t, r, second, domain.TaskCompleted)

	all := r.List("", 0)
	if len(all) != 2 {
		t.Fatalf("listed %d tasks, want 2", len(all))
	}
	if all[0].ID != second || all[1].ID != first {
		t.Fatalf("order = [%s %s], want most recently started first", all[0].Description, all[1].Description)
	}

	if got := r.List(domain.TaskCompleted, 1); len(got) != 1 {
		t.Fatalf("limited list = %d entries, want 1", len(got))
	}
	if got := r.List(domain.TaskFailed, 0); len(got) != 0 {
		t.Fatalf("failed list = %d entries, want 0", len(got))
	}
}

func TestListActiveSkipsFinishedTasks(t *testing.T) {
	r := testRegistry(t, 1, 0)

	release := make(chan struct{})
	running := r.Enqueue("running", func(ctx context.Context, progress func(int)) error {
		<-release
		return nil
	})
	waitForState(t, r, running, domain.TaskRunning)
	pending := r.Enqueue("pending", func(ctx context.Context, progress func(int)) error {
		return nil
	})

	active := r.ListActive()
	if len(active) != 2 {
		t.Fatalf("active = %d tasks, want 2", len(active))
	}

	close(release)
	waitForState(t, r, running, domain.TaskCompleted)
	waitForState(t, r, pending, domain.TaskCompleted)

	if active := r.ListActive(); len(active) != 0 {
		t.Fatalf("active = %d tasks after completion, want 0", len(active))
	}
}

func TestHistoryPruningDropsOldestFinished(t *testing.T) {
	r := testRegistry(t, 1, 2)

	var ids []string
	for i := 0; i < 3; i++ {
		id := r.Enqueue("quick", func(ctx context.Context, progress func(int)) error {
			return nil
		})
		ids = append(ids, id)
		waitForState(t, r, id, domain.TaskCompleted)
	}

	// Enqueueing one more pushes the registry over its limit of 2.
	release := make(chan struct{})
	extra := r.Enqueue("held", func(ctx context.Context, progress func(int)) error {
		<-release
		return nil
	})
	defer close(release)

	if _, ok := r.Status(ids[0]); ok {
		t.Fatalf("oldest finished task should have been pruned")
	}
	if _, ok := r.Status(extra); !ok {
		t.Fatalf("unfinished task must never be pruned")
	}
}
