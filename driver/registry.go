package driver

import (
	"context"
	"sync"
)

// task is the stop-signal handle for one running log processor. The
// processor holds the receiving side (its context); the registry holds
// this sending side.
type task struct {
	fifoPath string
	cancel   context.CancelFunc
	done     chan struct{} // closed when the processor goroutine exits
}

// stop cancels the task's context and reports whether the processor was
// still running when the signal was sent. False means the processor had
// already finished on its own.
func (t *task) stop() bool {
	select {
	case <-t.done:
		t.cancel()
		return false
	default:
		t.cancel()
		return true
	}
}

// taskRegistry maps FIFO paths to the stop handles of their processors.
// A path holds at most one handle at a time.
type taskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*task
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]*task)}
}

// register stores t under its FIFO path and returns the handle it
// displaced, if any. Stopping the displaced task is the caller's job.
func (r *taskRegistry) register(t *task) *task {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.tasks[t.fifoPath]
	r.tasks[t.fifoPath] = t
	return prev
}

// take removes and returns the handle registered under path, or nil when
// there is none.
func (r *taskRegistry) take(path string) *task {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.tasks[path]
	delete(r.tasks, path)
	return t
}

// size reports the number of registered handles.
func (r *taskRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.tasks)
}
