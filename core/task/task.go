// Package task implements the per-connection cooperative execution
// substrate: a Task is a goroutine parked on a pair of unbuffered channels,
// giving the caller the illusion of a stack-switching coroutine without
// ever touching assembly. Resume/Yield are the two sides of one handoff;
// Defer/RunDeferredTo/Reset implement the LIFO cleanup registry.
package task

import "log"

// Yield values a Task may surrender control with. These are the only
// values a well-behaved EntryFunc yields; application code that wants to
// communicate richer state does so through the data pointer it closed
// over, not through the yielded int.
const (
	WantRead = -(iota + 1)
	WantWrite
	WantReadWrite
	Yield
	SuspendTimer
	Abort
)

// shutdownSignal is the type of Shutdown; a dedicated type so no ordinary
// resume value can collide with it.
type shutdownSignal struct{}

// Shutdown is the value a scheduler passes to Resume when it is tearing a
// connection down: every yield point that touches the socket (the pump's
// reads, the writer's writes, sendfile) returns an error or gives up when
// its Yield comes back with this, letting the Task unwind and finish
// without the socket ever being used again.
var Shutdown any = shutdownSignal{}

// EntryFunc is a Task's body. Its integer return value becomes the final
// value yielded when the Task runs to completion without being aborted.
type EntryFunc func(t *Task, data any) int

type deferredAction struct {
	fn   func(args ...any)
	args []any
}

type handoff struct {
	value    int
	terminal bool
}

// Task is a cooperative unit of execution with its own goroutine and a
// LIFO cleanup registry. Exactly one of a Task's owning scheduler and the
// Task's own goroutine runs at any instant; control passes between them
// exclusively through Resume/Yield.
type Task struct {
	resumeCh chan any
	yieldCh  chan handoff

	entry EntryFunc
	data  any

	started  bool
	finished bool

	deferred []deferredAction
}

// New creates a Task bound to entry and data. The goroutine backing it is
// not spawned until the first Resume.
func New(entry EntryFunc, data any) *Task {
	return &Task{
		resumeCh: make(chan any),
		yieldCh:  make(chan handoff),
		entry:    entry,
		data:     data,
	}
}

func (t *Task) start() {
	t.started = true
	t.finished = false
	entry, data := t.entry, t.data
	go func() {
		<-t.resumeCh // wait for the first Resume before entering the body
		ret := entry(t, data)
		t.yieldCh <- handoff{value: ret, terminal: true}
	}()
}

// Resume transfers control into the Task, returning whatever value the
// Task's next Yield (or final return) produces. Resuming a finished Task
// returns Abort without blocking.
func (t *Task) Resume(v any) int {
	return t.resumeWith(v)
}

// ResumeWith is an alias of Resume kept for call sites that want to read
// explicitly that a value is being handed to a waiting Yield.
func (t *Task) ResumeWith(v any) int {
	return t.resumeWith(v)
}

func (t *Task) resumeWith(v any) int {
	if t.finished {
		return Abort
	}
	if !t.started {
		t.start()
	}
	t.resumeCh <- v
	h := <-t.yieldCh
	if h.terminal {
		t.finished = true
	}
	return h.value
}

// Yield surrenders control with value v and blocks until the next Resume,
// returning the value passed to it. Must be called from inside the Task's
// own goroutine (i.e. from code reachable from its EntryFunc).
func (t *Task) Yield(v int) any {
	t.yieldCh <- handoff{value: v}
	return <-t.resumeCh
}

// Defer registers a cleanup action, called with args. A nil fn is rejected
// under a log-and-drop policy for registration failures under memory
// pressure: the action is never silently retried.
func (t *Task) Defer(fn func(args ...any), args ...any) {
	if fn == nil {
		log.Printf("task: dropped nil deferred action")
		return
	}
	t.deferred = append(t.deferred, deferredAction{fn: fn, args: args})
}

// Generation returns a snapshot of the deferred-action registry length.
func (t *Task) Generation() int {
	return len(t.deferred)
}

// RunDeferredTo fires every deferred action registered after generation
// gen, in strict reverse registration order, removing them from the
// registry. Actions registered at or before gen are left in place.
func (t *Task) RunDeferredTo(gen int) {
	if gen < 0 {
		gen = 0
	}
	if gen > len(t.deferred) {
		return
	}
	for i := len(t.deferred) - 1; i >= gen; i-- {
		act := t.deferred[i]
		act.fn(act.args...)
	}
	t.deferred = t.deferred[:gen]
}

// Free destroys the Task: every remaining deferred action fires, in
// reverse order, exactly once. A freed Task must not be resumed again.
func (t *Task) Free() {
	t.RunDeferredTo(0)
	t.finished = true
}

// Reset rebinds the Task to a fresh entry/data pair after running all
// deferred actions, reusing the Task's channels and deferred-slice
// backing array rather than allocating a new Task. This is the hot path
// for keep-alive connections and pipelined requests.
func (t *Task) Reset(entry EntryFunc, data any) {
	t.RunDeferredTo(0)
	t.entry = entry
	t.data = data
	t.started = false
	t.finished = false
}

// Finished reports whether the Task's goroutine has returned or been
// freed.
func (t *Task) Finished() bool {
	return t.finished
}
