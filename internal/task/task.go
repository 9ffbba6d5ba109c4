// Package task implements the cancellable, pausable unit of work (C1 Task)
// and the serialized pipeline that drains them (C2 TaskQueue) from
// spec.md §4.1/§4.2.
package task

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/povbackend/tracebackend/internal/errs"
	"github.com/povbackend/tracebackend/internal/logging"
)

// pauseCheckInterval is the busy-wait granularity for a paused task,
// matching spec.md §4.1 ("sleeps 100 ms in a loop").
const pauseCheckInterval = 100 * time.Millisecond

// RunFunc is the body of a Task. It must call Cooperate periodically
// (spec.md §5: at least once every <=1s of work).
type RunFunc func(t *Task) error

// FatalErrorSink is invoked once per failing Task with the originating
// error; both Scene and View supply one that emits an Error message guarded
// by the error's notified flag (spec.md §7).
type FatalErrorSink func(err error)

// State is Task's position in the Created -> Running -> Stopping -> Done
// state machine of spec.md §4.1.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateDone
)

// Task is one cancellable, pausable unit of work with its own thread,
// fatal-error sink, and elapsed-time accounting.
type Task struct {
	Name string

	run       RunFunc
	onFatal   FatalErrorSink
	logger    logging.Logger

	state       atomic.Int32
	stopReq     atomic.Bool
	pauseReq    atomic.Bool
	failed      atomic.Bool
	failureKind atomic.Int32

	startOnce sync.Once
	doneCh    chan struct{}

	realElapsed time.Duration
	cpuElapsed  time.Duration
	mu          sync.Mutex // guards realElapsed/cpuElapsed

	err error
}

// New creates a Task that will run fn on its own goroutine once Start is
// called. onFatal is invoked if fn returns a non-stop error.
func New(name string, fn RunFunc, onFatal FatalErrorSink) *Task {
	return &Task{
		Name:    name,
		run:     fn,
		onFatal: onFatal,
		logger:  logging.Get().WithField("task", name),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the worker goroutine exactly once (idempotent after
// completion); onDone is invoked after finish() when the task reaches Done.
func (t *Task) Start(onDone func()) {
	t.startOnce.Do(func() {
		t.state.Store(int32(StateRunning))
		go t.worker(onDone)
	})
}

func (t *Task) worker(onDone func()) {
	start := time.Now()
	cpuStart := cpuTimeNow()

	defer func() {
		t.mu.Lock()
		t.realElapsed = time.Since(start)
		if cpuSupported {
			t.cpuElapsed = cpuTimeNow() - cpuStart
		}
		t.mu.Unlock()

		t.finish()
		t.state.Store(int32(StateDone))
		close(t.doneCh)
		if onDone != nil {
			onDone()
		}
	}()

	err := t.safeRun()
	if err != nil {
		if errs.KindOf(err) == errs.UserAbort {
			t.stopped()
		} else {
			t.failed.Store(true)
			t.failureKind.Store(int32(mapFailureKind(err)))
			t.err = err
			if t.onFatal != nil {
				t.onFatal(err)
			}
		}
	}
}

// safeRun invokes run(), recovering a panic (modelling "allocation failure"
// or any other unrecognised exception, spec.md §4.1) into a typed error.
func (t *Task) safeRun() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errs.Wrap(errs.Uncategorized, e, "panic in task "+t.Name)
			} else {
				err = errs.New(errs.Uncategorized, fmt.Sprintf("panic in task %s: %v", t.Name, r))
			}
		}
	}()
	return t.run(t)
}

func mapFailureKind(err error) errs.Kind {
	return errs.KindOf(err)
}

// stopped is called when run() unwound via a Cooperate-raised stop.
func (t *Task) stopped() {
	t.logger.Debug("task stopped on request")
}

// finish always runs, even if run() failed; wrapped in its own recover so a
// failing finish() cannot leave the task stuck mid-shutdown.
func (t *Task) finish() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Errorf("panic in task finish: %v", r)
		}
	}()
}

// RequestStop sets the stop flag without blocking for the worker to exit.
func (t *Task) RequestStop() {
	t.stopReq.Store(true)
}

// Stop requests a stop and blocks until the task has reached Done.
func (t *Task) Stop() {
	t.RequestStop()
	<-t.doneCh
}

// Pause sets the cooperative pause flag. A second Pause is a no-op
// (spec.md P6: "Pause followed by Pause equals Pause").
func (t *Task) Pause() { t.pauseReq.Store(true) }

// Resume clears the pause flag; calling Resume when not paused is a no-op.
func (t *Task) Resume() { t.pauseReq.Store(false) }

// Cooperate is the safe point run() must call periodically. It raises
// errs.ErrStopRequested if a stop was requested, and busy-waits at 100ms
// granularity while paused (still honouring a stop request mid-pause).
func (t *Task) Cooperate() error {
	for t.pauseReq.Load() {
		if t.stopReq.Load() {
			return errs.ErrStopRequested
		}
		time.Sleep(pauseCheckInterval)
	}
	if t.stopReq.Load() {
		return errs.ErrStopRequested
	}
	return nil
}

// Done reports whether the task has reached the Done state.
func (t *Task) Done() bool { return State(t.state.Load()) == StateDone }

// Failed reports whether the task terminated with a non-abort failure, and
// the failure's Kind.
func (t *Task) Failed() (bool, errs.Kind) {
	return t.failed.Load(), errs.Kind(t.failureKind.Load())
}

// Err returns the error the task failed with, if any.
func (t *Task) Err() error { return t.err }

// Elapsed returns the real and CPU time spent running, valid once Done.
func (t *Task) Elapsed() (real, cpu time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.realElapsed, t.cpuElapsed
}

// cpuSupported models "if per-thread CPU measurement is supported"
// (spec.md §4.1 step 4); the platform hook is a package var so tests and
// other platforms can stub it.
var cpuSupported = true

// cpuTimeNow is the platform hook for per-thread CPU time; stubbed to
// wall-clock time since Go does not expose per-goroutine CPU time without
// cgo. A real port would replace this with a platform-specific clock.
var cpuTimeNow = func() time.Duration {
	return time.Duration(time.Now().UnixNano())
}
