package task

import (
	"sync"
	"time"

	"github.com/povbackend/tracebackend/internal/errs"
	"github.com/povbackend/tracebackend/internal/logging"
	"github.com/povbackend/tracebackend/internal/metrics"
)

// entryKind tags a TaskEntry variant (spec.md §3 TaskEntry).
type entryKind int

const (
	entryTask entryKind = iota
	entrySync
	entryMessage
	entryFunction
)

// MessageSender is the narrow transport contract the queue needs to send a
// fire-and-forget Message entry; satisfied by internal/backend's
// transportSender and, in tests, by a fake.
type MessageSender interface {
	Send(msg any) error
}

type entry struct {
	kind entryKind
	t    *Task
	msg  any
	fn   func(q *Queue)
}

// Queue is the serialised pipeline of task/sync/message/function entries
// drained by a single driver thread (spec.md §4.2 TaskQueue).
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queued []entry
	active []*Task
	sender MessageSender
	logger logging.Logger

	firstFailureKind errs.Kind
	hasFailed        bool
	stopped          bool

	// drainStart marks when the queue last went from idle (empty queued,
	// empty active) to actionable; zero while idle. Used to observe
	// metrics.QueueDrainLatency once it empties out again.
	drainStart time.Time
}

// markActionableLocked records drainStart the first time an entry lands on
// an idle queue, and un-latches a prior Stop: StopParser/StopRender (spec.md
// §6.1) stop the queue without tearing down the owning Scene/View, so a
// later StartParser/StartRender appending fresh work must be able to stop
// it again. Called by every Append* under q.mu.
func (q *Queue) markActionableLocked() {
	if len(q.queued) == 1 && len(q.active) == 0 && q.drainStart.IsZero() {
		q.drainStart = time.Now()
	}
	q.stopped = false
}

// New creates an empty queue. sender may be nil if Message entries are
// never appended (e.g. a queue used only for local task fan-out).
func New(sender MessageSender) *Queue {
	q := &Queue{sender: sender, logger: logging.Get().WithField("component", "taskqueue")}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// AppendTask schedules a new Task entry; ownership of the task effectively
// moves to the queue, which will Start it when it reaches the front.
func (q *Queue) AppendTask(t *Task) {
	q.mu.Lock()
	q.queued = append(q.queued, entry{kind: entryTask, t: t})
	q.markActionableLocked()
	q.mu.Unlock()
	q.cond.Broadcast()
}

// AppendSync schedules a barrier: it cannot be popped until every Task
// appended before it has reached Done (spec.md §4.2 "Barrier guarantee").
func (q *Queue) AppendSync() {
	q.mu.Lock()
	q.queued = append(q.queued, entry{kind: entrySync})
	q.markActionableLocked()
	q.mu.Unlock()
	q.cond.Broadcast()
}

// AppendMessage schedules a fire-and-forget message send.
func (q *Queue) AppendMessage(msg any) {
	q.mu.Lock()
	q.queued = append(q.queued, entry{kind: entryMessage, msg: msg})
	q.markActionableLocked()
	q.mu.Unlock()
	q.cond.Broadcast()
}

// AppendFunction schedules a callback that runs on the queue-processing
// thread, receiving the queue itself.
func (q *Queue) AppendFunction(fn func(q *Queue)) {
	q.mu.Lock()
	q.queued = append(q.queued, entry{kind: entryFunction, fn: fn})
	q.markActionableLocked()
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Process runs one step of spec.md §4.2's algorithm and reports whether more
// work may be immediately actionable (true) or the caller should wait/sleep
// (false).
func (q *Queue) Process() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 1. Reap Done tasks, absorbing the first failure code.
	remainingActive := q.active[:0]
	failedThisRound := false
	for _, t := range q.active {
		if t.Done() {
			if failed, kind := t.Failed(); failed && !q.hasFailed {
				q.hasFailed = true
				q.firstFailureKind = kind
				failedThisRound = true
			}
			continue
		}
		remainingActive = append(remainingActive, t)
	}
	q.active = remainingActive

	// 2. A failure this round halts the queue.
	if failedThisRound {
		q.stopLocked()
		return false
	}
	if q.hasFailed {
		return false
	}

	// 3. Peek the front of the queued list.
	if len(q.queued) == 0 {
		if len(q.active) == 0 && !q.drainStart.IsZero() {
			metrics.QueueDrainLatency.Observe(time.Since(q.drainStart).Seconds())
			q.drainStart = time.Time{}
		}
		q.cond.Wait()
		return true
	}

	front := q.queued[0]
	switch front.kind {
	case entryTask:
		q.queued = q.queued[1:]
		q.active = append(q.active, front.t)
		front.t.Start(func() { q.cond.Broadcast() })
		return true

	case entrySync:
		if len(q.active) == 0 {
			q.queued = q.queued[1:]
			return true
		}
		return false

	case entryMessage:
		q.queued = q.queued[1:]
		if q.sender != nil {
			if err := q.sender.Send(front.msg); err != nil {
				q.logger.WithError(err).Warn("dropping message send error")
			}
		}
		return true

	case entryFunction:
		q.queued = q.queued[1:]
		q.safeInvoke(front.fn)
		return true
	}

	return false
}

func (q *Queue) safeInvoke(fn func(q *Queue)) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("recovered panic in queue function entry: %v", r)
		}
	}()
	fn(q)
}

// Stop runs the two-phase shutdown: requestStop every active task, then
// stop-join each, then clears both queues.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopLocked()
}

func (q *Queue) stopLocked() {
	if q.stopped {
		return
	}
	q.stopped = true
	active := append([]*Task(nil), q.active...)

	// RequestStop all first so every task unwinds concurrently...
	for _, t := range active {
		t.RequestStop()
	}
	// ...then join each; release the lock while joining so Process/append
	// callers aren't blocked on a task's cooperate loop.
	q.mu.Unlock()
	for _, t := range active {
		t.Stop()
	}
	q.mu.Lock()

	q.active = nil
	q.queued = nil
	q.cond.Broadcast()
}

// Pause forwards to every active task.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.active {
		t.Pause()
	}
}

// Resume forwards to every active task.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.active {
		t.Resume()
	}
}

// IsRunning reports whether any task is active or work remains queued.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active) > 0 || len(q.queued) > 0
}

// IsDone reports the logical complement of IsRunning. A queue halted by a
// task failure has nothing active or queued, so it reports done as well.
func (q *Queue) IsDone() bool {
	return !q.IsRunning()
}

// Failed reports whether the queue has absorbed a task failure, and its kind.
func (q *Queue) Failed() (bool, errs.Kind) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasFailed, q.firstFailureKind
}
