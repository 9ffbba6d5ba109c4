// Package scenectl implements Scene (C7): the parser and bounding stage
// pipeline, its own control thread, and the result that gates View
// creation (spec.md §4.7).
package scenectl

import (
	"context"
	"sync"
	"time"

	"github.com/povbackend/tracebackend/internal/collab"
	"github.com/povbackend/tracebackend/internal/errs"
	"github.com/povbackend/tracebackend/internal/ids"
	"github.com/povbackend/tracebackend/internal/logging"
	"github.com/povbackend/tracebackend/internal/message"
	"github.com/povbackend/tracebackend/internal/optparse"
	"github.com/povbackend/tracebackend/internal/task"
)

// controlLoopInterval is the idle sleep of a control thread between drain
// attempts, spec.md §4.7/§4.8's "sleep 10 ms".
const controlLoopInterval = 10 * time.Millisecond

// Data is the shared, immutable-after-parsing scene state (spec.md §3
// SceneData); fields beyond identity live in the collaborator's own
// result, out of scope here.
type Data struct {
	ID                  ids.SceneID
	Frontend, Backend   message.Address
	ParsedMaxTraceLevel int
	ParsedAdcBailout    float64
	Result              collab.ParseResult
}

// Scene owns a TaskQueue, the parser/bounding stages, and its own control
// thread (spec.md §4.7).
type Scene struct {
	ID       ids.SceneID
	Frontend message.Address
	Backend  message.Address

	Parser  collab.Parser
	Bounder collab.Bounder

	Queue  *task.Queue
	sender task.MessageSender
	logger logging.Logger

	mu             sync.Mutex
	data           Data
	lastParserOpts optparse.ParserOptions
	parseDone      bool
	parseFailed    bool
	viewCount      int

	stopRequested chan struct{}
	stopped       chan struct{}
	stopOnce      sync.Once
}

// New creates a Scene bound to sender for its queue's outbound messages.
func New(id ids.SceneID, frontend, backend message.Address, parser collab.Parser, bounder collab.Bounder, sender task.MessageSender) *Scene {
	return &Scene{
		ID:            id,
		Frontend:      frontend,
		Backend:       backend,
		Parser:        parser,
		Bounder:       bounder,
		Queue:         task.New(sender),
		sender:        sender,
		logger:        logging.Get().WithField("scene", string(id)),
		stopRequested: make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// onFatal emits an Error message guarded by the error's notified flag
// (spec.md §7); Scene's sink does not tear the scene down — the queue's own
// failure absorption (Process step 2) handles that.
func (s *Scene) onFatal(err error) {
	var e *errs.Error
	if errs.As(err, &e) {
		if !e.MarkNotified() {
			return
		}
	}
	s.logger.WithError(err).Error("scene stage failed")
	if s.sender != nil {
		_ = s.sender.Send(message.Message{
			Class: message.ClassSceneOutput, Ident: message.IdentError, Source: s.Backend, Destination: s.Frontend,
			Attributes: map[string]any{"ErrorReport": message.ErrorReport{EnglishText: err.Error()}},
		})
	}
}

// StartParser appends the parser+bounding pipeline (spec.md §4.7):
// ParserTask, Sync, BoundingTask, Sync, Sync, sendStatistics, sendDone.
func (s *Scene) StartParser(opts optparse.ParserOptions) {
	s.mu.Lock()
	s.lastParserOpts = opts
	s.mu.Unlock()

	s.Queue.AppendTask(task.New("parser", s.parserRun, s.onFatal))
	s.Queue.AppendSync()
	s.Queue.AppendTask(task.New("bounding", s.boundingRun(opts), s.onFatal))
	s.Queue.AppendSync()
	s.Queue.AppendSync()
	s.Queue.AppendFunction(func(q *task.Queue) { s.sendStatistics() })
	s.Queue.AppendFunction(func(q *task.Queue) { s.sendDone() })
}

func (s *Scene) parserRun(t *task.Task) error {
	declares := map[string]any{}
	for _, d := range s.currentParserDeclares() {
		declares[d.Identifier] = d.Value
	}
	result, err := s.Parser.Parse(context.Background(), s.currentInputFile(), declares, s.currentClock())
	if err != nil {
		return err
	}
	if err := t.Cooperate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data.Result = result
	s.data.ParsedMaxTraceLevel = result.ParsedMaxTraceLevel
	s.data.ParsedAdcBailout = result.ParsedAdcBailout
	s.mu.Unlock()
	return nil
}

// the three currentX helpers read back the most recent StartParser call's
// options under lock, since parserRun runs on the queue's goroutine.
func (s *Scene) currentParserDeclares() []optparse.Declare {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParserOpts.Declare
}
func (s *Scene) currentInputFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParserOpts.InputFile
}
func (s *Scene) currentClock() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParserOpts.Clock
}

func (s *Scene) boundingRun(opts optparse.ParserOptions) task.RunFunc {
	return func(t *task.Task) error {
		if !opts.Bounding {
			return nil
		}
		method := collab.BoundingSlabHierarchy
		if opts.BoundingMethod == 2 {
			method = collab.BoundingBSP
		}
		if err := s.Bounder.Build(context.Background(), method, opts.BoundingThreshold); err != nil {
			return err
		}
		return t.Cooperate()
	}
}

func (s *Scene) sendStatistics() {
	s.mu.Lock()
	result := s.data.Result
	s.mu.Unlock()
	msg := message.Message{
		Class:       message.ClassSceneOutput,
		Ident:       message.IdentParserStatistics,
		Source:      s.Backend,
		Destination: s.Frontend,
		Attributes: map[string]any{
			"ObjectCount": result.ObjectCount,
			"LightCount":  result.LightCount,
			"CameraCount": result.CameraCount,
		},
	}
	s.Queue.AppendMessage(msg)
}

// sendDone only ever runs on the success path: Process step 2 refuses to
// drain past a failed task, so a queued entryFunction can never reach this
// callback once the queue has absorbed a failure. The failure path is
// handled out-of-band by notifyFailureOnce, since stopLocked (called from
// Process when it absorbs a failure) discards the remaining queued entries,
// including this one.
func (s *Scene) sendDone() {
	s.mu.Lock()
	s.parseDone = true
	s.parseFailed = false
	s.mu.Unlock()
	s.Queue.AppendMessage(message.Done(message.ClassSceneControl, s.Backend, s.Frontend, map[string]any{"SceneId": string(s.ID)}))
}

// notifyFailureOnce notices a queue that has permanently halted on a task
// failure and sends the Failed message directly through sender, bypassing
// the queue (whose queued entries, including a pending sendDone, were
// discarded by stopLocked when the failure was absorbed).
func (s *Scene) notifyFailureOnce() {
	failed, kind := s.Queue.Failed()
	if !failed {
		return
	}
	s.mu.Lock()
	if s.parseDone {
		s.mu.Unlock()
		return
	}
	s.parseDone = true
	s.parseFailed = true
	s.mu.Unlock()
	if s.sender != nil {
		_ = s.sender.Send(message.Failed(message.ClassSceneControl, s.Backend, s.Frontend, int(kind), kind.String()))
	}
}

// Run drives the control thread loop (spec.md §4.7): "while (!stopRequested)
// { while (queue.process() && !stopRequested) {} if (!stopRequested) sleep
// 10ms }". It returns once Stop is called.
func (s *Scene) Run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.stopRequested:
			return
		default:
		}
		for s.Queue.Process() {
			select {
			case <-s.stopRequested:
				return
			default:
			}
		}
		s.notifyFailureOnce()
		select {
		case <-s.stopRequested:
			return
		case <-time.After(controlLoopInterval):
		}
	}
}

// StopParser cancels the parser/bounding pipeline in progress (spec.md §6.1
// StopParser, §7 UserAbort); the control thread itself stays up, so a later
// StartParser can still run.
func (s *Scene) StopParser() {
	s.Queue.Stop()
}

// PauseParser pauses every active parser/bounding task (spec.md §7 "pause
// is a similar flag with a busy-wait"); idempotent (P6).
func (s *Scene) PauseParser() {
	s.Queue.Pause()
}

// ResumeParser resumes a paused parser/bounding pipeline; a no-op if not
// paused (P6).
func (s *Scene) ResumeParser() {
	s.Queue.Resume()
}

// Stop requests the control thread to exit and waits for it. Queue.Stop is
// called before waiting on stopped because Run's Process loop
// can be parked inside Queue.Process's cond.Wait when the queue is empty;
// only Queue.Stop's own broadcast wakes it so Run can observe the closed
// stopRequested channel and return.
func (s *Scene) Stop() {
	s.stopOnce.Do(func() { close(s.stopRequested) })
	s.Queue.Stop()
	<-s.stopped
}

// ParseDone reports whether parsing has finished, and whether it failed
// (spec.md §4.7's newView gate).
func (s *Scene) ParseDone() (done, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parseDone, s.parseFailed
}

// NewView validates the preconditions for creating a view on this scene
// (spec.md §4.7: "fails with kNotNowErr unless parsing Done and did not
// fail"); the caller (Backend) constructs the actual View.
func (s *Scene) NewView() error {
	done, failed := s.ParseDone()
	if !done || failed {
		return errs.New(errs.NotNow, "scene parsing has not completed successfully")
	}
	s.mu.Lock()
	s.viewCount++
	s.mu.Unlock()
	return nil
}

// ReleaseView decrements the live-view count (called from CloseView).
func (s *Scene) ReleaseView() {
	s.mu.Lock()
	if s.viewCount > 0 {
		s.viewCount--
	}
	s.mu.Unlock()
}

// ViewCount reports the number of views still referencing this scene
// (spec.md §3: "Closing a scene before all its views are closed fails").
func (s *Scene) ViewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewCount
}
