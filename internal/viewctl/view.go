// Package viewctl implements View (C8): the render-options pipeline that
// sequences photon shooting, radiosity pretrace, the preview cascade and
// the final antialiased pass over a tile dispatcher (spec.md §4.6-§4.8).
package viewctl

import (
	"context"
	"sync"
	"time"

	"github.com/povbackend/tracebackend/internal/collab"
	"github.com/povbackend/tracebackend/internal/dispatch"
	"github.com/povbackend/tracebackend/internal/errs"
	"github.com/povbackend/tracebackend/internal/geom"
	"github.com/povbackend/tracebackend/internal/ids"
	"github.com/povbackend/tracebackend/internal/logging"
	"github.com/povbackend/tracebackend/internal/message"
	"github.com/povbackend/tracebackend/internal/optparse"
	"github.com/povbackend/tracebackend/internal/photon"
	"github.com/povbackend/tracebackend/internal/radiosity"
	"github.com/povbackend/tracebackend/internal/task"
	"github.com/povbackend/tracebackend/internal/trace"
)

// controlLoopInterval is the idle sleep of a control thread between drain
// attempts, matching scenectl's control thread (spec.md §4.7/§4.8).
const controlLoopInterval = 10 * time.Millisecond

// Camera mirrors optparse.CameraOverride resolved to concrete vectors, the
// state a StartRender camera override (spec.md §4.8) mutates in place.
type Camera struct {
	Location, Direction, Up, Right, Sky geom.Vec3
}

// Reorient applies a CameraOverride on top of the parsed camera: any field
// present in the override replaces the parsed value outright, and LookAt
// (if present) recomputes Direction from Location towards the target,
// overriding whatever Direction was set to (spec.md §4.8).
func (c Camera) Reorient(o *optparse.CameraOverride) Camera {
	if o == nil {
		return c
	}
	out := c
	if o.Location != [3]float64{} {
		out.Location = geom.New(o.Location[0], o.Location[1], o.Location[2])
	}
	if o.Direction != [3]float64{} {
		out.Direction = geom.New(o.Direction[0], o.Direction[1], o.Direction[2])
	}
	if o.Up != [3]float64{} {
		out.Up = geom.New(o.Up[0], o.Up[1], o.Up[2])
	}
	if o.Right != [3]float64{} {
		out.Right = geom.New(o.Right[0], o.Right[1], o.Right[2])
	}
	if o.Sky != [3]float64{} {
		out.Sky = geom.New(o.Sky[0], o.Sky[1], o.Sky[2])
	}
	if o.LookAt != nil {
		target := geom.New(o.LookAt[0], o.LookAt[1], o.LookAt[2])
		out.Direction = target.Subtract(out.Location).Normalize()
	}
	return out
}

// View owns a TaskQueue, the per-view tile dispatcher, and the optional
// photon/radiosity collaborators a render may enable (spec.md §3 ViewData).
type View struct {
	ID       ids.ViewID
	SceneID  ids.SceneID
	Frontend message.Address
	Backend  message.Address

	Width, Height int
	Camera        Camera

	Intersector     collab.Intersector
	PhotonPipeline  *photon.Pipeline
	RadiosityCache  radiosity.Cache
	RadiosityDriver *radiosity.Driver

	Queue      *task.Queue
	sender     task.MessageSender
	Dispatcher *dispatch.Dispatcher
	logger     logging.Logger

	// rtr is non-nil only while a real-time render is active (spec.md §5);
	// it owns the per-frame barrier the render workers synchronise on.
	rtr *RTRData

	maxRenderThreads int
	highRepro        bool
	nominalThreads   int

	// doneNotified guards against double-sending Done/Failed; only Run's
	// goroutine touches it, so it needs no lock.
	doneNotified bool

	stopRequested chan struct{}
	stopped       chan struct{}
	stopOnce      sync.Once
}

// New creates a View bound to sender for its queue's outbound messages.
func New(id ids.ViewID, sceneID ids.SceneID, frontend, backend message.Address, width, height int, intersector collab.Intersector, sender task.MessageSender) *View {
	return &View{
		ID:            id,
		SceneID:       sceneID,
		Frontend:      frontend,
		Backend:       backend,
		Width:         width,
		Height:        height,
		Intersector:   intersector,
		Queue:         task.New(sender),
		sender:        sender,
		logger:        logging.Get().WithField("view", string(id)),
		stopRequested: make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

func (v *View) onFatal(err error) {
	var e *errs.Error
	if errs.As(err, &e) {
		if !e.MarkNotified() {
			return
		}
	}
	v.logger.WithError(err).Error("view stage failed")
	if v.sender != nil {
		_ = v.sender.Send(message.Message{
			Class: message.ClassViewOutput, Ident: message.IdentError, Source: v.Backend, Destination: v.Frontend,
			Attributes: map[string]any{"ErrorReport": message.ErrorReport{EnglishText: err.Error()}},
		})
	}
}

// StartRender appends the full render pipeline (spec.md §4.8): camera
// override, optional radiosity-cache load, optional photon shoot, optional
// radiosity pretrace, the preview cascade, the final antialiased pass,
// dispatcher shutdown, statistics and Done.
func (v *View) StartRender(opts optparse.RenderOptions) {
	v.maxRenderThreads = opts.MaxRenderThreads
	if v.maxRenderThreads < 1 {
		v.maxRenderThreads = 1
	}
	v.highRepro = opts.HighReproducibility
	v.nominalThreads = v.maxRenderThreads

	v.Queue.AppendFunction(func(q *task.Queue) {
		v.Camera = v.Camera.Reorient(opts.SceneCamera)
	})

	if opts.RadiosityFromFile && v.RadiosityCache != nil {
		v.Queue.AppendTask(task.New("radiosity-load", v.loadRadiosityCache(opts), v.onFatal))
		v.Queue.AppendSync()
	}

	if opts.PhotonsEnabled && v.PhotonPipeline != nil {
		v.Queue.AppendTask(task.New("photon-shoot", v.runPhotonShoot, v.onFatal))
		v.Queue.AppendSync()
	}

	if opts.Radiosity && v.RadiosityDriver != nil {
		v.appendRadiosityPretrace(opts)
	}

	if opts.RealTimeRaytracing {
		v.appendRTRLoop(opts)
	} else {
		v.appendPreviewCascade(opts)
		v.appendFinalPass(opts)
	}

	v.Queue.AppendFunction(func(q *task.Queue) { v.dispatchShutdownMessages() })
	v.Queue.AppendSync()
	v.Queue.AppendFunction(func(q *task.Queue) { v.sendStatistics() })
	v.Queue.AppendFunction(func(q *task.Queue) { v.sendDone() })
}

func (v *View) loadRadiosityCache(opts optparse.RenderOptions) task.RunFunc {
	return func(t *task.Task) error {
		// Loading an on-disk radiosity cache is an external collaborator
		// concern (file format, serialisation); RadiosityCache's Record/
		// QueryStats contract is all this driver needs, so a real
		// implementation wires its own loader in before StartRender runs.
		return t.Cooperate()
	}
}

func (v *View) runPhotonShoot(t *task.Task) error {
	if err := v.PhotonPipeline.Estimate(); err != nil {
		return err
	}
	if err := v.PhotonPipeline.Strategise(func(w string) { v.logger.Warn(w) }); err != nil {
		return err
	}
	if err := v.PhotonPipeline.Shoot(context.Background(), t.Cooperate); err != nil {
		return err
	}
	return v.PhotonPipeline.Merge()
}

// appendRadiosityPretrace sequences maxRenderThreads Tasks per pretrace
// pass, each draining the shared dispatcher concurrently, followed by
// setNextRectangle + Sync (spec.md §4.5/§4.8: "between dispatcher-reusing
// stages always append setNextRectangle and a Sync", and §5's "next
// stage's workers" implying N concurrent Tasks per stage, not one).
func (v *View) appendRadiosityPretrace(opts optparse.RenderOptions) {
	v.Dispatcher = dispatch.New(dispatch.Config{
		Area:      dispatch.Rect{Left: 0, Top: 0, Right: v.Width - 1, Bottom: v.Height - 1},
		BlockSize: opts.RenderBlockSize,
		Pattern:   opts.RenderPattern,
		BlockStep: opts.RenderBlockStep,
	})
	v.RadiosityDriver.Settings.PretraceStartSize = opts.RadiosityPretraceStart * float64(v.Width)
	v.RadiosityDriver.Settings.PretraceEndSize = opts.RadiosityPretraceEnd * float64(v.Width)
	v.RadiosityDriver.Settings.HighReproducibility = v.highRepro
	v.RadiosityDriver.Settings.NominalThreads = v.nominalThreads
	v.RadiosityDriver.Settings.ActualThreads = v.maxRenderThreads
	v.RadiosityDriver.Settings.PassCount = pretracePassCount(opts)

	for pass := 0; pass < v.RadiosityDriver.Settings.PassCount; pass++ {
		pass := pass
		for w := 0; w < v.maxRenderThreads; w++ {
			v.Queue.AppendTask(task.New("radiosity-pretrace", v.radiosityPassRun(pass), v.onFatal))
		}
		v.Queue.AppendFunction(func(q *task.Queue) { v.setNextRectangle() })
		v.Queue.AppendSync()
	}
}

func pretracePassCount(opts optparse.RenderOptions) int {
	start, end := opts.RadiosityPretraceStart, opts.RadiosityPretraceEnd
	if end <= 0 || start <= end {
		return 1
	}
	count := 1
	for start > end {
		start *= 0.5
		count++
		if count > 16 {
			break
		}
	}
	return count
}

func (v *View) radiosityPassRun(pass int) task.RunFunc {
	return func(t *task.Task) error {
		stride := radiosity.Stride(v.RadiosityDriver.Settings, pass)
		count := 0
		for {
			tileID, bounds, rawInfo, ok := v.Dispatcher.GetNextRectangle(stride)
			if !ok {
				return nil
			}
			info, _ := rawInfo.(radiosity.BlockInfo)
			if rawInfo == nil {
				info = radiosity.NewBlockInfo()
			}
			info.Pass = pass

			traceFn := func(x, y float64) [3]float64 {
				color, err := v.sampleRay(bounds.Left+int(x), bounds.Top+int(y))
				if err != nil {
					return [3]float64{}
				}
				return [3]float64{color.X, color.Y, color.Z}
			}
			next, completion, _ := v.RadiosityDriver.RunPass(tileID, bounds.Width(), bounds.Height(), info, traceFn)

			var carry dispatch.BlockInfo
			if next != nil {
				carry = *next
			}
			v.Dispatcher.CompletedRectangle(tileID, completion, carry)

			count++
			if err := cooperateEvery(t, count, 8); err != nil {
				return err
			}
		}
	}
}

// appendPreviewCascade appends maxRenderThreads Tasks per coarse preview
// stage (each draining the shared dispatcher concurrently), followed by
// setNextRectangle + Sync (spec.md §4.6).
func (v *View) appendPreviewCascade(opts optparse.RenderOptions) {
	stages := trace.PreviewCascade(opts.PreviewStartSize, opts.PreviewEndSize, methodFromOptions(opts))
	for _, stage := range stages[:len(stages)-1] {
		v.appendRenderStage(opts, stage)
	}
}

func (v *View) appendFinalPass(opts optparse.RenderOptions) {
	stages := trace.PreviewCascade(opts.PreviewStartSize, opts.PreviewEndSize, methodFromOptions(opts))
	v.appendRenderStage(opts, stages[len(stages)-1])
}

func methodFromOptions(opts optparse.RenderOptions) trace.Method {
	if !opts.AntialiasEnabled {
		return trace.MethodNone
	}
	return trace.Method(opts.AntialiasMethod)
}

// appendRTRLoop replaces the preview cascade + final pass with a single
// final-quality stage that N workers render frame after frame, synchronising
// at RTRData's barrier between frames (spec.md §5). Unlike the ordinary
// render stages, this Task never returns on its own; only StopRender/Stop
// unwinds it via Cooperate.
func (v *View) appendRTRLoop(opts optparse.RenderOptions) {
	cascade := trace.PreviewCascade(opts.PreviewStartSize, opts.PreviewEndSize, methodFromOptions(opts))
	stage := cascade[len(cascade)-1]

	v.Dispatcher = dispatch.New(dispatch.Config{
		Area:      dispatch.Rect{Left: 0, Top: 0, Right: v.Width - 1, Bottom: v.Height - 1},
		BlockSize: opts.RenderBlockSize,
		Pattern:   opts.RenderPattern,
		BlockStep: opts.RenderBlockStep,
	})

	cameras := make([]Camera, 0, len(opts.SceneCameras))
	for i := range opts.SceneCameras {
		cameras = append(cameras, v.Camera.Reorient(&opts.SceneCameras[i]))
	}
	if len(cameras) == 0 {
		cameras = []Camera{v.Camera}
	}
	v.rtr = NewRTRData(v.maxRenderThreads, cameras, v.Width, v.Height)

	jitterAmount := 0.0
	if opts.Jitter {
		jitterAmount = opts.JitterAmount
	}
	settings := trace.Settings{
		Method:            methodFromOptions(opts),
		Depth:             opts.AntialiasDepth,
		Threshold:         opts.AntialiasThreshold,
		Confidence:        opts.AntialiasConfidence,
		Gamma:             opts.AntialiasGamma,
		JitterAmount:      jitterAmount,
		PreviewSize:       stage.StepSize,
		PreviewSkipCorner: stage.SkipCorner,
	}

	for w := 0; w < v.maxRenderThreads; w++ {
		v.Queue.AppendTask(task.New("rtr-frame", v.rtrFrameRun(settings, stage), v.onFatal))
	}
	v.Queue.AppendSync()
}

// rtrFrameRun drains one frame's worth of tiles from the dispatcher, then
// parks at the RTR barrier; the last worker to arrive resets the dispatcher,
// advances the cyclic camera, and emits the full-frame pixel message, after
// which every worker starts dispatching the next frame.
func (v *View) rtrFrameRun(settings trace.Settings, stage trace.PreviewStage) task.RunFunc {
	return func(t *task.Task) error {
		settings.Cooperate = t.Cooperate
		count := 0
		for {
			tileID, bounds, _, ok := v.Dispatcher.GetNextRectangle(0)
			if !ok {
				v.rtr.Arrive(func(next Camera) {
					v.setNextRectangle()
					v.sendFullFramePixelBlock(stage)
					v.Camera = next
				})
				count++
				if err := cooperateEvery(t, count, 1); err != nil {
					return err
				}
				continue
			}

			area := trace.NewRect(bounds.Left, bounds.Top, bounds.Right, bounds.Bottom)
			sampleFn := func(x, y float64) geom.Vec3 {
				color, err := v.sampleRay(int(x), int(y))
				if err != nil {
					return geom.Vec3{}
				}
				return color
			}
			pixels, err := trace.RenderTile(area, settings, sampleFn)
			if err != nil {
				return err
			}
			v.Dispatcher.CompletedRectangle(tileID, 1, nil)
			for _, p := range pixels {
				v.rtr.WritePixel(p.X, p.Y, toPixelColor(p.Color, settings.Gamma))
			}

			count++
			if err := cooperateEvery(t, count, 8); err != nil {
				return err
			}
		}
	}
}

// sendFullFramePixelBlock emits the whole-view PixelBlockSet an RTR frame
// barrier sends once every worker has finished the frame (spec.md §5
// "emits the full-frame pixel message"), carrying every pixel the frame's
// workers wrote into RTRData's accumulation buffer.
func (v *View) sendFullFramePixelBlock(stage trace.PreviewStage) {
	v.sendPixelBlock(dispatch.Rect{Left: 0, Top: 0, Right: v.Width - 1, Bottom: v.Height - 1}, stage, 1, v.rtr.Frame())
}

func (v *View) appendRenderStage(opts optparse.RenderOptions, stage trace.PreviewStage) {
	v.Dispatcher = dispatch.New(dispatch.Config{
		Area:      dispatch.Rect{Left: 0, Top: 0, Right: v.Width - 1, Bottom: v.Height - 1},
		BlockSize: opts.RenderBlockSize,
		Pattern:   opts.RenderPattern,
		BlockStep: opts.RenderBlockStep,
	})

	jitterAmount := 0.0
	if opts.Jitter {
		jitterAmount = opts.JitterAmount
	}
	settings := trace.Settings{
		Method:            methodFromOptions(opts),
		Depth:             opts.AntialiasDepth,
		Threshold:         opts.AntialiasThreshold,
		Confidence:        opts.AntialiasConfidence,
		Gamma:             opts.AntialiasGamma,
		JitterAmount:      jitterAmount,
		PreviewSize:       stage.StepSize,
		PreviewSkipCorner: stage.SkipCorner,
	}

	for w := 0; w < v.maxRenderThreads; w++ {
		v.Queue.AppendTask(task.New("render-stage", v.renderStageRun(settings, stage), v.onFatal))
	}
	v.Queue.AppendFunction(func(q *task.Queue) { v.setNextRectangle() })
	v.Queue.AppendSync()
}

func (v *View) renderStageRun(settings trace.Settings, stage trace.PreviewStage) task.RunFunc {
	return func(t *task.Task) error {
		settings.Cooperate = t.Cooperate
		count := 0
		for {
			tileID, bounds, _, ok := v.Dispatcher.GetNextRectangle(0)
			if !ok {
				return nil
			}
			area := trace.NewRect(bounds.Left, bounds.Top, bounds.Right, bounds.Bottom)
			sampleFn := func(x, y float64) geom.Vec3 {
				color, err := v.sampleRay(int(x), int(y))
				if err != nil {
					return geom.Vec3{}
				}
				return color
			}
			pixels, err := trace.RenderTile(area, settings, sampleFn)
			if err != nil {
				return err
			}
			v.Dispatcher.CompletedRectangle(tileID, 1, nil)
			v.sendPixelBlock(bounds, stage, 1, pixelColors(pixels, settings.Gamma))

			count++
			if err := cooperateEvery(t, count, 8); err != nil {
				return err
			}
		}
	}
}

func cooperateEvery(t *task.Task, count, every int) error {
	if count%every != 0 {
		return nil
	}
	return t.Cooperate()
}

func (v *View) sampleRay(x, y int) (geom.Vec3, error) {
	if v.Intersector == nil {
		return geom.Vec3{}, nil
	}
	ray := v.cameraRay(x, y)
	return v.Intersector.Intersect(context.Background(), ray, 5, 1.0/255.0)
}

// cameraRay builds a primary ray for pixel (x, y) from the view's camera,
// mapping pixel coordinates to the [-1,1] image plane spanned by Right/Up.
func (v *View) cameraRay(x, y int) geom.Ray {
	u := 2*float64(x)/float64(v.Width) - 1
	w := 2*float64(y)/float64(v.Height) - 1
	direction := v.Camera.Direction.
		Add(v.Camera.Right.Multiply(u)).
		Add(v.Camera.Up.Multiply(-w)).
		Normalize()
	return geom.NewRay(v.Camera.Location, direction)
}

// setNextRectangle resets the dispatcher between stages: empty skip list,
// traversal back at tile 0 and completedFirstPass cleared, so the next
// stage's first lap dispatches every tile again; stored carry-over
// BlockInfo is kept and handed back with its tile (spec.md §4.3
// setNextRectangle between reuses of the same dispatcher).
func (v *View) setNextRectangle() {
	if v.Dispatcher != nil {
		v.Dispatcher.SetNextRectangle(nil, 0)
	}
}

func (v *View) sendPixelBlock(bounds dispatch.Rect, stage trace.PreviewStage, completion float64, pixels []message.PixelColor) {
	pixelID := stage.StepSize
	rect := message.PixelRect{Left: bounds.Left, Top: bounds.Top, Right: bounds.Right, Bottom: bounds.Bottom}
	msg := message.Message{
		Class:       message.ClassViewImage,
		Ident:       message.IdentPixelBlockSet,
		Source:      v.Backend,
		Destination: v.Frontend,
		Attributes: map[string]any{
			"PixelBlockSet": message.PixelBlockSet{
				Rect:       rect,
				PixelSize:  stage.StepSize,
				Pixels:     pixels,
				PixelID:    &pixelID,
				PixelFinal: stage.IsFinal && completion >= 1,
			},
		},
	}
	v.Queue.AppendMessage(msg)
}

// toPixelColor clamps a sampled linear color to the displayable [0,1] range
// and applies the view's gamma encoding curve before it leaves the trace
// driver for the wire (spec.md §6.4 PixelBlockSet, §6.3 AntialiasGamma).
func toPixelColor(c geom.Vec3, gamma float64) message.PixelColor {
	c = c.Clamp(0, 1).EncodeGamma(gamma)
	return message.PixelColor{R: c.X, G: c.Y, B: c.Z}
}

// pixelColors converts a rendered tile's raw samples into wire PixelColor
// values in the same order RenderTile produced them.
func pixelColors(pixels []trace.Pixel, gamma float64) []message.PixelColor {
	out := make([]message.PixelColor, len(pixels))
	for i, p := range pixels {
		out[i] = toPixelColor(p.Color, gamma)
	}
	return out
}

func (v *View) dispatchShutdownMessages() {
	// The render stages now send their own PixelBlockSet per tile; nothing
	// further to flush once the last Sync drains.
}

func (v *View) sendStatistics() {
	pending, completed := float64(0), float64(0)
	if v.Dispatcher != nil {
		pending, completed = v.Dispatcher.Stats()
	}
	msg := message.Message{
		Class:       message.ClassViewOutput,
		Ident:       message.IdentRenderStatistics,
		Source:      v.Backend,
		Destination: v.Frontend,
		Attributes: map[string]any{
			"PixelsPending":   pending,
			"PixelsCompleted": completed,
		},
	}
	v.Queue.AppendMessage(msg)
}

// sendDone only ever runs on the success path: Process step 2 refuses to
// drain past a failed task, so a queued entryFunction can never reach this
// callback once the queue has absorbed a failure. The failure path is
// handled out-of-band by notifyFailureOnce, since stopLocked (called from
// Process when it absorbs a failure) discards the remaining queued entries,
// including this one.
func (v *View) sendDone() {
	v.doneNotified = true
	v.Queue.AppendMessage(message.Done(message.ClassViewControl, v.Backend, v.Frontend, map[string]any{"ViewId": string(v.ID)}))
}

// notifyFailureOnce notices a queue that has permanently halted on a task
// failure and sends the Failed message directly through sender, bypassing
// the queue (whose queued entries, including a pending sendDone, were
// discarded by stopLocked when the failure was absorbed).
func (v *View) notifyFailureOnce() {
	if v.doneNotified {
		return
	}
	failed, kind := v.Queue.Failed()
	if !failed {
		return
	}
	v.doneNotified = true
	if v.sender != nil {
		_ = v.sender.Send(message.Failed(message.ClassViewControl, v.Backend, v.Frontend, int(kind), kind.String()))
	}
}

// Run drives the control thread loop exactly like Scene's (spec.md §4.8
// shares §4.7's control-thread shape).
func (v *View) Run() {
	defer close(v.stopped)
	for {
		select {
		case <-v.stopRequested:
			return
		default:
		}
		for v.Queue.Process() {
			select {
			case <-v.stopRequested:
				return
			default:
			}
		}
		v.notifyFailureOnce()
		select {
		case <-v.stopRequested:
			return
		case <-time.After(controlLoopInterval):
		}
	}
}

// StopRender cancels the render/pretrace pipeline in progress (spec.md §6.1
// StopRender, §7 UserAbort); the control thread itself stays up, so a later
// StartRender can still run.
func (v *View) StopRender() {
	v.Queue.Stop()
}

// PauseRender pauses every active render/pretrace worker task (spec.md §7);
// idempotent (P6).
func (v *View) PauseRender() {
	v.Queue.Pause()
}

// ResumeRender resumes a paused render/pretrace pipeline; a no-op if not
// paused (P6).
func (v *View) ResumeRender() {
	v.Queue.Resume()
}

// Stop requests the control thread to exit and waits for it. Queue.Stop is
// called before waiting on stopped for the same reason as Scene.Stop: Run's
// Process loop can be parked in Queue.Process's cond.Wait, which only
// Queue.Stop's broadcast wakes.
func (v *View) Stop() {
	v.stopOnce.Do(func() { close(v.stopRequested) })
	v.Queue.Stop()
	<-v.stopped
}
